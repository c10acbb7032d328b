package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/observability"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

func (p *Pipeline) captureWorker(ctx context.Context) {
	defer p.wg.Done()
	backoff := session.NewBackoff(p.cfg.CaptureRetry, nil)
	for {
		frame, err := p.deps.Capture.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.captureLive.Store(false)
			p.emit(ctx, captureFault{err: err})
			delay := backoff.Next()
			log.Warn().
				Err(err).
				Str("component", "voice").
				Int("attempt", backoff.Attempt()).
				Dur("retry_in", delay).
				Msg("capture read failed")
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		backoff.Reset()
		p.captureLive.Store(true)
		select {
		case p.raw <- frame:
		default:
			p.droppedCapture.Add(1)
			observability.RecordVoiceDrop("capture")
		}
	}
}

func (p *Pipeline) inferenceWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pcm := <-p.raw:
			f := scoredFrame{
				pcm:    pcm,
				score:  p.deps.Scorer.Score(pcm),
				speech: p.deps.VAD.IsSpeech(pcm),
			}
			select {
			case p.frames <- f:
			default:
				p.droppedFrames.Add(1)
				observability.RecordVoiceDrop("inference")
			}
		}
	}
}

func (p *Pipeline) onFrame(f scoredFrame) {
	hit := f.score >= p.cfg.WakeThreshold
	switch p.state {
	case StateIdle, StateWakeWordArmed, StatePlaying:
		if hit {
			log.Debug().
				Str("component", "voice").
				Float32("confidence", f.score).
				Msg("wake word hit")
			p.onWake(p.words.Phrase())
		}
	case StateDucked:
		if hit && p.ann != nil && p.ann.ann.Alarm {
			log.Info().Str("component", "voice").Msg("wake word stopped alarm")
			p.stopAnnouncement()
		}
	case StateListening:
		p.listen(f)
	case StateStreaming:
		p.utterance = append(p.utterance, f.pcm)
		p.sendAudio(f.pcm)
	}
}

func (p *Pipeline) onWake(phrase string) {
	switch p.state {
	case StateIdle, StateWakeWordArmed:
	case StatePlaying:
		log.Info().Str("component", "voice").Msg("wake during reply; stopping playback")
		p.stopReply()
		p.dropTTSStream()
	case StateDucked:
		if p.ann != nil && p.ann.ann.Alarm {
			p.stopAnnouncement()
		}
		return
	default:
		return
	}
	if p.link == nil {
		log.Warn().Str("component", "voice").Msg("wake ignored; no hub link")
		p.transition(p.restState())
		return
	}
	p.phrase = phrase
	p.startListening()
	if p.cfg.WakeSound != nil {
		p.playChime(p.cfg.WakeSound)
	}
}

func (p *Pipeline) startListening() {
	p.newSession()
	p.buffer = nil
	p.heardSpeech = false
	p.silentFor = 0
	p.ttsURL = ""
	p.runEnded = false
	p.continueConv = false
	p.deadline = time.Now().Add(p.cfg.MaxListen)
	p.transition(StateListening)
}

func (p *Pipeline) listen(f scoredFrame) {
	if len(p.buffer) < p.maxBuffered() {
		p.buffer = append(p.buffer, f.pcm)
	}
	if f.speech {
		p.heardSpeech = true
		p.silentFor = 0
		return
	}
	if !p.heardSpeech {
		return
	}
	p.silentFor += audio.Duration(f.pcm)
	if p.silentFor >= p.cfg.Silence {
		p.beginStreaming()
	}
}

func (p *Pipeline) maxBuffered() int {
	return int(p.cfg.MaxListen/audio.ChunkDuration) + 1
}

// beginStreaming opens the hub run and flushes the buffered utterance.
func (p *Pipeline) beginStreaming() {
	req := &protocol.VoiceAssistantRequest{
		Start:          true,
		ConversationID: p.conversationID,
		AudioSettings:  &protocol.VoiceAssistantAudioSettings{VolumeMultiplier: 1},
		WakeWordPhrase: p.phrase,
	}
	if err := p.send(req); err != nil {
		p.fail("start request failed", err)
		return
	}
	p.deadline = time.Now().Add(p.cfg.MaxStream)
	p.utterance = append(p.utterance[:0], p.buffer...)
	for _, pcm := range p.buffer {
		p.sendAudio(pcm)
	}
	log.Info().
		Str("component", "voice").
		Str("session_id", p.sessionID).
		Int("frames", len(p.buffer)).
		Msg("streaming utterance")
	p.buffer = nil
	p.transition(StateStreaming)
}

func (p *Pipeline) sendAudio(pcm []byte) {
	if p.link == nil {
		return
	}
	if !p.link.SendAudio(pcm) {
		observability.RecordVoiceDrop("outbox")
	}
}

// endUtterance stops collecting streamed audio and writes the debug
// capture when a capture directory is configured.
func (p *Pipeline) endUtterance() {
	frames := p.utterance
	p.utterance = nil
	if p.cfg.CaptureDir == "" || len(frames) == 0 {
		return
	}
	var pcm []byte
	for _, f := range frames {
		pcm = append(pcm, f...)
	}
	name := p.sessionID
	if name == "" {
		name = fmt.Sprintf("utterance-%d", time.Now().UnixNano())
	}
	path := filepath.Join(p.cfg.CaptureDir, name+".wav")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err == nil {
			err = audio.WriteWAV(path, pcm)
		}
		if err != nil {
			log.Warn().Err(err).Str("component", "voice").Str("path", path).Msg("capture dump failed")
			return
		}
		log.Debug().Str("component", "voice").Str("path", path).Msg("capture dump written")
	}()
}
