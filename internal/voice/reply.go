package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

type playKind int

const (
	playReply playKind = iota
	playAnnouncement
	playChime
)

func (k playKind) String() string {
	switch k {
	case playReply:
		return "reply"
	case playAnnouncement:
		return "announcement"
	default:
		return "chime"
	}
}

// playback is one sink job. A paused reply keeps its stream and resumes
// from the next chunk.
type playback struct {
	id     uint64
	kind   playKind
	cancel context.CancelFunc
	paused bool

	mu     sync.Mutex
	stream audio.Stream
	open   func(ctx context.Context) (audio.Stream, error)
}

func (pb *playback) source(ctx context.Context) (audio.Stream, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.stream == nil {
		s, err := pb.open(ctx)
		if err != nil {
			return nil, err
		}
		pb.stream = s
	}
	return pb.stream, nil
}

func (p *Pipeline) start(pb *playback) {
	p.seq++
	pb.id = p.seq
	pb.paused = false
	ctx, cancel := context.WithCancel(p.ctx)
	pb.cancel = cancel
	id := pb.id
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		s, err := pb.source(ctx)
		if err == nil {
			// Paused or stopped before the sink took it.
			if err = ctx.Err(); err == nil {
				err = p.deps.Sink.Play(ctx, s)
			}
		}
		p.emit(p.ctx, playbackDone{id: id, err: err})
	}()
	log.Debug().
		Str("component", "voice").
		Str("kind", pb.kind.String()).
		Uint64("playback", id).
		Msg("playback started")
}

func clipSource(c *audio.Clip) func(context.Context) (audio.Stream, error) {
	return func(context.Context) (audio.Stream, error) { return c.Stream(), nil }
}

func (p *Pipeline) urlSource(url string) func(context.Context) (audio.Stream, error) {
	return func(ctx context.Context) (audio.Stream, error) { return p.deps.Media.Open(ctx, url) }
}

func (p *Pipeline) playChime(c *audio.Clip) {
	p.start(&playback{kind: playChime, open: clipSource(c)})
}

func (p *Pipeline) onHubMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.VoiceAssistantResponse:
		if m.Error && !p.conversation().resting() {
			p.fail("hub rejected voice run", ErrHub)
		}
	case *protocol.VoiceAssistantEventResponse:
		p.onVoiceEvent(m)
	default:
		log.Debug().
			Str("component", "voice").
			Str("msg_type", protocol.Name(msg)).
			Msg("voice message ignored")
	}
}

func (p *Pipeline) onVoiceEvent(ev *protocol.VoiceAssistantEventResponse) {
	conv := p.conversation()
	log.Debug().
		Str("component", "voice").
		Uint32("event", ev.EventType).
		Str("state", conv.String()).
		Msg("hub voice event")

	switch ev.EventType {
	case schema.VoiceEventError:
		if conv.resting() {
			return
		}
		code, _ := ev.Value("code")
		message, _ := ev.Value("message")
		p.fail("hub pipeline error", fmt.Errorf("%w: %s: %s", ErrHub, code, message))
	case schema.VoiceEventRunStart:
		if url, ok := ev.Value("url"); ok {
			p.ttsURL = url
		}
	case schema.VoiceEventSTTVADEnd, schema.VoiceEventSTTEnd:
		if conv == StateStreaming {
			p.awaitReply()
		}
	case schema.VoiceEventIntentEnd:
		if id, ok := ev.Value("conversation_id"); ok && id != "" {
			p.conversationID = id
			p.publishSnapshot()
		}
		if v, _ := ev.Value("continue_conversation"); v == "1" {
			p.continueConv = true
		}
	case schema.VoiceEventIntentProgress:
		if v, _ := ev.Value("tts_start_streaming"); v == "1" && p.ttsURL != "" {
			p.startReply(p.urlSource(p.ttsURL))
		}
	case schema.VoiceEventTTSStreamStart:
		s := audio.NewChunkStream(p.cfg.FrameQueue * 4)
		if p.startReply(func(context.Context) (audio.Stream, error) { return s, nil }) {
			p.ttsStream = s
		}
	case schema.VoiceEventTTSStreamEnd:
		if p.ttsStream != nil {
			p.ttsStream.Close()
		}
	case schema.VoiceEventTTSEnd:
		url, _ := ev.Value("url")
		if url == "" {
			url = p.ttsURL
		}
		if url != "" {
			p.startReply(p.urlSource(url))
		}
	case schema.VoiceEventRunEnd:
		p.runEnded = true
		if p.reply == nil && (conv == StateStreaming || conv == StateAwaitingReply) {
			p.finishSession()
		}
	}
}

func (p *Pipeline) onHubAudio(data []byte, end bool) {
	if p.ttsStream == nil {
		return
	}
	if len(data) > 0 && !p.ttsStream.Push(data) {
		p.droppedAudio.Add(1)
	}
	if end {
		p.ttsStream.Close()
	}
}

func (p *Pipeline) awaitReply() {
	p.endUtterance()
	p.deadline = time.Now().Add(p.cfg.ReplyTimeout)
	p.setConversation(StateAwaitingReply)
}

// startReply begins TTS playback once per run. It reports false when the
// reply was not started.
func (p *Pipeline) startReply(open func(context.Context) (audio.Stream, error)) bool {
	conv := p.conversation()
	if p.reply != nil || (conv != StateStreaming && conv != StateAwaitingReply) {
		return false
	}
	if conv == StateStreaming {
		p.endUtterance()
	}
	p.reply = &playback{kind: playReply, open: open}
	if p.ann != nil {
		p.reply.paused = true
		p.ann.prior = StatePlaying
		return true
	}
	p.start(p.reply)
	p.transition(StatePlaying)
	return true
}

func (p *Pipeline) stopReply() {
	if p.reply == nil {
		return
	}
	if p.reply.cancel != nil {
		p.reply.cancel()
	}
	p.reply = nil
}

// dropTTSStream ends the hub audio stream of the current run; later
// VoiceAssistantAudio is ignored until the next TTS_STREAM_START.
func (p *Pipeline) dropTTSStream() {
	if p.ttsStream != nil {
		p.ttsStream.Close()
		p.ttsStream = nil
	}
}

func (p *Pipeline) pauseReply() {
	if p.reply == nil || p.reply.paused {
		return
	}
	p.reply.paused = true
	if p.reply.cancel != nil {
		p.reply.cancel()
	}
}

// finishSession ends a run, re-entering Listening when the hub asked to
// continue the conversation.
func (p *Pipeline) finishSession() {
	cont := p.continueConv && p.link != nil
	p.resetConversation()
	if cont {
		if p.ann != nil {
			p.ann.prior = StateListening
			return
		}
		p.startListening()
		return
	}
	p.setConversation(p.restState())
}

func (p *Pipeline) onPlaybackDone(id uint64, err error) {
	if p.reply != nil && p.reply.id == id {
		if p.reply.paused {
			return
		}
		p.reply = nil
		p.dropTTSStream()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			p.fail("reply playback failed", errors.Join(ErrAudioDevice, err))
			return
		}
		log.Debug().Str("component", "voice").Str("session_id", p.sessionID).Msg("reply finished")
		p.finishSession()
		return
	}
	if p.ann != nil && p.ann.pb.id == id {
		p.finishAnnouncement(err)
	}
}
