package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/schema"
)

const (
	markWake   byte = 0x01
	markSpeech byte = 0x02
	markWeak   byte = 0x03
)

func frameOf(mark byte) []byte {
	f := audio.Silence()
	f[0] = mark
	return f
}

type fakeCapture struct {
	frames chan []byte
}

func (c *fakeCapture) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type markerScorer struct{}

func (markerScorer) Score(f []byte) float32 {
	switch f[0] {
	case markWake:
		return 0.9
	case markWeak:
		return 0.3
	default:
		return 0
	}
}

type markerVAD struct{}

func (markerVAD) IsSpeech(f []byte) bool {
	return f[0] == markSpeech
}

type fakeLink struct {
	mu    sync.Mutex
	msgs  []protocol.Message
	audio [][]byte
}

func (l *fakeLink) Send(msgs ...protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msgs...)
	return nil
}

func (l *fakeLink) SendAudio(pcm []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.audio = append(l.audio, pcm)
	return true
}

func (l *fakeLink) audioCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.audio)
}

func (l *fakeLink) messages() []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Message(nil), l.msgs...)
}

func (l *fakeLink) startRequests() []*protocol.VoiceAssistantRequest {
	var out []*protocol.VoiceAssistantRequest
	for _, m := range l.messages() {
		if r, ok := m.(*protocol.VoiceAssistantRequest); ok && r.Start {
			out = append(out, r)
		}
	}
	return out
}

func (l *fakeLink) announceResults() []bool {
	var out []bool
	for _, m := range l.messages() {
		if r, ok := m.(*protocol.VoiceAssistantAnnounceFinished); ok {
			out = append(out, r.Success)
		}
	}
	return out
}

// fakeSink drains streams, recording the output level at the start of each play.
type fakeSink struct {
	vol  VolumeController
	pace time.Duration

	mu      sync.Mutex
	volumes []float64
	chunks  int
}

func (s *fakeSink) Play(ctx context.Context, st audio.Stream) error {
	s.mu.Lock()
	s.volumes = append(s.volumes, s.vol.Level())
	s.mu.Unlock()
	for {
		_, err := st.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.chunks++
		s.mu.Unlock()
		if s.pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pace):
			}
		}
	}
}

func (s *fakeSink) playVolumes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.volumes...)
}

func (s *fakeSink) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

type fakeMedia struct {
	mu      sync.Mutex
	streams map[string]audio.Stream
}

func (m *fakeMedia) set(url string, s audio.Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[url] = s
}

func (m *fakeMedia) Open(_ context.Context, url string) (audio.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[url]
	if !ok {
		return nil, fmt.Errorf("no media %s", url)
	}
	return s, nil
}

type harness struct {
	t       *testing.T
	p       *Pipeline
	capture *fakeCapture
	sink    *fakeSink
	volume  *audio.SoftVolume
	media   *fakeMedia
	watch   <-chan Transition
}

func testConfig() Config {
	return Config{
		Silence:         3 * audio.ChunkDuration,
		MaxListen:       2 * time.Second,
		Tick:            10 * time.Millisecond,
		DuckFactor:      0.3,
		ActiveWakeWords: []string{},
	}
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		t:       t,
		capture: &fakeCapture{frames: make(chan []byte, 64)},
		volume:  audio.NewSoftVolume(1),
		media:   &fakeMedia{streams: make(map[string]audio.Stream)},
	}
	h.sink = &fakeSink{vol: h.volume}
	p, err := New(cfg, Deps{
		Capture: h.capture,
		Scorer:  markerScorer{},
		VAD:     markerVAD{},
		Sink:    h.sink,
		Volume:  h.volume,
		Media:   h.media,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	h.p = p
	watch, stop := p.Watch(128)
	h.watch = watch

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
		stop()
	})
	return h
}

func (h *harness) push(marks ...byte) {
	for _, m := range marks {
		h.capture.frames <- frameOf(m)
	}
}

func (h *harness) waitFor(to State) Transition {
	h.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case tr := <-h.watch:
			if tr.To == to {
				return tr
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for state=%s (current=%s)", to, h.p.State())
		}
	}
}

func (h *harness) eventually(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) attach(link Link) {
	h.t.Helper()
	if err := h.p.Attach(link, 0); err != nil {
		h.t.Fatalf("attach: %v", err)
	}
	h.eventually("link attached", func() bool { return h.p.Status().Linked })
}

func (h *harness) event(eventType uint32, data ...string) {
	h.t.Helper()
	ev := &protocol.VoiceAssistantEventResponse{EventType: eventType}
	for i := 0; i+1 < len(data); i += 2 {
		ev.Data = append(ev.Data, protocol.VoiceAssistantEventData{Name: data[i], Value: data[i+1]})
	}
	if err := h.p.HandleMessage(ev); err != nil {
		h.t.Fatalf("handle event %d: %v", eventType, err)
	}
}

// toStreaming wakes the pipeline and speaks one frame followed by silence.
func (h *harness) toStreaming() Transition {
	h.t.Helper()
	h.push(markWake)
	h.waitFor(StateListening)
	h.push(markSpeech, 0, 0, 0)
	return h.waitFor(StateStreaming)
}

// toPlaying runs a full turn up to TTS playback of a live stream.
func (h *harness) toPlaying() *audio.ChunkStream {
	h.t.Helper()
	reply := audio.NewChunkStream(8)
	h.media.set("tts://reply", reply)
	h.toStreaming()
	h.event(schema.VoiceEventSTTVADEnd)
	h.waitFor(StateAwaitingReply)
	h.event(schema.VoiceEventTTSEnd, "url", "tts://reply")
	h.waitFor(StatePlaying)
	return reply
}
