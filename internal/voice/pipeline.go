package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/observability"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	State          string   `json:"state"`
	SessionID      string   `json:"session_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Linked         bool     `json:"linked"`
	CaptureLive    bool     `json:"capture_live"`
	Volume         float64  `json:"volume"`
	Announcements  int      `json:"pending_announcements"`
	WakeWords      []string `json:"active_wake_words"`
	Timers         []Timer  `json:"timers"`
	DroppedCapture uint64   `json:"dropped_capture"`
	DroppedFrames  uint64   `json:"dropped_frames"`
	DroppedAudio   uint64   `json:"dropped_audio"`
}

type scoredFrame struct {
	pcm    []byte
	score  float32
	speech bool
}

// Pipeline events; all are handled on the Run goroutine.
type (
	hubMessage struct {
		msg protocol.Message
	}
	hubAudio struct {
		data []byte
		end  bool
	}
	linkAttach struct {
		link  Link
		flags uint32
	}
	linkDetach struct {
		link Link
	}
	playbackDone struct {
		id  uint64
		err error
	}
	announceReq struct {
		ann Announcement
	}
	wakeReq struct {
		phrase string
	}
	captureFault struct {
		err error
	}
	stopReq struct{}
)

type snapshot struct {
	state          State
	sessionID      string
	conversationID string
	linked         bool
	pending        int
}

// Pipeline is the voice session state machine. Every mutable field below
// the marker is owned by the Run goroutine.
type Pipeline struct {
	cfg    Config
	deps   Deps
	timers *Timers
	words  *WakeWords

	raw    chan []byte
	frames chan scoredFrame
	events chan any
	done   chan struct{}

	started        atomic.Bool
	captureLive    atomic.Bool
	droppedCapture atomic.Uint64
	droppedFrames  atomic.Uint64
	droppedAudio   atomic.Uint64

	mu       sync.RWMutex
	snap     snapshot
	watchers map[int]chan Transition
	nextW    int

	wg sync.WaitGroup

	// Run-owned.
	ctx            context.Context
	state          State
	link           Link
	linkFlags      uint32
	sessionID      string
	conversationID string
	phrase         string

	buffer      [][]byte
	utterance   [][]byte
	heardSpeech bool
	silentFor   time.Duration
	deadline    time.Time

	ttsURL       string
	ttsStream    *audio.ChunkStream
	continueConv bool
	runEnded     bool

	seq     uint64
	reply   *playback
	ann     *activeAnnouncement
	pending []Announcement
}

// New builds a pipeline. It fails only when stored preferences are
// unreadable.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg = cfg.WithDefaults()
	words, err := NewWakeWords(cfg.WakeWords, cfg.ActiveWakeWords, cfg.MaxActiveWakeWords, cfg.PreferencesPath)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		deps:     deps.withDefaults(),
		words:    words,
		raw:      make(chan []byte, cfg.FrameQueue),
		frames:   make(chan scoredFrame, cfg.FrameQueue),
		events:   make(chan any, cfg.EventQueue),
		done:     make(chan struct{}),
		watchers: make(map[int]chan Transition),
	}
	p.timers = NewTimers(p.timerFired)
	return p, nil
}

func (p *Pipeline) Timers() *Timers {
	return p.timers
}

func (p *Pipeline) WakeWords() *WakeWords {
	return p.words
}

// Attach makes link the hub connection for voice traffic.
func (p *Pipeline) Attach(link Link, flags uint32) error {
	return p.post(linkAttach{link: link, flags: flags})
}

// Detach drops link if it is current; any session in flight is reset.
func (p *Pipeline) Detach(link Link) error {
	return p.post(linkDetach{link: link})
}

// Wake starts a session as if the wake word had been heard.
func (p *Pipeline) Wake() error {
	return p.post(wakeReq{phrase: p.words.Phrase()})
}

// Stop ends local playback. Queued announcements are dropped and a reply
// in progress ends its session.
func (p *Pipeline) Stop() error {
	return p.post(stopReq{})
}

// Announce queues a priority playback.
func (p *Pipeline) Announce(a Announcement) error {
	return p.post(announceReq{ann: a})
}

// HandleMessage accepts hub voice traffic from the session read loop.
func (p *Pipeline) HandleMessage(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.VoiceAssistantTimerEventResponse:
		p.timers.Apply(m)
		return nil
	case *protocol.VoiceAssistantAnnounceRequest:
		return p.Announce(Announcement{
			MediaURL:          m.MediaID,
			Text:              m.Text,
			PreannounceURL:    m.PreannounceMediaID,
			Duck:              true,
			FromHub:           true,
			StartConversation: m.StartConversation,
		})
	case *protocol.VoiceAssistantAudio:
		select {
		case p.events <- hubAudio{data: m.Data, end: m.End}:
		default:
			p.droppedAudio.Add(1)
			observability.RecordVoiceDrop("tts")
		}
		return nil
	case *protocol.VoiceAssistantSetConfiguration:
		return p.words.SetActive(m.ActiveWakeWords)
	default:
		return p.post(hubMessage{msg: msg})
	}
}

// Watch returns a transition feed. Slow watchers miss transitions.
func (p *Pipeline) Watch(buffer int) (<-chan Transition, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Transition, buffer)
	p.mu.Lock()
	id := p.nextW
	p.nextW++
	p.watchers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.state
}

func (p *Pipeline) Status() Status {
	p.mu.RLock()
	snap := p.snap
	p.mu.RUnlock()
	return Status{
		State:          snap.state.String(),
		SessionID:      snap.sessionID,
		ConversationID: snap.conversationID,
		Linked:         snap.linked,
		CaptureLive:    p.captureLive.Load(),
		Volume:         p.deps.Volume.Volume(),
		Announcements:  snap.pending,
		WakeWords:      p.words.Active(),
		Timers:         p.timers.List(),
		DroppedCapture: p.droppedCapture.Load(),
		DroppedFrames:  p.droppedFrames.Load(),
		DroppedAudio:   p.droppedAudio.Load(),
	}
}

func (p *Pipeline) post(ev any) error {
	select {
	case p.events <- ev:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// emit sends from a worker goroutine; it gives up when ctx ends.
func (p *Pipeline) emit(ctx context.Context, ev any) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

// Run drives the state machine until ctx ends.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	defer close(p.done)

	wctx, cancel := context.WithCancel(ctx)
	p.ctx = wctx
	if p.deps.Capture != nil {
		p.wg.Add(2)
		go p.captureWorker(wctx)
		go p.inferenceWorker(wctx)
	}
	tick := time.NewTicker(p.cfg.Tick)
	defer tick.Stop()

	p.transition(p.restState())
	log.Info().
		Str("component", "voice").
		Str("state", p.state.String()).
		Bool("capture", p.deps.Capture != nil).
		Msg("voice pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			cancel()
			p.wg.Wait()
			p.timers.Close()
			log.Info().Str("component", "voice").Msg("voice pipeline stopped")
			return nil
		case f := <-p.frames:
			p.onFrame(f)
		case ev := <-p.events:
			p.onEvent(ev)
		case now := <-tick.C:
			p.onTick(now)
		}
	}
}

func (p *Pipeline) onEvent(ev any) {
	switch e := ev.(type) {
	case hubMessage:
		p.onHubMessage(e.msg)
	case hubAudio:
		p.onHubAudio(e.data, e.end)
	case linkAttach:
		p.onAttach(e.link, e.flags)
	case linkDetach:
		if e.link == p.link {
			p.onLinkLost()
		}
	case playbackDone:
		p.onPlaybackDone(e.id, e.err)
	case announceReq:
		p.onAnnounce(e.ann)
	case wakeReq:
		p.onWake(e.phrase)
	case captureFault:
		p.onCaptureFault(e.err)
	case stopReq:
		p.onStop()
	}
}

func (p *Pipeline) onAttach(link Link, flags uint32) {
	if p.link != nil && p.link != link {
		p.onLinkLost()
	}
	p.link = link
	p.linkFlags = flags
	p.publishSnapshot()
	log.Info().
		Str("component", "voice").
		Uint32("flags", flags).
		Msg("hub voice link attached")
}

func (p *Pipeline) onLinkLost() {
	log.Warn().
		Str("component", "voice").
		Str("state", p.state.String()).
		Str("session_id", p.sessionID).
		Msg("hub voice link lost")
	p.link = nil
	p.conversationID = ""
	if p.ann != nil && p.ann.ann.FromHub {
		p.ann.ann.FromHub = false
		p.stopAnnouncement()
	}
	p.fail("connection lost", nil)
}

// fail resets the conversation. A running local announcement keeps
// playing and returns to rest afterwards.
func (p *Pipeline) fail(reason string, err error) {
	ev := log.Warn()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("component", "voice").
		Str("state", p.state.String()).
		Str("session_id", p.sessionID).
		Msg(reason)

	p.resetConversation()
	if p.ann != nil {
		p.ann.prior = StateIdle
		p.publishSnapshot()
		return
	}
	p.transition(StateError)
	p.transition(p.restState())
}

func (p *Pipeline) resetConversation() {
	p.stopReply()
	p.dropTTSStream()
	p.endUtterance()
	p.buffer = nil
	p.heardSpeech = false
	p.silentFor = 0
	p.deadline = time.Time{}
	p.ttsURL = ""
	p.continueConv = false
	p.runEnded = false
	p.sessionID = ""
}

func (p *Pipeline) onStop() {
	p.pending = nil
	if p.reply != nil {
		log.Info().
			Str("component", "voice").
			Str("session_id", p.sessionID).
			Msg("reply stopped")
		p.resetConversation()
		p.setConversation(p.restState())
	}
	p.stopAnnouncement()
	p.publishSnapshot()
}

func (p *Pipeline) onCaptureFault(err error) {
	switch p.conversation() {
	case StateListening, StateStreaming:
		p.fail("capture failed mid-session", errors.Join(ErrAudioDevice, err))
	default:
		log.Error().Err(err).Str("component", "voice").Msg("capture failed")
	}
}

func (p *Pipeline) onTick(now time.Time) {
	switch p.state {
	case StateIdle, StateWakeWordArmed:
		p.transition(p.restState())
	case StateListening:
		if !p.deadline.IsZero() && now.After(p.deadline) {
			if p.heardSpeech {
				p.beginStreaming()
				return
			}
			log.Info().
				Str("component", "voice").
				Str("session_id", p.sessionID).
				Msg("no speech before listen timeout")
			p.resetConversation()
			p.transition(p.restState())
		}
	case StateStreaming:
		if now.After(p.deadline) {
			_ = p.send(&protocol.VoiceAssistantRequest{Start: false, ConversationID: p.conversationID})
			p.fail("stream limit reached without end of turn", nil)
		}
	case StateAwaitingReply:
		if now.After(p.deadline) {
			p.fail("reply timeout", nil)
		}
	}
}

// conversation is the session state underneath any announcement.
func (p *Pipeline) conversation() State {
	if p.ann != nil {
		return p.ann.prior
	}
	return p.state
}

// setConversation transitions now, or after the running announcement.
func (p *Pipeline) setConversation(s State) {
	if p.ann != nil {
		p.ann.prior = s
		return
	}
	p.transition(s)
}

func (p *Pipeline) restState() State {
	if p.captureLive.Load() && len(p.words.Active()) > 0 {
		return StateWakeWordArmed
	}
	return StateIdle
}

func (p *Pipeline) transition(to State) {
	from := p.state
	if from == to {
		return
	}
	p.state = to
	observability.RecordVoiceTransition(from.String(), to.String())
	log.Debug().
		Str("component", "voice").
		Str("from", from.String()).
		Str("state", to.String()).
		Str("session_id", p.sessionID).
		Msg("voice state")
	p.publishSnapshot()

	tr := Transition{From: from, To: to, SessionID: p.sessionID, At: time.Now()}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.watchers {
		select {
		case ch <- tr:
		default:
		}
	}
}

func (p *Pipeline) publishSnapshot() {
	p.mu.Lock()
	p.snap = snapshot{
		state:          p.state,
		sessionID:      p.sessionID,
		conversationID: p.conversationID,
		linked:         p.link != nil,
		pending:        len(p.pending),
	}
	p.mu.Unlock()
}

func (p *Pipeline) send(msgs ...protocol.Message) error {
	if p.link == nil {
		return ErrNotLinked
	}
	return p.link.Send(msgs...)
}

func (p *Pipeline) newSession() {
	p.sessionID = uuid.NewString()
}

func (p *Pipeline) shutdown() {
	p.stopReply()
	if p.ann != nil {
		p.stopAnnouncement()
		p.restoreVolume()
	}
	if p.ttsStream != nil {
		p.ttsStream.Close()
	}
}
