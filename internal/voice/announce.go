package voice

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Announcement is a priority playback that preempts any session state.
type Announcement struct {
	MediaURL          string `json:"media_url,omitempty"`
	Text              string `json:"text,omitempty"`
	PreannounceURL    string `json:"preannounce_url,omitempty"`
	Chime             bool   `json:"chime"`
	Duck              bool   `json:"duck"`
	StartConversation bool   `json:"start_conversation"`

	FromHub bool        `json:"-"`
	Alarm   bool        `json:"-"`
	Clip    *audio.Clip `json:"-"`
}

type activeAnnouncement struct {
	ann    Announcement
	pb     *playback
	prior  State
	ducked bool
}

func (p *Pipeline) timerFired(t Timer) {
	err := p.Announce(Announcement{
		Text:  t.Name,
		Duck:  true,
		Alarm: true,
		Clip:  p.cfg.TimerSound,
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "voice").Str("timer", t.ID).Msg("timer alarm not queued")
	}
}

func (p *Pipeline) onAnnounce(a Announcement) {
	if p.ann == nil {
		p.startAnnouncement(a, p.state)
		return
	}
	if len(p.pending) >= p.cfg.AnnounceQueue {
		log.Warn().
			Str("component", "voice").
			Int("pending", len(p.pending)).
			Msg("announcement queue full; dropping")
		if a.FromHub {
			_ = p.send(&protocol.VoiceAssistantAnnounceFinished{Success: false})
		}
		return
	}
	p.pending = append(p.pending, a)
	p.publishSnapshot()
}

func (p *Pipeline) startAnnouncement(a Announcement, prior State) {
	switch prior {
	case StatePlaying:
		p.pauseReply()
	case StateListening:
		p.buffer = nil
		p.heardSpeech = false
		p.silentFor = 0
	case StateDucked, StateError:
		prior = StateIdle
	}
	if prior.resting() {
		prior = StateIdle
	}

	act := &activeAnnouncement{ann: a, prior: prior}
	if a.Duck {
		p.deps.Volume.SetDuck(p.cfg.DuckFactor)
		act.ducked = true
	}
	act.pb = &playback{kind: playAnnouncement, open: p.announcementSource(a)}
	p.ann = act
	p.start(act.pb)
	p.transition(StateDucked)
	p.publishSnapshot()
	log.Info().
		Str("component", "voice").
		Str("prior", prior.String()).
		Bool("duck", a.Duck).
		Bool("from_hub", a.FromHub).
		Str("text", a.Text).
		Msg("announcement started")
}

func (p *Pipeline) announcementSource(a Announcement) func(context.Context) (audio.Stream, error) {
	var parts []func(context.Context) (audio.Stream, error)
	switch {
	case a.PreannounceURL != "":
		parts = append(parts, p.urlSource(a.PreannounceURL))
	case a.Chime:
		chime := p.cfg.WakeSound
		if chime == nil {
			chime = audio.Chime()
		}
		parts = append(parts, clipSource(chime))
	}
	switch {
	case a.Clip != nil:
		parts = append(parts, clipSource(a.Clip))
	case a.MediaURL != "":
		parts = append(parts, p.urlSource(a.MediaURL))
	}
	return func(context.Context) (audio.Stream, error) {
		return &seqStream{parts: parts}, nil
	}
}

func (p *Pipeline) stopAnnouncement() {
	if p.ann != nil && p.ann.pb.cancel != nil {
		p.ann.pb.cancel()
	}
}

func (p *Pipeline) restoreVolume() {
	if p.ann != nil && p.ann.ducked {
		p.deps.Volume.SetDuck(1)
		p.ann.ducked = false
	}
}

func (p *Pipeline) finishAnnouncement(err error) {
	p.restoreVolume()
	act := p.ann
	p.ann = nil
	ok := err == nil || errors.Is(err, io.EOF)
	if act.ann.FromHub {
		if serr := p.send(&protocol.VoiceAssistantAnnounceFinished{Success: ok}); serr != nil {
			log.Warn().Err(serr).Str("component", "voice").Msg("announce finished not sent")
		}
	}
	ev := log.Info()
	if !ok {
		ev = log.Warn().Err(err)
	}
	ev.Str("component", "voice").
		Str("prior", act.prior.String()).
		Msg("announcement finished")

	if len(p.pending) > 0 {
		next := p.pending[0]
		p.pending = p.pending[1:]
		p.startAnnouncement(next, act.prior)
		return
	}
	if ok && act.ann.FromHub && act.ann.StartConversation && act.prior.resting() && p.link != nil {
		p.phrase = ""
		p.startListening()
		return
	}
	p.resume(act.prior)
}

// resume returns to the session state an announcement interrupted.
func (p *Pipeline) resume(prior State) {
	switch prior {
	case StatePlaying:
		if p.reply != nil {
			p.start(p.reply)
			p.transition(StatePlaying)
			return
		}
	case StateListening:
		if p.link != nil {
			if p.sessionID == "" {
				p.newSession()
			}
			p.deadline = time.Now().Add(p.cfg.MaxListen)
			p.transition(StateListening)
			return
		}
	case StateStreaming:
		p.deadline = time.Now().Add(p.cfg.MaxStream)
		p.transition(StateStreaming)
		return
	case StateAwaitingReply:
		p.deadline = time.Now().Add(p.cfg.ReplyTimeout)
		p.transition(StateAwaitingReply)
		return
	}
	p.transition(p.restState())
}

// seqStream plays parts back to back, opening each lazily.
type seqStream struct {
	parts []func(context.Context) (audio.Stream, error)
	cur   audio.Stream
}

func (s *seqStream) Next(ctx context.Context) ([]byte, error) {
	for {
		if s.cur == nil {
			if len(s.parts) == 0 {
				return nil, io.EOF
			}
			next, err := s.parts[0](ctx)
			s.parts = s.parts[1:]
			if err != nil {
				return nil, err
			}
			s.cur = next
		}
		chunk, err := s.cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.cur = nil
			continue
		}
		return chunk, err
	}
}
