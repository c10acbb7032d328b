package satellite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/command"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/danmuck/satellite/internal/testutil/testlog"
	"github.com/danmuck/satellite/internal/voice"
)

type fakePlayer struct {
	mu        sync.Mutex
	announced []voice.Announcement
	stops     int
}

func (p *fakePlayer) Announce(a voice.Announcement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.announced = append(p.announced, a)
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

type mediaFixture struct {
	reg    *entity.Registry
	key    uint32
	player *fakePlayer
	volume *audio.SoftVolume
	media  *MediaPlayer
	d      *command.Dispatcher
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	reg := entity.NewRegistry()
	e, err := reg.Register(entity.Entity{Kind: entity.KindMediaPlayer, Name: "Speaker"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Seal()
	f := &mediaFixture{
		reg:    reg,
		key:    e.Key,
		player: &fakePlayer{},
		volume: audio.NewSoftVolume(0.8),
		d:      command.NewDispatcher(command.Config{Workers: 1}),
	}
	f.media = NewMediaPlayer(reg, e.Key, f.player, f.volume)
	if err := f.media.Register(f.d); err != nil {
		t.Fatalf("register media handlers: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.d.Start(ctx)
	t.Cleanup(func() {
		f.d.Close()
		cancel()
	})
	return f
}

func (f *mediaFixture) run(t *testing.T, key command.Key, args map[string]string) command.Result {
	t.Helper()
	results := make(chan command.Result, 1)
	_ = f.d.Dispatch(context.Background(), command.Command{Key: key, Args: args, Source: command.SourceMedia}, func(r command.Result) {
		results <- r
	})
	select {
	case r := <-results:
		return r
	case <-time.After(waitTimeout):
		t.Fatalf("no result for %s", key)
		return command.Result{}
	}
}

func (f *mediaFixture) state(t *testing.T) entity.MediaState {
	t.Helper()
	e, ok := f.reg.Get(f.key)
	if !ok || !e.Value.Valid {
		t.Fatalf("media player has no state")
	}
	return e.Value.Media
}

func TestMediaVolumeAndMute(t *testing.T) {
	testlog.Start(t)

	f := newMediaFixture(t)
	if r := f.run(t, command.KeyMediaVolume, map[string]string{"volume": "0.4"}); r.Outcome != command.OutcomeSuccess {
		t.Fatalf("volume failed: %s", r.Summary())
	}
	if got := f.volume.Volume(); got < 0.399 || got > 0.401 {
		t.Fatalf("volume mismatch: got=%v want=0.4", got)
	}

	f.run(t, command.KeyMediaMute, nil)
	st := f.state(t)
	if !st.Muted || f.volume.Volume() != 0 {
		t.Fatalf("mute not applied: state=%+v volume=%v", st, f.volume.Volume())
	}

	f.run(t, command.KeyMediaUnmute, nil)
	st = f.state(t)
	if st.Muted || st.Volume < 0.399 || st.Volume > 0.401 {
		t.Fatalf("unmute did not restore volume: %+v", st)
	}
}

func TestMediaVolumeOutOfRangeIsRejected(t *testing.T) {
	testlog.Start(t)

	f := newMediaFixture(t)
	for _, v := range []string{"1.5", "-0.1", "loud"} {
		r := f.run(t, command.KeyMediaVolume, map[string]string{"volume": v})
		if r.Outcome != command.OutcomeRejected || !errors.Is(r.Err, command.ErrHandlerRejected) {
			t.Fatalf("volume=%q expected rejection, got=%s", v, r.Summary())
		}
	}
	if got := f.volume.Volume(); got != 0.8 {
		t.Fatalf("volume changed by rejected command: got=%v want=0.8", got)
	}
}

func TestMediaPlayURLQueuesAnnouncement(t *testing.T) {
	testlog.Start(t)

	f := newMediaFixture(t)
	r := f.run(t, command.KeyMediaPlayURL, map[string]string{"url": "http://hub/tts.wav", "announcement": "true"})
	if r.Outcome != command.OutcomeSuccess {
		t.Fatalf("play_url failed: %s", r.Summary())
	}
	if r := f.run(t, command.KeyMediaPlayURL, map[string]string{"url": " "}); r.Outcome != command.OutcomeRejected {
		t.Fatalf("expected empty url rejection, got=%s", r.Summary())
	}

	f.player.mu.Lock()
	defer f.player.mu.Unlock()
	if len(f.player.announced) != 1 {
		t.Fatalf("announcements mismatch: got=%d want=1", len(f.player.announced))
	}
	a := f.player.announced[0]
	if a.MediaURL != "http://hub/tts.wav" || !a.Duck {
		t.Fatalf("unexpected announcement: %+v", a)
	}
}

func TestMediaPauseStopsPlayback(t *testing.T) {
	testlog.Start(t)

	f := newMediaFixture(t)
	f.run(t, command.KeyMediaPause, nil)
	f.run(t, command.KeyMediaStop, nil)
	f.player.mu.Lock()
	defer f.player.mu.Unlock()
	if f.player.stops != 2 {
		t.Fatalf("stop calls mismatch: got=%d want=2", f.player.stops)
	}
}

func TestMediaTrackFollowsPlayback(t *testing.T) {
	testlog.Start(t)

	f := newMediaFixture(t)
	feed := make(chan voice.Transition, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.media.Track(ctx, feed)

	feed <- voice.Transition{From: voice.StateIdle, To: voice.StatePlaying}
	eventually(t, "playing state", func() bool {
		e, _ := f.reg.Get(f.key)
		return e.Value.Media.State == schema.MediaStatePlaying
	})
	feed <- voice.Transition{From: voice.StatePlaying, To: voice.StateIdle}
	eventually(t, "idle state", func() bool {
		e, _ := f.reg.Get(f.key)
		return e.Value.Media.State == schema.MediaStateIdle
	})
}

type queuedMedia struct {
	streams chan audio.Stream
}

func (m queuedMedia) Open(ctx context.Context, url string) (audio.Stream, error) {
	select {
	case s := <-m.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestMediaMuteWhileDuckedSurvivesAnnouncement(t *testing.T) {
	testlog.Start(t)

	f := newMediaFixture(t)
	media := queuedMedia{streams: make(chan audio.Stream, 1)}
	p, err := voice.New(voice.Config{DuckFactor: 0.3, ActiveWakeWords: []string{}}, voice.Deps{
		Volume: f.volume,
		Media:  media,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	clip := audio.NewChunkStream(4)
	media.streams <- clip
	if err := p.Announce(voice.Announcement{MediaURL: "media://doorbell", Duck: true}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	eventually(t, "ducked", func() bool { return p.State() == voice.StateDucked })

	f.run(t, command.KeyMediaMute, nil)
	if f.volume.Volume() != 0 || f.volume.Level() != 0 {
		t.Fatalf("mute while ducked: volume=%v level=%v", f.volume.Volume(), f.volume.Level())
	}

	clip.Close()
	eventually(t, "announcement finished", func() bool { return p.State() == voice.StateIdle })
	if f.volume.Level() != 0 || !f.state(t).Muted {
		t.Fatalf("mute lost after announcement: level=%v state=%+v", f.volume.Level(), f.state(t))
	}

	f.run(t, command.KeyMediaUnmute, nil)
	if f.volume.Volume() != 0.8 || f.volume.Level() != 0.8 {
		t.Fatalf("unmute mismatch: volume=%v level=%v want=0.8", f.volume.Volume(), f.volume.Level())
	}
}
