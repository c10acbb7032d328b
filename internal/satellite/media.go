package satellite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/satellite/internal/command"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/danmuck/satellite/internal/voice"
	"github.com/rs/zerolog/log"
)

// Player is the playback surface the media player entity drives.
type Player interface {
	Announce(a voice.Announcement) error
	Stop() error
}

// MediaPlayer keeps the media player entity in step with local playback
// and serves the media.* command keys.
type MediaPlayer struct {
	registry *entity.Registry
	key      uint32
	player   Player
	volume   voice.VolumeController

	mu      sync.Mutex
	state   uint32
	muted   bool
	unmuted float64
}

func NewMediaPlayer(registry *entity.Registry, key uint32, player Player, volume voice.VolumeController) *MediaPlayer {
	return &MediaPlayer{
		registry: registry,
		key:      key,
		player:   player,
		volume:   volume,
		state:    schema.MediaStateIdle,
	}
}

// Register binds the media.* keys on d.
func (m *MediaPlayer) Register(d *command.Dispatcher) error {
	handlers := map[command.Key]command.Handler{
		command.KeyMediaPlay:    {Run: m.play},
		command.KeyMediaPause:   {Run: m.stop},
		command.KeyMediaStop:    {Run: m.stop},
		command.KeyMediaMute:    {Run: m.mute},
		command.KeyMediaUnmute:  {Run: m.unmute},
		command.KeyMediaVolume:  {Validate: validateVolume, Run: m.setVolume},
		command.KeyMediaPlayURL: {Validate: validateURL, Run: m.playURL},
	}
	for key, h := range handlers {
		if err := d.Register(key, h); err != nil {
			return err
		}
	}
	return nil
}

// Track follows pipeline transitions until ctx ends or the feed closes.
func (m *MediaPlayer) Track(ctx context.Context, transitions <-chan voice.Transition) {
	m.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			state := schema.MediaStateIdle
			if tr.To == voice.StatePlaying || tr.To == voice.StateDucked {
				state = schema.MediaStatePlaying
			}
			m.mu.Lock()
			changed := m.state != state
			m.state = state
			m.mu.Unlock()
			if changed {
				m.publish()
			}
		}
	}
}

func (m *MediaPlayer) play(context.Context, command.Command) (command.Ack, error) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state == schema.MediaStatePlaying {
		return command.Ack{Message: "already playing"}, nil
	}
	return command.Ack{Message: "nothing to resume"}, nil
}

func (m *MediaPlayer) stop(context.Context, command.Command) (command.Ack, error) {
	if err := m.player.Stop(); err != nil {
		return command.Ack{}, err
	}
	return command.Ack{Message: "stopped"}, nil
}

func (m *MediaPlayer) mute(context.Context, command.Command) (command.Ack, error) {
	m.mu.Lock()
	if !m.muted {
		m.unmuted = m.volume.Volume()
		m.muted = true
		m.volume.SetVolume(0)
	}
	m.mu.Unlock()
	m.publish()
	return command.Ack{Message: "muted"}, nil
}

func (m *MediaPlayer) unmute(context.Context, command.Command) (command.Ack, error) {
	m.mu.Lock()
	if m.muted {
		m.muted = false
		m.volume.SetVolume(m.unmuted)
	}
	m.mu.Unlock()
	m.publish()
	return command.Ack{Message: "unmuted"}, nil
}

func (m *MediaPlayer) setVolume(_ context.Context, cmd command.Command) (command.Ack, error) {
	v, _ := strconv.ParseFloat(cmd.Arg("volume"), 64)
	m.mu.Lock()
	m.muted = false
	m.volume.SetVolume(v)
	m.mu.Unlock()
	m.publish()
	return command.Ack{Message: fmt.Sprintf("volume %.2f", v)}, nil
}

func (m *MediaPlayer) playURL(_ context.Context, cmd command.Command) (command.Ack, error) {
	announce, _ := strconv.ParseBool(cmd.Arg("announcement"))
	err := m.player.Announce(voice.Announcement{
		MediaURL: cmd.Arg("url"),
		Duck:     announce,
	})
	if err != nil {
		return command.Ack{}, err
	}
	return command.Ack{Message: "queued"}, nil
}

func (m *MediaPlayer) publish() {
	m.mu.Lock()
	v := entity.MediaState{
		State:  m.state,
		Volume: float32(m.volume.Volume()),
		Muted:  m.muted,
	}
	m.mu.Unlock()
	if _, err := m.registry.Update(m.key, entity.Media(v)); err != nil {
		log.Warn().Err(err).Str("component", "satellite").Msg("media player state not published")
	}
}

func validateVolume(cmd command.Command) error {
	v, err := strconv.ParseFloat(cmd.Arg("volume"), 64)
	if err != nil {
		return fmt.Errorf("%w: volume %q", command.ErrHandlerRejected, cmd.Arg("volume"))
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: volume %.2f out of range", command.ErrHandlerRejected, v)
	}
	return nil
}

func validateURL(cmd command.Command) error {
	if strings.TrimSpace(cmd.Arg("url")) == "" {
		return fmt.Errorf("%w: empty media url", command.ErrHandlerRejected)
	}
	return nil
}
