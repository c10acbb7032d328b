package voice

import (
	"context"
	"fmt"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/protocol"
)

// Capture is a live, non-restartable source of audio.ChunkBytes frames.
type Capture interface {
	Read(ctx context.Context) ([]byte, error)
}

// WakeScorer returns a wake word confidence in [0, 1] for one frame.
type WakeScorer interface {
	Score(frame []byte) float32
}

type VAD interface {
	IsSpeech(frame []byte) bool
}

// Sink plays a stream and returns when it ends or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, s audio.Stream) error
}

// VolumeController keeps the user volume apart from the duck gain so
// volume and mute changes made while ducked survive the restore.
type VolumeController interface {
	Volume() float64
	SetVolume(v float64)
	Level() float64
	SetDuck(gain float64)
}

// MediaSource opens TTS and announcement media by URL.
type MediaSource interface {
	Open(ctx context.Context, url string) (audio.Stream, error)
}

// Link is the hub connection as seen by the pipeline. SendAudio never
// blocks and reports false when an older frame was dropped.
type Link interface {
	Send(msgs ...protocol.Message) error
	SendAudio(pcm []byte) bool
}

// Deps are the pipeline collaborators; nil fields get inert defaults.
type Deps struct {
	Capture Capture
	Scorer  WakeScorer
	VAD     VAD
	Sink    Sink
	Volume  VolumeController
	Media   MediaSource
}

type noWake struct{}

func (noWake) Score([]byte) float32 { return 0 }

type noMedia struct{}

func (noMedia) Open(_ context.Context, url string) (audio.Stream, error) {
	return nil, fmt.Errorf("%w: %s", ErrNoMedia, url)
}

func (d Deps) withDefaults() Deps {
	if d.Scorer == nil {
		d.Scorer = noWake{}
	}
	if d.VAD == nil {
		d.VAD = audio.NewEnergyVAD(0)
	}
	if d.Sink == nil {
		d.Sink = audio.NewNullOutput()
	}
	if d.Volume == nil {
		d.Volume = audio.NewSoftVolume(1)
	}
	if d.Media == nil {
		d.Media = noMedia{}
	}
	return d
}
