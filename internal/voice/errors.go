package voice

import "errors"

var (
	ErrAudioDevice  = errors.New("voice: audio device error")
	ErrNotLinked    = errors.New("voice: no hub link")
	ErrHub          = errors.New("voice: hub reported error")
	ErrClosed       = errors.New("voice: pipeline closed")
	ErrStarted      = errors.New("voice: pipeline already running")
	ErrQueueFull    = errors.New("voice: announcement queue full")
	ErrNoMedia      = errors.New("voice: no media source")
	ErrUnknownTimer = errors.New("voice: unknown timer")
)
