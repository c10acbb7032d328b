package voice

import (
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/protocol/session"
)

// Config tunes pipeline timing and queue sizes.
type Config struct {
	WakeThreshold float32
	Silence       time.Duration
	MaxListen     time.Duration
	MaxStream     time.Duration
	ReplyTimeout  time.Duration
	DuckFactor    float64
	Tick          time.Duration

	FrameQueue    int
	EventQueue    int
	AnnounceQueue int

	WakeWords          []WakeWord
	ActiveWakeWords    []string
	MaxActiveWakeWords int
	PreferencesPath    string

	// WakeSound plays on wake and before chimed announcements; nil disables
	// the wake chime.
	WakeSound  *audio.Clip
	TimerSound *audio.Clip
	CaptureDir string

	CaptureRetry session.BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		WakeThreshold: 0.5,
		Silence:       time.Second,
		MaxListen:     8 * time.Second,
		MaxStream:     15 * time.Second,
		ReplyTimeout:  30 * time.Second,
		DuckFactor:    0.3,
		Tick:          50 * time.Millisecond,
		FrameQueue:    64,
		EventQueue:    64,
		AnnounceQueue: 8,
		WakeWords: []WakeWord{
			{ID: "okay_nabu", Phrase: "Okay Nabu", Languages: []string{"en"}},
			{ID: "hey_jarvis", Phrase: "Hey Jarvis", Languages: []string{"en"}},
		},
		ActiveWakeWords:    []string{"okay_nabu"},
		MaxActiveWakeWords: 2,
		CaptureRetry: session.BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     30 * time.Second,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig. A non-nil empty
// ActiveWakeWords is kept.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.WakeThreshold <= 0 {
		c.WakeThreshold = d.WakeThreshold
	}
	if c.Silence <= 0 {
		c.Silence = d.Silence
	}
	if c.MaxListen <= 0 {
		c.MaxListen = d.MaxListen
	}
	if c.MaxStream <= 0 {
		c.MaxStream = d.MaxStream
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = d.ReplyTimeout
	}
	if c.DuckFactor <= 0 || c.DuckFactor > 1 {
		c.DuckFactor = d.DuckFactor
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.FrameQueue <= 0 {
		c.FrameQueue = d.FrameQueue
	}
	if c.EventQueue <= 0 {
		c.EventQueue = d.EventQueue
	}
	if c.AnnounceQueue <= 0 {
		c.AnnounceQueue = d.AnnounceQueue
	}
	if len(c.WakeWords) == 0 {
		c.WakeWords = d.WakeWords
	}
	if c.ActiveWakeWords == nil {
		c.ActiveWakeWords = d.ActiveWakeWords
	}
	if c.MaxActiveWakeWords <= 0 {
		c.MaxActiveWakeWords = d.MaxActiveWakeWords
	}
	if c.TimerSound == nil {
		c.TimerSound = audio.Alarm()
	}
	if c.CaptureRetry.InitialDelay <= 0 {
		c.CaptureRetry = d.CaptureRetry
	}
	return c
}
