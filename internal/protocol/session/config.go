package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines hub connection timing.
type Config struct {
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	KeepaliveInterval time.Duration
	KeepaliveMisses   int
	AudioOutboxSize   int
	Backoff           BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		KeepaliveInterval: 20 * time.Second,
		KeepaliveMisses:   3,
		AudioOutboxSize:   64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.KeepaliveMisses <= 0 {
		c.KeepaliveMisses = d.KeepaliveMisses
	}
	if c.AudioOutboxSize <= 0 {
		c.AudioOutboxSize = d.AudioOutboxSize
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// DeadAfter is how long a silent peer is tolerated.
func (c Config) DeadAfter() time.Duration {
	return c.KeepaliveInterval * time.Duration(c.KeepaliveMisses)
}
