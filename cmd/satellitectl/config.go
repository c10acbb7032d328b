package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/satellite"
	"github.com/danmuck/satellite/internal/voice"
)

type fileConfig struct {
	Name         string   `toml:"name"`
	FriendlyName string   `toml:"friendly_name"`
	MAC          string   `toml:"mac"`
	Listen       string   `toml:"listen"`
	Mode         string   `toml:"mode"`
	HubAddress   string   `toml:"hub_address"`
	Password     string   `toml:"password"`
	AdminListen  string   `toml:"admin_listen"`
	CORSOrigins  []string `toml:"cors_origins"`
	PollInterval string   `toml:"poll_interval"`

	Session   sessionSection   `toml:"session"`
	Discovery discoverySection `toml:"discovery"`
	Voice     voiceSection     `toml:"voice"`
	Commands  commandsSection  `toml:"commands"`
	Buttons   []buttonSection  `toml:"buttons"`
	Sensors   []sensorSection  `toml:"sensors"`
}

type sessionSection struct {
	HandshakeTimeout  string `toml:"handshake_timeout"`
	KeepaliveInterval string `toml:"keepalive_interval"`
	KeepaliveMisses   int    `toml:"keepalive_misses"`
	WriteTimeout      string `toml:"write_timeout"`
	ConnectTimeout    string `toml:"connect_timeout"`
}

type discoverySection struct {
	Enabled    bool   `toml:"enabled"`
	Service    string `toml:"service"`
	Domain     string `toml:"domain"`
	HubService string `toml:"hub_service"`
	Reannounce string `toml:"reannounce"`
	TTL        uint32 `toml:"ttl"`
}

type voiceSection struct {
	Enabled         bool             `toml:"enabled"`
	Device          string           `toml:"device"`
	WakeThreshold   float32          `toml:"wake_threshold"`
	Silence         string           `toml:"silence"`
	MaxListen       string           `toml:"max_listen"`
	DuckFactor      float64          `toml:"duck_factor"`
	OutboundQueue   int              `toml:"outbound_queue"`
	WakeWords       []voice.WakeWord `toml:"wake_words"`
	ActiveWakeWords []string         `toml:"active_wake_words"`
	WakeupSound     string           `toml:"wakeup_sound"`
	TimerSound      string           `toml:"timer_sound"`
	PreferencesPath string           `toml:"preferences"`
	CaptureDir      string           `toml:"capture_dir"`
}

type commandsSection struct {
	Allowed []string            `toml:"allowed"`
	Workers int                 `toml:"workers"`
	Exec    map[string][]string `toml:"exec"`
}

type buttonSection struct {
	Name     string `toml:"name"`
	ObjectID string `toml:"object_id"`
	Icon     string `toml:"icon"`
	Command  string `toml:"command"`
}

type sensorSection struct {
	Kind        string   `toml:"kind"`
	Name        string   `toml:"name"`
	ObjectID    string   `toml:"object_id"`
	Unit        string   `toml:"unit"`
	DeviceClass string   `toml:"device_class"`
	Icon        string   `toml:"icon"`
	Accuracy    int32    `toml:"accuracy"`
	Measurement bool     `toml:"measurement"`
	Command     []string `toml:"command"`
	Interval    string   `toml:"interval"`
}

func loadServiceConfig(path string) (satellite.ServiceConfig, error) {
	cfg := satellite.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return satellite.ServiceConfig{}, fmt.Errorf("load satellite config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return satellite.ServiceConfig{}, fmt.Errorf("load satellite config: unknown key %q", undecoded[0].String())
	}

	setString := func(dst *string, v string, keys ...string) {
		if meta.IsDefined(keys...) {
			if v = strings.TrimSpace(v); v != "" {
				*dst = v
			}
		}
	}
	setDuration := func(dst *time.Duration, v string, keys ...string) error {
		if !meta.IsDefined(keys...) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(keys, "."), err)
		}
		*dst = d
		return nil
	}

	setString(&cfg.Name, raw.Name, "name")
	setString(&cfg.FriendlyName, raw.FriendlyName, "friendly_name")
	setString(&cfg.MAC, raw.MAC, "mac")
	setString(&cfg.Listen, raw.Listen, "listen")
	setString(&cfg.Mode, raw.Mode, "mode")
	setString(&cfg.HubAddress, raw.HubAddress, "hub_address")
	setString(&cfg.AdminListen, raw.AdminListen, "admin_listen")
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	durations := []struct {
		dst  *time.Duration
		v    string
		keys []string
	}{
		{&cfg.PollInterval, raw.PollInterval, []string{"poll_interval"}},
		{&cfg.Session.HandshakeTimeout, raw.Session.HandshakeTimeout, []string{"session", "handshake_timeout"}},
		{&cfg.Session.KeepaliveInterval, raw.Session.KeepaliveInterval, []string{"session", "keepalive_interval"}},
		{&cfg.Session.WriteTimeout, raw.Session.WriteTimeout, []string{"session", "write_timeout"}},
		{&cfg.Session.ConnectTimeout, raw.Session.ConnectTimeout, []string{"session", "connect_timeout"}},
		{&cfg.Discovery.Reannounce, raw.Discovery.Reannounce, []string{"discovery", "reannounce"}},
		{&cfg.Voice.Silence, raw.Voice.Silence, []string{"voice", "silence"}},
		{&cfg.Voice.MaxListen, raw.Voice.MaxListen, []string{"voice", "max_listen"}},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.v, d.keys...); err != nil {
			return satellite.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("session", "keepalive_misses") {
		cfg.Session.KeepaliveMisses = raw.Session.KeepaliveMisses
	}

	if meta.IsDefined("discovery", "enabled") {
		cfg.Discovery.Enabled = raw.Discovery.Enabled
	}
	setString(&cfg.Discovery.Service, raw.Discovery.Service, "discovery", "service")
	setString(&cfg.Discovery.Domain, raw.Discovery.Domain, "discovery", "domain")
	setString(&cfg.Discovery.HubService, raw.Discovery.HubService, "discovery", "hub_service")
	if meta.IsDefined("discovery", "ttl") {
		cfg.Discovery.TTL = raw.Discovery.TTL
	}

	if meta.IsDefined("voice", "enabled") {
		cfg.Voice.Enabled = raw.Voice.Enabled
	}
	setString(&cfg.Voice.Device, raw.Voice.Device, "voice", "device")
	if meta.IsDefined("voice", "wake_threshold") {
		cfg.Voice.WakeThreshold = raw.Voice.WakeThreshold
	}
	if meta.IsDefined("voice", "duck_factor") {
		cfg.Voice.DuckFactor = raw.Voice.DuckFactor
	}
	if meta.IsDefined("voice", "outbound_queue") {
		cfg.Voice.OutboundQueue = raw.Voice.OutboundQueue
	}
	if meta.IsDefined("voice", "wake_words") {
		cfg.Voice.WakeWords = raw.Voice.WakeWords
	}
	if meta.IsDefined("voice", "active_wake_words") {
		cfg.Voice.ActiveWakeWords = normalizeList(raw.Voice.ActiveWakeWords)
	}
	setString(&cfg.Voice.WakeupSound, raw.Voice.WakeupSound, "voice", "wakeup_sound")
	setString(&cfg.Voice.TimerSound, raw.Voice.TimerSound, "voice", "timer_sound")
	setString(&cfg.Voice.PreferencesPath, raw.Voice.PreferencesPath, "voice", "preferences")
	setString(&cfg.Voice.CaptureDir, raw.Voice.CaptureDir, "voice", "capture_dir")

	if meta.IsDefined("commands", "allowed") {
		cfg.Commands.Allowed = normalizeList(raw.Commands.Allowed)
	}
	if meta.IsDefined("commands", "workers") {
		cfg.Commands.Workers = raw.Commands.Workers
	}
	if meta.IsDefined("commands", "exec") {
		for key, argv := range raw.Commands.Exec {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if len(argv) == 0 {
				delete(cfg.Commands.Exec, key)
				continue
			}
			cfg.Commands.Exec[key] = argv
		}
	}

	if meta.IsDefined("buttons") {
		cfg.Buttons = cfg.Buttons[:0]
		for _, b := range raw.Buttons {
			cfg.Buttons = append(cfg.Buttons, satellite.ButtonConfig{
				Name:     strings.TrimSpace(b.Name),
				ObjectID: strings.TrimSpace(b.ObjectID),
				Icon:     b.Icon,
				Command:  strings.TrimSpace(b.Command),
			})
		}
	}

	for i, s := range raw.Sensors {
		sc := satellite.SensorConfig{
			Kind:        entity.Kind(strings.TrimSpace(s.Kind)),
			Name:        strings.TrimSpace(s.Name),
			ObjectID:    strings.TrimSpace(s.ObjectID),
			Unit:        s.Unit,
			DeviceClass: s.DeviceClass,
			Icon:        s.Icon,
			Accuracy:    s.Accuracy,
			Measurement: s.Measurement,
			Command:     s.Command,
		}
		if sc.Kind == "" {
			sc.Kind = entity.KindSensor
		}
		if strings.TrimSpace(s.Interval) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(s.Interval))
			if err != nil {
				return satellite.ServiceConfig{}, fmt.Errorf("parse sensors[%d].interval: %w", i, err)
			}
			sc.Interval = d
		}
		cfg.Sensors = append(cfg.Sensors, sc)
	}

	return cfg, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
