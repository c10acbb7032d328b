package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/satellite"
)

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "kitchen-satellite" || cfg.FriendlyName != "Kitchen Satellite" {
		t.Fatalf("unexpected names: %q %q", cfg.Name, cfg.FriendlyName)
	}
	if cfg.Mode != satellite.ModeListen {
		t.Fatalf("unexpected mode: %q", cfg.Mode)
	}
	if cfg.AdminListen != "127.0.0.1:7080" {
		t.Fatalf("unexpected admin listen: %q", cfg.AdminListen)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.Session.KeepaliveInterval != 20*time.Second || cfg.Session.KeepaliveMisses != 3 {
		t.Fatalf("unexpected session: %+v", cfg.Session)
	}
	if cfg.Voice.Silence != 1200*time.Millisecond || cfg.Voice.MaxListen != 10*time.Second {
		t.Fatalf("unexpected voice timing: %+v", cfg.Voice)
	}
	if len(cfg.Voice.WakeWords) != 2 || cfg.Voice.WakeWords[1].ID != "hey_jarvis" {
		t.Fatalf("unexpected wake words: %+v", cfg.Voice.WakeWords)
	}
	if len(cfg.Commands.Allowed) != 1 || cfg.Commands.Allowed[0] != "restart" {
		t.Fatalf("unexpected allowed: %v", cfg.Commands.Allowed)
	}
	if _, ok := cfg.Commands.Exec["shutdown"]; !ok {
		t.Fatalf("default shutdown command dropped")
	}
	if argv := cfg.Commands.Exec["lock"]; len(argv) != 2 || argv[0] != "loginctl" {
		t.Fatalf("unexpected lock argv: %v", argv)
	}
	if len(cfg.Buttons) != 2 || cfg.Buttons[1].Command != "lock" {
		t.Fatalf("unexpected buttons: %+v", cfg.Buttons)
	}
	if len(cfg.Sensors) != 2 {
		t.Fatalf("unexpected sensors: %+v", cfg.Sensors)
	}
	if cfg.Sensors[0].Interval != 30*time.Second || !cfg.Sensors[0].Measurement {
		t.Fatalf("unexpected first sensor: %+v", cfg.Sensors[0])
	}
	if cfg.Sensors[1].Kind != entity.KindBinarySensor || cfg.Sensors[1].Interval != 0 {
		t.Fatalf("unexpected second sensor: %+v", cfg.Sensors[1])
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "satellite.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigEmptyKeepsDefaults(t *testing.T) {
	cfg, err := loadServiceConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := satellite.DefaultServiceConfig()
	if cfg.Name != def.Name || cfg.Listen != def.Listen || len(cfg.Buttons) != len(def.Buttons) {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadServiceConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad duration": `poll_interval = "soon"`,
		"unknown key":  `colour = "blue"`,
		"bad sensor":   "[[sensors]]\nname = \"x\"\ninterval = \"1 minute\"\n",
	}
	for name, body := range cases {
		if _, err := loadServiceConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadServiceConfigDialMode(t *testing.T) {
	cfg, err := loadServiceConfig(writeConfig(t, "mode = \"dial\"\nhub_address = \"10.0.0.5:8123\"\n[discovery]\nenabled = false\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Mode != satellite.ModeDial || cfg.HubAddress != "10.0.0.5:8123" || cfg.Discovery.Enabled {
		t.Fatalf("unexpected dial config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
