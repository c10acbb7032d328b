package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/satellite/internal/logging"
	"github.com/danmuck/satellite/internal/satellite"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
)

const (
	envConfig     = "SATELLITE_CONFIG"
	envPassword   = "SATELLITE_PASSWORD"
	envAdminToken = "SATELLITE_ADMIN_TOKEN"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configPath := cli.StringP("config", "c", "", "TOML config path (default $SATELLITE_CONFIG)")
	name := cli.StringP("name", "n", "", "Device name")
	listen := cli.StringP("listen", "l", "", "Hub API listen address")
	hub := cli.String("hub", "", "Dial this hub address instead of listening")
	admin := cli.StringP("admin", "a", "", "Admin HTTP listen address")
	noVoice := cli.Bool("no-voice", false, "Disable the voice pipeline")
	cli.Parse()

	// A missing env file is normal outside development.
	_ = godotenv.Load(*envFile)
	logging.ConfigureRuntime()

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fail(err)
	}
	if v := strings.TrimSpace(*name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(*listen); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(*hub); v != "" {
		cfg.Mode = satellite.ModeDial
		cfg.HubAddress = v
	}
	if v := strings.TrimSpace(*admin); v != "" {
		cfg.AdminListen = v
	}
	if *noVoice {
		cfg.Voice.Enabled = false
	}
	if pw, ok := os.LookupEnv(envPassword); ok {
		cfg.Password = pw
	}
	if token := strings.TrimSpace(os.Getenv(envAdminToken)); token != "" {
		cfg.AdminToken = token
	}

	svc, err := satellite.NewService(cfg)
	if err != nil {
		fail(err)
	}
	if err := svc.Run(); err != nil {
		fail(err)
	}
}

func resolveConfig(path string) (satellite.ServiceConfig, error) {
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path == "" {
		return satellite.DefaultServiceConfig(), nil
	}
	return loadServiceConfig(path)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "satellitectl: %v\n", err)
	os.Exit(1)
}
