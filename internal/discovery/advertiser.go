package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	ServiceESPHome = "_esphomelib._tcp"
	ServiceHub     = "_home-assistant._tcp"
	DomainLocal    = "local."
)

// Config describes what is advertised and how often.
type Config struct {
	Instance     string
	FriendlyName string
	MAC          string
	Version      string
	APIVersion   string
	Board        string
	Platform     string
	Network      string
	Port         int

	Service        string
	Domain         string
	TTL            uint32
	Reannounce     time.Duration
	InterfaceCheck time.Duration
	Backoff        session.BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Version:        "2025.5.0",
		Board:          "host",
		Platform:       "host",
		Network:        "wifi",
		Port:           6053,
		Service:        ServiceESPHome,
		Domain:         DomainLocal,
		TTL:            120,
		Reannounce:     60 * time.Second,
		InterfaceCheck: 10 * time.Second,
		Backoff: session.BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Board == "" {
		c.Board = d.Board
	}
	if c.Platform == "" {
		c.Platform = d.Platform
	}
	if c.Network == "" {
		c.Network = d.Network
	}
	if c.Port <= 0 {
		c.Port = d.Port
	}
	if c.Service == "" {
		c.Service = d.Service
	}
	if c.Domain == "" {
		c.Domain = d.Domain
	}
	if c.TTL == 0 {
		c.TTL = d.TTL
	}
	if c.Reannounce <= 0 {
		c.Reannounce = d.Reannounce
	}
	if c.InterfaceCheck <= 0 {
		c.InterfaceCheck = d.InterfaceCheck
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// TXT returns the advertised key=value records.
func (c Config) TXT() []string {
	mac := strings.ToLower(strings.NewReplacer(":", "", "-", "").Replace(c.MAC))
	txt := []string{
		"version=" + c.Version,
		"mac=" + mac,
		"board=" + c.Board,
		"platform=" + c.Platform,
		"network=" + c.Network,
	}
	if c.FriendlyName != "" {
		txt = append(txt, "friendly_name="+c.FriendlyName)
	}
	if c.APIVersion != "" {
		txt = append(txt, "api_version="+c.APIVersion)
	}
	return txt
}

// Registration is a live mDNS service record.
type Registration interface {
	SetText(txt []string)
	TTL(ttl uint32)
	Shutdown()
}

// RegisterFunc publishes one service record.
type RegisterFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Registration, error)

// ZeroconfRegister publishes through github.com/grandcat/zeroconf.
func ZeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Registration, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, txt, ifaces)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Advertiser keeps the device discoverable.
type Advertiser struct {
	cfg         Config
	register    RegisterFunc
	fingerprint func() (string, error)
	wait        func(ctx context.Context, d time.Duration) bool
	rng         *rand.Rand
}

func NewAdvertiser(cfg Config, register RegisterFunc) *Advertiser {
	if register == nil {
		register = ZeroconfRegister
	}
	return &Advertiser{
		cfg:         cfg.WithDefaults(),
		register:    register,
		fingerprint: InterfaceFingerprint,
		wait:        sleepCtx,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run registers and maintains the record until ctx ends. Registration
// failures are retried with capped backoff forever.
func (a *Advertiser) Run(ctx context.Context) error {
	backoff := session.NewBackoff(a.cfg.Backoff, a.rng)
	for ctx.Err() == nil {
		fp, _ := a.fingerprint()
		reg, err := a.register(a.cfg.Instance, a.cfg.Service, a.cfg.Domain, a.cfg.Port, a.cfg.TXT(), nil)
		if err != nil {
			delay := backoff.Next()
			log.Warn().
				Err(err).
				Str("component", "discovery").
				Int("attempt", backoff.Attempt()).
				Dur("retry_in", delay).
				Msg("mdns register failed")
			if !a.wait(ctx, delay) {
				return nil
			}
			continue
		}
		backoff.Reset()
		reg.TTL(a.cfg.TTL)
		log.Info().
			Str("component", "discovery").
			Str("instance", a.cfg.Instance).
			Str("service", a.cfg.Service).
			Int("port", a.cfg.Port).
			Msg("mdns advertised")

		a.maintain(ctx, reg, fp)
		reg.Shutdown()
	}
	return nil
}

// maintain re-announces on schedule and returns when ctx ends or the
// network interfaces change.
func (a *Advertiser) maintain(ctx context.Context, reg Registration, fp string) {
	announce := time.NewTicker(a.cfg.Reannounce)
	defer announce.Stop()
	check := time.NewTicker(a.cfg.InterfaceCheck)
	defer check.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-announce.C:
			reg.SetText(a.cfg.TXT())
			log.Debug().Str("component", "discovery").Msg("mdns re-announced")
		case <-check.C:
			now, err := a.fingerprint()
			if err != nil || now == fp {
				continue
			}
			log.Info().Str("component", "discovery").Msg("network interfaces changed; re-registering")
			return
		}
	}
}

// InterfaceFingerprint hashes the up, multicast-capable interfaces and
// their addresses.
func InterfaceFingerprint() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("discovery: list interfaces: %w", err)
	}
	var parts []string
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			parts = append(parts, ifc.Name+"|"+addr.String())
		}
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:8]), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
