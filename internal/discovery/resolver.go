package discovery

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

var ErrNoHub = errors.New("discovery: no hub found")

// BrowseFunc streams service entries until ctx ends, then closes entries.
type BrowseFunc func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error

// ZeroconfBrowse browses through github.com/grandcat/zeroconf.
func ZeroconfBrowse(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return r.Browse(ctx, service, domain, entries)
}

type ResolverConfig struct {
	Service string
	Domain  string
	Timeout time.Duration
	Backoff session.BackoffConfig
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Service: ServiceHub,
		Domain:  DomainLocal,
		Timeout: 5 * time.Second,
		Backoff: DefaultConfig().Backoff,
	}
}

// Resolver finds the hub for device-initiated connections.
type Resolver struct {
	cfg    ResolverConfig
	browse BrowseFunc
	wait   func(ctx context.Context, d time.Duration) bool
	rng    *rand.Rand
}

func NewResolver(cfg ResolverConfig, browse BrowseFunc) *Resolver {
	d := DefaultResolverConfig()
	if cfg.Service == "" {
		cfg.Service = d.Service
	}
	if cfg.Domain == "" {
		cfg.Domain = d.Domain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = d.Backoff
	}
	if browse == nil {
		browse = ZeroconfBrowse
	}
	return &Resolver{
		cfg:    cfg,
		browse: browse,
		wait:   sleepCtx,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve browses until a hub answers and returns its host:port. It only
// fails when ctx ends.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	backoff := session.NewBackoff(r.cfg.Backoff, r.rng)
	for {
		addr, err := r.browseOnce(ctx)
		if err == nil {
			log.Info().
				Str("component", "discovery").
				Str("service", r.cfg.Service).
				Str("addr", addr).
				Msg("hub resolved")
			return addr, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		delay := backoff.Next()
		log.Warn().
			Err(err).
			Str("component", "discovery").
			Int("attempt", backoff.Attempt()).
			Dur("retry_in", delay).
			Msg("hub browse failed")
		if !r.wait(ctx, delay) {
			return "", ctx.Err()
		}
	}
}

func (r *Resolver) browseOnce(ctx context.Context) (string, error) {
	bctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := r.browse(bctx, r.cfg.Service, r.cfg.Domain, entries); err != nil {
		return "", err
	}
	// The browser closes entries once bctx ends; keep draining so it never
	// blocks on a send after we stop reading.
	defer func() {
		go func() {
			for range entries {
			}
		}()
	}()
	for {
		select {
		case <-bctx.Done():
			return "", ErrNoHub
		case e, ok := <-entries:
			if !ok {
				return "", ErrNoHub
			}
			if addr := entryAddr(e); addr != "" {
				return addr, nil
			}
		}
	}
}

func entryAddr(e *zeroconf.ServiceEntry) string {
	if e == nil || e.Port <= 0 {
		return ""
	}
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(e.Port))
}
