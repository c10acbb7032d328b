package discovery

import (
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/danmuck/satellite/internal/testutil/testlog"
	"github.com/grandcat/zeroconf"
)

type fakeRegistration struct {
	mu       sync.Mutex
	texts    int
	ttl      uint32
	shutdown bool
}

func (r *fakeRegistration) SetText([]string) {
	r.mu.Lock()
	r.texts++
	r.mu.Unlock()
}

func (r *fakeRegistration) TTL(ttl uint32) {
	r.mu.Lock()
	r.ttl = ttl
	r.mu.Unlock()
}

func (r *fakeRegistration) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
}

func (r *fakeRegistration) reannounced() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.texts
}

type fakeRegistrar struct {
	mu    sync.Mutex
	fails int
	calls int
	regs  []*fakeRegistration
	txt   []string
}

func (f *fakeRegistrar) register(instance, service, domain string, port int, txt []string, _ []net.Interface) (Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("multicast unavailable")
	}
	f.txt = txt
	reg := &fakeRegistration{}
	f.regs = append(f.regs, reg)
	return reg, nil
}

func (f *fakeRegistrar) registrations() []*fakeRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.regs)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTXTRecords(t *testing.T) {
	testlog.Start(t)

	cfg := Config{MAC: "AA:BB:CC:00:11:22", FriendlyName: "Kitchen", APIVersion: "1.10"}.WithDefaults()
	txt := cfg.TXT()
	for _, want := range []string{"mac=aabbcc001122", "friendly_name=Kitchen", "api_version=1.10", "platform=host", "network=wifi"} {
		if !slices.Contains(txt, want) {
			t.Fatalf("txt missing %q: %v", want, txt)
		}
	}
}

func TestAdvertiserBackoffIsCapped(t *testing.T) {
	testlog.Start(t)

	reg := &fakeRegistrar{fails: 12}
	cfg := Config{Instance: "kitchen", Backoff: session.BackoffConfig{
		InitialDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second, Jitter: true,
	}}
	a := NewAdvertiser(cfg, reg.register)
	var mu sync.Mutex
	var delays []time.Duration
	a.wait = func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err() == nil
	}
	a.fingerprint = func() (string, error) { return "net-a", nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	waitUntil(t, "registration", func() bool { return len(reg.registrations()) == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 12 {
		t.Fatalf("retry count mismatch: got=%d want=12", len(delays))
	}
	for i, d := range delays {
		if d > 30*time.Second {
			t.Fatalf("delay %d exceeds cap: %v", i, d)
		}
	}
	if delays[len(delays)-1] < 15*time.Second {
		t.Fatalf("expected late delays near cap, got=%v", delays[len(delays)-1])
	}
	if !reg.registrations()[0].shutdown {
		t.Fatalf("expected registration shutdown on exit")
	}
}

func TestAdvertiserReannouncesAndReregistersOnNetworkChange(t *testing.T) {
	testlog.Start(t)

	reg := &fakeRegistrar{}
	a := NewAdvertiser(Config{
		Instance:       "kitchen",
		TTL:            90,
		Reannounce:     10 * time.Millisecond,
		InterfaceCheck: 15 * time.Millisecond,
	}, reg.register)
	var mu sync.Mutex
	fp := "net-a"
	a.fingerprint = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return fp, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitUntil(t, "re-announce", func() bool {
		regs := reg.registrations()
		return len(regs) == 1 && regs[0].reannounced() >= 2
	})
	if reg.registrations()[0].ttl != 90 {
		t.Fatalf("ttl mismatch: got=%d want=90", reg.registrations()[0].ttl)
	}

	mu.Lock()
	fp = "net-b"
	mu.Unlock()
	waitUntil(t, "re-register", func() bool { return len(reg.registrations()) == 2 })
	if !reg.registrations()[0].shutdown {
		t.Fatalf("expected old registration shutdown")
	}
	cancel()
	<-done
}

func fakeBrowser(results ...[]*zeroconf.ServiceEntry) (BrowseFunc, *int) {
	var mu sync.Mutex
	calls := 0
	return func(ctx context.Context, service, domain string, entries chan *zeroconf.ServiceEntry) error {
		mu.Lock()
		i := calls
		calls++
		mu.Unlock()
		go func() {
			defer close(entries)
			if i < len(results) {
				for _, e := range results[i] {
					select {
					case entries <- e:
					case <-ctx.Done():
						return
					}
				}
			}
			<-ctx.Done()
		}()
		return nil
	}, &calls
}

func TestResolverRetriesUntilHubFound(t *testing.T) {
	testlog.Start(t)

	hub := &zeroconf.ServiceEntry{HostName: "hub.local.", Port: 8123, AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")}}
	noAddr := &zeroconf.ServiceEntry{HostName: "hub.local.", Port: 8123}
	browse, calls := fakeBrowser(nil, []*zeroconf.ServiceEntry{noAddr}, []*zeroconf.ServiceEntry{noAddr, hub})
	r := NewResolver(ResolverConfig{Timeout: 30 * time.Millisecond}, browse)
	r.wait = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }

	addr, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "192.168.1.10:8123" {
		t.Fatalf("addr mismatch: got=%q", addr)
	}
	if *calls != 3 {
		t.Fatalf("browse attempts mismatch: got=%d want=3", *calls)
	}
}

func TestResolverStopsOnContext(t *testing.T) {
	testlog.Start(t)

	browse, _ := fakeBrowser()
	r := NewResolver(ResolverConfig{Timeout: 10 * time.Millisecond}, browse)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := r.Resolve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
