package satellite

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/satellite/internal/command"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/danmuck/satellite/internal/voice"
	"github.com/rs/zerolog/log"
)

// CommandFunc is the dispatcher entry point. report is called exactly once
// per command.
type CommandFunc func(ctx context.Context, cmd command.Command, report func(command.Result)) error

// VoiceEndpoint is the voice pipeline as seen by the hub connection.
type VoiceEndpoint interface {
	Attach(link voice.Link, flags uint32) error
	Detach(link voice.Link) error
	HandleMessage(msg protocol.Message) error
	WakeWords() *voice.WakeWords
}

// ResolveFunc returns the hub address for device-initiated connections.
type ResolveFunc func(ctx context.Context) (string, error)

// Server services exactly one authoritative hub connection. A newer
// connection closes the current one before it is serviced.
type Server struct {
	cfg      Config
	registry *entity.Registry
	voice    VoiceEndpoint

	mu        sync.Mutex
	current   *Conn
	onCommand CommandFunc

	seq     atomic.Uint64
	forward sync.Once
	rng     *rand.Rand
}

// NewServer builds a server. v may be nil when no voice pipeline runs.
func NewServer(cfg Config, registry *entity.Registry, v VoiceEndpoint) *Server {
	return &Server{
		cfg:      cfg.WithDefaults(),
		registry: registry,
		voice:    v,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnCommand registers the command dispatcher entry point.
func (s *Server) OnCommand(fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommand = fn
}

// Serve accepts hub connections until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.startForwarding(ctx)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().
		Str("component", "satellite").
		Str("addr", ln.Addr().String()).
		Msg("hub listener started")

	var wg sync.WaitGroup
	defer func() {
		s.closeCurrent(ErrServerClosed)
		wg.Wait()
	}()
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, raw)
		}()
	}
}

// DialLoop connects out to the hub, reconnecting with capped backoff until
// ctx ends. The backoff resets after any connection that authenticated.
func (s *Server) DialLoop(ctx context.Context, resolve ResolveFunc) error {
	s.startForwarding(ctx)
	backoff := session.NewBackoff(s.cfg.Session.Backoff, s.rng)
	for {
		err := s.dialOnce(ctx, resolve, backoff)
		if ctx.Err() != nil {
			return nil
		}
		delay := backoff.Next()
		log.Warn().
			Err(err).
			Str("component", "satellite").
			Int("attempt", backoff.Attempt()).
			Dur("retry_in", delay).
			Msg("hub connection ended")
		if !wait(ctx, delay) {
			return nil
		}
	}
}

func (s *Server) dialOnce(ctx context.Context, resolve ResolveFunc, backoff *session.Backoff) error {
	addr, err := resolve(ctx)
	if err != nil {
		return err
	}
	d := net.Dialer{Timeout: s.cfg.Session.ConnectTimeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	c := s.serveConn(ctx, raw)
	if c.authenticated.Load() {
		backoff.Reset()
	}
	return context.Cause(c.ctx)
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) *Conn {
	c := newConn(ctx, s, raw, s.seq.Add(1))
	s.mu.Lock()
	old := s.current
	s.current = c
	s.mu.Unlock()
	if old != nil {
		log.Info().
			Str("component", "satellite").
			Uint64("old", old.id).
			Uint64("conn", c.id).
			Msg("replacing hub connection")
		old.close(ErrReplaced)
		<-old.Done()
	}
	_ = c.run()
	return c
}

// release forgets c if it is current and unlinks it from the pipeline.
func (s *Server) release(c *Conn) {
	s.mu.Lock()
	if s.current == c {
		s.current = nil
	}
	s.mu.Unlock()
	if s.voice != nil && c.voiceLinked.Swap(false) {
		go func() {
			_ = s.voice.Detach(c)
		}()
	}
}

func (s *Server) closeCurrent(cause error) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c != nil {
		c.close(cause)
	}
}

// Broadcast sends msg to the current connection if it is Streaming and
// reports whether it was written. Nothing is queued for later.
func (s *Server) Broadcast(msg protocol.Message) bool {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil || c.Phase() != session.PhaseStreaming {
		return false
	}
	return c.Send(msg) == nil
}

// Current describes the hub connection, if any.
func (s *Server) Current() (ConnInfo, bool) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return ConnInfo{}, false
	}
	return c.Info(), true
}

func (s *Server) startForwarding(ctx context.Context) {
	s.forward.Do(func() {
		go s.forwardChanges(ctx)
	})
}

// forwardChanges pushes entity changes to a subscribed hub. The value sent
// is re-read at send time so a late change never overwrites a newer one.
func (s *Server) forwardChanges(ctx context.Context) {
	changes, cancel := s.registry.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			e, found := s.registry.Get(ch.Entity.Key)
			if !found {
				continue
			}
			if msg := entity.StateResponse(e); msg != nil {
				s.Broadcast(msg)
			}
		}
	}
}

func (s *Server) listEntities() []protocol.Message {
	list := s.registry.List()
	out := make([]protocol.Message, 0, len(list)+1)
	for _, e := range list {
		if msg := entity.ListResponse(e, s.cfg.Device.Name); msg != nil {
			out = append(out, msg)
		}
	}
	return append(out, &protocol.ListEntitiesDoneResponse{})
}

func (s *Server) stateSnapshot() []protocol.Message {
	var out []protocol.Message
	for _, e := range s.registry.List() {
		if !e.Kind.Stateful() {
			continue
		}
		if msg := entity.StateResponse(e); msg != nil {
			out = append(out, msg)
		}
	}
	return out
}

func (s *Server) dispatch(ctx context.Context, cmd command.Command) {
	s.mu.Lock()
	fn := s.onCommand
	s.mu.Unlock()
	if fn == nil {
		s.report(command.Result{Command: cmd, Outcome: command.OutcomeUnknown, Err: command.ErrUnknownCommand})
		return
	}
	// Failures are delivered through report.
	_ = fn(ctx, cmd, s.report)
}

// report publishes a command result on the result text sensor.
func (s *Server) report(res command.Result) {
	log.Debug().
		Str("component", "satellite").
		Str("command", string(res.Command.Key)).
		Str("outcome", res.Outcome).
		Msg("command result")
	if s.cfg.ResultKey == 0 {
		return
	}
	if _, err := s.registry.Update(s.cfg.ResultKey, entity.Text(res.Summary())); err != nil {
		log.Warn().Err(err).Str("component", "satellite").Msg("command result not recorded")
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
