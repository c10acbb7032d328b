package satellite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/satellite/internal/observability"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/frame"
	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandshakeTimeout = errors.New("satellite: handshake timeout")
	ErrKeepaliveTimeout = errors.New("satellite: keepalive timeout")
	ErrDisconnected     = errors.New("satellite: disconnected by peer")
	ErrReplaced         = errors.New("satellite: replaced by newer connection")
	ErrServerClosed     = errors.New("satellite: server closed")
)

// ConnInfo is a point-in-time view of the hub connection.
type ConnInfo struct {
	ID           uint64    `json:"id"`
	Remote       string    `json:"remote"`
	Phase        string    `json:"phase"`
	Since        time.Time `json:"since"`
	LastActivity time.Time `json:"last_activity"`
	AudioDropped uint64    `json:"audio_dropped"`
	VoiceLinked  bool      `json:"voice_linked"`
}

// Conn is one hub connection. The read loop runs on the goroutine that
// called run; writes from any goroutine are serialized by wmu.
type Conn struct {
	id     uint64
	raw    net.Conn
	srv    *Server
	gate   *session.Gate
	outbox *session.AudioOutbox
	since  time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	wmu  sync.Mutex
	last atomic.Int64

	voiceLinked   atomic.Bool
	authenticated atomic.Bool
	closeOnce     sync.Once
	done          chan struct{}
}

func newConn(ctx context.Context, srv *Server, raw net.Conn, id uint64) *Conn {
	cctx, cancel := context.WithCancelCause(ctx)
	c := &Conn{
		id:     id,
		raw:    raw,
		srv:    srv,
		gate:   session.NewGate(srv.cfg.Password),
		outbox: session.NewAudioOutbox(srv.cfg.Session.AudioOutboxSize),
		since:  time.Now(),
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *Conn) Phase() session.Phase {
	return c.gate.Phase()
}

// Context ends when the connection closes.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Done is closed once the connection is fully closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Info() ConnInfo {
	return ConnInfo{
		ID:           c.id,
		Remote:       remoteAddr(c.raw),
		Phase:        c.Phase().String(),
		Since:        c.since,
		LastActivity: time.Unix(0, c.last.Load()),
		AudioDropped: c.outbox.Dropped(),
		VoiceLinked:  c.voiceLinked.Load(),
	}
}

// Send writes msgs as one contiguous write so frames from different
// goroutines never interleave.
func (c *Conn) Send(msgs ...protocol.Message) error {
	if c.Phase() >= session.PhaseClosing {
		return session.ErrClosed
	}
	var buf []byte
	for _, msg := range msgs {
		f, err := protocol.Encode(msg)
		if err != nil {
			return err
		}
		buf, err = frame.Append(buf, f, c.srv.cfg.Limits)
		if err != nil {
			return fmt.Errorf("%s: %w", protocol.Name(msg), err)
		}
	}
	if len(buf) == 0 {
		return nil
	}

	c.wmu.Lock()
	_ = c.raw.SetWriteDeadline(time.Now().Add(c.srv.cfg.Session.WriteTimeout))
	_, err := c.raw.Write(buf)
	c.wmu.Unlock()
	if err != nil {
		c.close(fmt.Errorf("write: %w", err))
		return err
	}
	for _, msg := range msgs {
		observability.RecordFrame("out", protocol.Name(msg))
	}
	return nil
}

// SendAudio queues one PCM frame for the audio pump. It never blocks and
// reports false when an older frame was dropped.
func (c *Conn) SendAudio(pcm []byte) bool {
	if c.Phase() >= session.PhaseClosing {
		return false
	}
	return c.outbox.Push(pcm)
}

func (c *Conn) touch() {
	c.last.Store(time.Now().UnixNano())
}

func (c *Conn) idle() time.Duration {
	return time.Since(time.Unix(0, c.last.Load()))
}

// run services the connection until it closes and returns the cause.
func (c *Conn) run() error {
	observability.RecordConnectionOpened()
	log.Info().
		Str("component", "satellite").
		Uint64("conn", c.id).
		Str("remote", remoteAddr(c.raw)).
		Msg("hub connected")

	handshake := time.AfterFunc(c.srv.cfg.Session.HandshakeTimeout, func() {
		if c.Phase() == session.PhaseHandshaking {
			c.close(ErrHandshakeTimeout)
		}
	})
	defer handshake.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.keepalive()
	}()
	go func() {
		defer wg.Done()
		c.pumpAudio()
	}()
	go func() {
		<-c.ctx.Done()
		c.close(context.Cause(c.ctx))
	}()

	err := c.readLoop()
	c.close(err)
	wg.Wait()
	<-c.done
	return context.Cause(c.ctx)
}

func (c *Conn) readLoop() error {
	r := frame.NewReader(c.raw, c.srv.cfg.Limits)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			return err
		}
		c.touch()
		msg, err := protocol.Decode(f)
		if errors.Is(err, protocol.ErrUnknownType) {
			observability.RecordFrame("in", "unknown")
			log.Debug().
				Str("component", "satellite").
				Uint64("conn", c.id).
				Uint32("type", f.Type).
				Msg("skipping unknown message type")
			continue
		}
		if err != nil {
			return err
		}
		observability.RecordFrame("in", protocol.Name(msg))
		if err := c.gate.Allow(f.Type); err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrProtocol, err)
		}
		if err := c.handle(msg); err != nil {
			return err
		}
	}
}

// keepalive pings an idle hub and closes after KeepaliveMisses silent
// intervals.
func (c *Conn) keepalive() {
	cfg := c.srv.cfg.Session
	tick := time.NewTicker(cfg.KeepaliveInterval)
	defer tick.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-tick.C:
			idle := c.idle()
			if idle >= cfg.DeadAfter() {
				c.close(ErrKeepaliveTimeout)
				return
			}
			if idle >= cfg.KeepaliveInterval {
				if err := c.Send(&protocol.PingRequest{}); err != nil {
					return
				}
			}
		}
	}
}

func (c *Conn) pumpAudio() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.outbox.Ready():
			for {
				pcm, ok := c.outbox.Pop()
				if !ok {
					break
				}
				if err := c.Send(&protocol.VoiceAssistantAudio{Data: pcm}); err != nil {
					return
				}
			}
		}
	}
}

// close tears the connection down once; later calls are no-ops.
func (c *Conn) close(cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = io.EOF
		}
		c.gate.Close()
		c.cancel(cause)
		_ = c.raw.Close()
		c.outbox.Reset()
		c.srv.release(c)
		c.gate.Closed()

		reason := closeReason(cause)
		observability.RecordConnectionClosed(reason)
		ev := log.Info()
		if reason == "protocol" || reason == "error" {
			ev = log.Warn().Err(cause)
		}
		ev.Str("component", "satellite").
			Uint64("conn", c.id).
			Str("reason", reason).
			Dur("lifetime", time.Since(c.since)).
			Msg("hub disconnected")
		close(c.done)
	})
}

func closeReason(err error) string {
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.Is(err, ErrKeepaliveTimeout):
		return "keepalive_timeout"
	case errors.Is(err, ErrDisconnected):
		return "disconnect"
	case errors.Is(err, ErrReplaced):
		return "replaced"
	case errors.Is(err, ErrServerClosed), errors.Is(err, context.Canceled):
		return "shutdown"
	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, frame.ErrCorrupt),
		errors.Is(err, session.ErrInvalidPassword):
		return "protocol"
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return "eof"
	default:
		return "error"
	}
}

func remoteAddr(c net.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
