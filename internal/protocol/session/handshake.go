package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/satellite/internal/protocol/schema"
)

var (
	ErrHelloRequired    = errors.New("session: hello required")
	ErrInvalidPassword  = errors.New("session: invalid password")
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrClosed           = errors.New("session: closed")
)

// Phase is the connection lifecycle position.
type Phase int32

const (
	PhaseHandshaking Phase = iota
	PhaseAuthenticated
	PhaseStreaming
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshaking:
		return "handshaking"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseStreaming:
		return "streaming"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Messages accepted before authentication.
var preAuth = map[uint32]bool{
	schema.MsgHelloRequest:       true,
	schema.MsgConnectRequest:     true,
	schema.MsgDisconnectRequest:  true,
	schema.MsgDisconnectResponse: true,
	schema.MsgPingRequest:        true,
	schema.MsgPingResponse:       true,
}

// Gate tracks handshake progress for one connection. Hello and Connect are
// driven by the read loop; Phase may be read from any goroutine.
type Gate struct {
	password  string
	helloSeen bool
	phase     atomic.Int32
}

func NewGate(password string) *Gate {
	return &Gate{password: password}
}

func (g *Gate) Phase() Phase {
	return Phase(g.phase.Load())
}

// Hello records the HelloRequest. Without a configured password the
// connection is authenticated immediately.
func (g *Gate) Hello() (authenticated bool) {
	g.helloSeen = true
	if g.password == "" && g.Phase() == PhaseHandshaking {
		g.phase.Store(int32(PhaseAuthenticated))
	}
	return g.Phase() >= PhaseAuthenticated
}

// Connect checks a ConnectRequest password.
func (g *Gate) Connect(password string) error {
	if !g.helloSeen {
		return ErrHelloRequired
	}
	if g.Phase() >= PhaseAuthenticated {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(g.password), []byte(password)) != 1 {
		return ErrInvalidPassword
	}
	g.phase.Store(int32(PhaseAuthenticated))
	return nil
}

// Allow reports whether msgType may be processed in the current phase.
// DeviceInfoRequest is allowed once Hello has been seen.
func (g *Gate) Allow(msgType uint32) error {
	phase := g.Phase()
	if phase >= PhaseClosing {
		return ErrClosed
	}
	if phase >= PhaseAuthenticated || preAuth[msgType] {
		return nil
	}
	if msgType == schema.MsgDeviceInfoRequest && g.helloSeen {
		return nil
	}
	return fmt.Errorf("%w: %s before authentication", ErrNotAuthenticated, schema.Name(msgType))
}

// Subscribe moves an authenticated connection to Streaming.
func (g *Gate) Subscribe() bool {
	return g.phase.CompareAndSwap(int32(PhaseAuthenticated), int32(PhaseStreaming)) ||
		g.Phase() == PhaseStreaming
}

// Close moves the gate to Closing; it reports false if already closing.
func (g *Gate) Close() bool {
	for {
		cur := g.phase.Load()
		if Phase(cur) >= PhaseClosing {
			return false
		}
		if g.phase.CompareAndSwap(cur, int32(PhaseClosing)) {
			return true
		}
	}
}

func (g *Gate) Closed() {
	g.phase.Store(int32(PhaseClosed))
}
