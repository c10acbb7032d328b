package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownCommand   = errors.New("command: unknown command")
	ErrHandlerRejected  = errors.New("command: handler rejected")
	ErrDuplicateHandler = errors.New("command: duplicate handler")
	ErrStarted          = errors.New("command: dispatcher already started")
	ErrQueueFull        = errors.New("command: queue full")
	ErrClosed           = errors.New("command: dispatcher closed")
)

// Key identifies one command handler.
type Key string

// Command sources.
const (
	SourceButton  = "button"
	SourceMedia   = "media_player"
	SourceService = "service"
	SourceAdmin   = "admin"
)

// Media player command keys.
const (
	KeyMediaPlay    Key = "media.play"
	KeyMediaPause   Key = "media.pause"
	KeyMediaStop    Key = "media.stop"
	KeyMediaMute    Key = "media.mute"
	KeyMediaUnmute  Key = "media.unmute"
	KeyMediaVolume  Key = "media.volume"
	KeyMediaPlayURL Key = "media.play_url"
)

// ServiceKey is the key an ExecuteService request for name maps to.
func ServiceKey(name string) Key {
	return Key("service." + name)
}

// DefaultDestructive lists keys that only run when explicitly allowed.
var DefaultDestructive = []Key{"shutdown", "restart", "logoff", "hibernate", "sleep"}

// Command is one dispatch request.
type Command struct {
	ID        uint64
	Key       Key
	Args      map[string]string
	Source    string
	EntityKey uint32
}

func (c Command) Arg(name string) string {
	return c.Args[name]
}

// Ack is the handler's success summary.
type Ack struct {
	Message string
}

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeUnknown  = "unknown"
	OutcomeError    = "error"
)

// Result is reported exactly once per dispatched command.
type Result struct {
	Command Command
	Outcome string
	Ack     Ack
	Err     error
}

// Summary is the short text reported back to the hub.
func (r Result) Summary() string {
	switch r.Outcome {
	case OutcomeSuccess:
		if r.Ack.Message != "" {
			return fmt.Sprintf("%s: ok: %s", r.Command.Key, r.Ack.Message)
		}
		return fmt.Sprintf("%s: ok", r.Command.Key)
	default:
		return fmt.Sprintf("%s: %s: %v", r.Command.Key, r.Outcome, r.Err)
	}
}

// Handler is the typed implementation of one key. Validate runs
// synchronously on the dispatch path; Run runs on a worker.
type Handler struct {
	Validate func(Command) error
	Run      func(context.Context, Command) (Ack, error)
}

// Policy gates destructive keys behind an allow-list.
type Policy struct {
	allowed     map[Key]bool
	destructive map[Key]bool
}

func NewPolicy(allowed []string, destructive []Key) Policy {
	p := Policy{allowed: make(map[Key]bool), destructive: make(map[Key]bool)}
	for _, k := range allowed {
		k = strings.TrimSpace(k)
		if k != "" {
			p.allowed[Key(k)] = true
		}
	}
	for _, k := range destructive {
		p.destructive[k] = true
	}
	return p
}

// Check rejects destructive keys that are not allowed.
func (p Policy) Check(key Key) error {
	if p.destructive[key] && !p.allowed[key] {
		return fmt.Errorf("%w: %s is destructive and not allowed", ErrHandlerRejected, key)
	}
	return nil
}

// Destructive lists destructive keys in sorted order.
func (p Policy) Destructive() []Key {
	out := make([]Key, 0, len(p.destructive))
	for k := range p.destructive {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
