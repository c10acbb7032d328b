package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/satellite/internal/observability"
	"github.com/rs/zerolog/log"
)

// Config sizes the worker pool and sets the allow-list.
type Config struct {
	Workers     int
	QueueSize   int
	Allowed     []string
	Destructive []Key
}

func DefaultConfig() Config {
	return Config{
		Workers:     2,
		QueueSize:   16,
		Destructive: DefaultDestructive,
	}
}

type job struct {
	ctx     context.Context
	cmd     Command
	handler Handler
	report  func(Result)
	queued  time.Time
}

// Dispatcher resolves keys against a handler table fixed at Start.
type Dispatcher struct {
	cfg      Config
	policy   Policy
	handlers map[Key]Handler

	started atomic.Bool
	closed  atomic.Bool
	seq     atomic.Uint64
	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

func NewDispatcher(cfg Config) *Dispatcher {
	d := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.Destructive == nil {
		cfg.Destructive = d.Destructive
	}
	return &Dispatcher{
		cfg:      cfg,
		policy:   NewPolicy(cfg.Allowed, cfg.Destructive),
		handlers: make(map[Key]Handler),
		jobs:     make(chan job, cfg.QueueSize),
	}
}

// Register binds key to h. It fails after Start.
func (d *Dispatcher) Register(key Key, h Handler) error {
	if d.started.Load() {
		return ErrStarted
	}
	if h.Run == nil {
		return fmt.Errorf("command: handler %s has no Run", key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	d.handlers[key] = h
	return nil
}

// Keys lists registered keys in sorted order.
func (d *Dispatcher) Keys() []Key {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Key, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Start launches the worker pool; workers exit when ctx ends or Close is
// called.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	log.Info().
		Str("component", "command").
		Int("workers", d.cfg.Workers).
		Int("handlers", len(d.Keys())).
		Msg("dispatcher started")
}

// Dispatch validates cmd and queues it. Unknown keys and rejections are
// reported synchronously and never executed. Dispatch never blocks on a
// running handler.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, report func(Result)) error {
	if report == nil {
		report = func(Result) {}
	}
	if cmd.ID == 0 {
		cmd.ID = d.seq.Add(1)
	}
	if d.closed.Load() {
		err := ErrClosed
		d.finish(report, Result{Command: cmd, Outcome: OutcomeError, Err: err}, 0)
		return err
	}

	d.mu.RLock()
	h, ok := d.handlers[cmd.Key]
	d.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Key)
		log.Warn().
			Str("component", "command").
			Str("command", string(cmd.Key)).
			Str("source", cmd.Source).
			Msg("unknown command; acknowledged as no-op")
		d.finish(report, Result{Command: cmd, Outcome: OutcomeUnknown, Err: err}, 0)
		return err
	}

	if err := d.validate(cmd, h); err != nil {
		log.Warn().
			Str("component", "command").
			Str("command", string(cmd.Key)).
			Err(err).
			Msg("command rejected")
		d.finish(report, Result{Command: cmd, Outcome: OutcomeRejected, Err: err}, 0)
		return err
	}

	if !d.enqueue(job{ctx: ctx, cmd: cmd, handler: h, report: report, queued: time.Now()}) {
		err := fmt.Errorf("%w: %s", ErrQueueFull, cmd.Key)
		d.finish(report, Result{Command: cmd, Outcome: OutcomeError, Err: err}, 0)
		return err
	}
	log.Debug().
		Str("component", "command").
		Str("command", string(cmd.Key)).
		Uint64("id", cmd.ID).
		Msg("command queued")
	return nil
}

func (d *Dispatcher) enqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return false
	}
	select {
	case d.jobs <- j:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) validate(cmd Command, h Handler) error {
	if err := d.policy.Check(cmd.Key); err != nil {
		return err
	}
	if h.Validate == nil {
		return nil
	}
	if err := h.Validate(cmd); err != nil {
		if errors.Is(err, ErrHandlerRejected) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrHandlerRejected, err)
	}
	return nil
}

// Close stops accepting work and waits for queued commands to finish.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.mu.Lock()
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			d.run(j, id)
		}
	}
}

func (d *Dispatcher) run(j job, worker int) {
	start := time.Now()
	if err := j.ctx.Err(); err != nil {
		d.finish(j.report, Result{Command: j.cmd, Outcome: OutcomeError, Err: err}, 0)
		return
	}
	ack, err := j.handler.Run(j.ctx, j.cmd)
	res := Result{Command: j.cmd, Outcome: OutcomeSuccess, Ack: ack}
	if err != nil {
		res.Outcome = OutcomeError
		res.Err = err
	}
	log.Info().
		Str("component", "command").
		Str("command", string(j.cmd.Key)).
		Uint64("id", j.cmd.ID).
		Int("worker", worker).
		Str("outcome", res.Outcome).
		Dur("queued", start.Sub(j.queued)).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("command finished")
	d.finish(j.report, res, time.Since(start))
}

func (d *Dispatcher) finish(report func(Result), res Result, took time.Duration) {
	label := string(res.Command.Key)
	if res.Outcome == OutcomeUnknown {
		label = OutcomeUnknown
	}
	observability.RecordCommand(label, res.Outcome, took)
	report(res)
}
