package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/satellite/internal/testutil/testlog"
	"github.com/danmuck/satellite/internal/tools"
)

type resultSink struct {
	mu  sync.Mutex
	out []Result
	ch  chan Result
}

func newResultSink() *resultSink {
	return &resultSink{ch: make(chan Result, 16)}
}

func (s *resultSink) report(r Result) {
	s.mu.Lock()
	s.out = append(s.out, r)
	s.mu.Unlock()
	s.ch <- r
}

func (s *resultSink) wait(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for command result")
		return Result{}
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	res   tools.Result
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.res, f.err
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDispatchDestructiveOutsidePolicyIsRejected(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{}
	exec := ExecExecutor{Runner: runner, Argv: map[Key][]string{"shutdown": {"systemctl", "poweroff"}}}
	d := NewDispatcher(Config{Workers: 1})
	if err := d.Register("shutdown", exec.Handler()); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	sink := newResultSink()
	err := d.Dispatch(ctx, Command{Key: "shutdown", Source: SourceButton}, sink.report)
	if !errors.Is(err, ErrHandlerRejected) {
		t.Fatalf("expected ErrHandlerRejected, got %v", err)
	}
	if r := sink.wait(t); r.Outcome != OutcomeRejected {
		t.Fatalf("unexpected outcome: %+v", r)
	}
	if runner.count() != 0 {
		t.Fatalf("rejected command must not execute")
	}
}

func TestDispatchAllowedDestructiveRuns(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{res: tools.Result{Stdout: []byte("bye\nmore")}}
	exec := ExecExecutor{Runner: runner, Argv: map[Key][]string{"shutdown": {"systemctl", "poweroff"}}}
	d := NewDispatcher(Config{Workers: 1, Allowed: []string{"shutdown"}})
	if err := d.Register("shutdown", exec.Handler()); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	sink := newResultSink()
	if err := d.Dispatch(ctx, Command{Key: "shutdown"}, sink.report); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r := sink.wait(t)
	if r.Outcome != OutcomeSuccess || r.Ack.Message != "bye" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Summary() != "shutdown: ok: bye" {
		t.Fatalf("unexpected summary: %q", r.Summary())
	}
}

func TestDispatchUnknownCommandIsNoop(t *testing.T) {
	testlog.Start(t)

	d := NewDispatcher(Config{})
	sink := newResultSink()
	err := d.Dispatch(context.Background(), Command{Key: "launch_rockets"}, sink.report)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if r := sink.wait(t); r.Outcome != OutcomeUnknown {
		t.Fatalf("unexpected outcome: %+v", r)
	}
}

func TestValidateFailureWrapsRejected(t *testing.T) {
	testlog.Start(t)

	d := NewDispatcher(Config{})
	err := d.Register(ServiceKey("notify"), Handler{
		Validate: func(c Command) error {
			if c.Arg("message") == "" {
				return errors.New("message required")
			}
			return nil
		},
		Run: func(context.Context, Command) (Ack, error) { return Ack{}, nil },
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = d.Dispatch(context.Background(), Command{Key: ServiceKey("notify")}, nil)
	if !errors.Is(err, ErrHandlerRejected) {
		t.Fatalf("expected ErrHandlerRejected, got %v", err)
	}
}

func TestSlowHandlerDoesNotBlockDispatch(t *testing.T) {
	testlog.Start(t)

	release := make(chan struct{})
	d := NewDispatcher(Config{Workers: 1, QueueSize: 4})
	_ = d.Register("slow", Handler{Run: func(ctx context.Context, _ Command) (Ack, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return Ack{}, nil
	}})
	_ = d.Register("fast", Handler{Run: func(context.Context, Command) (Ack, error) { return Ack{}, nil }})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	sink := newResultSink()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Dispatch(ctx, Command{Key: "slow"}, sink.report)
		_ = d.Dispatch(ctx, Command{Key: "fast"}, sink.report)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("dispatch blocked behind a slow handler")
	}
	close(release)
	sink.wait(t)
	sink.wait(t)
	d.Close()
}

func TestQueueFullReportsError(t *testing.T) {
	testlog.Start(t)

	d := NewDispatcher(Config{Workers: 1, QueueSize: 1})
	_ = d.Register("noop", Handler{Run: func(context.Context, Command) (Ack, error) { return Ack{}, nil }})
	// Not started: the single queue slot fills and stays full.
	if err := d.Dispatch(context.Background(), Command{Key: "noop"}, nil); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := d.Dispatch(context.Background(), Command{Key: "noop"}, nil); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestCancelledConnectionSkipsQueuedCommand(t *testing.T) {
	testlog.Start(t)

	ran := make(chan struct{}, 1)
	d := NewDispatcher(Config{Workers: 1})
	_ = d.Register("noop", Handler{Run: func(context.Context, Command) (Ack, error) {
		ran <- struct{}{}
		return Ack{}, nil
	}})
	connCtx, cancelConn := context.WithCancel(context.Background())
	sink := newResultSink()
	if err := d.Dispatch(connCtx, Command{Key: "noop"}, sink.report); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	cancelConn()
	d.Start(context.Background())
	defer d.Close()

	r := sink.wait(t)
	if r.Outcome != OutcomeError || !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("expected cancelled result, got %+v", r)
	}
	select {
	case <-ran:
		t.Fatalf("handler must not run for a cancelled connection")
	default:
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	testlog.Start(t)

	d := NewDispatcher(Config{})
	h := Handler{Run: func(context.Context, Command) (Ack, error) { return Ack{}, nil }}
	if err := d.Register("a", h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Register("a", h); !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected ErrDuplicateHandler, got %v", err)
	}
	d.Start(context.Background())
	defer d.Close()
	if err := d.Register("b", h); !errors.Is(err, ErrStarted) {
		t.Fatalf("expected ErrStarted, got %v", err)
	}
	if keys := d.Keys(); len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestExecExecutorExpandsArgs(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{}
	exec := ExecExecutor{Runner: runner, Argv: map[Key][]string{
		ServiceKey("notify"): {"notify-send", "Satellite", "{message}"},
	}}
	_, err := exec.Execute(context.Background(), Command{
		Key:  ServiceKey("notify"),
		Args: map[string]string{"message": "dinner is ready"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := runner.calls[0]; len(got) != 3 || got[2] != "dinner is ready" {
		t.Fatalf("unexpected argv: %v", got)
	}

	runner.err = errors.New("exit status 2")
	runner.res = tools.Result{ExitCode: 2, Stderr: []byte("denied")}
	if _, err := exec.Execute(context.Background(), Command{Key: ServiceKey("notify")}); err == nil {
		t.Fatalf("expected execution error")
	}
	if _, err := exec.Execute(context.Background(), Command{Key: "missing"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}
