package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/satellite/internal/tools"
)

// Executor performs a command outside the process.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Ack, error)
}

// ExecExecutor runs a configured argv per key. Arguments of the form
// {name} are replaced with the command's named args.
type ExecExecutor struct {
	Runner tools.CommandRunner
	Argv   map[Key][]string
}

func (e ExecExecutor) Execute(ctx context.Context, cmd Command) (Ack, error) {
	argv, ok := e.Argv[cmd.Key]
	if !ok || len(argv) == 0 {
		return Ack{}, fmt.Errorf("%w: no argv for %s", ErrUnknownCommand, cmd.Key)
	}
	expanded := make([]string, len(argv))
	for i, a := range argv {
		expanded[i] = expandArgs(a, cmd.Args)
	}
	runner := e.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	res, err := runner.Run(ctx, expanded[0], expanded[1:]...)
	if err != nil {
		stderr := strings.TrimSpace(string(res.Stderr))
		if stderr != "" {
			return Ack{}, fmt.Errorf("command: %s exited %d: %s: %w", cmd.Key, res.ExitCode, stderr, err)
		}
		return Ack{}, fmt.Errorf("command: %s exited %d: %w", cmd.Key, res.ExitCode, err)
	}
	return Ack{Message: firstLine(string(res.Stdout))}, nil
}

// Handler wraps the executor for key.
func (e ExecExecutor) Handler() Handler {
	return Handler{Run: e.Execute}
}

func expandArgs(s string, args map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	for k, v := range args {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
