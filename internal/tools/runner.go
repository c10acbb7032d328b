package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result is the captured outcome of one process run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// CommandRunner abstracts process execution for command handlers.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner executes commands on the local host. Cancelling ctx kills the
// process.
type ExecRunner struct{}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = int32(exitErr.ExitCode())
		return res, err
	}

	res.ExitCode = 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		res.ExitCode = 127
	}
	return res, err
}
