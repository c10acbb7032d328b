package satellite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/tools"
	"github.com/rs/zerolog/log"
)

// SensorSource yields one reading per poll.
type SensorSource interface {
	Poll(ctx context.Context) (entity.Value, error)
}

// SensorFunc adapts a function to SensorSource.
type SensorFunc func(ctx context.Context) (entity.Value, error)

func (f SensorFunc) Poll(ctx context.Context) (entity.Value, error) {
	return f(ctx)
}

// Uptime reports seconds since start.
func Uptime(start time.Time) SensorSource {
	return SensorFunc(func(context.Context) (entity.Value, error) {
		return entity.Float(float32(time.Since(start).Seconds())), nil
	})
}

// ExecSensor runs argv and parses the first line of stdout as the value
// for kind.
type ExecSensor struct {
	Runner tools.CommandRunner
	Argv   []string
	Kind   entity.Kind
}

func (s ExecSensor) Poll(ctx context.Context) (entity.Value, error) {
	if len(s.Argv) == 0 {
		return entity.Value{}, fmt.Errorf("satellite: sensor has no command")
	}
	runner := s.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	res, err := runner.Run(ctx, s.Argv[0], s.Argv[1:]...)
	if err != nil {
		return entity.Value{}, fmt.Errorf("satellite: sensor %s exited %d: %w", s.Argv[0], res.ExitCode, err)
	}
	out := strings.TrimSpace(string(res.Stdout))
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = strings.TrimSpace(out[:i])
	}
	switch s.Kind {
	case entity.KindBinarySensor:
		b, err := parseBool(out)
		if err != nil {
			return entity.Value{}, err
		}
		return entity.Bool(b), nil
	case entity.KindTextSensor:
		return entity.Text(out), nil
	default:
		f, err := strconv.ParseFloat(out, 32)
		if err != nil {
			return entity.Value{}, fmt.Errorf("satellite: sensor output %q: %w", out, err)
		}
		return entity.Float(float32(f)), nil
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	}
	return false, fmt.Errorf("satellite: sensor output %q is not boolean", s)
}

// PollSensor updates key from src every interval until ctx ends. Failed
// polls are logged and skipped.
func PollSensor(ctx context.Context, registry *entity.Registry, key uint32, src SensorSource, interval time.Duration) {
	poll := func() {
		v, err := src.Poll(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("component", "sensor").Uint32("key", key).Msg("poll failed")
			}
			return
		}
		if _, err := registry.Update(key, v); err != nil {
			log.Warn().Err(err).Str("component", "sensor").Uint32("key", key).Msg("update failed")
		}
	}
	poll()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			poll()
		}
	}
}
