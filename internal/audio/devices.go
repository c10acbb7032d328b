package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"time"
)

var ErrNoDevice = errors.New("audio: no sound device")

// Input produces ChunkBytes frames of capture audio.
type Input interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Output plays a stream to completion or until ctx ends.
type Output interface {
	Play(ctx context.Context, s Stream) error
	Close() error
}

// SoftVolume is a lock-free volume level in [0, 1] plus a duck gain that
// never touches the level. Sinks play at Level.
type SoftVolume struct {
	bits   atomic.Uint64
	duck   atomic.Uint64
	ducked atomic.Bool
}

func NewSoftVolume(v float64) *SoftVolume {
	s := &SoftVolume{}
	s.SetVolume(v)
	return s
}

func (s *SoftVolume) Volume() float64 {
	return math.Float64frombits(s.bits.Load())
}

func (s *SoftVolume) SetVolume(v float64) {
	s.bits.Store(math.Float64bits(math.Max(0, math.Min(1, v))))
}

// Level is the volume scaled by the duck gain while ducked.
func (s *SoftVolume) Level() float64 {
	v := s.Volume()
	if s.ducked.Load() {
		v *= math.Float64frombits(s.duck.Load())
	}
	return v
}

// SetDuck applies gain on top of the volume; gain >= 1 clears the duck.
func (s *SoftVolume) SetDuck(gain float64) {
	if gain >= 1 {
		s.ducked.Store(false)
		return
	}
	s.duck.Store(math.Float64bits(math.Max(0, gain)))
	s.ducked.Store(true)
}

// NullInput yields silence at the capture rate.
type NullInput struct {
	Pace time.Duration
}

func NewNullInput() *NullInput {
	return &NullInput{Pace: ChunkDuration}
}

func (n *NullInput) Read(ctx context.Context) ([]byte, error) {
	if n.Pace > 0 {
		t := time.NewTimer(n.Pace)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Silence(), nil
}

func (n *NullInput) Close() error {
	return nil
}

// NullOutput drains streams at Pace per chunk without producing sound.
type NullOutput struct {
	Pace   time.Duration
	played atomic.Uint64
}

func NewNullOutput() *NullOutput {
	return &NullOutput{Pace: ChunkDuration}
}

func (n *NullOutput) Play(ctx context.Context, s Stream) error {
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		_ = chunk
		n.played.Add(1)
		if n.Pace <= 0 {
			continue
		}
		t := time.NewTimer(n.Pace)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Played counts chunks consumed.
func (n *NullOutput) Played() uint64 {
	return n.played.Load()
}

func (n *NullOutput) Close() error {
	return nil
}
