//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

var paOnce struct {
	sync.Mutex
	refs int
}

func paAcquire() error {
	paOnce.Lock()
	defer paOnce.Unlock()
	if paOnce.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return err
		}
	}
	paOnce.refs++
	return nil
}

func paRelease() {
	paOnce.Lock()
	defer paOnce.Unlock()
	paOnce.refs--
	if paOnce.refs == 0 {
		_ = portaudio.Terminate()
	}
}

type paInput struct {
	stream *portaudio.Stream
	buf    []int16
	mu     sync.Mutex
}

// OpenInput opens the default microphone at 16 kHz mono.
func OpenInput() (Input, error) {
	if err := paAcquire(); err != nil {
		return nil, errors.Join(ErrNoDevice, err)
	}
	in := &paInput{buf: make([]int16, ChunkSamples)}
	s, err := portaudio.OpenDefaultStream(Channels, 0, SampleRate, len(in.buf), in.buf)
	if err != nil {
		paRelease()
		return nil, errors.Join(ErrNoDevice, err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		paRelease()
		return nil, err
	}
	in.stream = s
	log.Info().Str("component", "audio").Msg("portaudio input opened")
	return in, nil
}

func (p *paInput) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]byte, ChunkBytes)
	for i, s := range p.buf {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

func (p *paInput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.stream.Stop()
	err := p.stream.Close()
	paRelease()
	return err
}

type paOutput struct {
	stream *portaudio.Stream
	buf    []int16
	vol    *SoftVolume
	mu     sync.Mutex
}

// OpenOutput opens the default speaker; vol scales every chunk.
func OpenOutput(vol *SoftVolume) (Output, error) {
	if err := paAcquire(); err != nil {
		return nil, errors.Join(ErrNoDevice, err)
	}
	out := &paOutput{buf: make([]int16, ChunkSamples), vol: vol}
	s, err := portaudio.OpenDefaultStream(0, Channels, SampleRate, len(out.buf), out.buf)
	if err != nil {
		paRelease()
		return nil, errors.Join(ErrNoDevice, err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		paRelease()
		return nil, err
	}
	out.stream = s
	log.Info().Str("component", "audio").Msg("portaudio output opened")
	return out, nil
}

func (p *paOutput) Play(ctx context.Context, s Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		gain := 1.0
		if p.vol != nil {
			gain = p.vol.Level()
		}
		scaled := Scale(chunk, gain)
		for i := range p.buf {
			p.buf[i] = 0
			if i*2+1 < len(scaled) {
				p.buf[i] = int16(binary.LittleEndian.Uint16(scaled[i*2:]))
			}
		}
		if err := p.stream.Write(); err != nil {
			return err
		}
	}
}

func (p *paOutput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.stream.Stop()
	err := p.stream.Close()
	paRelease()
	return err
}
