package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var ErrStreamClosed = errors.New("audio: stream closed")

// Stream yields PCM chunks until io.EOF.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
}

// Clip is decoded audio held in memory as pipeline chunks.
type Clip struct {
	Chunks [][]byte
}

func NewClip(pcm []byte) *Clip {
	return &Clip{Chunks: Split(pcm)}
}

// Len is the number of chunks.
func (c *Clip) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Chunks)
}

// Stream returns an independent reader over the clip.
func (c *Clip) Stream() Stream {
	return &clipStream{clip: c}
}

// Repeat returns the clip played n times with gap chunks of silence between.
func (c *Clip) Repeat(n, gap int) *Clip {
	out := &Clip{}
	for i := 0; i < n; i++ {
		if i > 0 {
			for g := 0; g < gap; g++ {
				out.Chunks = append(out.Chunks, Silence())
			}
		}
		out.Chunks = append(out.Chunks, c.Chunks...)
	}
	return out
}

type clipStream struct {
	clip *Clip
	pos  int
}

func (s *clipStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.clip == nil || s.pos >= len(s.clip.Chunks) {
		return nil, io.EOF
	}
	chunk := s.clip.Chunks[s.pos]
	s.pos++
	return chunk, nil
}

// ChunkStream is a live stream fed by Push. It ends with io.EOF after
// Close once drained.
type ChunkStream struct {
	ch      chan []byte
	once    sync.Once
	done    chan struct{}
	dropped atomic.Uint64
}

func NewChunkStream(capacity int) *ChunkStream {
	if capacity < 1 {
		capacity = 1
	}
	return &ChunkStream{ch: make(chan []byte, capacity), done: make(chan struct{})}
}

// Push queues one chunk without blocking; it reports false when dropped.
func (s *ChunkStream) Push(chunk []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- chunk:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *ChunkStream) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *ChunkStream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *ChunkStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case chunk := <-s.ch:
		return chunk, nil
	default:
	}
	select {
	case chunk := <-s.ch:
		return chunk, nil
	case <-s.done:
		select {
		case chunk := <-s.ch:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
