package session

import (
	"sync"
	"sync/atomic"
)

// AudioOutbox is a bounded FIFO of outbound audio frames. When full, the
// oldest frame is dropped so live audio stays current. Push never blocks.
type AudioOutbox struct {
	mu      sync.Mutex
	items   [][]byte
	head    int
	size    int
	ready   chan struct{}
	dropped atomic.Uint64
}

func NewAudioOutbox(capacity int) *AudioOutbox {
	if capacity < 1 {
		capacity = 1
	}
	return &AudioOutbox{
		items: make([][]byte, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push enqueues one frame and reports false when an older frame was dropped
// to make room.
func (o *AudioOutbox) Push(frame []byte) bool {
	o.mu.Lock()
	kept := true
	if o.size == len(o.items) {
		o.items[o.head] = nil
		o.head = (o.head + 1) % len(o.items)
		o.size--
		o.dropped.Add(1)
		kept = false
	}
	o.items[(o.head+o.size)%len(o.items)] = frame
	o.size++
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return kept
}

// Pop dequeues the oldest frame.
func (o *AudioOutbox) Pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.size == 0 {
		return nil, false
	}
	frame := o.items[o.head]
	o.items[o.head] = nil
	o.head = (o.head + 1) % len(o.items)
	o.size--
	return frame, true
}

// Ready is signalled after a Push; drain with Pop until empty.
func (o *AudioOutbox) Ready() <-chan struct{} {
	return o.ready
}

func (o *AudioOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

func (o *AudioOutbox) Dropped() uint64 {
	return o.dropped.Load()
}

// Reset discards queued frames. The drop counter is kept.
func (o *AudioOutbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.items {
		o.items[i] = nil
	}
	o.head = 0
	o.size = 0
}
