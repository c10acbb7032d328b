package voice

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Timer is a snapshot of one countdown.
type Timer struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Total    time.Duration `json:"total"`
	Left     time.Duration `json:"left"`
	Active   bool          `json:"active"`
	Deadline time.Time     `json:"deadline"`
}

type timerEntry struct {
	timer Timer
	gen   uint64
	stop  *time.Timer
}

// Timers tracks hub-created and local countdowns. Each timer fires onFire
// at most once, whether it expires locally or the hub finishes it first.
type Timers struct {
	mu      sync.Mutex
	entries map[string]*timerEntry
	gen     uint64
	onFire  func(Timer)
	now     func() time.Time
}

func NewTimers(onFire func(Timer)) *Timers {
	if onFire == nil {
		onFire = func(Timer) {}
	}
	return &Timers{entries: make(map[string]*timerEntry), onFire: onFire, now: time.Now}
}

// Start creates or replaces a timer.
func (t *Timers) Start(id, name string, total, left time.Duration, active bool) Timer {
	if left <= 0 || left > total {
		left = total
	}
	t.mu.Lock()
	if old, ok := t.entries[id]; ok && old.stop != nil {
		old.stop.Stop()
	}
	e := &timerEntry{timer: Timer{ID: id, Name: name, Total: total}}
	t.entries[id] = e
	t.arm(e, left, active)
	snap := e.timer
	t.mu.Unlock()

	log.Info().
		Str("component", "voice").
		Str("timer", id).
		Str("name", name).
		Dur("left", left).
		Bool("active", active).
		Msg("timer started")
	return snap
}

// Update changes remaining time and pause state.
func (t *Timers) Update(id string, left time.Duration, active bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	if e.stop != nil {
		e.stop.Stop()
	}
	t.arm(e, left, active)
	return nil
}

// Cancel removes a timer without firing it.
func (t *Timers) Cancel(id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		if e.stop != nil {
			e.stop.Stop()
		}
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok {
		log.Info().Str("component", "voice").Str("timer", id).Msg("timer cancelled")
	}
	return ok
}

// Finish fires a timer now. It reports false when the timer already fired
// or never existed.
func (t *Timers) Finish(id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		if e.stop != nil {
			e.stop.Stop()
		}
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	snap := e.timer
	snap.Left = 0
	snap.Active = false
	t.fire(snap)
	return true
}

// List returns timers ordered by remaining time.
func (t *Timers) List() []Timer {
	t.mu.Lock()
	now := t.now()
	out := make([]Timer, 0, len(t.entries))
	for _, e := range t.entries {
		snap := e.timer
		if snap.Active {
			snap.Left = max(0, snap.Deadline.Sub(now))
		}
		out = append(out, snap)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Left != out[j].Left {
			return out[i].Left < out[j].Left
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Apply mirrors one hub timer event.
func (t *Timers) Apply(ev *protocol.VoiceAssistantTimerEventResponse) {
	if ev.TimerID == "" {
		log.Warn().
			Str("component", "voice").
			Uint32("event", ev.EventType).
			Msg("timer event without id ignored")
		return
	}
	total := time.Duration(ev.TotalSeconds) * time.Second
	left := time.Duration(ev.SecondsLeft) * time.Second
	switch ev.EventType {
	case schema.TimerEventStarted:
		t.Start(ev.TimerID, ev.Name, total, left, ev.IsActive)
	case schema.TimerEventUpdated:
		if err := t.Update(ev.TimerID, left, ev.IsActive); err != nil {
			t.Start(ev.TimerID, ev.Name, total, left, ev.IsActive)
		}
	case schema.TimerEventCancelled:
		t.Cancel(ev.TimerID)
	case schema.TimerEventFinished:
		t.Finish(ev.TimerID)
	default:
		log.Warn().
			Str("component", "voice").
			Uint32("event", ev.EventType).
			Msg("unknown timer event")
	}
}

// Close stops all countdowns without firing.
func (t *Timers) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		if e.stop != nil {
			e.stop.Stop()
		}
		delete(t.entries, id)
	}
}

// arm must be called with t.mu held.
func (t *Timers) arm(e *timerEntry, left time.Duration, active bool) {
	t.gen++
	gen := t.gen
	e.gen = gen
	e.stop = nil
	e.timer.Left = left
	e.timer.Active = active
	e.timer.Deadline = time.Time{}
	if !active {
		return
	}
	e.timer.Deadline = t.now().Add(left)
	id := e.timer.ID
	e.stop = time.AfterFunc(left, func() { t.expire(id, gen) })
}

func (t *Timers) expire(id string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	t.mu.Unlock()

	snap := e.timer
	snap.Left = 0
	snap.Active = false
	t.fire(snap)
}

func (t *Timers) fire(snap Timer) {
	log.Info().
		Str("component", "voice").
		Str("timer", snap.ID).
		Str("name", snap.Name).
		Msg("timer finished")
	t.onFire(snap)
}
