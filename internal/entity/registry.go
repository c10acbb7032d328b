package entity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateID   = errors.New("entity: duplicate id")
	ErrUnknownEntity = errors.New("entity: unknown entity")
	ErrInvalidEntity = errors.New("entity: invalid entity")
	ErrSealed        = errors.New("entity: registry sealed")
	ErrStateless     = errors.New("entity: kind carries no state")
)

// Change is published after every successful Update.
type Change struct {
	Entity Entity
	Prior  Value
}

type record struct {
	mu     sync.Mutex
	entity Entity
}

// Registry stores entities in registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []*record
	byKey    map[uint32]*record
	byObject map[string]*record
	sealed   bool

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
	dropped atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:    make(map[uint32]*record),
		byObject: make(map[string]*record),
		subs:     make(map[int]chan Change),
	}
}

// Register adds an entity. A zero Key is derived from ObjectID; an empty
// ObjectID is derived from Name.
func (r *Registry) Register(e Entity) (Entity, error) {
	if !e.Kind.valid() {
		return Entity{}, fmt.Errorf("%w: kind %q", ErrInvalidEntity, e.Kind)
	}
	e.Name = strings.TrimSpace(e.Name)
	if e.ObjectID == "" {
		e.ObjectID = ObjectIDFor(e.Name)
	}
	if !isValidObjectID(e.ObjectID) {
		return Entity{}, fmt.Errorf("%w: object_id %q", ErrInvalidEntity, e.ObjectID)
	}
	if e.Name == "" {
		e.Name = e.ObjectID
	}
	if e.Key == 0 {
		e.Key = KeyFor(string(e.Kind) + "." + e.ObjectID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return Entity{}, ErrSealed
	}
	if _, ok := r.byKey[e.Key]; ok {
		return Entity{}, fmt.Errorf("%w: key %d", ErrDuplicateID, e.Key)
	}
	objKey := string(e.Kind) + "." + e.ObjectID
	if _, ok := r.byObject[objKey]; ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrDuplicateID, objKey)
	}
	rec := &record{entity: e}
	r.order = append(r.order, rec)
	r.byKey[e.Key] = rec
	r.byObject[objKey] = rec
	log.Debug().
		Str("component", "entity").
		Str("kind", string(e.Kind)).
		Str("object_id", e.ObjectID).
		Uint32("key", e.Key).
		Msg("registered")
	return e, nil
}

// Seal closes registration; later Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// List returns snapshots in registration order.
func (r *Registry) List() []Entity {
	r.mu.RLock()
	recs := make([]*record, len(r.order))
	copy(recs, r.order)
	r.mu.RUnlock()

	out := make([]Entity, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.entity)
		rec.mu.Unlock()
	}
	return out
}

func (r *Registry) Get(key uint32) (Entity, bool) {
	r.mu.RLock()
	rec, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return Entity{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.entity, true
}

// Lookup finds an entity by kind and object id.
func (r *Registry) Lookup(kind Kind, objectID string) (Entity, bool) {
	r.mu.RLock()
	rec, ok := r.byObject[string(kind)+"."+objectID]
	r.mu.RUnlock()
	if !ok {
		return Entity{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.entity, true
}

// Update replaces the current value and returns the prior one.
func (r *Registry) Update(key uint32, v Value) (Value, error) {
	r.mu.RLock()
	rec, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return Value{}, fmt.Errorf("%w: key %d", ErrUnknownEntity, key)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.entity.Kind.Stateful() {
		return Value{}, fmt.Errorf("%w: %s", ErrStateless, rec.entity.Kind)
	}
	prior := rec.entity.Value
	v.Valid = true
	rec.entity.Value = v
	r.publish(Change{Entity: rec.entity, Prior: prior})
	return prior, nil
}

// Subscribe returns a change feed. Slow subscribers lose changes rather
// than stalling updaters; Dropped counts the losses.
func (r *Registry) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Registry) publish(c Change) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
			r.dropped.Add(1)
			log.Warn().
				Str("component", "entity").
				Uint32("key", c.Entity.Key).
				Msg("change subscriber full; dropping update")
		}
	}
}
