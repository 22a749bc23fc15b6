// Package kb keeps a bounded in-memory record of recent simulation runs.
package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

var (
	// ErrRunNotFound is returned when no record exists for an ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a record is added twice.
	ErrRunExists = errors.New("run already recorded")
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 256

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventRunRecorded EventType = iota
	EventRunEvicted
)

// Event is emitted to subscribers after each change. Size is the number of
// records retained once the change is applied.
type Event struct {
	Type EventType
	Run  model.RunRecord
	Size int
}

// RunRegistry is a thread-safe store of the most recent run records. When
// full, adding a record evicts the oldest one.
type RunRegistry struct {
	mu sync.RWMutex

	capacity int
	runs     map[string]*model.RunRecord
	order    []string // oldest first

	subs   map[int]func(Event)
	nextID int
}

// NewRunRegistry constructs an empty registry.
func NewRunRegistry(capacity int) *RunRegistry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RunRegistry{
		capacity: capacity,
		runs:     make(map[string]*model.RunRecord),
		subs:     make(map[int]func(Event)),
	}
}

// Add stores a copy of rec.
func (r *RunRegistry) Add(rec model.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record without ID")
	}

	r.mu.Lock()
	if _, exists := r.runs[rec.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunExists, rec.ID)
	}

	var events []Event
	for len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		evicted := *r.runs[oldest]
		delete(r.runs, oldest)
		events = append(events, Event{Type: EventRunEvicted, Run: evicted, Size: len(r.order)})
	}

	stored := rec
	r.runs[rec.ID] = &stored
	r.order = append(r.order, rec.ID)
	events = append(events, Event{Type: EventRunRecorded, Run: rec, Size: len(r.order)})

	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, ev := range events {
		for _, sub := range subs {
			sub(ev)
		}
	}
	return nil
}

// Get returns a copy of the record with the given ID.
func (r *RunRegistry) Get(id string) (model.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return *rec, nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (r *RunRegistry) List(limit int) []model.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.order)
	if limit > 0 && limit < n {
		n = limit
	}
	res := make([]model.RunRecord, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(res) < n; i-- {
		res = append(res, *r.runs[r.order[i]])
	}
	return res
}

// Len returns the number of retained records.
func (r *RunRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Capacity returns the maximum number of retained records.
func (r *RunRegistry) Capacity() int {
	return r.capacity
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function that is safe to call more than once.
func (r *RunRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}
