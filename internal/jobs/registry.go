package jobs

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrDuplicateID = errors.New("job id already registered")
	ErrEmptyID     = errors.New("job id is empty")
)

// Observer is notified after every create and update, in the writer's
// goroutine. Per-job calls arrive in the order the states were written.
type Observer func(id string, state State)

type entry struct {
	state atomic.Pointer[State]
}

// Registry maps job ids to their latest State. Reads never block: each
// entry publishes an immutable snapshot through an atomic pointer.
type Registry struct {
	entries  sync.Map
	observer Observer
}

// NewRegistry returns an empty registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{observer: observer}
}

// Create registers id in the starting state. The entry is visible to Get as
// soon as Create returns.
func (r *Registry) Create(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	e := &entry{}
	state := initialState()
	e.state.Store(&state)
	if _, loaded := r.entries.LoadOrStore(id, e); loaded {
		return ErrDuplicateID
	}
	r.notify(id, state)
	return nil
}

// Update replaces the state of id. It returns false when id is unknown or
// the job already reached a terminal state.
func (r *Registry) Update(id string, state State) bool {
	v, ok := r.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	for {
		current := e.state.Load()
		if current.Status.IsTerminal() {
			return false
		}
		next := state
		if e.state.CompareAndSwap(current, &next) {
			r.notify(id, next)
			return true
		}
	}
}

// Get returns a snapshot of id's state.
func (r *Registry) Get(id string) (State, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return State{}, false
	}
	return *v.(*entry).state.Load(), true
}

// ActiveCount returns the number of jobs not yet in a terminal state.
func (r *Registry) ActiveCount() int {
	count := 0
	r.entries.Range(func(_, v any) bool {
		if v.(*entry).state.Load().Status.IsActive() {
			count++
		}
		return true
	})
	return count
}

// Snapshot copies every known state.
func (r *Registry) Snapshot() map[string]State {
	out := make(map[string]State)
	r.entries.Range(func(k, v any) bool {
		out[k.(string)] = *v.(*entry).state.Load()
		return true
	})
	return out
}

func (r *Registry) notify(id string, state State) {
	if r.observer != nil {
		r.observer(id, state)
	}
}
