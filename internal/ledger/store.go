// Package ledger holds the in-memory list of canonical transactions and the
// status of the last sync with the remote source.
package ledger

import (
	"sync"

	"finanzas/internal/core"
)

const (
	Idle    State = "idle"
	Loading State = "loading"
	Error   State = "error"
)

type (
	State string

	// Status is the last known sync status. Message is only set in the Error
	// state.
	Status struct {
		State   State
		Message string
	}

	// Observer is called with a snapshot after every mutation.
	Observer func(items []core.Transaction)
)

// Store is safe for concurrent use. Mutations replace or extend the held
// slice under the write lock, so readers always see a complete sequence.
type Store struct {
	mu        sync.RWMutex
	items     []core.Transaction
	status    Status
	revision  uint64
	observers map[int]Observer
	nextObs   int
}

func New() *Store {
	return &Store{
		status:    Status{State: Idle},
		observers: map[int]Observer{},
	}
}

// ReplaceAll swaps the held sequence for a copy of items.
func (s *Store) ReplaceAll(items []core.Transaction) {
	cp := append([]core.Transaction(nil), items...)
	s.mu.Lock()
	s.items = cp
	s.revision++
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()
	notify(obs, snap)
}

// Append adds item at the front of the sequence, newest first. Existing items
// keep their relative order; nothing is re-sorted.
func (s *Store) Append(item core.Transaction) {
	s.mu.Lock()
	next := make([]core.Transaction, 0, len(s.items)+1)
	next = append(next, item)
	next = append(next, s.items...)
	s.items = next
	s.revision++
	snap, obs := s.snapshotLocked()
	s.mu.Unlock()
	notify(obs, snap)
}

// Current returns a copy of the held sequence in insertion order. Callers
// must not assume it is sorted by date.
func (s *Store) Current() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.items...)
}

// Snapshot returns a copy of the held sequence together with the revision it
// belongs to.
func (s *Store) Snapshot() ([]core.Transaction, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.items...), s.revision
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Revision increases by one on every ReplaceAll or Append.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) SetStatus(st Status) {
	if st.State != Error {
		st.Message = ""
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Subscribe registers fn to run after each mutation. Observers run on the
// mutating goroutine, outside the store lock. The returned func removes fn.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) snapshotLocked() ([]core.Transaction, []Observer) {
	if len(s.observers) == 0 {
		return nil, nil
	}
	obs := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			obs = append(obs, fn)
		}
	}
	return append([]core.Transaction(nil), s.items...), obs
}

func notify(obs []Observer, snap []core.Transaction) {
	for _, fn := range obs {
		fn(snap)
	}
}
