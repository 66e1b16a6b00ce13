package memory

import (
	"context"
	"sync"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore and storage.Locker.
type StateStore struct {
	mu     sync.Mutex
	data   map[string]*domain.MultiplierTable
	locks  map[string]bool
	saves  map[string]int
	failOn map[string]error
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		data:   make(map[string]*domain.MultiplierTable),
		locks:  make(map[string]bool),
		saves:  make(map[string]int),
		failOn: make(map[string]error),
	}
}

// Load retrieves the table of a learner. Returns ErrNotFound if it was never saved.
func (s *StateStore) Load(_ context.Context, learner string) (*domain.MultiplierTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failOn[learner]; ok {
		return nil, err
	}
	t, ok := s.data[learner]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// Save replaces the table of a learner.
func (s *StateStore) Save(_ context.Context, learner string, t *domain.MultiplierTable) error {
	if learner == "" || t == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[learner] = t.Clone()
	s.saves[learner]++
	return nil
}

// Lock acquires the learner lock. Returns ErrLocked if it is held.
func (s *StateStore) Lock(_ context.Context, learner string) (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks[learner] {
		return nil, storage.ErrLocked
	}
	s.locks[learner] = true
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locks, learner)
		return nil
	}, nil
}

// SaveCount returns how many times a learner's table was saved.
func (s *StateStore) SaveCount(learner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[learner]
}

// FailLoad makes subsequent Load calls for a learner return err (e.g. storage.ErrCorrupt).
func (s *StateStore) FailLoad(learner string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[learner] = err
}

var (
	_ storage.StateStore = (*StateStore)(nil)
	_ storage.Locker     = (*StateStore)(nil)
)
