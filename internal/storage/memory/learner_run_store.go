package memory

import (
	"context"
	"sort"
	"sync"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// LearnerRunStore is an in-memory implementation of storage.LearnerRunStore.
type LearnerRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LearnerRun // keyed by run_id
}

// NewLearnerRunStore creates a new in-memory learner run store.
func NewLearnerRunStore() *LearnerRunStore {
	return &LearnerRunStore{
		data: make(map[string]*domain.LearnerRun),
	}
}

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *LearnerRunStore) Insert(_ context.Context, r *domain.LearnerRun) error {
	if r == nil || r.RunID == "" || r.Learner == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *r
	s.data[r.RunID] = &runCopy
	return nil
}

// GetByLearner retrieves runs of a learner ordered by started_at ASC.
func (s *LearnerRunStore) GetByLearner(_ context.Context, learner string) ([]*domain.LearnerRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LearnerRun
	for _, r := range s.data {
		if r.Learner == learner {
			runCopy := *r
			result = append(result, &runCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.Before(result[j].StartedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

var _ storage.LearnerRunStore = (*LearnerRunStore)(nil)
