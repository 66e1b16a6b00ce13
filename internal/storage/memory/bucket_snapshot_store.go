package memory

import (
	"context"
	"sort"
	"sync"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// BucketSnapshotStore is an in-memory implementation of storage.BucketSnapshotStore.
type BucketSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BucketSnapshotRow // keyed by run_id|state
}

// NewBucketSnapshotStore creates a new in-memory bucket snapshot store.
func NewBucketSnapshotStore() *BucketSnapshotStore {
	return &BucketSnapshotStore{
		data: make(map[string]*domain.BucketSnapshotRow),
	}
}

// snapshotKey generates a unique key for a snapshot row.
func snapshotKey(runID string, state domain.GateState) string {
	return runID + "|" + string(state)
}

// InsertBulk adds all rows atomically. Fails entire batch on any duplicate.
func (s *BucketSnapshotStore) InsertBulk(_ context.Context, rows []*domain.BucketSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RunID == "" || r.State == "" {
			return storage.ErrInvalidInput
		}
		key := snapshotKey(r.RunID, r.State)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rows {
		rowCopy := *r
		s.data[snapshotKey(r.RunID, r.State)] = &rowCopy
	}

	return nil
}

// GetByLearner retrieves snapshots of a learner ordered by recorded_at ASC, state ASC.
func (s *BucketSnapshotStore) GetByLearner(_ context.Context, learner string) ([]*domain.BucketSnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BucketSnapshotRow
	for _, r := range s.data {
		if r.Learner == learner {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].RecordedAt.Equal(result[j].RecordedAt) {
			return result[i].RecordedAt.Before(result[j].RecordedAt)
		}
		return result[i].State < result[j].State
	})

	return result, nil
}

var _ storage.BucketSnapshotStore = (*BucketSnapshotStore)(nil)
