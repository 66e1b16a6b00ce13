package postgres

import (
	"context"
	"fmt"
	"time"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// LearnerRunStore implements storage.LearnerRunStore using PostgreSQL.
type LearnerRunStore struct {
	pool *Pool
}

// NewLearnerRunStore creates a new LearnerRunStore.
func NewLearnerRunStore(pool *Pool) *LearnerRunStore {
	return &LearnerRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LearnerRunStore = (*LearnerRunStore)(nil)

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *LearnerRunStore) Insert(ctx context.Context, r *domain.LearnerRun) error {
	if r == nil || r.RunID == "" || r.Learner == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO learner_runs (
			run_id, learner, status, error,
			window_start, window_end,
			trades, dropped, changes, persisted,
			started_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.Learner, string(r.Status), r.Error,
		r.WindowStart.UTC(), r.WindowEnd.UTC(),
		r.Trades, r.Dropped, r.Changes, r.Persisted,
		r.StartedAt.UTC(), r.Duration.Milliseconds(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert learner run: %w", err)
	}
	return nil
}

// GetByLearner retrieves runs of a learner ordered by started_at ASC.
func (s *LearnerRunStore) GetByLearner(ctx context.Context, learner string) ([]*domain.LearnerRun, error) {
	query := `
		SELECT
			run_id, learner, status, error,
			window_start, window_end,
			trades, dropped, changes, persisted,
			started_at, duration_ms
		FROM learner_runs
		WHERE learner = $1
		ORDER BY started_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, learner)
	if err != nil {
		return nil, fmt.Errorf("query learner runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.LearnerRun
	for rows.Next() {
		var (
			r          domain.LearnerRun
			status     string
			durationMs int64
		)
		err := rows.Scan(
			&r.RunID, &r.Learner, &status, &r.Error,
			&r.WindowStart, &r.WindowEnd,
			&r.Trades, &r.Dropped, &r.Changes, &r.Persisted,
			&r.StartedAt, &durationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan learner run row: %w", err)
		}
		r.Status = domain.LearnerStatus(status)
		r.WindowStart = r.WindowStart.UTC()
		r.WindowEnd = r.WindowEnd.UTC()
		r.StartedAt = r.StartedAt.UTC()
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learner run rows: %w", err)
	}

	return runs, nil
}
