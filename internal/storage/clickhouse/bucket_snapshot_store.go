package clickhouse

import (
	"context"
	"fmt"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// BucketSnapshotStore implements storage.BucketSnapshotStore using ClickHouse.
type BucketSnapshotStore struct {
	conn *Conn
}

// NewBucketSnapshotStore creates a new BucketSnapshotStore.
func NewBucketSnapshotStore(conn *Conn) *BucketSnapshotStore {
	return &BucketSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BucketSnapshotStore = (*BucketSnapshotStore)(nil)

// InsertBulk adds all buckets of a run. Fails entire batch on duplicate (run_id, state),
// inside the batch or against stored rows.
func (s *BucketSnapshotStore) InsertBulk(ctx context.Context, rows []*domain.BucketSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(rows))
	runIDs := make(map[string]struct{})
	for _, r := range rows {
		if r == nil || r.RunID == "" || r.State == "" {
			return storage.ErrInvalidInput
		}
		key := r.RunID + "|" + string(r.State)
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
		runIDs[r.RunID] = struct{}{}
	}

	// MergeTree does not enforce uniqueness; check stored rows explicitly
	for runID := range runIDs {
		exists, err := s.exists(ctx, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bucket_snapshots (
			run_id, learner, state, status,
			count, total_pnl, avg_pnl, avg_roi_pct, win_rate,
			previous, committed, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.RunID, r.Learner, string(r.State), string(r.Status),
			uint32(r.Count), r.TotalPnL, r.AvgPnL, r.AvgROIPct, r.WinRate,
			r.Previous, r.Committed, r.RecordedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByLearner retrieves snapshots of a learner ordered by recorded_at ASC, state ASC.
func (s *BucketSnapshotStore) GetByLearner(ctx context.Context, learner string) ([]*domain.BucketSnapshotRow, error) {
	query := `
		SELECT
			run_id, learner, state, status,
			count, total_pnl, avg_pnl, avg_roi_pct, win_rate,
			previous, committed, recorded_at
		FROM bucket_snapshots FINAL
		WHERE learner = ?
		ORDER BY recorded_at ASC, state ASC
	`

	rows, err := s.conn.Query(ctx, query, learner)
	if err != nil {
		return nil, fmt.Errorf("query by learner: %w", err)
	}
	defer rows.Close()

	var result []*domain.BucketSnapshotRow
	for rows.Next() {
		var (
			r             domain.BucketSnapshotRow
			state, status string
			count         uint32
		)
		err := rows.Scan(
			&r.RunID, &r.Learner, &state, &status,
			&count, &r.TotalPnL, &r.AvgPnL, &r.AvgROIPct, &r.WinRate,
			&r.Previous, &r.Committed, &r.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bucket snapshot: %w", err)
		}
		r.State = domain.GateState(state)
		r.Status = domain.BucketStatus(status)
		r.Count = int(count)
		r.RecordedAt = r.RecordedAt.UTC()
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket snapshots: %w", err)
	}

	return result, nil
}

func (s *BucketSnapshotStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM bucket_snapshots WHERE run_id = ?`, runID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
