package storage

import (
	"context"
	"time"

	"gate-learner/internal/domain"
)

// TradeStore provides read access to closed trade records.
type TradeStore interface {
	// GetClosedBetween retrieves trades whose close time is within [start, end] (inclusive),
	// ordered by close time ASC, trade id ASC.
	GetClosedBetween(ctx context.Context, start, end time.Time) ([]*domain.TradeRecord, error)
}

// StateStore provides access to persisted multiplier tables, one per learner.
type StateStore interface {
	// Load retrieves the table of a learner. Returns ErrNotFound if it was never saved
	// and ErrCorrupt if the persisted form cannot be decoded.
	Load(ctx context.Context, learner string) (*domain.MultiplierTable, error)

	// Save atomically replaces the table of a learner.
	Save(ctx context.Context, learner string, t *domain.MultiplierTable) error
}

// Locker guards a learner's state against overlapping runs.
type Locker interface {
	// Lock acquires the learner lock without blocking. Returns ErrLocked if it is held.
	Lock(ctx context.Context, learner string) (unlock func() error, err error)
}

// Publisher pushes committed tables to consumers such as the live bot.
type Publisher interface {
	Publish(ctx context.Context, learner string, t *domain.MultiplierTable) error
}

// LearnerRunStore provides access to learner_runs history storage.
type LearnerRunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.LearnerRun) error

	// GetByLearner retrieves runs of a learner ordered by started_at ASC.
	GetByLearner(ctx context.Context, learner string) ([]*domain.LearnerRun, error)
}

// BucketSnapshotStore provides access to bucket_snapshots analytics storage.
type BucketSnapshotStore interface {
	// InsertBulk adds all buckets of a run. Fails entire batch on duplicate (run_id, state).
	InsertBulk(ctx context.Context, rows []*domain.BucketSnapshotRow) error

	// GetByLearner retrieves snapshots of a learner ordered by recorded_at ASC, state ASC.
	GetByLearner(ctx context.Context, learner string) ([]*domain.BucketSnapshotRow, error)
}

// DecisionEventSource provides read access to auxiliary JSONL decision streams.
type DecisionEventSource interface {
	// ReadAll returns all decodable events and the number of skipped lines.
	ReadAll(ctx context.Context) ([]*domain.DecisionEvent, int, error)
}
