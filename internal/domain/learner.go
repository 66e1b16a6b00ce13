package domain

import "time"

// LearnerStatus is the outcome of one learner run.
type LearnerStatus string

const (
	LearnerUpdated   LearnerStatus = "updated"
	LearnerNoChanges LearnerStatus = "no_changes"
	LearnerNoData    LearnerStatus = "no_data"
	LearnerError     LearnerStatus = "error"
)

// BucketStatus is the outcome of the update procedure for one bucket.
type BucketStatus string

const (
	BucketUpdated          BucketStatus = "updated"
	BucketNoChanges        BucketStatus = "no_changes"
	BucketInsufficientData BucketStatus = "insufficient_data"
)

// BucketDecision is what the updater decided for one bucket.
type BucketDecision struct {
	State     GateState
	Status    BucketStatus
	Stats     BucketStats
	Previous  float64 // multiplier before the run
	Raw       float64 // heuristic proposal before smoothing
	Proposed  float64 // smoothed and clamped value
	Committed float64 // value kept in the table (Previous unless Status == BucketUpdated)
}

// LearnerResult is the tagged result of one learner run.
type LearnerResult struct {
	Learner   string
	Status    LearnerStatus
	Error     string
	Trades    int
	Dropped   int
	Decisions []BucketDecision
	Table     *MultiplierTable // resulting table, nil on no_data and error
	Persisted bool
}

// Changes counts committed bucket updates.
func (r *LearnerResult) Changes() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Status == BucketUpdated {
			n++
		}
	}
	return n
}

// LearnerRun is the history record of one learner run.
type LearnerRun struct {
	RunID       string // deterministic hash, see idhash.ComputeRunID
	Learner     string
	Status      LearnerStatus
	Error       string
	WindowStart time.Time
	WindowEnd   time.Time
	Trades      int
	Dropped     int
	Changes     int
	Persisted   bool
	StartedAt   time.Time
	Duration    time.Duration
}

// BucketSnapshotRow is one bucket of one run, flattened for analytics storage.
type BucketSnapshotRow struct {
	RunID      string
	Learner    string
	State      GateState
	Status     BucketStatus
	Count      int
	TotalPnL   float64
	AvgPnL     float64
	AvgROIPct  float64
	WinRate    float64
	Previous   float64
	Committed  float64
	RecordedAt time.Time
}
