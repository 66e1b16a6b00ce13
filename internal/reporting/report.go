package reporting

import (
	"time"

	"gate-learner/internal/domain"
	"gate-learner/internal/metrics"
)

// RunReport summarizes one batch of learner runs.
type RunReport struct {
	GeneratedAt time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Apply       bool // false for dry runs
	Results     []*domain.LearnerResult
	Errors      []string // learner and mirror errors, in run order
}

// TradeReport contains descriptive slices of closed trades.
type TradeReport struct {
	GeneratedAt time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	By          string
	Total       metrics.SliceStats
	Slices      []metrics.SliceStats // ordered by key
	Skipped     int                  // non-finite pnl or no key
}

// DecisionReport contains slices of a JSONL decision stream.
type DecisionReport struct {
	GeneratedAt time.Time
	Source      string
	By          string
	Events      int
	Skipped     int // undecodable lines
	Slices      []DecisionSlice
}

// DecisionSlice summarizes the decisions sharing one key.
type DecisionSlice struct {
	Key          string
	Events       int
	Executed     int
	WithOutcome  int
	Wins         int
	WinRate      float64 // Wins / WithOutcome, 0 when no outcome is known
	AvgOutcome   float64
	TotalOutcome float64
}
