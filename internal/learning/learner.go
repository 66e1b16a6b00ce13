package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"gate-learner/internal/classify"
	"gate-learner/internal/domain"
	"gate-learner/internal/metrics"
	"gate-learner/internal/storage"
)

// Options configures a Learner.
type Options struct {
	Dimension *classify.Dimension
	Trades    storage.TradeStore
	State     storage.StateStore
	Locker    storage.Locker // optional, held from state load to save when Apply is set
	Window    Window
	Alpha     float64 // 0 means DefaultAlpha
	Apply     bool    // persist committed changes; false is a dry run
	Clock     func() time.Time
}

// Learner runs the load, classify, aggregate, update, persist loop for one dimension.
type Learner struct {
	opts Options
}

// New creates a learner. Dimension, Trades and State are required.
func New(opts Options) (*Learner, error) {
	if opts.Dimension == nil || opts.Trades == nil || opts.State == nil {
		return nil, fmt.Errorf("learner requires dimension, trade store and state store: %w", storage.ErrInvalidInput)
	}
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = DefaultAlpha
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Learner{opts: opts}, nil
}

// Name returns the learner name.
func (l *Learner) Name() string {
	return l.opts.Dimension.Name
}

// Dimension returns the learner's dimension.
func (l *Learner) Dimension() *classify.Dimension {
	return l.opts.Dimension
}

// Window returns the trade window edges for the learner's clock.
func (l *Learner) Window() (time.Time, time.Time) {
	return l.opts.Window.Bounds(l.opts.Clock())
}

// Run executes one learning pass.
//
// Returns a no_data result when the window holds no trades and a no_changes
// result when no bucket moved past the dead-band; neither writes state.
// Errors are returned as is; the batch runner turns them into error results.
func (l *Learner) Run(ctx context.Context) (*domain.LearnerResult, error) {
	dim := l.opts.Dimension
	now := l.opts.Clock().UTC()
	logger := log.With().Str("component", "learner").Str("learner", dim.Name).Logger()

	trades, err := LoadRecentTrades(ctx, l.opts.Trades, now, l.opts.Window)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		logger.Info().Msg("no trades in window")
		return &domain.LearnerResult{Learner: dim.Name, Status: domain.LearnerNoData}, nil
	}

	if l.opts.Apply && l.opts.Locker != nil {
		unlock, err := l.opts.Locker.Lock(ctx, dim.Name)
		if err != nil {
			return nil, fmt.Errorf("acquire state lock: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Warn().Err(err).Msg("release state lock")
			}
		}()
	}

	current := LoadState(ctx, l.opts.State, dim.Name, dim.Defaults)

	stats, dropped, err := metrics.Aggregate(trades, dim.Bind(trades))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", dim.Name, err)
	}
	if dropped > 0 {
		logger.Info().Int("dropped", dropped).Int("trades", len(trades)).Msg("trades without a classifiable state")
	}

	result := &domain.LearnerResult{
		Learner: dim.Name,
		Trades:  len(trades),
		Dropped: dropped,
	}

	next := current.Clone()
	for _, state := range dim.States {
		d := UpdateMultiplier(current.Multipliers[state], stats[state], dim.ClampFor(state), l.opts.Alpha)
		d.State = state
		result.Decisions = append(result.Decisions, d)

		next.Multipliers[state] = d.Committed
		// Stats describe this window only; an empty bucket has none.
		delete(next.Stats, state)
		if d.Stats.Count > 0 {
			next.Stats[state] = domain.BucketSnapshot{
				Count:    d.Stats.Count,
				TotalPnL: d.Stats.TotalPnL,
				AvgPnL:   d.Stats.AvgPnL,
				AvgROI:   d.Stats.AvgROIPct,
				WinRate:  d.Stats.WinRate,
				Status:   d.Status,
			}
		}

		logger.Debug().
			Str("state", string(state)).
			Str("status", string(d.Status)).
			Int("count", d.Stats.Count).
			Float64("previous", d.Previous).
			Float64("proposed", d.Proposed).
			Msg("bucket decision")
	}

	if result.Changes() == 0 {
		result.Status = domain.LearnerNoChanges
		result.Table = current
		return result, nil
	}

	next.Version = domain.MultiplierTableVersion
	next.UpdatedAt = now
	next.TradesAnalyzed = len(trades)
	next.Dropped = dropped
	next.AppendHistory(domain.HistoryEntry{
		At:          now,
		Trades:      len(trades),
		Multipliers: committed(result.Decisions),
	})

	result.Status = domain.LearnerUpdated
	result.Table = next

	if !l.opts.Apply {
		logger.Info().Int("changes", result.Changes()).Msg("dry run, state not written")
		return result, nil
	}

	if err := SaveState(ctx, l.opts.State, dim.Name, next); err != nil {
		return nil, fmt.Errorf("save %s state: %w", dim.Name, err)
	}
	result.Persisted = true
	logger.Info().Int("changes", result.Changes()).Int("trades", len(trades)).Msg("learned state saved")

	return result, nil
}

// committed returns the multipliers of updated buckets.
func committed(decisions []domain.BucketDecision) map[domain.GateState]float64 {
	m := make(map[domain.GateState]float64)
	for _, d := range decisions {
		if d.Status == domain.BucketUpdated {
			m[d.State] = d.Committed
		}
	}
	return m
}

// IsLocked reports whether err means another run holds the learner's state.
func IsLocked(err error) bool {
	return errors.Is(err, storage.ErrLocked)
}
