package learning

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// DefaultLookback is the trade window of a nightly run.
const DefaultLookback = 7 * 24 * time.Hour

// Window selects the trades a run learns from.
type Window struct {
	Lookback  time.Duration // trades closed within [now-Lookback, now]
	MaxTrades int           // keep only the most recent N trades, 0 for all
}

// Bounds returns the window edges relative to now.
func (w Window) Bounds(now time.Time) (time.Time, time.Time) {
	lookback := w.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return now.Add(-lookback), now
}

// LoadRecentTrades reads closed trades within the window, ordered by close time.
//
// A missing, empty or unreadable store is a normal outcome: the error is
// logged and an empty slice is returned. Only context cancellation is propagated.
func LoadRecentTrades(ctx context.Context, store storage.TradeStore, now time.Time, w Window) ([]*domain.TradeRecord, error) {
	start, end := w.Bounds(now)

	trades, err := store.GetClosedBetween(ctx, start, end)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logger := log.Warn().Str("component", "loader").Err(err)
		if errors.Is(err, storage.ErrNotFound) {
			logger = log.Info().Str("component", "loader").Err(err)
		}
		logger.Msg("no trade history available")
		return nil, nil
	}

	if w.MaxTrades > 0 && len(trades) > w.MaxTrades {
		trades = trades[len(trades)-w.MaxTrades:]
	}
	return trades, nil
}
