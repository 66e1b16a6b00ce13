package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"gate-learner/internal/domain"
)

// ErrMalformedTrade is returned when a classified trade carries a non-finite pnl.
var ErrMalformedTrade = errors.New("malformed trade record")

// Classifier assigns a gate state to a trade. Implemented by classify.Dimension.
type Classifier interface {
	Classify(t *domain.TradeRecord) (domain.GateState, bool)
}

// bucket accumulates one gate state. P&L and ROI sums are exact decimals.
type bucket struct {
	count  int
	wins   int
	pnlSum decimal.Decimal
	roiSum decimal.Decimal
}

// Aggregate groups trades by classified state and computes per-bucket stats.
// Trades the classifier excludes are counted in dropped.
// Returns ErrMalformedTrade if a classified trade has a NaN or infinite pnl.
func Aggregate(trades []*domain.TradeRecord, c Classifier) (map[domain.GateState]domain.BucketStats, int, error) {
	buckets := make(map[domain.GateState]*bucket)
	dropped := 0

	for _, t := range trades {
		state, ok := c.Classify(t)
		if !ok {
			dropped++
			continue
		}
		if math.IsNaN(t.PnL) || math.IsInf(t.PnL, 0) {
			return nil, dropped, fmt.Errorf("trade %s: non-numeric pnl: %w", t.TradeID, ErrMalformedTrade)
		}

		b, exists := buckets[state]
		if !exists {
			b = &bucket{}
			buckets[state] = b
		}
		b.count++
		if t.Win() {
			b.wins++
		}
		b.pnlSum = b.pnlSum.Add(decimal.NewFromFloat(t.PnL))
		b.roiSum = b.roiSum.Add(decimal.NewFromFloat(t.ROIPct()))
	}

	stats := make(map[domain.GateState]domain.BucketStats, len(buckets))
	for state, b := range buckets {
		stats[state] = b.stats()
	}
	return stats, dropped, nil
}

func (b *bucket) stats() domain.BucketStats {
	n := decimal.NewFromInt(int64(b.count))
	return domain.BucketStats{
		Count:     b.count,
		Wins:      b.wins,
		TotalPnL:  b.pnlSum.InexactFloat64(),
		AvgPnL:    b.pnlSum.Div(n).InexactFloat64(),
		AvgROIPct: b.roiSum.Div(n).InexactFloat64(),
		WinRate:   computeWinRate(b.wins, b.count),
	}
}
