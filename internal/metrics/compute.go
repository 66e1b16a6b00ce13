package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"gate-learner/internal/domain"
)

// SliceStats is a descriptive summary of the trades sharing one key.
type SliceStats struct {
	Key                  string
	Trades               int
	Wins                 int
	Losses               int
	WinRate              float64
	TotalPnL             float64
	Expectancy           float64 // mean pnl per trade
	AvgWin               float64
	AvgLoss              float64 // <= 0
	RiskReward           float64 // AvgWin / |AvgLoss|, 0 when there are no losses
	ProfitFactor         float64 // gross wins / |gross losses|, 0 when there are no losses
	MedianPnL            float64
	MaxDrawdown          float64
	MaxConsecutiveLosses int
}

// KeyFunc returns the slice key of a trade, false to leave it out.
type KeyFunc func(t *domain.TradeRecord) (string, bool)

// Slice groups trades by key and summarizes each group, ordered by key.
// Trades with a non-finite pnl are skipped and counted.
func Slice(trades []*domain.TradeRecord, key KeyFunc) ([]SliceStats, int) {
	groups := make(map[string][]*domain.TradeRecord)
	skipped := 0
	for _, t := range trades {
		if math.IsNaN(t.PnL) || math.IsInf(t.PnL, 0) {
			skipped++
			continue
		}
		k, ok := key(t)
		if !ok {
			skipped++
			continue
		}
		groups[k] = append(groups[k], t)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]SliceStats, 0, len(keys))
	for _, k := range keys {
		s := computeFromTrades(groups[k])
		s.Key = k
		result = append(result, s)
	}
	return result, skipped
}

// computeFromTrades summarizes trades. Order-dependent metrics use
// closed_at ASC, trade_id ASC.
func computeFromTrades(trades []*domain.TradeRecord) SliceStats {
	n := len(trades)
	if n == 0 {
		return SliceStats{}
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ClosedAt.Equal(sorted[j].ClosedAt) {
			return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	var (
		total, winSum, lossSum decimal.Decimal
		wins, losses           int
	)
	outcomes := make([]float64, n)
	for i, t := range sorted {
		p := decimal.NewFromFloat(t.PnL)
		total = total.Add(p)
		if t.Win() {
			wins++
			winSum = winSum.Add(p)
		} else {
			losses++
			lossSum = lossSum.Add(p)
		}
		outcomes[i] = t.PnL
	}

	s := SliceStats{
		Trades:               n,
		Wins:                 wins,
		Losses:               losses,
		WinRate:              computeWinRate(wins, n),
		TotalPnL:             total.InexactFloat64(),
		Expectancy:           total.Div(decimal.NewFromInt(int64(n))).InexactFloat64(),
		MaxDrawdown:          computeMaxDrawdown(outcomes),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(outcomes),
	}
	if wins > 0 {
		s.AvgWin = winSum.Div(decimal.NewFromInt(int64(wins))).InexactFloat64()
	}
	if losses > 0 {
		s.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(losses))).InexactFloat64()
	}
	if s.AvgLoss < 0 {
		s.RiskReward = s.AvgWin / math.Abs(s.AvgLoss)
		s.ProfitFactor = winSum.Div(lossSum.Abs()).InexactFloat64()
	}

	sortedOutcomes := make([]float64, n)
	copy(sortedOutcomes, outcomes)
	sort.Float64s(sortedOutcomes)
	s.MedianPnL = computePercentile(sortedOutcomes, 0.50)

	return s
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative pnl.
// Outcomes must be in chronological order.
func computeMaxDrawdown(outcomes []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, o := range outcomes {
		cumulative += o
		if cumulative > peak {
			peak = cumulative
		}
		if drawdown := peak - cumulative; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of pnl <= 0.
func computeMaxConsecutiveLosses(outcomes []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, o := range outcomes {
		if o <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
