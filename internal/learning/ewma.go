// Package learning runs the per-learner feedback loop: load recent trades,
// aggregate them per gate state and nudge each state's sizing multiplier.
package learning

import (
	"math"

	"gate-learner/internal/domain"
)

// Update procedure constants. Changing any of them changes convergence speed.
const (
	DefaultAlpha = 0.3  // EWMA weight of the new observation
	MinAdjust    = 0.05 // lower bound of a single heuristic step
	MaxAdjust    = 0.15 // upper bound of a single heuristic step
	DeadBand     = 0.02 // minimum |delta| that is committed
)

// Heuristic thresholds on bucket performance.
const (
	winRateUp   = 0.5
	winRateDown = 0.4
	roiScale    = 10.0
)

// multiplierPrecision is the number of decimals kept in committed multipliers.
const multiplierPrecision = 1e4

// UpdateMultiplier decides the next multiplier of one bucket.
//
// Buckets below domain.MinTradesForLearning keep current untouched. Otherwise a
// directional step proportional to avg ROI (bounded to [MinAdjust, MaxAdjust])
// is blended with current by alpha, clamped, and committed only when it moves
// the value by more than DeadBand.
func UpdateMultiplier(current float64, stats domain.BucketStats, clamp domain.Clamp, alpha float64) domain.BucketDecision {
	d := domain.BucketDecision{
		Stats:     stats,
		Previous:  current,
		Raw:       current,
		Proposed:  current,
		Committed: current,
	}

	if !stats.Eligible() {
		d.Status = domain.BucketInsufficientData
		return d
	}

	raw := current
	switch {
	case stats.AvgROIPct > 0 && stats.WinRate > winRateUp:
		raw = current * (1 + step(stats.AvgROIPct))
	case stats.AvgROIPct < 0 || stats.WinRate < winRateDown:
		raw = current * (1 - step(stats.AvgROIPct))
	}
	d.Raw = raw

	smoothed := alpha*raw + (1-alpha)*current
	d.Proposed = clamp.Apply(smoothed)

	if math.Abs(d.Proposed-current) <= DeadBand {
		d.Status = domain.BucketNoChanges
		return d
	}

	d.Status = domain.BucketUpdated
	d.Committed = clamp.Apply(round(d.Proposed))
	return d
}

func step(avgROIPct float64) float64 {
	return domain.Clamp{Min: MinAdjust, Max: MaxAdjust}.Apply(math.Abs(avgROIPct) / roiScale)
}

func round(v float64) float64 {
	return math.Round(v*multiplierPrecision) / multiplierPrecision
}
