package domain

// MinTradesForLearning is the minimum bucket size allowed to move a multiplier.
const MinTradesForLearning = 5

// BucketStats is the per-state performance aggregate for one run.
type BucketStats struct {
	Count     int
	Wins      int
	TotalPnL  float64
	AvgPnL    float64
	AvgROIPct float64
	WinRate   float64
}

// Eligible reports whether the bucket has enough trades to influence a multiplier.
func (b BucketStats) Eligible() bool {
	return b.Count >= MinTradesForLearning
}

// Clamp bounds a multiplier into [Min, Max].
type Clamp struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Apply returns v bounded into the clamp range.
func (c Clamp) Apply(v float64) float64 {
	if v < c.Min {
		return c.Min
	}
	if v > c.Max {
		return c.Max
	}
	return v
}

// Contains reports whether v lies within the clamp range.
func (c Clamp) Contains(v float64) bool {
	return v >= c.Min && v <= c.Max
}
