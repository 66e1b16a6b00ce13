package domain

import "time"

// Direction is the side of a closed futures position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TradeRecord represents a closed position as written by the execution engine.
// Corresponds to one entry of closed_positions in positions_futures.json.
// Records are immutable once loaded.
type TradeRecord struct {
	TradeID   string    // position id, or a deterministic hash when absent
	Symbol    string    // e.g. BTCUSDT
	Direction Direction // LONG | SHORT
	Strategy  string    // strategy / signal source name

	// Outcome
	PnL      float64  // net realized pnl (USD), NaN when the source value is not numeric
	GrossPnL *float64 // pnl before fees (nullable)
	Fees     *float64 // total fees paid (nullable)
	Margin   float64  // margin_collateral or size_usd, 0 when missing

	// Timing
	OpenedAt time.Time // zero when unparsable
	ClosedAt time.Time

	// Metadata
	Grade string          // optional signal grade A-F
	Gates GateAttribution // per-gate attribution used by classifiers
}

// Win reports whether the trade closed with positive pnl.
func (t *TradeRecord) Win() bool {
	return t.PnL > 0
}

// ROIPct returns pnl as a percentage of margin, 0 when margin is zero or missing.
func (t *TradeRecord) ROIPct() float64 {
	if t.Margin == 0 {
		return 0
	}
	return t.PnL / t.Margin * 100
}

// HoldDuration returns ClosedAt - OpenedAt, 0 when either side is unknown.
func (t *TradeRecord) HoldDuration() time.Duration {
	if t.OpenedAt.IsZero() || t.ClosedAt.IsZero() {
		return 0
	}
	return t.ClosedAt.Sub(t.OpenedAt)
}
