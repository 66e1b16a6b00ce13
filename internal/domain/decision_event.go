package domain

import "time"

// DecisionEvent is one line of an auxiliary JSONL stream
// (enriched_decisions.jsonl, signals.jsonl).
type DecisionEvent struct {
	Symbol    string
	Direction Direction
	Timestamp time.Time
	OFI       *float64 // order-flow imbalance score (nullable)
	Regime    string
	Outcome   *float64 // realized pnl or return attached to the decision (nullable)
	Executed  bool
}
