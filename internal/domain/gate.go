package domain

import "strings"

// GateState is a categorical label drawn from a dimension's fixed enumeration.
type GateState string

// GateSignal is what the execution engine recorded for one gate on one trade.
type GateSignal struct {
	Label      GateState // explicit typed label, empty when not recorded
	Reason     string    // free-text reason, empty when not recorded
	Multiplier *float64  // sub-multiplier applied by the gate (nullable)
}

// Empty reports whether the signal carries no information at all.
func (s GateSignal) Empty() bool {
	return s.Label == "" && strings.TrimSpace(s.Reason) == "" && s.Multiplier == nil
}

// GateAttribution maps gate name (lower case) to the recorded signal.
type GateAttribution map[string]GateSignal

// Get returns the signal for a gate, looking up the name case-insensitively.
func (g GateAttribution) Get(name string) (GateSignal, bool) {
	if g == nil {
		return GateSignal{}, false
	}
	s, ok := g[strings.ToLower(name)]
	if !ok || s.Empty() {
		return GateSignal{}, false
	}
	return s, true
}
