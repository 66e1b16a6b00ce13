// Package classify maps closed trades to categorical gate states, one
// dimension per learner.
package classify

import (
	"strings"

	"gate-learner/internal/domain"
)

// Keyword maps a case-insensitive substring of a gate reason to a state.
// Keyword tables are matched in order, first hit wins.
type Keyword struct {
	Match string
	State domain.GateState
}

// Band maps a gate sub-multiplier to a state when the value is >= Min.
// Bands are ordered by descending Min.
type Band struct {
	Min   float64
	State domain.GateState
}

// Dimension is one categorical view of a trade and the policy learned over it.
type Dimension struct {
	Name      string
	Gates     []string // gate attribution keys, primary first
	States    []domain.GateState
	Defaults  map[domain.GateState]float64
	Clamp     domain.Clamp
	Overrides map[domain.GateState]domain.Clamp

	Keywords []Keyword
	Bands    []Band

	// Derive infers the state from trade fields when the gate recorded nothing usable.
	Derive func(t *domain.TradeRecord) (domain.GateState, bool)

	// Sequence precomputes states that depend on trade ordering. See Bind.
	Sequence func(trades []*domain.TradeRecord) map[string]domain.GateState
}

// Classifier assigns a gate state to a trade.
type Classifier interface {
	Classify(t *domain.TradeRecord) (domain.GateState, bool)
}

// ClampFor returns the bounds for a state, honoring per-state overrides.
func (d *Dimension) ClampFor(s domain.GateState) domain.Clamp {
	if c, ok := d.Overrides[s]; ok {
		return c
	}
	return d.Clamp
}

// Has reports whether s belongs to the dimension's enumeration.
func (d *Dimension) Has(s domain.GateState) bool {
	for _, st := range d.States {
		if st == s {
			return true
		}
	}
	return false
}

// DefaultTable returns a table seeded with the dimension defaults.
func (d *Dimension) DefaultTable() *domain.MultiplierTable {
	return domain.NewMultiplierTable(d.Defaults)
}

// Classify resolves the state of a trade. Order: typed label, reason
// keywords, sub-multiplier bands, derived trade fields. Returns false when the
// trade is excluded from this dimension.
func (d *Dimension) Classify(t *domain.TradeRecord) (domain.GateState, bool) {
	if t == nil {
		return "", false
	}

	if sig, ok := d.signal(t); ok {
		if sig.Label != "" && d.Has(sig.Label) {
			return sig.Label, true
		}
		if s, ok := d.matchReason(sig.Reason); ok {
			return s, true
		}
		if sig.Multiplier != nil {
			if s, ok := d.matchBand(*sig.Multiplier); ok {
				return s, true
			}
		}
	}

	if d.Derive != nil {
		return d.Derive(t)
	}
	return "", false
}

// Bind returns a classifier for the given trade set. Dimensions with a
// Sequence fall back to the precomputed state after the gate signal.
func (d *Dimension) Bind(trades []*domain.TradeRecord) Classifier {
	if d.Sequence == nil {
		return d
	}
	return &boundDimension{dim: d, seq: d.Sequence(trades)}
}

func (d *Dimension) signal(t *domain.TradeRecord) (domain.GateSignal, bool) {
	for _, g := range d.Gates {
		if sig, ok := t.Gates.Get(g); ok {
			return sig, true
		}
	}
	return domain.GateSignal{}, false
}

func (d *Dimension) matchReason(reason string) (domain.GateState, bool) {
	r := strings.ToLower(strings.TrimSpace(reason))
	if r == "" {
		return "", false
	}
	for _, k := range d.Keywords {
		if strings.Contains(r, k.Match) {
			return k.State, true
		}
	}
	return "", false
}

func (d *Dimension) matchBand(v float64) (domain.GateState, bool) {
	for _, b := range d.Bands {
		if v >= b.Min {
			return b.State, true
		}
	}
	return "", false
}

type boundDimension struct {
	dim *Dimension
	seq map[string]domain.GateState
}

func (b *boundDimension) Classify(t *domain.TradeRecord) (domain.GateState, bool) {
	if s, ok := b.dim.Classify(t); ok {
		return s, true
	}
	if t == nil {
		return "", false
	}
	s, ok := b.seq[t.TradeID]
	return s, ok
}
