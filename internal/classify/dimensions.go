package classify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gate-learner/internal/domain"
)

// Learner families.
const (
	FamilyProfitability = "profitability"
	FamilySizing        = "sizing"
)

// Fee edge states, shared by the fee and fee_gate dimensions.
const (
	NegativeEV         domain.GateState = "negative_ev"
	InsufficientBuffer domain.GateState = "insufficient_buffer"
	GoodEdge           domain.GateState = "good_edge"
)

var feeStates = []domain.GateState{NegativeEV, InsufficientBuffer, GoodEdge}

// Order of the keyword table matters: "insufficient" contains "sufficient".
var feeKeywords = []Keyword{
	{"negative", NegativeEV},
	{"no edge", NegativeEV},
	{"insufficient", InsufficientBuffer},
	{"buffer", InsufficientBuffer},
	{"thin", InsufficientBuffer},
	{"good", GoodEdge},
	{"sufficient", GoodEdge},
	{"edge", GoodEdge},
}

var feeBands = []Band{
	{0.9, GoodEdge},
	{0.5, InsufficientBuffer},
	{0, NegativeEV},
}

// feeEdge derives the fee state from realized gross pnl against fees paid.
func feeEdge(t *domain.TradeRecord) (domain.GateState, bool) {
	if t.GrossPnL == nil || t.Fees == nil || *t.Fees <= 0 {
		return "", false
	}
	ratio := *t.GrossPnL / *t.Fees
	switch {
	case ratio <= 1:
		return NegativeEV, true
	case ratio < 2:
		return InsufficientBuffer, true
	default:
		return GoodEdge, true
	}
}

// FeeGate is the profitability learner over the fee gate.
func FeeGate() *Dimension {
	return &Dimension{
		Name:   "fee_gate",
		Gates:  []string{"fee_gate", "fee"},
		States: feeStates,
		Defaults: map[domain.GateState]float64{
			NegativeEV: 0.3, InsufficientBuffer: 0.6, GoodEdge: 1.0,
		},
		Clamp: domain.Clamp{Min: 0.2, Max: 1.1},
		Overrides: map[domain.GateState]domain.Clamp{
			GoodEdge: {Min: 0.9, Max: 1.1},
		},
		Keywords: feeKeywords,
		Bands:    feeBands,
		Derive:   feeEdge,
	}
}

// Fee is the sizing multiplier learner over the fee gate.
func Fee() *Dimension {
	return &Dimension{
		Name:   "fee",
		Gates:  []string{"fee", "fee_gate"},
		States: feeStates,
		Defaults: map[domain.GateState]float64{
			NegativeEV: 0.3, InsufficientBuffer: 0.6, GoodEdge: 1.0,
		},
		Clamp: domain.Clamp{Min: 0.2, Max: 1.1},
		Overrides: map[domain.GateState]domain.Clamp{
			GoodEdge: {Min: 0.9, Max: 1.1},
		},
		Keywords: feeKeywords,
		Bands:    feeBands,
		Derive:   feeEdge,
	}
}

// HoldTime buckets trades by how long the position was held.
func HoldTime() *Dimension {
	states := []domain.GateState{"under_5m", "5m_to_15m", "15m_to_1h", "1h_to_4h", "over_4h"}
	return &Dimension{
		Name:     "hold_time",
		Gates:    []string{"hold_time"},
		States:   states,
		Defaults: uniform(states, 1.0),
		Clamp:    domain.Clamp{Min: 0.5, Max: 1.5},
		Derive: func(t *domain.TradeRecord) (domain.GateState, bool) {
			return HoldBucket(t.HoldDuration())
		},
	}
}

// HoldBucket maps a hold duration to its hold_time state. Zero means unknown.
func HoldBucket(d time.Duration) (domain.GateState, bool) {
	switch {
	case d <= 0:
		return "", false
	case d < 5*time.Minute:
		return "under_5m", true
	case d < 15*time.Minute:
		return "5m_to_15m", true
	case d < time.Hour:
		return "15m_to_1h", true
	case d < 4*time.Hour:
		return "1h_to_4h", true
	default:
		return "over_4h", true
	}
}

// EdgeSizer buckets trades by signal grade.
func EdgeSizer() *Dimension {
	return &Dimension{
		Name:   "edge_sizer",
		Gates:  []string{"edge_sizer", "edge", "grade"},
		States: []domain.GateState{"grade_a", "grade_b", "grade_c", "grade_d", "grade_e", "grade_f"},
		Defaults: map[domain.GateState]float64{
			"grade_a": 1.3, "grade_b": 1.15, "grade_c": 1.0, "grade_d": 0.8, "grade_e": 0.6, "grade_f": 0.5,
		},
		Clamp: domain.Clamp{Min: 0.3, Max: 1.5},
		Bands: []Band{
			{1.25, "grade_a"},
			{1.1, "grade_b"},
			{0.95, "grade_c"},
			{0.75, "grade_d"},
			{0.55, "grade_e"},
			{0, "grade_f"},
		},
		Derive: func(t *domain.TradeRecord) (domain.GateState, bool) {
			g := strings.ToUpper(strings.TrimSpace(t.Grade))
			if len(g) == 0 || g[0] < 'A' || g[0] > 'F' {
				return "", false
			}
			return domain.GateState("grade_" + strings.ToLower(g[:1])), true
		},
	}
}

// CorrelationThrottle buckets trades by portfolio correlation at entry.
func CorrelationThrottle() *Dimension {
	return &Dimension{
		Name:   "correlation_throttle",
		Gates:  []string{"correlation", "correlation_throttle"},
		States: []domain.GateState{"low_correlation", "medium_correlation", "high_correlation"},
		Defaults: map[domain.GateState]float64{
			"low_correlation": 1.0, "medium_correlation": 0.8, "high_correlation": 0.6,
		},
		Clamp: domain.Clamp{Min: 0.3, Max: 1.2},
		Keywords: []Keyword{
			{"high", "high_correlation"},
			{"medium", "medium_correlation"},
			{"moderate", "medium_correlation"},
			{"low", "low_correlation"},
			{"uncorrelated", "low_correlation"},
		},
		Bands: []Band{
			{0.9, "low_correlation"},
			{0.7, "medium_correlation"},
			{0, "high_correlation"},
		},
	}
}

// Session buckets trades by the UTC hour they closed.
func Session() *Dimension {
	states := []domain.GateState{"asia", "europe", "us", "off_hours"}
	return &Dimension{
		Name:     "session",
		Gates:    []string{"session"},
		States:   states,
		Defaults: uniform(states, 1.0),
		Clamp:    domain.Clamp{Min: 0.5, Max: 1.3},
		Derive: func(t *domain.TradeRecord) (domain.GateState, bool) {
			if t.ClosedAt.IsZero() {
				return "", false
			}
			return SessionAt(t.ClosedAt), true
		},
	}
}

// SessionAt maps a time to its trading session by UTC hour.
func SessionAt(ts time.Time) domain.GateState {
	switch h := ts.UTC().Hour(); {
	case h < 8:
		return "asia"
	case h < 13:
		return "europe"
	case h < 21:
		return "us"
	default:
		return "off_hours"
	}
}

// Intel buckets trades by agreement with the market intelligence bias.
func Intel() *Dimension {
	return &Dimension{
		Name:   "intel",
		Gates:  []string{"intel", "intelligence"},
		States: []domain.GateState{"aligned", "strong_conflict", "moderate_conflict", "weak_conflict", "neutral"},
		Defaults: map[domain.GateState]float64{
			"aligned": 1.2, "strong_conflict": 0.5, "moderate_conflict": 0.7, "weak_conflict": 0.85, "neutral": 1.0,
		},
		Clamp: domain.Clamp{Min: 0.3, Max: 1.5},
		Keywords: []Keyword{
			{"strong", "strong_conflict"},
			{"moderate", "moderate_conflict"},
			{"weak", "weak_conflict"},
			{"conflict", "moderate_conflict"},
			{"aligned", "aligned"},
			{"agree", "aligned"},
			{"neutral", "neutral"},
			{"no intel", "neutral"},
		},
		Bands: []Band{
			{1.05, "aligned"},
			{0.95, "neutral"},
			{0.8, "weak_conflict"},
			{0.6, "moderate_conflict"},
			{0, "strong_conflict"},
		},
	}
}

// Streak states.
const (
	ThreePlusWins   domain.GateState = "3_plus_wins"
	TwoWins         domain.GateState = "2_wins"
	OneWin          domain.GateState = "1_win"
	StreakNeutral   domain.GateState = "neutral"
	OneLoss         domain.GateState = "1_loss"
	TwoLosses       domain.GateState = "2_losses"
	ThreePlusLosses domain.GateState = "3_plus_losses"
)

// Streak buckets trades by the win/loss streak that preceded them.
func Streak() *Dimension {
	return &Dimension{
		Name:   "streak",
		Gates:  []string{"streak"},
		States: []domain.GateState{ThreePlusWins, TwoWins, OneWin, StreakNeutral, OneLoss, TwoLosses, ThreePlusLosses},
		Defaults: map[domain.GateState]float64{
			ThreePlusWins: 1.3, TwoWins: 1.15, OneWin: 1.05, StreakNeutral: 1.0,
			OneLoss: 0.9, TwoLosses: 0.75, ThreePlusLosses: 0.5,
		},
		Clamp: domain.Clamp{Min: 0.3, Max: 1.8},
		Keywords: []Keyword{
			{"3+ loss", ThreePlusLosses},
			{"3_plus_loss", ThreePlusLosses},
			{"losing streak", ThreePlusLosses},
			{"2 loss", TwoLosses},
			{"2_loss", TwoLosses},
			{"1 loss", OneLoss},
			{"1_loss", OneLoss},
			{"3+ win", ThreePlusWins},
			{"3_plus_win", ThreePlusWins},
			{"winning streak", ThreePlusWins},
			{"hot", ThreePlusWins},
			{"2 win", TwoWins},
			{"2_win", TwoWins},
			{"1 win", OneWin},
			{"1_win", OneWin},
			{"neutral", StreakNeutral},
			{"no streak", StreakNeutral},
		},
		Bands: []Band{
			{1.25, ThreePlusWins},
			{1.1, TwoWins},
			{1.02, OneWin},
			{0.98, StreakNeutral},
			{0.85, OneLoss},
			{0.65, TwoLosses},
			{0, ThreePlusLosses},
		},
		Sequence: PriorStreaks,
	}
}

// PriorStreaks computes, for each trade, the streak of results of the trades
// that closed before it within the same set. The first trade is neutral.
func PriorStreaks(trades []*domain.TradeRecord) map[string]domain.GateState {
	ordered := make([]*domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t != nil {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ClosedAt.Equal(ordered[j].ClosedAt) {
			return ordered[i].ClosedAt.Before(ordered[j].ClosedAt)
		}
		return ordered[i].TradeID < ordered[j].TradeID
	})

	states := make(map[string]domain.GateState, len(ordered))
	run := 0 // > 0 consecutive wins, < 0 consecutive losses
	for _, t := range ordered {
		states[t.TradeID] = streakState(run)
		switch {
		case t.Win() && run >= 0:
			run++
		case t.Win():
			run = 1
		case run <= 0:
			run--
		default:
			run = -1
		}
	}
	return states
}

func streakState(run int) domain.GateState {
	switch {
	case run >= 3:
		return ThreePlusWins
	case run == 2:
		return TwoWins
	case run == 1:
		return OneWin
	case run == -1:
		return OneLoss
	case run == -2:
		return TwoLosses
	case run <= -3:
		return ThreePlusLosses
	default:
		return StreakNeutral
	}
}

// Regime buckets trades by whether direction matched the market regime.
func Regime() *Dimension {
	return &Dimension{
		Name:   "regime",
		Gates:  []string{"regime"},
		States: []domain.GateState{"match", "mismatch"},
		Defaults: map[domain.GateState]float64{
			"match": 1.0, "mismatch": 0.7,
		},
		Clamp: domain.Clamp{Min: 0.3, Max: 1.3},
		Overrides: map[domain.GateState]domain.Clamp{
			"mismatch": {Min: 0.3, Max: 0.9},
		},
		// "mismatch" contains "match".
		Keywords: []Keyword{
			{"mismatch", "mismatch"},
			{"counter", "mismatch"},
			{"against", "mismatch"},
			{"match", "match"},
			{"aligned", "match"},
			{"with regime", "match"},
		},
		Bands: []Band{
			{0.95, "match"},
			{0, "mismatch"},
		},
	}
}

// ROI buckets trades by the ROI gate verdict at entry.
func ROI() *Dimension {
	return &Dimension{
		Name:   "roi",
		Gates:  []string{"roi", "roi_threshold"},
		States: []domain.GateState{"below_threshold", "at_threshold", "above_threshold"},
		Defaults: map[domain.GateState]float64{
			"below_threshold": 0.6, "at_threshold": 0.9, "above_threshold": 1.0,
		},
		Clamp: domain.Clamp{Min: 0.3, Max: 1.1},
		Keywords: []Keyword{
			{"below", "below_threshold"},
			{"under", "below_threshold"},
			{"above", "above_threshold"},
			{"exceed", "above_threshold"},
			{"at threshold", "at_threshold"},
			{"at_threshold", "at_threshold"},
			{"meets", "at_threshold"},
		},
		Bands: []Band{
			{1.05, "above_threshold"},
			{0.95, "at_threshold"},
			{0, "below_threshold"},
		},
	}
}

// All returns every dimension in run order: profitability learners first, then sizing.
func All() []*Dimension {
	return []*Dimension{
		FeeGate(), HoldTime(), EdgeSizer(), CorrelationThrottle(), Session(),
		Intel(), Streak(), Regime(), Fee(), ROI(),
	}
}

// Family returns the learner family of a dimension.
func Family(name string) string {
	switch name {
	case "fee_gate", "hold_time", "edge_sizer", "correlation_throttle", "session":
		return FamilyProfitability
	default:
		return FamilySizing
	}
}

// Lookup returns the named dimension.
func Lookup(name string) (*Dimension, error) {
	for _, d := range All() {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown learner %q", name)
}

// Names returns every dimension name in run order.
func Names() []string {
	dims := All()
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = d.Name
	}
	return names
}

func uniform(states []domain.GateState, v float64) map[domain.GateState]float64 {
	m := make(map[domain.GateState]float64, len(states))
	for _, s := range states {
		m[s] = v
	}
	return m
}
