package classify

import (
	"testing"
	"time"

	"gate-learner/internal/domain"
)

var closeTime = time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func withGate(name string, sig domain.GateSignal) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:  "t1",
		PnL:      1,
		ClosedAt: closeTime,
		Gates:    domain.GateAttribution{name: sig},
	}
}

func TestClassify_FallbackOrder(t *testing.T) {
	dim := Intel()

	tests := []struct {
		name   string
		trade  *domain.TradeRecord
		want   domain.GateState
		wantOK bool
	}{
		{
			name:   "typed label wins over reason",
			trade:  withGate("intel", domain.GateSignal{Label: "aligned", Reason: "strong conflict"}),
			want:   "aligned",
			wantOK: true,
		},
		{
			name:   "unknown label falls back to reason",
			trade:  withGate("intel", domain.GateSignal{Label: "bogus", Reason: "Weak Conflict detected"}),
			want:   "weak_conflict",
			wantOK: true,
		},
		{
			name:   "reason wins over multiplier",
			trade:  withGate("intel", domain.GateSignal{Reason: "STRONG conflict", Multiplier: ptr(1.2)}),
			want:   "strong_conflict",
			wantOK: true,
		},
		{
			name:   "unmatched reason falls back to multiplier",
			trade:  withGate("intel", domain.GateSignal{Reason: "see logs", Multiplier: ptr(0.7)}),
			want:   "moderate_conflict",
			wantOK: true,
		},
		{
			name:   "secondary gate key",
			trade:  withGate("intelligence", domain.GateSignal{Multiplier: ptr(1.0)}),
			want:   "neutral",
			wantOK: true,
		},
		{
			name:   "no usable signal is excluded",
			trade:  withGate("intel", domain.GateSignal{Reason: "see logs"}),
			wantOK: false,
		},
		{
			name:   "no attribution is excluded",
			trade:  &domain.TradeRecord{TradeID: "t2", ClosedAt: closeTime},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dim.Classify(tt.trade)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_KeywordOrder(t *testing.T) {
	tests := []struct {
		dim    *Dimension
		gate   string
		reason string
		want   domain.GateState
	}{
		{Regime(), "regime", "Regime MISMATCH", "mismatch"},
		{Regime(), "regime", "direction matches regime", "match"},
		{Fee(), "fee", "insufficient fee buffer", InsufficientBuffer},
		{Fee(), "fee", "sufficient edge after fees", GoodEdge},
		{Fee(), "fee", "negative EV after fees", NegativeEV},
		{Streak(), "streak", "2 losses in a row", TwoLosses},
		{Streak(), "streak", "3+ wins", ThreePlusWins},
		{ROI(), "roi", "ROI exceeds threshold", "above_threshold"},
		{CorrelationThrottle(), "correlation", "High correlation with open book", "high_correlation"},
	}

	for _, tt := range tests {
		got, ok := tt.dim.Classify(withGate(tt.gate, domain.GateSignal{Reason: tt.reason}))
		if !ok || got != tt.want {
			t.Errorf("%s %q: got (%q, %v), want %q", tt.dim.Name, tt.reason, got, ok, tt.want)
		}
	}
}

func TestClassify_Bands(t *testing.T) {
	dim := Fee()

	tests := []struct {
		mult   float64
		want   domain.GateState
		wantOK bool
	}{
		{1.0, GoodEdge, true},
		{0.9, GoodEdge, true},
		{0.89, InsufficientBuffer, true},
		{0.5, InsufficientBuffer, true},
		{0.2, NegativeEV, true},
		{-1, "", false},
	}

	for _, tt := range tests {
		got, ok := dim.Classify(withGate("fee", domain.GateSignal{Multiplier: ptr(tt.mult)}))
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("mult %v: got (%q, %v), want (%q, %v)", tt.mult, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClassify_DerivedFeeEdge(t *testing.T) {
	dim := FeeGate()

	tests := []struct {
		name   string
		gross  *float64
		fees   *float64
		want   domain.GateState
		wantOK bool
	}{
		{"gross below fees", ptr(0.5), ptr(1.0), NegativeEV, true},
		{"thin buffer", ptr(1.5), ptr(1.0), InsufficientBuffer, true},
		{"good edge", ptr(3.0), ptr(1.0), GoodEdge, true},
		{"no fees recorded", ptr(3.0), nil, "", false},
		{"zero fees", ptr(3.0), ptr(0.0), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := &domain.TradeRecord{TradeID: "f", GrossPnL: tt.gross, Fees: tt.fees, ClosedAt: closeTime}
			got, ok := dim.Classify(trade)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestHoldBucket(t *testing.T) {
	tests := []struct {
		d      time.Duration
		want   domain.GateState
		wantOK bool
	}{
		{0, "", false},
		{4 * time.Minute, "under_5m", true},
		{5 * time.Minute, "5m_to_15m", true},
		{59 * time.Minute, "15m_to_1h", true},
		{time.Hour, "1h_to_4h", true},
		{4 * time.Hour, "over_4h", true},
	}

	for _, tt := range tests {
		got, ok := HoldBucket(tt.d)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("HoldBucket(%v) = (%q, %v), want (%q, %v)", tt.d, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSessionAt(t *testing.T) {
	tests := []struct {
		hour int
		want domain.GateState
	}{
		{0, "asia"},
		{7, "asia"},
		{8, "europe"},
		{12, "europe"},
		{13, "us"},
		{20, "us"},
		{21, "off_hours"},
		{23, "off_hours"},
	}

	for _, tt := range tests {
		got := SessionAt(time.Date(2025, 3, 5, tt.hour, 30, 0, 0, time.UTC))
		if got != tt.want {
			t.Errorf("SessionAt(%02d:30) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestEdgeSizer_Grade(t *testing.T) {
	dim := EdgeSizer()

	for grade, want := range map[string]domain.GateState{"A": "grade_a", "c": "grade_c", "F": "grade_f"} {
		got, ok := dim.Classify(&domain.TradeRecord{TradeID: "g", Grade: grade})
		if !ok || got != want {
			t.Errorf("grade %q: got (%q, %v), want %q", grade, got, ok, want)
		}
	}

	if _, ok := dim.Classify(&domain.TradeRecord{TradeID: "g", Grade: "Z"}); ok {
		t.Error("grade Z should be excluded")
	}
}

func TestPriorStreaks(t *testing.T) {
	pnls := []float64{1, 1, 1, 1, -1, -1, -1, 2}
	want := []domain.GateState{
		StreakNeutral, OneWin, TwoWins, ThreePlusWins, ThreePlusWins, OneLoss, TwoLosses, ThreePlusLosses,
	}

	// Inserted in reverse to check ordering by close time.
	var trades []*domain.TradeRecord
	for i := len(pnls) - 1; i >= 0; i-- {
		trades = append(trades, &domain.TradeRecord{
			TradeID:  string(rune('a' + i)),
			PnL:      pnls[i],
			ClosedAt: closeTime.Add(time.Duration(i) * time.Minute),
		})
	}

	got := PriorStreaks(trades)
	for i := range pnls {
		id := string(rune('a' + i))
		if got[id] != want[i] {
			t.Errorf("trade %s: got %q, want %q", id, got[id], want[i])
		}
	}
}

func TestBind_SequenceFallback(t *testing.T) {
	dim := Streak()
	trades := []*domain.TradeRecord{
		{TradeID: "a", PnL: -1, ClosedAt: closeTime},
		{TradeID: "b", PnL: 1, ClosedAt: closeTime.Add(time.Minute)},
		{TradeID: "c", PnL: 1, ClosedAt: closeTime.Add(2 * time.Minute),
			Gates: domain.GateAttribution{"streak": {Label: ThreePlusWins}}},
	}

	c := dim.Bind(trades)
	if got, _ := c.Classify(trades[1]); got != OneLoss {
		t.Errorf("trade b: got %q, want %q", got, OneLoss)
	}
	if got, _ := c.Classify(trades[2]); got != ThreePlusWins {
		t.Errorf("trade c: recorded label should win, got %q", got)
	}

	if _, ok := dim.Classify(trades[1]); ok {
		t.Error("unbound streak dimension should not classify without a gate signal")
	}
}

func TestDimensions_DefaultsWithinClamp(t *testing.T) {
	for _, d := range All() {
		if len(d.Defaults) != len(d.States) {
			t.Errorf("%s: %d defaults for %d states", d.Name, len(d.Defaults), len(d.States))
		}
		for _, s := range d.States {
			v, ok := d.Defaults[s]
			if !ok {
				t.Errorf("%s: no default for %s", d.Name, s)
				continue
			}
			if !d.ClampFor(s).Contains(v) {
				t.Errorf("%s: default %v for %s outside %+v", d.Name, v, s, d.ClampFor(s))
			}
		}
	}
}

func TestClampFor_Overrides(t *testing.T) {
	if c := Fee().ClampFor(GoodEdge); c.Min != 0.9 || c.Max != 1.1 {
		t.Errorf("fee good_edge clamp = %+v", c)
	}
	if c := Fee().ClampFor(NegativeEV); c.Min != 0.2 || c.Max != 1.1 {
		t.Errorf("fee negative_ev clamp = %+v", c)
	}
	if c := FeeGate().ClampFor(GoodEdge); c.Min != 0.9 || c.Max != 1.1 {
		t.Errorf("fee_gate good_edge clamp = %+v", c)
	}
	if c := FeeGate().ClampFor(InsufficientBuffer); c.Min != 0.2 || c.Max != 1.1 {
		t.Errorf("fee_gate insufficient_buffer clamp = %+v", c)
	}
	if c := Regime().ClampFor("mismatch"); c.Max != 0.9 {
		t.Errorf("regime mismatch clamp = %+v", c)
	}
	if c := Streak().ClampFor(ThreePlusWins); c.Min != 0.3 || c.Max != 1.8 {
		t.Errorf("streak clamp = %+v", c)
	}
}

func TestLookup(t *testing.T) {
	if len(Names()) != 10 {
		t.Fatalf("expected 10 learners, got %d", len(Names()))
	}
	if _, err := Lookup("roi"); err != nil {
		t.Errorf("Lookup(roi) failed: %v", err)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Error("expected error for unknown learner")
	}
	if Family("session") != FamilyProfitability || Family("intel") != FamilySizing {
		t.Error("unexpected learner family")
	}
}
