package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gate-learner/internal/classify"
	"gate-learner/internal/domain"
	"gate-learner/internal/metrics"
	"gate-learner/internal/storage"
)

// Trade slice keys.
const (
	BySymbol    = "symbol"
	ByDirection = "direction"
	BySession   = "session"
	ByHold      = "hold"
	ByStrategy  = "strategy"
)

// Decision slice keys.
const (
	ByOFI    = "ofi"
	ByRegime = "regime"
)

const unknownKey = "unknown"

// TradeKey returns the slice key function for a --by value.
func TradeKey(by string) (metrics.KeyFunc, error) {
	switch strings.ToLower(by) {
	case BySymbol:
		return func(t *domain.TradeRecord) (string, bool) { return orUnknown(t.Symbol), true }, nil
	case ByDirection:
		return func(t *domain.TradeRecord) (string, bool) { return orUnknown(string(t.Direction)), true }, nil
	case BySession:
		return func(t *domain.TradeRecord) (string, bool) { return string(classify.SessionAt(t.ClosedAt)), true }, nil
	case ByHold:
		return func(t *domain.TradeRecord) (string, bool) {
			s, ok := classify.HoldBucket(t.HoldDuration())
			return string(s), ok
		}, nil
	case ByStrategy:
		return func(t *domain.TradeRecord) (string, bool) { return orUnknown(t.Strategy), true }, nil
	default:
		return nil, fmt.Errorf("unknown trade slice %q", by)
	}
}

// OFIBucket maps an order-flow imbalance score to a coarse bucket.
func OFIBucket(ofi *float64) string {
	if ofi == nil {
		return unknownKey
	}
	v := *ofi
	switch {
	case v < -0.5:
		return "strong_sell"
	case v < -0.15:
		return "sell"
	case v <= 0.15:
		return "neutral"
	case v <= 0.5:
		return "buy"
	default:
		return "strong_buy"
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownKey
	}
	return s
}

// Generator produces reports from stored data.
type Generator struct {
	trades    storage.TradeStore
	decisions storage.DecisionEventSource
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. Either source may be nil when
// the matching report is not used.
func NewGenerator(trades storage.TradeStore, decisions storage.DecisionEventSource) *Generator {
	return &Generator{
		trades:    trades,
		decisions: decisions,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Trades slices the trades closed within lookback of now.
func (g *Generator) Trades(ctx context.Context, lookback time.Duration, by string) (*TradeReport, error) {
	if g.trades == nil {
		return nil, fmt.Errorf("no trade source configured")
	}
	key, err := TradeKey(by)
	if err != nil {
		return nil, err
	}

	now := g.now()
	start := now.Add(-lookback)
	trades, err := g.trades.GetClosedBetween(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	slices, skipped := metrics.Slice(trades, key)
	total, _ := metrics.Slice(trades, func(*domain.TradeRecord) (string, bool) { return "all", true })

	r := &TradeReport{
		GeneratedAt: now,
		WindowStart: start,
		WindowEnd:   now,
		By:          strings.ToLower(by),
		Slices:      slices,
		Skipped:     skipped,
	}
	if len(total) > 0 {
		r.Total = total[0]
	}
	return r, nil
}

// Decisions slices the decision stream by OFI bucket or regime.
func (g *Generator) Decisions(ctx context.Context, source, by string) (*DecisionReport, error) {
	if g.decisions == nil {
		return nil, fmt.Errorf("no decision source configured")
	}

	var key func(e *domain.DecisionEvent) string
	switch strings.ToLower(by) {
	case ByOFI:
		key = func(e *domain.DecisionEvent) string { return OFIBucket(e.OFI) }
	case ByRegime:
		key = func(e *domain.DecisionEvent) string { return orUnknown(e.Regime) }
	default:
		return nil, fmt.Errorf("unknown decision slice %q", by)
	}

	events, skipped, err := g.decisions.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}

	return &DecisionReport{
		GeneratedAt: g.now(),
		Source:      source,
		By:          strings.ToLower(by),
		Events:      len(events),
		Skipped:     skipped,
		Slices:      sliceDecisions(events, key),
	}, nil
}

func sliceDecisions(events []*domain.DecisionEvent, key func(*domain.DecisionEvent) string) []DecisionSlice {
	type acc struct {
		slice DecisionSlice
		total decimal.Decimal
	}
	groups := make(map[string]*acc)
	for _, e := range events {
		k := key(e)
		a, ok := groups[k]
		if !ok {
			a = &acc{slice: DecisionSlice{Key: k}}
			groups[k] = a
		}
		a.slice.Events++
		if e.Executed {
			a.slice.Executed++
		}
		if e.Outcome != nil {
			a.slice.WithOutcome++
			if *e.Outcome > 0 {
				a.slice.Wins++
			}
			a.total = a.total.Add(decimal.NewFromFloat(*e.Outcome))
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]DecisionSlice, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		s := a.slice
		s.TotalOutcome = a.total.InexactFloat64()
		if s.WithOutcome > 0 {
			s.WinRate = float64(s.Wins) / float64(s.WithOutcome)
			s.AvgOutcome = a.total.Div(decimal.NewFromInt(int64(s.WithOutcome))).InexactFloat64()
		}
		result = append(result, s)
	}
	return result
}
