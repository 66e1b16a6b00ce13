package jsonfile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"gate-learner/internal/domain"
	"gate-learner/internal/idhash"
)

// Field aliases, first non-null wins.
var (
	pnlKeys      = []string{"pnl", "net_pnl", "realized_pnl"}
	grossKeys    = []string{"gross_pnl", "gross"}
	feeKeys      = []string{"fees", "total_fees", "fee"}
	directionKey = []string{"direction", "side"}
	marginKeys   = []string{"margin_collateral", "size_usd", "margin"}
	closedKeys   = []string{"closed_at", "close_time", "exit_time"}
	openedKeys   = []string{"opened_at", "open_time", "entry_time"}
	idKeys       = []string{"position_id", "trade_id", "id"}
	strategyKeys = []string{"strategy", "signal_source", "source"}
	gradeKeys    = []string{"grade", "signal_grade"}
)

// timeLayouts are tried in order for string timestamps that are not numeric.
// Fractional seconds are accepted by every layout.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// first returns the first alias whose value is present and not null.
func first(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		v := obj.Get(k)
		if v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// number reads a JSON number or a finite numeric string.
func number(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func optionalNumber(v gjson.Result) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

// parseTimestamp accepts ISO-8601 strings with or without zone, and epoch
// seconds or milliseconds given as numbers or numeric strings.
// Zone-less timestamps are taken as UTC.
func parseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return fromEpoch(v.Num)
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func fromEpoch(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if v >= epochMillisThreshold {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func parseDirection(v gjson.Result) domain.Direction {
	switch s := strings.ToUpper(strings.TrimSpace(v.String())); s {
	case "LONG", "BUY":
		return domain.DirectionLong
	case "SHORT", "SELL":
		return domain.DirectionShort
	default:
		return domain.Direction(s)
	}
}

// parseClosedPosition converts one closed_positions entry into a TradeRecord.
// Returns false when the close timestamp is missing or unparsable.
func parseClosedPosition(obj gjson.Result) (*domain.TradeRecord, bool) {
	closedAt, ok := parseTimestamp(first(obj, closedKeys...))
	if !ok {
		return nil, false
	}
	openedAt, _ := parseTimestamp(first(obj, openedKeys...))

	t := &domain.TradeRecord{
		Symbol:    strings.ToUpper(first(obj, "symbol").String()),
		Direction: parseDirection(first(obj, directionKey...)),
		Strategy:  first(obj, strategyKeys...).String(),
		GrossPnL:  optionalNumber(first(obj, grossKeys...)),
		Fees:      optionalNumber(first(obj, feeKeys...)),
		OpenedAt:  openedAt,
		ClosedAt:  closedAt,
		Grade:     strings.ToUpper(strings.TrimSpace(first(obj, gradeKeys...).String())),
		Gates:     parseGates(obj),
	}

	if raw := first(obj, pnlKeys...); raw.Exists() {
		pnl, ok := number(raw)
		if !ok {
			pnl = math.NaN()
		}
		t.PnL = pnl
	}
	if m, ok := number(first(obj, marginKeys...)); ok {
		t.Margin = m
	}

	t.TradeID = first(obj, idKeys...).String()
	if t.TradeID == "" {
		t.TradeID = idhash.ComputeTradeID(t.Symbol, t.Direction, t.OpenedAt, t.ClosedAt)
	}

	return t, true
}

// parseGates merges the nested gate_attribution object with direct
// <gate>_reason, <gate>_state and <gate>_mult fields. Nested values win.
func parseGates(obj gjson.Result) domain.GateAttribution {
	gates := make(domain.GateAttribution)

	if nested := obj.Get("gate_attribution"); nested.IsObject() {
		nested.ForEach(func(k, v gjson.Result) bool {
			name := strings.ToLower(k.String())
			gates[name] = signalFrom(v)
			return true
		})
	}

	obj.ForEach(func(k, v gjson.Result) bool {
		key := strings.ToLower(k.String())
		name, field := splitGateField(key)
		if name == "" {
			return true
		}
		s := gates[name]
		switch field {
		case "reason":
			if s.Reason == "" && v.Type == gjson.String {
				s.Reason = v.Str
			}
		case "state":
			if s.Label == "" && v.Type == gjson.String {
				s.Label = domain.GateState(strings.ToLower(strings.TrimSpace(v.Str)))
			}
		case "mult":
			if s.Multiplier == nil {
				s.Multiplier = optionalNumber(v)
			}
		}
		if !s.Empty() {
			gates[name] = s
		}
		return true
	})

	if len(gates) == 0 {
		return nil
	}
	return gates
}

func splitGateField(key string) (name, field string) {
	for suffix, f := range map[string]string{
		"_reason":     "reason",
		"_state":      "state",
		"_mult":       "mult",
		"_multiplier": "mult",
	} {
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return strings.TrimSuffix(key, suffix), f
		}
	}
	return "", ""
}

func signalFrom(v gjson.Result) domain.GateSignal {
	switch v.Type {
	case gjson.String:
		return domain.GateSignal{Reason: v.Str}
	case gjson.Number:
		return domain.GateSignal{Multiplier: optionalNumber(v)}
	}
	if !v.IsObject() {
		return domain.GateSignal{}
	}
	return domain.GateSignal{
		Label:      domain.GateState(strings.ToLower(strings.TrimSpace(first(v, "state", "label").String()))),
		Reason:     first(v, "reason").String(),
		Multiplier: optionalNumber(first(v, "multiplier", "mult", "value")),
	}
}
