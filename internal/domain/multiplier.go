package domain

import (
	"sort"
	"time"
)

// MultiplierTableVersion is the schema version written to every table.
// It is never validated on read.
const MultiplierTableVersion = 1

// MaxHistory bounds MultiplierTable.History.
const MaxHistory = 30

// BucketSnapshot is the persisted diagnostic view of a bucket.
type BucketSnapshot struct {
	Count    int          `json:"count"`
	TotalPnL float64      `json:"total_pnl"`
	AvgPnL   float64      `json:"avg_pnl"`
	AvgROI   float64      `json:"avg_roi"`
	WinRate  float64      `json:"win_rate"`
	Status   BucketStatus `json:"status"`
}

// HistoryEntry records the multipliers committed by one run.
type HistoryEntry struct {
	At          time.Time             `json:"at"`
	Trades      int                   `json:"trades"`
	Multipliers map[GateState]float64 `json:"multipliers"`
}

// MultiplierTable is the learned policy for one learner, persisted as JSON.
type MultiplierTable struct {
	Version        int                          `json:"version"`
	UpdatedAt      time.Time                    `json:"updated_at"`
	Multipliers    map[GateState]float64        `json:"multipliers"`
	Stats          map[GateState]BucketSnapshot `json:"stats"`
	TradesAnalyzed int                          `json:"trades_analyzed"`
	Dropped        int                          `json:"dropped"`
	History        []HistoryEntry               `json:"history,omitempty"`
}

// NewMultiplierTable creates a table seeded with the given multipliers.
func NewMultiplierTable(defaults map[GateState]float64) *MultiplierTable {
	m := make(map[GateState]float64, len(defaults))
	for k, v := range defaults {
		m[k] = v
	}
	return &MultiplierTable{
		Version:     MultiplierTableVersion,
		Multipliers: m,
		Stats:       make(map[GateState]BucketSnapshot),
	}
}

// Clone returns a deep copy of the table.
func (t *MultiplierTable) Clone() *MultiplierTable {
	c := *t
	c.Multipliers = make(map[GateState]float64, len(t.Multipliers))
	for k, v := range t.Multipliers {
		c.Multipliers[k] = v
	}
	c.Stats = make(map[GateState]BucketSnapshot, len(t.Stats))
	for k, v := range t.Stats {
		c.Stats[k] = v
	}
	if t.History != nil {
		c.History = make([]HistoryEntry, len(t.History))
		copy(c.History, t.History)
	}
	return &c
}

// AppendHistory appends an entry and drops the oldest ones beyond MaxHistory.
func (t *MultiplierTable) AppendHistory(e HistoryEntry) {
	t.History = append(t.History, e)
	if len(t.History) > MaxHistory {
		t.History = append([]HistoryEntry(nil), t.History[len(t.History)-MaxHistory:]...)
	}
}

// States returns the table's states sorted for deterministic output.
func (t *MultiplierTable) States() []GateState {
	states := make([]GateState, 0, len(t.Multipliers))
	for s := range t.Multipliers {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}
