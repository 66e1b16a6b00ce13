package learning

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-learner/internal/classify"
	"gate-learner/internal/domain"
	"gate-learner/internal/metrics"
	"gate-learner/internal/storage"
	"gate-learner/internal/storage/jsonfile"
	"gate-learner/internal/storage/memory"
)

var runTime = time.Date(2025, 3, 8, 2, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return runTime }

func feeTrade(id string, state domain.GateState, pnl float64, age time.Duration) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:   id,
		Symbol:    "BTCUSDT",
		Direction: domain.DirectionLong,
		PnL:       pnl,
		Margin:    100,
		OpenedAt:  runTime.Add(-age - 30*time.Minute),
		ClosedAt:  runTime.Add(-age),
		Gates:     domain.GateAttribution{"fee": {Label: state}},
	}
}

// feeScenario returns 7 good_edge trades (avg ROI +0.8%, win rate 5/7) and
// 3 negative_ev trades (avg ROI -1.2%, win rate 0).
func feeScenario() []*domain.TradeRecord {
	good := []float64{1.6, 1.6, 1.2, 1.0, 1.0, -0.4, -0.4}
	var trades []*domain.TradeRecord
	for i, p := range good {
		trades = append(trades, feeTrade("g"+string(rune('0'+i)), classify.GoodEdge, p, time.Duration(i+1)*time.Hour))
	}
	for i := 0; i < 3; i++ {
		trades = append(trades, feeTrade("n"+string(rune('0'+i)), classify.NegativeEV, -1.2, time.Duration(i+10)*time.Hour))
	}
	return trades
}

func newTradeStore(t *testing.T, trades []*domain.TradeRecord) *memory.TradeRecordStore {
	t.Helper()
	store := memory.NewTradeRecordStore()
	require.NoError(t, store.InsertBulk(context.Background(), trades))
	return store
}

func newLearner(t *testing.T, opts Options) *Learner {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = fixedClock
	}
	l, err := New(opts)
	require.NoError(t, err)
	return l
}

func seedFeeState(t *testing.T, store storage.StateStore) {
	t.Helper()
	prior := domain.NewMultiplierTable(map[domain.GateState]float64{
		classify.GoodEdge:   1.0,
		classify.NegativeEV: 0.3,
	})
	require.NoError(t, store.Save(context.Background(), "fee", prior))
}

func TestLearner_FeeScenario(t *testing.T) {
	state := memory.NewStateStore()
	seedFeeState(t, state)

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, feeScenario()),
		State:     state,
		Apply:     true,
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.LearnerUpdated, result.Status)
	assert.Equal(t, 10, result.Trades)
	assert.Equal(t, 0, result.Dropped)
	assert.Equal(t, 1, result.Changes())
	assert.True(t, result.Persisted)

	saved, err := state.Load(context.Background(), "fee")
	require.NoError(t, err)
	assert.InDelta(t, 1.024, saved.Multipliers[classify.GoodEdge], 1e-9)
	assert.Equal(t, 0.3, saved.Multipliers[classify.NegativeEV])
	assert.Equal(t, 0.6, saved.Multipliers[classify.InsufficientBuffer], "missing state takes its default")

	assert.Equal(t, domain.BucketUpdated, saved.Stats[classify.GoodEdge].Status)
	assert.Equal(t, 7, saved.Stats[classify.GoodEdge].Count)
	assert.InDelta(t, 0.8, saved.Stats[classify.GoodEdge].AvgROI, 1e-9)
	assert.Equal(t, domain.BucketInsufficientData, saved.Stats[classify.NegativeEV].Status)
	assert.Equal(t, 3, saved.Stats[classify.NegativeEV].Count)
	assert.Equal(t, 10, saved.TradesAnalyzed)
	assert.Equal(t, runTime, saved.UpdatedAt)
	require.Len(t, saved.History, 1)
	assert.InDelta(t, 1.024, saved.History[0].Multipliers[classify.GoodEdge], 1e-9)
}

func TestLearner_FeeGateScenario(t *testing.T) {
	state := memory.NewStateStore()
	prior := domain.NewMultiplierTable(map[domain.GateState]float64{
		classify.GoodEdge:   1.0,
		classify.NegativeEV: 0.3,
	})
	require.NoError(t, state.Save(context.Background(), "fee_gate", prior))

	l := newLearner(t, Options{
		Dimension: classify.FeeGate(),
		Trades:    newTradeStore(t, feeScenario()),
		State:     state,
		Apply:     true,
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LearnerUpdated, result.Status)
	assert.Equal(t, 1, result.Changes())

	saved, err := state.Load(context.Background(), "fee_gate")
	require.NoError(t, err)
	assert.InDelta(t, 1.024, saved.Multipliers[classify.GoodEdge], 1e-9)
	assert.Equal(t, 0.3, saved.Multipliers[classify.NegativeEV])
}

func TestLearner_FeeGateConvergesWithinClamp(t *testing.T) {
	var trades []*domain.TradeRecord
	for i := 0; i < 7; i++ {
		trades = append(trades, feeTrade("g"+string(rune('0'+i)), classify.GoodEdge, 2, time.Duration(i+1)*time.Hour))
	}
	for i := 0; i < 3; i++ {
		trades = append(trades, feeTrade("n"+string(rune('0'+i)), classify.NegativeEV, 2, time.Duration(i+10)*time.Hour))
	}

	dim := classify.FeeGate()
	state := memory.NewStateStore()
	l := newLearner(t, Options{Dimension: dim, Trades: newTradeStore(t, trades), State: state, Apply: true})

	clamp := dim.ClampFor(classify.GoodEdge)
	previous := dim.Defaults[classify.GoodEdge]
	var last *domain.LearnerResult
	for i := 0; i < 40; i++ {
		r, err := l.Run(context.Background())
		require.NoError(t, err)
		last = r

		got := r.Table.Multipliers[classify.GoodEdge]
		if got < previous {
			t.Fatalf("run %d: good_edge moved down on winning trades: %v -> %v", i, previous, got)
		}
		if !clamp.Contains(got) || got > 1.1 {
			t.Fatalf("run %d: good_edge %v outside %+v", i, got, clamp)
		}
		previous = got
	}

	assert.Equal(t, domain.LearnerNoChanges, last.Status, "winning runs settle below the ceiling")
	assert.Greater(t, previous, 1.0)
	assert.Equal(t, 0.3, last.Table.Multipliers[classify.NegativeEV], "3 trades stay below the minimum sample")
}

func TestLearner_EmptyBucketDropsStaleStats(t *testing.T) {
	state := memory.NewStateStore()
	prior := domain.NewMultiplierTable(map[domain.GateState]float64{
		classify.GoodEdge:           1.0,
		classify.NegativeEV:         0.3,
		classify.InsufficientBuffer: 0.6,
	})
	prior.Stats[classify.InsufficientBuffer] = domain.BucketSnapshot{
		Count: 9, WinRate: 0.8, Status: domain.BucketUpdated,
	}
	require.NoError(t, state.Save(context.Background(), "fee", prior))

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, feeScenario()),
		State:     state,
		Apply:     true,
	})
	result, err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.LearnerUpdated, result.Status)

	saved, err := state.Load(context.Background(), "fee")
	require.NoError(t, err)
	_, ok := saved.Stats[classify.InsufficientBuffer]
	assert.False(t, ok, "bucket without trades in the window keeps no stats")
	assert.Equal(t, 0.6, saved.Multipliers[classify.InsufficientBuffer])
	assert.Equal(t, 7, saved.Stats[classify.GoodEdge].Count)
}

func TestLearner_Idempotence(t *testing.T) {
	ctx := context.Background()
	trades := newTradeStore(t, feeScenario())

	// Same prior state and same trades give byte-identical output.
	var outputs [][]byte
	for i := 0; i < 2; i++ {
		dir := t.TempDir()
		state := jsonfile.NewStateStore(dir)
		seedFeeState(t, state)

		l := newLearner(t, Options{Dimension: classify.Fee(), Trades: trades, State: state, Apply: true})
		_, err := l.Run(ctx)
		require.NoError(t, err)

		data, err := os.ReadFile(state.Path("fee"))
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.Equal(t, outputs[0], outputs[1])

	// Once converged, further runs leave the file untouched.
	state := jsonfile.NewStateStore(t.TempDir())
	seedFeeState(t, state)
	l := newLearner(t, Options{Dimension: classify.Fee(), Trades: trades, State: state, Apply: true})

	var last *domain.LearnerResult
	for i := 0; i < 20; i++ {
		r, err := l.Run(ctx)
		require.NoError(t, err)
		last = r
		if r.Status == domain.LearnerNoChanges {
			break
		}
	}
	require.Equal(t, domain.LearnerNoChanges, last.Status)

	before, err := os.ReadFile(state.Path("fee"))
	require.NoError(t, err)
	r, err := l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LearnerNoChanges, r.Status)
	assert.False(t, r.Persisted)
	after, err := os.ReadFile(state.Path("fee"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLearner_NoData(t *testing.T) {
	state := memory.NewStateStore()

	stale := feeTrade("old", classify.GoodEdge, 1, 30*24*time.Hour)
	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, []*domain.TradeRecord{stale}),
		State:     state,
		Apply:     true,
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LearnerNoData, result.Status)
	assert.Nil(t, result.Table)
	assert.Equal(t, 0, state.SaveCount("fee"))
}

func TestLearner_MissingTradeFile(t *testing.T) {
	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    jsonfile.NewPositionsStore(t.TempDir() + "/positions_futures.json"),
		State:     memory.NewStateStore(),
		Apply:     true,
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LearnerNoData, result.Status)
}

func TestLearner_DryRun(t *testing.T) {
	state := memory.NewStateStore()
	seedFeeState(t, state)

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, feeScenario()),
		State:     state,
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LearnerUpdated, result.Status)
	assert.False(t, result.Persisted)
	assert.InDelta(t, 1.024, result.Table.Multipliers[classify.GoodEdge], 1e-9)
	assert.Equal(t, 1, state.SaveCount("fee"), "only the seed write")
}

func TestLearner_CorruptStateUsesDefaults(t *testing.T) {
	state := memory.NewStateStore()
	state.FailLoad("fee", storage.ErrCorrupt)

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, feeScenario()),
		State:     state,
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)
	for _, d := range result.Decisions {
		assert.Equal(t, classify.Fee().Defaults[d.State], d.Previous, "state %s", d.State)
	}
}

func TestLearner_MalformedTrade(t *testing.T) {
	trades := feeScenario()
	trades = append(trades, feeTrade("bad", classify.GoodEdge, math.NaN(), 2*time.Hour))

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, trades),
		State:     memory.NewStateStore(),
		Apply:     true,
	})

	_, err := l.Run(context.Background())
	assert.True(t, errors.Is(err, metrics.ErrMalformedTrade), "got %v", err)
}

func TestLearner_Locked(t *testing.T) {
	state := memory.NewStateStore()
	unlock, err := state.Lock(context.Background(), "fee")
	require.NoError(t, err)
	defer unlock()

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, feeScenario()),
		State:     state,
		Locker:    state,
		Apply:     true,
	})

	_, err = l.Run(context.Background())
	assert.True(t, IsLocked(err), "got %v", err)
	assert.Equal(t, 0, state.SaveCount("fee"))
}

func TestLearner_DroppedCount(t *testing.T) {
	trades := feeScenario()
	unlabeled := feeTrade("u1", "", 1, time.Hour)
	unlabeled.Gates = nil
	trades = append(trades, unlabeled)

	l := newLearner(t, Options{
		Dimension: classify.Fee(),
		Trades:    newTradeStore(t, trades),
		State:     memory.NewStateStore(),
	})

	result, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, result.Trades)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, result.Table.Dropped)
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(Options{Dimension: classify.Fee()})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
