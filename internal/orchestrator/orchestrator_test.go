package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gate-learner/internal/classify"
	"gate-learner/internal/domain"
	"gate-learner/internal/learning"
	"gate-learner/internal/storage"
	"gate-learner/internal/storage/jsonfile"
	"gate-learner/internal/storage/memory"
)

var runTime = time.Date(2025, 3, 8, 2, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return runTime }

// positionsJSON renders n winning closed positions tagged for every gate,
// plus an optional malformed record.
func positionsJSON(n int, malformed bool) string {
	var entries []string
	for i := 0; i < n; i++ {
		closed := runTime.Add(-time.Duration(i+1) * time.Hour)
		entries = append(entries, fmt.Sprintf(`{
			"position_id": "p%d", "symbol": "BTCUSDT", "direction": "LONG",
			"pnl": 1.0, "margin_collateral": 100,
			"opened_at": %q, "closed_at": %q,
			"fee_gate_state": "good_edge", "intel_reason": "aligned with intel",
			"regime_state": "match", "roi_mult": 1.1
		}`, i, closed.Add(-30*time.Minute).Format(time.RFC3339), closed.Format(time.RFC3339)))
	}
	if malformed {
		entries = append(entries, fmt.Sprintf(`{
			"position_id": "bad", "symbol": "ETHUSDT", "direction": "SHORT",
			"pnl": "not-a-number", "margin_collateral": 100,
			"closed_at": %q, "fee_gate_state": "good_edge"
		}`, runTime.Add(-30*time.Minute).Format(time.RFC3339)))
	}
	return `{"open_positions": [], "closed_positions": [` + strings.Join(entries, ",") + `]}`
}

func writePositions(t *testing.T, content string) *jsonfile.PositionsStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions_futures.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write positions: %v", err)
	}
	return jsonfile.NewPositionsStore(path)
}

func newLearner(t *testing.T, dim *classify.Dimension, trades storage.TradeStore, state *memory.StateStore) *learning.Learner {
	t.Helper()
	l, err := learning.New(learning.Options{
		Dimension: dim,
		Trades:    trades,
		State:     state,
		Locker:    state,
		Apply:     true,
		Clock:     fixedClock,
	})
	if err != nil {
		t.Fatalf("create learner %s: %v", dim.Name, err)
	}
	return l
}

type panicRunner struct{}

func (panicRunner) Name() string                   { return "exploding" }
func (panicRunner) Window() (time.Time, time.Time) { return runTime.Add(-time.Hour), runTime }
func (panicRunner) Run(context.Context) (*domain.LearnerResult, error) {
	panic("classifier bug")
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, learner string, _ *domain.MultiplierTable) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, learner)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, *domain.MultiplierTable) error {
	return fmt.Errorf("connection refused")
}

func TestOrchestrator_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	state := memory.NewStateStore()
	good := writePositions(t, positionsJSON(6, false))
	bad := writePositions(t, positionsJSON(6, true))

	runners := []Runner{
		newLearner(t, classify.FeeGate(), bad, state),
		panicRunner{},
		newLearner(t, classify.HoldTime(), good, state),
		newLearner(t, classify.Intel(), good, state),
		newLearner(t, classify.Regime(), good, state),
		newLearner(t, classify.ROI(), good, state),
	}

	runs := memory.NewLearnerRunStore()
	snapshots := memory.NewBucketSnapshotStore()
	publisher := &recordingPublisher{}

	orch := New(Options{
		Learners:  runners,
		Runs:      runs,
		Snapshots: snapshots,
		Publisher: publisher,
		Clock:     fixedClock,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(result.Results) != len(runners) {
		t.Fatalf("expected %d results, got %d", len(runners), len(result.Results))
	}
	if result.Failed != 2 {
		t.Errorf("expected 2 failed learners, got %d (%v)", result.Failed, result.Errors)
	}

	byName := make(map[string]*domain.LearnerResult)
	for _, r := range result.Results {
		byName[r.Learner] = r
	}

	if r := byName["fee_gate"]; r.Status != domain.LearnerError || !strings.Contains(r.Error, "malformed") {
		t.Errorf("fee_gate: expected malformed trade error, got %s %q", r.Status, r.Error)
	}
	if r := byName["exploding"]; r.Status != domain.LearnerError || !strings.Contains(r.Error, "classifier bug") {
		t.Errorf("exploding: expected recovered panic, got %s %q", r.Status, r.Error)
	}

	for _, name := range []string{"hold_time", "intel", "regime", "roi"} {
		r := byName[name]
		if r.Status != domain.LearnerUpdated {
			t.Errorf("%s: expected updated, got %s (%s)", name, r.Status, r.Error)
		}
		if !r.Persisted {
			t.Errorf("%s: expected persisted table", name)
		}
		if state.SaveCount(name) != 1 {
			t.Errorf("%s: expected 1 save, got %d", name, state.SaveCount(name))
		}
	}
	if state.SaveCount("fee_gate") != 0 {
		t.Error("failed learner must not write state")
	}

	if len(publisher.published) != 4 {
		t.Errorf("expected 4 published tables, got %v", publisher.published)
	}

	history, err := runs.GetByLearner(ctx, "fee_gate")
	if err != nil || len(history) != 1 || history[0].Status != domain.LearnerError {
		t.Errorf("expected fee_gate error run recorded, got %+v (%v)", history, err)
	}
	rows, err := snapshots.GetByLearner(ctx, "intel")
	if err != nil || len(rows) != len(classify.Intel().States) {
		t.Errorf("expected one snapshot per intel state, got %d (%v)", len(rows), err)
	}
}

func TestOrchestrator_RerunDoesNotDuplicateHistory(t *testing.T) {
	ctx := context.Background()
	state := memory.NewStateStore()
	good := writePositions(t, positionsJSON(6, false))
	runs := memory.NewLearnerRunStore()
	snapshots := memory.NewBucketSnapshotStore()

	orch := New(Options{
		Learners:  []Runner{newLearner(t, classify.HoldTime(), good, state)},
		Runs:      runs,
		Snapshots: snapshots,
		Clock:     fixedClock,
	})

	for i := 0; i < 2; i++ {
		result, err := orch.Run(ctx)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(result.Errors) != 0 {
			t.Errorf("run %d: unexpected errors %v", i, result.Errors)
		}
	}

	history, _ := runs.GetByLearner(ctx, "hold_time")
	if len(history) != 1 {
		t.Errorf("expected 1 recorded run for the same window, got %d", len(history))
	}
}

func TestOrchestrator_MirrorFailureKeepsStatus(t *testing.T) {
	state := memory.NewStateStore()
	good := writePositions(t, positionsJSON(6, false))

	orch := New(Options{
		Learners:  []Runner{newLearner(t, classify.Regime(), good, state)},
		Publisher: failingPublisher{},
		Clock:     fixedClock,
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Results[0].Status != domain.LearnerUpdated {
		t.Errorf("expected updated, got %s", result.Results[0].Status)
	}
	if result.Failed != 0 || len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "publish") {
		t.Errorf("expected one publish error, got failed=%d errors=%v", result.Failed, result.Errors)
	}
}

func TestOrchestrator_NoData(t *testing.T) {
	state := memory.NewStateStore()
	missing := jsonfile.NewPositionsStore(filepath.Join(t.TempDir(), "positions_futures.json"))

	var runners []Runner
	for _, dim := range classify.All() {
		runners = append(runners, newLearner(t, dim, missing, state))
	}

	result, err := New(Options{Learners: runners, Clock: fixedClock}).Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.NoData != 10 || result.Failed != 0 {
		t.Errorf("expected 10 no_data results, got no_data=%d failed=%d", result.NoData, result.Failed)
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(Options{Learners: []Runner{panicRunner{}}}).Run(ctx)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("expected no results, got %d", len(result.Results))
	}
}
