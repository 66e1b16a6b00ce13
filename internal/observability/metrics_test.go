package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gate-learner/internal/domain"
)

func textfile(t *testing.T, m *Metrics) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate_learner.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("textfile missing %q:\n%s", w, out)
		}
	}
}

func TestRecordLearnerRun(t *testing.T) {
	m := NewMetrics("test")

	table := domain.NewMultiplierTable(map[domain.GateState]float64{"good_edge": 1.024, "negative_ev": 0.3})
	m.RecordLearnerRun(&domain.LearnerResult{
		Learner: "fee",
		Status:  domain.LearnerUpdated,
		Trades:  10,
		Dropped: 2,
		Decisions: []domain.BucketDecision{
			{State: "good_edge", Status: domain.BucketUpdated},
			{State: "negative_ev", Status: domain.BucketInsufficientData},
		},
		Table: table,
	}, 150*time.Millisecond)
	m.RecordLearnerRun(&domain.LearnerResult{Learner: "roi", Status: domain.LearnerError}, time.Millisecond)

	out := textfile(t, m)
	assertContains(t, out,
		`test_learner_runs_total{learner="fee",status="updated"} 1`,
		`test_learner_runs_total{learner="roi",status="error"} 1`,
		`test_learner_bucket_changes_total{learner="fee"} 1`,
		`test_learner_trades_analyzed{learner="fee"} 10`,
		`test_learner_trades_dropped{learner="fee"} 2`,
		`test_learner_multiplier{learner="fee",state="good_edge"} 1.024`,
		`test_learner_multiplier{learner="fee",state="negative_ev"} 0.3`,
		`test_learner_run_duration_seconds_count{learner="fee"} 1`,
	)

	if strings.Contains(out, `test_learner_trades_analyzed{learner="roi"}`) {
		t.Error("error results must not set trade gauges")
	}
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics("")
	m.RecordMirrorError("redis")
	m.RecordSkippedLines("enriched_decisions.jsonl", 3)
	m.MarkRun(time.Unix(1741399200, 0))

	assertContains(t, textfile(t, m),
		`gate_learner_mirror_errors_total{sink="redis"} 1`,
		`gate_learner_input_lines_skipped_total{source="enriched_decisions.jsonl"} 3`,
		`gate_learner_health_last_run_timestamp 1.7413992e+09`,
	)
}
