package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gate-learner/internal/domain"
	"gate-learner/internal/metrics"
)

// RenderRunMarkdown renders a learner batch as Markdown.
func RenderRunMarkdown(r *RunReport) string {
	var sb strings.Builder

	mode := "apply"
	if !r.Apply {
		mode = "dry run"
	}

	sb.WriteString("# Learner Run\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s (%s)\n\n", r.GeneratedAt.Format(time.RFC3339), mode))
	if !r.WindowStart.IsZero() {
		sb.WriteString(fmt.Sprintf("Window: %s .. %s\n\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339)))
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Learner | Status | Trades | Dropped | Changes | Persisted |\n")
	sb.WriteString("|---------|--------|--------|---------|---------|-----------|\n")
	for _, res := range r.Results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %t |\n",
			res.Learner, res.Status, res.Trades, res.Dropped, res.Changes(), res.Persisted))
	}
	sb.WriteString("\n")

	for _, res := range r.Results {
		if len(res.Decisions) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", res.Learner))
		sb.WriteString("| State | Status | Count | WinRate | AvgROI% | TotalPnL | Previous | Proposed | Committed |\n")
		sb.WriteString("|-------|--------|-------|---------|---------|----------|----------|----------|-----------|\n")
		for _, d := range res.Decisions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
				d.State, d.Status, d.Stats.Count, d.Stats.WinRate, d.Stats.AvgROIPct, d.Stats.TotalPnL,
				d.Previous, d.Proposed, d.Committed))
		}
		sb.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderTableMarkdown renders a persisted multiplier table.
func RenderTableMarkdown(learner string, t *domain.MultiplierTable) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", learner))
	if t.UpdatedAt.IsZero() {
		sb.WriteString("Updated: never\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("Updated: %s\n\n", t.UpdatedAt.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("Trades analyzed: %d | Dropped: %d | History: %d\n\n", t.TradesAnalyzed, t.Dropped, len(t.History)))

	states := make([]string, 0, len(t.Multipliers))
	for s := range t.Multipliers {
		states = append(states, string(s))
	}
	sort.Strings(states)

	sb.WriteString("| State | Multiplier | Count | WinRate | AvgROI% | Status |\n")
	sb.WriteString("|-------|------------|-------|---------|---------|--------|\n")
	for _, s := range states {
		state := domain.GateState(s)
		snap, ok := t.Stats[state]
		if !ok {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | - | - | - | - |\n", s, t.Multipliers[state]))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %.4f | %d | %.4f | %.4f | %s |\n",
			s, t.Multipliers[state], snap.Count, snap.WinRate, snap.AvgROI, snap.Status))
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderTradesMarkdown renders trade slices as Markdown.
func RenderTradesMarkdown(r *TradeReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Trades by %s\n\n", r.By))
	sb.WriteString(fmt.Sprintf("Window: %s .. %s\n\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339)))

	if r.Total.Trades == 0 {
		sb.WriteString("No trades in window.\n")
		return sb.String()
	}

	sb.WriteString("| Key | Trades | WinRate | TotalPnL | Expectancy | AvgWin | AvgLoss | R:R | PF | Median | MaxDD | MaxLoss |\n")
	sb.WriteString("|-----|--------|---------|----------|------------|--------|---------|-----|----|--------|-------|---------|\n")
	for _, s := range r.Slices {
		writeSliceRow(&sb, s)
	}
	total := r.Total
	total.Key = "**all**"
	writeSliceRow(&sb, total)
	sb.WriteString("\n")

	if r.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("Skipped: %d trades without a key or with a non-numeric pnl.\n", r.Skipped))
	}

	return sb.String()
}

func writeSliceRow(sb *strings.Builder, s metrics.SliceStats) {
	sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.2f | %.2f | %.4f | %.4f | %d |\n",
		s.Key, s.Trades, s.WinRate, s.TotalPnL, s.Expectancy, s.AvgWin, s.AvgLoss,
		s.RiskReward, s.ProfitFactor, s.MedianPnL, s.MaxDrawdown, s.MaxConsecutiveLosses))
}

// RenderDecisionsMarkdown renders decision slices as Markdown.
func RenderDecisionsMarkdown(r *DecisionReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Decisions by %s\n\n", r.By))
	sb.WriteString(fmt.Sprintf("Source: %s | Events: %d | Skipped lines: %d\n\n", r.Source, r.Events, r.Skipped))

	if len(r.Slices) == 0 {
		sb.WriteString("No decisions available.\n")
		return sb.String()
	}

	sb.WriteString("| Key | Events | Executed | WithOutcome | WinRate | AvgOutcome | TotalOutcome |\n")
	sb.WriteString("|-----|--------|----------|-------------|---------|------------|--------------|\n")
	for _, s := range r.Slices {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.4f | %.4f | %.4f |\n",
			s.Key, s.Events, s.Executed, s.WithOutcome, s.WinRate, s.AvgOutcome, s.TotalOutcome))
	}
	sb.WriteString("\n")

	return sb.String()
}
