package reporting

import (
	"fmt"
	"strings"
)

// RenderRunCSV renders one row per bucket decision.
func RenderRunCSV(r *RunReport) string {
	var sb strings.Builder

	sb.WriteString("learner,learner_status,state,bucket_status,count,win_rate,avg_roi_pct,total_pnl,")
	sb.WriteString("previous,proposed,committed\n")

	for _, res := range r.Results {
		for _, d := range res.Decisions {
			sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
				res.Learner, res.Status, d.State, d.Status,
				d.Stats.Count, d.Stats.WinRate, d.Stats.AvgROIPct, d.Stats.TotalPnL,
				d.Previous, d.Proposed, d.Committed,
			))
		}
	}

	return sb.String()
}

// RenderTradesCSV renders trade slices as CSV.
func RenderTradesCSV(r *TradeReport) string {
	var sb strings.Builder

	sb.WriteString("key,trades,wins,losses,win_rate,total_pnl,expectancy,avg_win,avg_loss,")
	sb.WriteString("risk_reward,profit_factor,median_pnl,max_drawdown,max_consecutive_losses\n")

	for _, s := range r.Slices {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
			csvField(s.Key), s.Trades, s.Wins, s.Losses, s.WinRate, s.TotalPnL, s.Expectancy,
			s.AvgWin, s.AvgLoss, s.RiskReward, s.ProfitFactor, s.MedianPnL, s.MaxDrawdown,
			s.MaxConsecutiveLosses,
		))
	}

	return sb.String()
}

// RenderDecisionsCSV renders decision slices as CSV.
func RenderDecisionsCSV(r *DecisionReport) string {
	var sb strings.Builder

	sb.WriteString("key,events,executed,with_outcome,wins,win_rate,avg_outcome,total_outcome\n")
	for _, s := range r.Slices {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%.6f,%.6f,%.6f\n",
			csvField(s.Key), s.Events, s.Executed, s.WithOutcome, s.Wins, s.WinRate, s.AvgOutcome, s.TotalOutcome))
	}

	return sb.String()
}

// csvField quotes keys that contain separators.
func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
