package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gate-learner/internal/app"
	"gate-learner/internal/config"
	"gate-learner/internal/reporting"
)

type runFlags struct {
	days   int
	hours  int
	trades int
	apply  bool
	only   []string
	format string
}

func newRunCmd(getConfig func() *config.Config, clock func() time.Time) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run learners over recent closed trades (dry run unless --apply)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLearners(cmd, getConfig(), flags, clock)
		},
	}

	cmd.Flags().IntVar(&flags.days, "days", 0, "lookback days; --days and --hours add up (both zero uses the config)")
	cmd.Flags().IntVar(&flags.hours, "hours", 0, "lookback hours added to --days")
	cmd.Flags().IntVar(&flags.trades, "trades", 0, "learn from at most the N most recent trades")
	cmd.Flags().BoolVar(&flags.apply, "apply", false, "persist committed multipliers")
	cmd.Flags().StringSliceVar(&flags.only, "only", nil, "comma separated learner names")
	cmd.Flags().StringVar(&flags.format, "format", "markdown", "output format (markdown, csv)")
	return cmd
}

// lookback is days plus hours, the same sum as learning.lookback_days and
// learning.lookback_hours. Zero defers to the config.
func (f *runFlags) lookback() time.Duration {
	return time.Duration(f.days)*24*time.Hour + time.Duration(f.hours)*time.Hour
}

func runLearners(cmd *cobra.Command, cfg *config.Config, flags *runFlags, clock func() time.Time) error {
	ctx := cmd.Context()

	if flags.days < 0 || flags.hours < 0 || flags.trades < 0 {
		return fmt.Errorf("--days, --hours and --trades cannot be negative")
	}
	if flags.format != "markdown" && flags.format != "csv" {
		return fmt.Errorf("unknown --format %q", flags.format)
	}

	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := app.RunOptions{
		Only:      flags.only,
		Lookback:  flags.lookback(),
		MaxTrades: flags.trades,
		Apply:     flags.apply,
		Clock:     clock,
	}
	if flags.apply {
		if err := rt.EnsureStateDir(); err != nil {
			return err
		}
	}

	runners, err := rt.Learners(opts)
	if err != nil {
		return err
	}

	result, runErr := rt.Orchestrator(runners, opts).Run(ctx)

	report := &reporting.RunReport{
		GeneratedAt: clock().UTC(),
		Apply:       flags.apply,
		Results:     result.Results,
		Errors:      result.Errors,
	}
	if len(runners) > 0 {
		report.WindowStart, report.WindowEnd = runners[0].Window()
	}

	out := cmd.OutOrStdout()
	if flags.format == "csv" {
		fmt.Fprint(out, reporting.RenderRunCSV(report))
	} else {
		fmt.Fprint(out, reporting.RenderRunMarkdown(report))
	}

	if err := rt.FlushMetrics(); err != nil {
		return err
	}
	return runErr
}
