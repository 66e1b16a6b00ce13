// Command report prints descriptive slices of closed trades and decision streams.
//
//	report trades [--days N] [--by symbol|direction|session|hold|strategy]
//	report decisions [--file decisions|signals|PATH] [--by ofi|regime]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gate-learner/internal/app"
	"gate-learner/internal/config"
	"gate-learner/internal/logging"
	"gate-learner/internal/reporting"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(time.Now).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(clock func() time.Time) *cobra.Command {
	var (
		configPath string
		format     string
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "report",
		Short:         "Descriptive performance slices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if format != "markdown" && format != "csv" {
				return fmt.Errorf("unknown --format %q", format)
			}
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := logging.Setup(loaded.Log.Level, loaded.Log.Format); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GATE_LEARNER_CONFIG"), "path to learner.yaml")
	root.PersistentFlags().StringVar(&format, "format", "markdown", "output format (markdown, csv)")

	var (
		days int
		by   string
	)
	trades := &cobra.Command{
		Use:   "trades",
		Short: "Slice closed trades by symbol, direction, session, hold time or strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			rt, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			r, err := reporting.NewGenerator(rt.Trades, nil).
				WithClock(func() time.Time { return clock().UTC() }).
				Trades(cmd.Context(), time.Duration(days)*24*time.Hour, by)
			if err != nil {
				return err
			}
			if format == "csv" {
				fmt.Fprint(cmd.OutOrStdout(), reporting.RenderTradesCSV(r))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), reporting.RenderTradesMarkdown(r))
			}
			return nil
		},
	}
	trades.Flags().IntVar(&days, "days", 7, "lookback in days")
	trades.Flags().StringVar(&by, "by", reporting.BySymbol, "slice key (symbol, direction, session, hold, strategy)")

	var (
		file       string
		decisionBy string
	)
	decisions := &cobra.Command{
		Use:   "decisions",
		Short: "Slice a JSONL decision stream by OFI bucket or regime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			src, path := rt.DecisionSource(file)
			r, err := reporting.NewGenerator(nil, src).
				WithClock(func() time.Time { return clock().UTC() }).
				Decisions(cmd.Context(), path, decisionBy)
			if err != nil {
				return err
			}
			rt.Metrics.RecordSkippedLines(filepath.Base(path), r.Skipped)

			if format == "csv" {
				fmt.Fprint(cmd.OutOrStdout(), reporting.RenderDecisionsCSV(r))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), reporting.RenderDecisionsMarkdown(r))
			}
			return rt.FlushMetrics()
		},
	}
	decisions.Flags().StringVar(&file, "file", "decisions", "stream: decisions, signals or a path")
	decisions.Flags().StringVar(&decisionBy, "by", reporting.ByOFI, "slice key (ofi, regime)")

	root.AddCommand(trades, decisions)
	return root
}
