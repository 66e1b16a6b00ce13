// Command learner runs the nightly gate multiplier learners.
//
//	learner run [--days N] [--hours H] [--trades N] [--apply] [--only a,b]
//	learner show <learner>
//	learner config
//	learner migrate
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gate-learner/internal/config"
	"gate-learner/internal/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(time.Now).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(clock func() time.Time) *cobra.Command {
	flags := &rootFlags{}
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "learner",
		Short:         "Learn gate sizing multipliers from closed trades",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flags.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = flags.logFormat
			}
			if err := logging.Setup(loaded.Log.Level, loaded.Log.Format); err != nil {
				return err
			}
			cfg = loaded
			log.Debug().Str("config", flags.configPath).Msg("configuration loaded")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("GATE_LEARNER_CONFIG"), "path to learner.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (console, json)")

	getConfig := func() *config.Config { return cfg }
	root.AddCommand(
		newRunCmd(getConfig, clock),
		newShowCmd(getConfig),
		newConfigCmd(getConfig),
		newMigrateCmd(getConfig),
	)
	return root
}
