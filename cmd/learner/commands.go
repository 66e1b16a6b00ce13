package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gate-learner/internal/app"
	"gate-learner/internal/classify"
	"gate-learner/internal/config"
	"gate-learner/internal/domain"
	"gate-learner/internal/reporting"
	"gate-learner/internal/storage"
)

func newShowCmd(getConfig func() *config.Config) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "show <learner>",
		Short: "Print the persisted multiplier table of a learner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := getConfig()

			dim, err := classify.Lookup(args[0])
			if err != nil {
				return err
			}

			rt, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			var table *domain.MultiplierTable
			switch from {
			case "file":
				table, err = rt.State.Load(ctx, dim.Name)
			case "redis":
				if rt.Publisher == nil {
					return fmt.Errorf("redis is not configured or unreachable")
				}
				table, err = rt.Publisher.Load(ctx, dim.Name)
			default:
				return fmt.Errorf("unknown --from %q", from)
			}
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no persisted table, defaults apply\n\n", dim.Name)
				table, err = dim.DefaultTable(), nil
			}
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderTableMarkdown(dim.Name, table))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "file", "table source (file, redis)")
	return cmd
}

func newConfigCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := getConfig().Dump()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newMigrateCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse migrations for the configured mirrors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			if cfg.Postgres.DSN == "" && cfg.ClickHouse.DSN == "" {
				return fmt.Errorf("neither postgres.dsn nor clickhouse.dsn is set")
			}
			// Open applies migrations as part of connecting.
			rt, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if cfg.Postgres.DSN != "" && rt.Runs == nil {
				return fmt.Errorf("postgres migrations failed, see log")
			}
			if cfg.ClickHouse.DSN != "" && rt.Snapshots == nil {
				return fmt.Errorf("clickhouse migrations failed, see log")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
