// Package app wires configuration into stores, mirrors and learners for the
// command line tools.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"gate-learner/internal/classify"
	"gate-learner/internal/config"
	"gate-learner/internal/learning"
	"gate-learner/internal/observability"
	"gate-learner/internal/orchestrator"
	"gate-learner/internal/storage"
	chstore "gate-learner/internal/storage/clickhouse"
	"gate-learner/internal/storage/jsonfile"
	"gate-learner/internal/storage/migrations"
	pgstore "gate-learner/internal/storage/postgres"
	"gate-learner/internal/storage/redisstate"
)

// Runtime holds the opened backends of one invocation.
type Runtime struct {
	Config *config.Config

	Trades    storage.TradeStore
	State     *jsonfile.StateStore
	Locker    *jsonfile.FileLocker
	Runs      storage.LearnerRunStore     // nil unless postgres.dsn is set
	Snapshots storage.BucketSnapshotStore // nil unless clickhouse.dsn is set
	Publisher *redisstate.Publisher       // nil unless redis.addr is set
	Metrics   *observability.Metrics

	pool    *pgstore.Pool
	closers []func()
}

// Open connects the configured backends. The trade source is required and
// its failure is returned; an unreachable mirror is logged and left disabled.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger := log.With().Str("component", "app").Logger()

	rt := &Runtime{
		Config:  cfg,
		State:   jsonfile.NewStateStore(cfg.Paths.FeatureStoreDir),
		Locker:  jsonfile.NewFileLocker(cfg.Paths.FeatureStoreDir),
		Metrics: observability.NewMetrics(cfg.Metrics.Namespace),
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err == nil {
			if err = migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
			}
		}
		switch {
		case err == nil:
			rt.pool = pool
			rt.closers = append(rt.closers, pool.Close)
			rt.Runs = pgstore.NewLearnerRunStore(pool)
		case cfg.Learning.TradeSource == config.SourcePostgres:
			return nil, fmt.Errorf("open postgres trade source: %w", err)
		default:
			logger.Warn().Err(err).Msg("postgres unavailable, run history disabled")
			rt.Metrics.RecordMirrorError("learner_runs")
		}
	}

	switch cfg.Learning.TradeSource {
	case config.SourcePostgres:
		rt.Trades = pgstore.NewClosedPositionStore(rt.pool)
	default:
		rt.Trades = jsonfile.NewPositionsStore(cfg.Paths.PositionsFile)
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			logger.Warn().Err(err).Msg("clickhouse unavailable, bucket snapshots disabled")
			rt.Metrics.RecordMirrorError("bucket_snapshots")
		} else {
			rt.closers = append(rt.closers, func() { conn.Close() })
			rt.Snapshots = chstore.NewBucketSnapshotStore(conn)
		}
	}

	if cfg.Redis.Addr != "" {
		pub, err := redisstate.Connect(ctx, redisstate.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Channel:   cfg.Redis.Channel,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, publishing disabled")
			rt.Metrics.RecordMirrorError("publish")
		} else {
			rt.closers = append(rt.closers, func() { pub.Close() })
			rt.Publisher = pub
		}
	}

	return rt, nil
}

// Close releases every opened backend.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// RunOptions selects what one batch does.
type RunOptions struct {
	Only      []string // learner names, empty for the configured or full set
	Lookback  time.Duration
	MaxTrades int
	Apply     bool
	Clock     func() time.Time
}

// Learners builds the selected learners in run order.
func (rt *Runtime) Learners(opts RunOptions) ([]orchestrator.Runner, error) {
	names := opts.Only
	if len(names) == 0 {
		names = rt.Config.Learning.Learners
	}
	if len(names) == 0 {
		names = classify.Names()
	}

	selected := make(map[string]bool, len(names))
	for _, n := range names {
		if _, err := classify.Lookup(n); err != nil {
			return nil, err
		}
		selected[n] = true
	}

	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = rt.Config.Learning.Lookback()
	}
	maxTrades := opts.MaxTrades
	if maxTrades <= 0 {
		maxTrades = rt.Config.Learning.MaxTrades
	}

	var runners []orchestrator.Runner
	for _, dim := range classify.All() {
		if !selected[dim.Name] {
			continue
		}
		l, err := learning.New(learning.Options{
			Dimension: dim,
			Trades:    rt.Trades,
			State:     rt.State,
			Locker:    rt.Locker,
			Window:    learning.Window{Lookback: lookback, MaxTrades: maxTrades},
			Alpha:     rt.Config.Learning.Alpha,
			Apply:     opts.Apply,
			Clock:     opts.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("create learner %s: %w", dim.Name, err)
		}
		runners = append(runners, l)
	}
	return runners, nil
}

// Orchestrator builds the batch runner with every enabled mirror.
// Dry runs never mirror.
func (rt *Runtime) Orchestrator(runners []orchestrator.Runner, opts RunOptions) *orchestrator.Orchestrator {
	o := orchestrator.Options{
		Learners: runners,
		Metrics:  rt.Metrics,
		Clock:    opts.Clock,
	}
	if opts.Apply {
		o.Runs = rt.Runs
		o.Snapshots = rt.Snapshots
		if rt.Publisher != nil {
			o.Publisher = rt.Publisher
		}
	}
	return orchestrator.New(o)
}

// FlushMetrics writes the metrics textfile when configured.
func (rt *Runtime) FlushMetrics() error {
	path := rt.Config.Metrics.Textfile
	if path == "" {
		return nil
	}
	if err := rt.Metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// DecisionSource returns the JSONL stream named by the --file value:
// "decisions", "signals" or an explicit path.
func (rt *Runtime) DecisionSource(file string) (*jsonfile.DecisionLog, string) {
	path := file
	switch file {
	case "", "decisions":
		path = rt.Config.Paths.DecisionsFile
	case "signals":
		path = rt.Config.Paths.SignalsFile
	}
	return jsonfile.NewDecisionLog(path), path
}

// EnsureStateDir creates the feature store directory.
func (rt *Runtime) EnsureStateDir() error {
	if err := os.MkdirAll(rt.Config.Paths.FeatureStoreDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", rt.Config.Paths.FeatureStoreDir, err)
	}
	return nil
}
