// Package config loads the learner configuration from an optional YAML file
// and GATE_LEARNER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"gate-learner/internal/classify"
	"gate-learner/internal/logging"
)

// EnvPrefix is the prefix of environment overrides, e.g. GATE_LEARNER_LEARNING_ALPHA.
const EnvPrefix = "GATE_LEARNER"

// Trade sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config is the effective configuration of one invocation.
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths" yaml:"paths"`
	Learning   LearningConfig   `mapstructure:"learning" yaml:"learning"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Postgres   PostgresConfig   `mapstructure:"postgres" yaml:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse" yaml:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

type PathsConfig struct {
	PositionsFile   string `mapstructure:"positions_file" yaml:"positions_file"`
	FeatureStoreDir string `mapstructure:"feature_store_dir" yaml:"feature_store_dir"`
	DecisionsFile   string `mapstructure:"decisions_file" yaml:"decisions_file"`
	SignalsFile     string `mapstructure:"signals_file" yaml:"signals_file"`
}

type LearningConfig struct {
	LookbackDays  int      `mapstructure:"lookback_days" yaml:"lookback_days"`
	LookbackHours int      `mapstructure:"lookback_hours" yaml:"lookback_hours"`
	MaxTrades     int      `mapstructure:"max_trades" yaml:"max_trades"`
	Alpha         float64  `mapstructure:"alpha" yaml:"alpha"`
	Learners      []string `mapstructure:"learners" yaml:"learners"`
	TradeSource   string   `mapstructure:"trade_source" yaml:"trade_source"`
}

// Lookback returns the trade window length.
func (c LearningConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays)*24*time.Hour + time.Duration(c.LookbackHours)*time.Hour
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// PostgresConfig enables the closed_positions source and run history when DSN is set.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// ClickHouseConfig enables bucket snapshot analytics when DSN is set.
type ClickHouseConfig struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Database string `mapstructure:"database" yaml:"database"`
}

// RedisConfig enables publishing committed tables when Addr is set.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	Channel   string `mapstructure:"channel" yaml:"channel"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Textfile  string `mapstructure:"textfile" yaml:"textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.positions_file", "positions_futures.json")
	v.SetDefault("paths.feature_store_dir", "feature_store")
	v.SetDefault("paths.decisions_file", "enriched_decisions.jsonl")
	v.SetDefault("paths.signals_file", "signals.jsonl")

	v.SetDefault("learning.lookback_days", 7)
	v.SetDefault("learning.lookback_hours", 0)
	v.SetDefault("learning.max_trades", 0)
	v.SetDefault("learning.alpha", 0.3)
	v.SetDefault("learning.learners", []string{})
	v.SetDefault("learning.trade_source", SourceFile)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("clickhouse.database", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "learner-updates")
	v.SetDefault("redis.key_prefix", "learner:")

	v.SetDefault("metrics.namespace", "gate_learner")
	v.SetDefault("metrics.textfile", "")
}

// Load reads path (optional) over built-in defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.normalize()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	var learners []string
	for _, name := range c.Learning.Learners {
		for _, part := range strings.Split(name, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				learners = append(learners, part)
			}
		}
	}
	c.Learning.Learners = learners
	c.Learning.TradeSource = strings.ToLower(strings.TrimSpace(c.Learning.TradeSource))
}

func validate(cfg *Config) error {
	if cfg.Paths.PositionsFile == "" {
		return fmt.Errorf("paths.positions_file cannot be empty")
	}
	if cfg.Paths.FeatureStoreDir == "" {
		return fmt.Errorf("paths.feature_store_dir cannot be empty")
	}
	if cfg.Learning.LookbackDays < 0 || cfg.Learning.LookbackHours < 0 {
		return fmt.Errorf("learning lookback cannot be negative")
	}
	if cfg.Learning.Lookback() <= 0 {
		return fmt.Errorf("learning lookback must be positive")
	}
	if cfg.Learning.MaxTrades < 0 {
		return fmt.Errorf("learning.max_trades cannot be negative")
	}
	if cfg.Learning.Alpha <= 0 || cfg.Learning.Alpha > 1 {
		return fmt.Errorf("learning.alpha must be in (0, 1], got %v", cfg.Learning.Alpha)
	}
	for _, name := range cfg.Learning.Learners {
		if _, err := classify.Lookup(name); err != nil {
			return fmt.Errorf("learning.learners: %w", err)
		}
	}
	switch cfg.Learning.TradeSource {
	case SourceFile:
	case SourcePostgres:
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("learning.trade_source postgres requires postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown learning.trade_source %q", cfg.Learning.TradeSource)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Format) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log.format %q", cfg.Log.Format)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Channel == "" {
		return fmt.Errorf("redis.channel cannot be empty when redis.addr is set")
	}
	return nil
}

// Dump renders the effective config as YAML with secrets masked.
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	masked.Postgres.DSN = maskDSN(masked.Postgres.DSN)
	masked.ClickHouse.DSN = maskDSN(masked.ClickHouse.DSN)
	return yaml.Marshal(&masked)
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:scheme+3] + creds[:colon] + ":***" + dsn[at:]
}
