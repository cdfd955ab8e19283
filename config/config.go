// Package config loads service configuration.
//
// Layers, lowest precedence first: Default(), the TOML file, a .env file in
// the working directory, PERF_* environment variables. Command-line flags
// are applied on top by cmd/server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/warp/performance-engine/scoring"
)

// Config holds all service configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Scoring    ScoringConfig    `toml:"scoring"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Redis      RedisConfig      `toml:"redis"`
	PubSub     PubSubConfig     `toml:"pubsub"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig selects the document store.
type DatabaseConfig struct {
	Path string `toml:"path"` // ":memory:" for an ephemeral database
}

// ScoringConfig controls period arithmetic and tiers.
type ScoringConfig struct {
	Timezone          string `toml:"timezone"`
	WeekStart         string `toml:"week_start"`
	SuperhumanMinimum int    `toml:"superhuman_minimum"`
	ExcellentMinimum  int    `toml:"excellent_minimum"`
}

// AggregatorConfig controls the leaderboard schedule.
type AggregatorConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  Duration `toml:"interval"`
	Exclusive bool     `toml:"exclusive"` // requires redis
	LockTTL   Duration `toml:"lock_ttl"`
}

// RedisConfig controls the leaderboard read cache.
type RedisConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// PubSubConfig controls the ActivityCreated transport. When disabled the
// goal fan-out runs inline in the creating request.
type PubSubConfig struct {
	Enabled      bool   `toml:"enabled"`
	ProjectID    string `toml:"project_id"`
	Topic        string `toml:"topic"`
	Subscription string `toml:"subscription"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or text
}

// Duration is a time.Duration read from strings like "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
			ShutdownTimeout: Duration{30 * time.Second},
		},
		Database: DatabaseConfig{Path: "performance.db"},
		Scoring: ScoringConfig{
			Timezone:          "UTC",
			WeekStart:         "monday",
			SuperhumanMinimum: scoring.DefaultTiers.Superhuman,
			ExcellentMinimum:  scoring.DefaultTiers.Excellent,
		},
		Aggregator: AggregatorConfig{
			Enabled:  true,
			Interval: Duration{5 * time.Minute},
			LockTTL:  Duration{4 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "perf",
		},
		PubSub: PubSubConfig{
			Topic:        "activity-created",
			Subscription: "activity-created-goals",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. A missing file at path falls back to
// defaults; an empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			}
		}
	}

	num("PERF_PORT", &c.Server.Port)
	str("PERF_DB_PATH", &c.Database.Path)
	str("PERF_TIMEZONE", &c.Scoring.Timezone)
	str("PERF_WEEK_START", &c.Scoring.WeekStart)
	flag("PERF_AGGREGATOR_ENABLED", &c.Aggregator.Enabled)
	dur("PERF_AGGREGATOR_INTERVAL", &c.Aggregator.Interval)
	flag("PERF_AGGREGATOR_EXCLUSIVE", &c.Aggregator.Exclusive)
	flag("PERF_REDIS_ENABLED", &c.Redis.Enabled)
	str("PERF_REDIS_ADDR", &c.Redis.Addr)
	str("PERF_REDIS_PASSWORD", &c.Redis.Password)
	num("PERF_REDIS_DB", &c.Redis.DB)
	flag("PERF_PUBSUB_ENABLED", &c.PubSub.Enabled)
	str("PERF_PUBSUB_PROJECT", &c.PubSub.ProjectID)
	str("PERF_PUBSUB_TOPIC", &c.PubSub.Topic)
	str("PERF_PUBSUB_SUBSCRIPTION", &c.PubSub.Subscription)
	str("PERF_LOG_LEVEL", &c.Logging.Level)
	str("PERF_LOG_FORMAT", &c.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks values that can't be caught by decoding.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseWeekday(c.Scoring.WeekStart); err != nil {
		return err
	}
	if c.Aggregator.Interval.Duration <= 0 {
		return fmt.Errorf("aggregator.interval must be positive")
	}
	if c.Scoring.ExcellentMinimum <= 0 || c.Scoring.SuperhumanMinimum < c.Scoring.ExcellentMinimum {
		return fmt.Errorf("scoring tiers must satisfy 0 < excellent_minimum <= superhuman_minimum")
	}
	if c.Aggregator.Exclusive && !c.Redis.Enabled {
		return fmt.Errorf("aggregator.exclusive requires redis.enabled")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub is enabled")
	}
	return nil
}

// Location returns the configured business time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scoring.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scoring.timezone: %w", err)
	}
	return loc, nil
}

// WeekStart returns the configured first day of the week.
func (c Config) WeekStart() time.Weekday {
	d, _ := ParseWeekday(c.Scoring.WeekStart)
	return d
}

// Tiers returns the configured achievement thresholds.
func (c Config) Tiers() scoring.TierThresholds {
	return scoring.TierThresholds{
		Superhuman: c.Scoring.SuperhumanMinimum,
		Excellent:  c.Scoring.ExcellentMinimum,
	}
}

// ParseWeekday parses an English day name ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("scoring.week_start: unknown weekday %q", s)
}
