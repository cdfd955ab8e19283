package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Monday, cfg.WeekStart())
	assert.Equal(t, 100, cfg.Tiers().Superhuman)
	assert.Equal(t, 50, cfg.Tiers().Excellent)
	assert.Equal(t, 5*time.Minute, cfg.Aggregator.Interval.Duration)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, cfg.Database.Path)
}

func TestLoad_TOMLThenEnvironment(t *testing.T) {
	// GIVEN: A config file and an environment override
	path := filepath.Join(t.TempDir(), "performance.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[scoring]
timezone = "America/New_York"
week_start = "sunday"
superhuman_minimum = 80
excellent_minimum = 40

[aggregator]
interval = "90s"
`), 0o644))
	t.Setenv("PERF_DB_PATH", ":memory:")

	// WHEN: Loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: File values replace defaults and env replaces both
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Sunday, cfg.WeekStart())
	assert.Equal(t, 80, cfg.Tiers().Superhuman)
	assert.Equal(t, 90*time.Second, cfg.Aggregator.Interval.Duration)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	// untouched sections keep defaults
	assert.Equal(t, "perf", cfg.Redis.KeyPrefix)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PERF_PORT":                "7000",
		"PERF_WEEK_START":          "Sun",
		"PERF_AGGREGATOR_ENABLED":  "false",
		"PERF_AGGREGATOR_INTERVAL": "1m",
		"PERF_REDIS_ENABLED":       "true",
		"PERF_REDIS_DB":            "3",
		"PERF_PUBSUB_PROJECT":      "perf-dev",
		"PERF_LOG_FORMAT":          "text",
		"PERF_TIMEZONE":            "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, time.Sunday, cfg.WeekStart())
	assert.False(t, cfg.Aggregator.Enabled)
	assert.Equal(t, time.Minute, cfg.Aggregator.Interval.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "perf-dev", cfg.PubSub.ProjectID)
	assert.Equal(t, "text", cfg.Logging.Format)
	// empty values are ignored
	assert.Equal(t, "UTC", cfg.Scoring.Timezone)
}

func TestApplyEnv_CollectsErrors(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PERF_PORT":                "eighty",
		"PERF_AGGREGATOR_INTERVAL": "often",
	}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERF_PORT")
	assert.Contains(t, err.Error(), "PERF_AGGREGATOR_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad timezone", func(c *Config) { c.Scoring.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad weekday", func(c *Config) { c.Scoring.WeekStart = "funday" }, "week_start"},
		{"zero interval", func(c *Config) { c.Aggregator.Interval = Duration{} }, "interval"},
		{"inverted tiers", func(c *Config) { c.Scoring.SuperhumanMinimum = 10 }, "tiers"},
		{"exclusive without redis", func(c *Config) { c.Aggregator.Exclusive = true }, "exclusive"},
		{"pubsub without project", func(c *Config) { c.PubSub.Enabled = true }, "project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday":  time.Monday,
		"Mon":     time.Monday,
		" SUNDAY": time.Sunday,
		"sat":     time.Saturday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseWeekday("mo")
	assert.Error(t, err)
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logg, err := newLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	LogError(logg, "aggregator", "run_cycle", map[string]int{"written": 2}, errors.New("disk full"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "disk full", line["msg"])
	assert.Equal(t, "aggregator", line["component"])
	assert.Equal(t, "run_cycle", line["op"])
	assert.Equal(t, "error", line["level"])

	logg, err = newLogger(LoggingConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logg.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logg.Formatter)

	_, err = newLogger(LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
