/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the performance engine. Subcommands:

    serve      Run the HTTP API, the aggregation schedule and, when
               enabled, the ActivityCreated subscriber
    aggregate  Run one leaderboard cycle and exit (cron-style deployments)
    rules      Print the scoring rule table

CONFIGURATION:
  --config points at a TOML file (default performance.toml, optional).
  .env and PERF_* environment variables override the file; flags override
  both. See config/config.go.

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/performance.db

  # Run with in-memory database on another port
  ./server serve --db=":memory:" --port=3000

  # One-shot aggregation
  ./server aggregate

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration layers
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/performance-engine/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "performance-engine",
	Short: "Activity scoring, leaderboards and goal tracking",
	Long: `performance-engine scores logged sales activities, keeps goal
progress and leaderboards up to date, and compiles daily summaries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "performance.toml", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

func main() {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig applies the persistent flags on top of the config layers.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}
