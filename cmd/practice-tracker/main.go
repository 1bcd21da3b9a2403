package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dtorres47/practice-tracker/internal/catalog"
	"github.com/dtorres47/practice-tracker/internal/config"
	"github.com/dtorres47/practice-tracker/internal/logging"
	"github.com/dtorres47/practice-tracker/internal/metrics"
	"github.com/dtorres47/practice-tracker/internal/practice"
	"github.com/dtorres47/practice-tracker/internal/script"
	"github.com/dtorres47/practice-tracker/internal/sqlite"
)

var (
	envFile   string
	backend   string
	scriptURL string
	dbPath    string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "practice-tracker",
	Short:         "Record daily practice counts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	pf.StringVar(&backend, "backend", "", "storage backend: script or sqlite (env BACKEND)")
	pf.StringVar(&scriptURL, "script-url", "", "script endpoint url (env SCRIPT_URL)")
	pf.StringVar(&dbPath, "db", "", "sqlite database path (env DB_PATH)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn, error or disabled (env LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd, summaryCmd, practicesCmd)
}

// loadConfig reads the environment, applies flags the user set and
// configures logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("script-url") {
		cfg.ScriptURL = scriptURL
	}
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openBackend returns the configured backend and a func releasing it.
func openBackend(ctx context.Context, cfg config.Config, m *metrics.Metrics) (practice.Backend, func() error, error) {
	if err := catalog.Load(); err != nil {
		return nil, nil, err
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.DBPath, catalog.Practices())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.DBPath).Msg("using sqlite backend")
		return store, store.Close, nil
	default:
		loc, err := cfg.Location()
		if err != nil {
			return nil, nil, err
		}
		client := script.New(cfg.ScriptURL, &http.Client{}, cfg.UpstreamTimeout, loc, m)
		log.Info().Msg("using script backend")
		return client, func() error { return nil }, nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
