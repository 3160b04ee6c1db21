// Package main provides the litrec CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/config"
	"github.com/litcat/litrec/internal/logging"
	"github.com/litcat/litrec/internal/metrics"
	"github.com/litcat/litrec/internal/reconcile"
	"github.com/litcat/litrec/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	actorFlag   string
	logLevel    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		// This ensures Cobra errors (like missing required flags) are visible
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "litrec",
	Short: "Reconcile provider literature submissions into a canonical catalog",
	Long: `litrec reconciles bibliographic records submitted by several data
providers into one catalog of references.

Core features:
  - Classify each submission as new, update or conflict against the catalog
  - Skip records whose content did not change since the previous run
  - Aggregate fields from several providers under an ownership policy
  - Merge duplicate references while keeping their full history

All commands output JSON by default; use --human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/litrec/config.yml)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Name recorded on every write (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		if configPath == "" {
			fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		}
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg
}

// mustOpenDatabase opens the configured store, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(cfg *config.Config) *storage.DB {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	db.SetCuriePrefix(cfg.CuriePrefix)
	return db
}

// mustNewLogger builds the process logger, exits on error.
func mustNewLogger(cfg *config.Config) *zap.Logger {
	log, _, err := logging.New(cfg.LogLevel, humanOutput)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return log
}

// mustActor returns the actor for writes. Every write is attributed, so a
// missing actor is a configuration error.
func mustActor(cfg *config.Config) string {
	if actorFlag != "" {
		return actorFlag
	}
	if cfg.Actor != "" {
		return cfg.Actor
	}
	exitWithError(ExitConfigError, "no actor configured\n\nSet 'actor' in the config file, LITREC_ACTOR, or pass --actor.")
	return ""
}

// engineProviders converts configured providers for the engine.
func engineProviders(cfg *config.Config) []reconcile.Provider {
	out := make([]reconcile.Provider, len(cfg.Providers))
	for i, p := range cfg.Providers {
		out[i] = reconcile.Provider{Name: p.Name, Prefix: p.Prefix}
	}
	return out
}

// newEngine builds a reconciliation engine from configuration.
func newEngine(cfg *config.Config, db *storage.DB, log *zap.Logger, m *metrics.Metrics, reaggregate bool) *reconcile.Engine {
	return reconcile.New(db, reconcile.Options{
		BatchSize:            cfg.BatchSize,
		IndexProvider:        cfg.IndexProvider,
		Providers:            engineProviders(cfg),
		ReaggregateUnchanged: reaggregate,
		Logger:               log,
		Metrics:              m,
	})
}
