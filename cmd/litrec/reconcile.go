package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/changes"
	"github.com/litcat/litrec/internal/config"
	"github.com/litcat/litrec/internal/fetch"
	"github.com/litcat/litrec/internal/importer"
	"github.com/litcat/litrec/internal/metrics"
	"github.com/litcat/litrec/internal/reconcile"
	"github.com/litcat/litrec/internal/storage"
	"github.com/litcat/litrec/internal/submission"
)

var (
	reconcileProvider    string
	reconcilePrefix      string
	reconcileFile        string
	reconcileFetch       bool
	reconcileAll         bool
	reconcileReaggregate bool
	reconcileResetHashes bool
)

func init() {
	reconcileCmd.Flags().StringVar(&reconcileProvider, "provider", "", "Provider whose batch is reconciled")
	reconcileCmd.Flags().StringVar(&reconcilePrefix, "prefix", "", "Identifier prefix the provider mints (default: from config)")
	reconcileCmd.Flags().StringVar(&reconcileFile, "file", "", "Submission file to reconcile")
	reconcileCmd.Flags().BoolVar(&reconcileFetch, "fetch", false, "Download the batch from the provider's feed_url")
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "Reconcile every configured provider in parallel (requires --fetch)")
	reconcileCmd.Flags().BoolVar(&reconcileReaggregate, "reaggregate", false, "Process records whose content did not change")
	reconcileCmd.Flags().BoolVar(&reconcileResetHashes, "reset-hashes", false, "Forget stored content hashes for the provider before the run")
	reconcileCmd.MarkFlagsMutuallyExclusive("file", "fetch")
	reconcileCmd.MarkFlagsMutuallyExclusive("all", "provider")
	reconcileCmd.MarkFlagsMutuallyExclusive("all", "file")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a provider submission batch into the catalog",
	Long: `Reconcile a provider submission batch into the catalog.

Each record is matched to existing references through its identifiers and
then created, updated, or reported as a conflict. Records whose content did
not change since the last run are skipped unless --reaggregate is given.

Usage:
  litrec reconcile --provider WB --file wb_references.json
  litrec reconcile --provider WB --fetch --reset-hashes
  litrec reconcile --all --fetch`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	switch {
	case reconcileAll && !reconcileFetch:
		exitWithError(ExitError, "--all requires --fetch")
	case !reconcileAll && reconcileProvider == "":
		exitWithError(ExitError, "--provider is required (or use --all --fetch)")
	case !reconcileAll && reconcileFile == "" && !reconcileFetch:
		exitWithError(ExitError, "one of --file or --fetch is required")
	}

	cfg := mustLoadConfig()
	actor := mustActor(cfg)
	log := mustNewLogger(cfg)
	defer log.Sync()

	db := mustOpenDatabase(cfg)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg, db, log, metrics.New(nil), reconcileReaggregate)

	var reports []*reconcile.Report
	var runErr error
	if reconcileAll {
		if reconcileResetHashes {
			for _, p := range cfg.Providers {
				resetHashes(ctx, db, p.Name, log)
			}
		}
		reports, runErr = reconcileProviders(ctx, cfg, engine, actor, log)
	} else {
		p := mustProvider(cfg)
		if reconcileResetHashes {
			resetHashes(ctx, db, p.Name, log)
		}
		records, drops := mustLoadBatch(ctx, cfg, p, log)
		report, err := engine.Run(ctx, actor, reconcile.Provider{Name: p.Name, Prefix: p.Prefix}, records)
		if report != nil {
			appendDrops(report, drops)
			reports = append(reports, report)
		}
		runErr = err
	}

	printReports(reports)
	if runErr != nil {
		exitWithError(exitCodeFor(runErr), "%v", runErr)
	}
	for _, r := range reports {
		if r.Aborted {
			os.Exit(ExitError)
		}
	}
	return nil
}

// mustProvider resolves the --provider flag against config. An unconfigured
// provider is allowed when --prefix is given and the batch comes from a file.
func mustProvider(cfg *config.Config) config.Provider {
	p, ok := cfg.Provider(reconcileProvider)
	if !ok {
		p = config.Provider{Name: reconcileProvider}
	}
	if reconcilePrefix != "" {
		p.Prefix = reconcilePrefix
	}
	if p.Prefix == "" {
		exitWithError(ExitConfigError, "provider %s is not configured\n\nAdd it to the providers list in the config file or pass --prefix.", reconcileProvider)
	}
	if reconcileFetch && p.FeedURL == "" {
		exitWithError(ExitConfigError, "provider %s has no feed_url configured", p.Name)
	}
	return p
}

// mustLoadBatch reads the batch from --file or the provider feed.
func mustLoadBatch(ctx context.Context, cfg *config.Config, p config.Provider, log *zap.Logger) ([]submission.Record, []error) {
	if reconcileFetch {
		records, drops, err := newFetchClient(cfg, log).FetchRecords(ctx, p.Name, p.FeedURL)
		exitOnError(err, "fetching "+p.Name)
		return records, drops
	}

	data, err := os.ReadFile(reconcileFile)
	if err != nil {
		exitWithError(ExitError, "reading submission file: %v", err)
	}
	if !json.Valid(data) {
		exitWithError(ExitDataError, "%s is not a valid JSON submission file", reconcileFile)
	}
	return importer.ParseSubmissionFile(data, p.Name)
}

// newFetchClient builds a feed client from the fetch config.
func newFetchClient(cfg *config.Config, log *zap.Logger) *fetch.Client {
	opts := []fetch.ClientOption{
		fetch.WithLogger(log),
		fetch.WithRateLimit(cfg.Fetch.RatePerSecond),
		fetch.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		fetch.WithBackoff(cfg.Fetch.InitialBackoff, fetch.DefaultMaxBackoff),
		fetch.WithToken(cfg.Fetch.Token),
	}
	if cfg.Fetch.Timeout > 0 {
		opts = append(opts, fetch.WithTimeout(cfg.Fetch.Timeout))
	}
	return fetch.NewClient(opts...)
}

// reconcileProviders fetches and reconciles every configured provider that
// has a feed, in parallel. Entries the importer dropped are listed in each
// provider's report.
func reconcileProviders(ctx context.Context, cfg *config.Config, engine *reconcile.Engine, actor string, log *zap.Logger) ([]*reconcile.Report, error) {
	client := newFetchClient(cfg, log)

	var mu sync.Mutex
	drops := make(map[string][]error)

	var jobs []reconcile.Job
	for _, p := range cfg.Providers {
		p := p
		if p.FeedURL == "" {
			log.Warn("provider has no feed_url, skipping", zap.String("provider", p.Name))
			continue
		}
		jobs = append(jobs, reconcile.Job{
			Provider: reconcile.Provider{Name: p.Name, Prefix: p.Prefix},
			Load: func(ctx context.Context) ([]submission.Record, error) {
				records, dropped, err := client.FetchRecords(ctx, p.Name, p.FeedURL)
				mu.Lock()
				drops[p.Name] = dropped
				mu.Unlock()
				return records, err
			},
		})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no provider has a feed_url", config.ErrInvalid)
	}

	reports, err := engine.RunAll(ctx, actor, jobs)
	for _, r := range reports {
		if r != nil {
			appendDrops(r, drops[r.Provider])
		}
	}
	return reports, err
}

// resetHashes forgets the provider's stored hashes so the next run
// processes every record.
func resetHashes(ctx context.Context, db *storage.DB, provider string, log *zap.Logger) {
	n, err := changes.NewDetector(db).Reset(ctx, provider)
	exitOnError(err, "resetting content hashes")
	log.Info("content hashes reset", zap.String("provider", provider), zap.Int64("removed", n))
}

// appendDrops adds records the importer could not use to the report. Typed
// drops are listed with the conflicts.
func appendDrops(r *reconcile.Report, drops []error) {
	for _, err := range drops {
		r.Add(err)
	}
}

func printReports(reports []*reconcile.Report) {
	if humanOutput {
		for i, r := range reports {
			if r == nil {
				continue
			}
			if i > 0 {
				outputHuman("\n")
			}
			printReportHuman(r)
		}
		return
	}
	if len(reports) == 1 {
		outputJSON(reports[0])
		return
	}
	outputJSON(reports)
}
