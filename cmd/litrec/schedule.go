package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/metrics"
	"github.com/litcat/litrec/internal/reconcile"
	"github.com/litcat/litrec/internal/snapshot"
)

var scheduleRunNow bool

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleRunNow, "run-now", false, "Run every provider once at startup")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Reconcile all provider feeds on a cron schedule",
	Long: `Reconcile all provider feeds on a cron schedule and serve status over HTTP.

The schedule and listen address come from schedule.cron and schedule.listen.
When s3.bucket is set, content hashes are backed up after every run.

Endpoints:
  GET /healthz         database reachability
  GET /metrics         prometheus metrics
  GET /reports/latest  reports of the most recent run`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

// pinger reports whether the store is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// LatestRun is the body of /reports/latest.
type LatestRun struct {
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Error      string              `json:"error,omitempty"`
	Reports    []*reconcile.Report `json:"reports"`
}

// scheduler runs reconciliation jobs and keeps the latest result for the
// status server.
type scheduler struct {
	db  pinger
	run func(ctx context.Context) ([]*reconcile.Report, error)
	log *zap.Logger

	running sync.Mutex // one run at a time

	mu     sync.RWMutex
	latest *LatestRun
}

// runOnce executes one full run and stores its reports.
func (s *scheduler) runOnce(ctx context.Context) {
	s.running.Lock()
	defer s.running.Unlock()

	started := time.Now().UTC()
	s.log.Info("scheduled run starting")
	reports, err := s.run(ctx)

	latest := &LatestRun{StartedAt: started, FinishedAt: time.Now().UTC(), Reports: reports}
	if err != nil {
		latest.Error = err.Error()
		s.log.Error("scheduled run failed", zap.Error(err))
	} else {
		s.log.Info("scheduled run finished", zap.Int("providers", len(reports)),
			zap.Duration("elapsed", latest.FinishedAt.Sub(started)))
	}

	s.mu.Lock()
	s.latest = latest
	s.mu.Unlock()
}

// router builds the status server routes.
func (s *scheduler) router(metricsHandler http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, StatusResponse{Status: "unavailable", Detail: err.Error()})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
	})
	router.GET("/metrics", gin.WrapH(metricsHandler))
	router.GET("/reports/latest", func(c *gin.Context) {
		s.mu.RLock()
		latest := s.latest
		s.mu.RUnlock()
		if latest == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no run has finished yet"})
			return
		}
		c.JSON(http.StatusOK, latest)
	})
	return router
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	actor := mustActor(cfg)
	log := mustNewLogger(cfg)
	defer log.Sync()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	hasFeed := false
	for _, p := range cfg.Providers {
		hasFeed = hasFeed || p.FeedURL != ""
	}
	if !hasFeed {
		exitWithError(ExitConfigError, "no provider has a feed_url configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg, db, log, metrics.New(prometheus.DefaultRegisterer), false)
	var store *snapshot.Store
	if cfg.S3.Bucket != "" {
		store = mustSnapshotStore(ctx, cfg, log)
	}
	s := &scheduler{
		db:  db,
		log: log,
		run: func(ctx context.Context) ([]*reconcile.Report, error) {
			reports, err := reconcileProviders(ctx, cfg, engine, actor, log)
			if store != nil {
				if _, _, berr := store.Backup(ctx, db, ""); berr != nil {
					err = errors.Join(err, berr)
				}
			}
			return reports, err
		},
	}

	gin.SetMode(gin.ReleaseMode)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Schedule.Cron, func() { s.runOnce(ctx) }); err != nil {
		exitWithError(ExitConfigError, "invalid schedule.cron %q: %v", cfg.Schedule.Cron, err)
	}
	c.Start()

	srv := &http.Server{
		Addr:              cfg.Schedule.Listen,
		Handler:           s.router(promhttp.Handler()),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting status server", zap.String("addr", srv.Addr), zap.String("cron", cfg.Schedule.Cron))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var startup sync.WaitGroup
	if scheduleRunNow {
		startup.Add(1)
		go func() {
			defer startup.Done()
			s.runOnce(ctx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-serveErr:
	}

	// Wait for a running job before closing the database.
	<-c.Stop().Done()
	startup.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("status server shutdown", zap.Error(err))
	}
	if runErr != nil {
		exitWithError(ExitError, "status server: %v", runErr)
	}
	return nil
}
