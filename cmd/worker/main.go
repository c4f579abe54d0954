// Package main is the entry point of the analytics worker.
//
// The worker runs the risk sweep on a schedule: it estimates dropout risk for
// every active registration and publishes HIGH results to Redis. A Redis lock
// keeps concurrent workers from sweeping twice.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/application/query"
	"github.com/learnsight/engagement-analytics/internal/domain/feedback"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/metrics"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/model"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/persistence/postgres"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/persistence/redis"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/scheduler"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/scheduler/jobs"
	"github.com/learnsight/engagement-analytics/internal/interface/http/handlers"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run the risk sweep once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	slog.SetDefault(log)

	zlog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	}).With(logger.Component("worker"))
	defer func() { _ = zlog.Sync() }()

	log.Info("starting analytics worker",
		"env", cfg.App.Environment,
		"schedule", cfg.Worker.SweepSchedule,
		"timezone", cfg.App.Timezone,
	)

	schedule, err := scheduler.ParseSchedule(cfg.Worker.SweepSchedule)
	if err != nil {
		return fmt.Errorf("invalid RISK_SWEEP_SCHEDULE: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	db, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	records := postgres.NewRecordRepository(db)
	directory := postgres.NewDirectoryRepository(db)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (alerts and sweep lock)
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()
	deps := jobs.RiskSweepDeps{
		Roster:   directory,
		Toggles:  cfg.Features,
		Recorder: m,
		Logger:   log,
	}

	var redisClient *redis.Client
	if !cfg.Redis.Disabled {
		redisClient, err = redis.NewClient(redisConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		alerts := redis.NewAlertPublisher(redisClient)
		deps.Publisher = alerts
		deps.Lock = redis.NewLock(redisClient, "risk_sweep", cfg.Worker.LockTTL)
		log.Info("publishing alerts", "channel", alerts.Channel())
	} else {
		log.Warn("redis disabled: alerts are not published and the sweep is not locked")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RISK ESTIMATION
	// ─────────────────────────────────────────────────────────────────────────
	policy, err := cfg.Risk.Policy()
	if err != nil {
		return fmt.Errorf("invalid risk policy: %w", err)
	}

	classifier, err := model.Open(modelSource(cfg.Model, zlog), zlog)
	if err != nil {
		log.Error("failed to load risk model, using formula only", "error", err)
	}

	formula := risk.NewFormulaEstimator(policy, feedback.ShortCommenter(feedback.ShortThresholds))
	var modelEstimator risk.Estimator
	if classifier != nil {
		modelEstimator = risk.NewModelEstimator(classifier, formula, risk.WithObserver(metrics.NewRiskObserver(m, zlog)))
	}

	ac := query.DefaultAnalyzerConfig()
	ac.TotalWeeks = cfg.Analytics.TotalWeeks
	ac.CohortParallelism = cfg.Analytics.CohortParallelism
	analyzer := query.NewAnalyzer(records, directory, ac)
	deps.Risk = query.NewGetRiskHandler(directory, analyzer, query.NewRiskAssessor(formula, modelEstimator, cfg.Features))

	sc := jobs.DefaultRiskSweepConfig()
	if cfg.Worker.SweepParallelism > 0 {
		sc.Parallelism = cfg.Worker.SweepParallelism
	}
	if cfg.Worker.SweepTimeout > 0 {
		sc.Timeout = cfg.Worker.SweepTimeout
	}
	sweep := jobs.NewRiskSweepJob(deps, sc)

	if once {
		return sweep.Run(ctx)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	schedCfg.RunOnStart = cfg.Worker.RunOnStart
	if cfg.App.Location != nil {
		schedCfg.Timezone = cfg.App.Location
	}
	sched := scheduler.New(schedCfg)
	if err := sched.Register(sweep, schedule); err != nil {
		return fmt.Errorf("failed to register risk sweep: %w", err)
	}
	sched.OnJobComplete(func(r scheduler.JobResult) {
		if errors.Is(r.Error, context.DeadlineExceeded) {
			log.Warn("job ran out of time, raise RISK_SWEEP_TIMEOUT if this repeats",
				"job", r.JobName,
				"timeout", sc.Timeout.String(),
			)
		}
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. METRICS AND HEALTH
	// ─────────────────────────────────────────────────────────────────────────
	var srv *http.Server
	if cfg.Worker.MetricsAddr != "" {
		health := handlers.NewHealthChecker(cfg.App.Version)
		health.AddCheck("postgres", db.CheckHealth)
		if redisClient != nil {
			health.AddCheck("redis", handlers.PingCheck(redisClient))
		}

		srv = &http.Server{
			Addr:              cfg.Worker.MetricsAddr,
			Handler:           opsMux(m, health, sched, sweep, cfg.Features),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	log.Info("worker started", "jobs", len(sched.ListJobs()))
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	log.Info("worker stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// opsMux serves the worker's metrics, health and job endpoints.
func opsMux(m *metrics.Metrics, health *handlers.HealthChecker, sched *scheduler.Scheduler, sweep *jobs.RiskSweepJob, flags *config.FeatureFlags) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := health.Check(r.Context())
		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
	mux.HandleFunc("GET /features", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, flags.Snapshot())
	})
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, sched.ListJobs())
	})
	mux.HandleFunc("GET /jobs/risk_sweep/last", func(w http.ResponseWriter, _ *http.Request) {
		stats := sweep.LastRunStats()
		if stats == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "risk sweep has not completed yet"})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})
	mux.HandleFunc("POST /jobs/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		// Runs detached from the request so a client disconnect does not abort the job.
		res, err := sched.RunNow(context.WithoutCancel(r.Context()), r.PathValue("name"))
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, scheduler.ErrJobRunning):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"job":      res.JobName,
				"duration": res.Duration.String(),
				"error":    err.Error(),
			})
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"job":      res.JobName,
				"duration": res.Duration.String(),
			})
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// setupLogger configures slog for the scheduler and jobs.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsDevelopment() || cfg.Log.Format == "console" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	pc.Host = c.Host
	pc.Port = c.Port
	pc.Database = c.Name
	pc.User = c.User
	pc.Password = c.Password
	pc.SSLMode = c.SSLMode
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func modelSource(c config.ModelConfig, log *logger.Logger) model.Source {
	remote := model.DefaultRemoteConfig(c.URL)
	remote.Timeout = c.Timeout
	remote.Probabilities = c.Probabilities
	remote.Logger = log
	return model.Source{Path: c.Path, Checksum: c.Checksum, URL: c.URL, Remote: remote}
}
