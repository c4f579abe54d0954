// Package main is the entry point of the engagement analytics API.
//
// The API computes dashboards, weekly progress, engagement breakdowns and
// dropout risk on request from the LMS tables in PostgreSQL. Redis is
// optional and only backs the distributed rate limiter.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
	"github.com/learnsight/engagement-analytics/internal/interface/http"
	"github.com/learnsight/engagement-analytics/internal/interface/http/handlers"
	"github.com/learnsight/engagement-analytics/pkg/circuitbreaker"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		AddCaller: cfg.App.Debug,
	})
	defer func() { _ = log.Sync() }()
	slog.SetDefault(setupSlog(cfg))

	log.Info("starting engagement analytics API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	db, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database migrations applied")
	}

	records := postgres.NewRecordRepository(db)
	directory := postgres.NewDirectoryRepository(db)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisClient *redis.Client
		limiter     http.RateLimiter
	)
	if !cfg.Redis.Disabled {
		redisClient, err = redis.NewClient(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, running without rate limiting", logger.Err(err))
		} else {
			defer redisClient.Close()
			if cfg.HTTP.RateLimitPerMinute > 0 {
				limiter = redis.NewRateLimiter(redisClient, cfg.HTTP.RateLimitPerMinute, time.Minute, slog.Default())
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RISK MODEL AND ANALYTICS
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()

	policy, err := cfg.Risk.Policy()
	if err != nil {
		return fmt.Errorf("invalid risk policy: %w", err)
	}

	classifier, err := model.Open(modelSource(cfg.Model, log), log)
	if err != nil {
		// The formula strategy still serves every request.
		log.Error("failed to load risk model, using formula only", logger.Err(err))
	}

	formula := risk.NewFormulaEstimator(policy, feedback.ShortCommenter(feedback.ShortThresholds))
	var modelEstimator risk.Estimator
	if classifier != nil {
		modelEstimator = risk.NewModelEstimator(classifier, formula, risk.WithObserver(metrics.NewRiskObserver(m, log)))
	}
	assessor := query.NewRiskAssessor(formula, modelEstimator, cfg.Features)

	ac := query.DefaultAnalyzerConfig()
	ac.TotalWeeks = cfg.Analytics.TotalWeeks
	ac.CohortParallelism = cfg.Analytics.CohortParallelism
	analyzer := query.NewAnalyzer(records, directory, ac)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewHealthChecker(cfg.App.Version)
	health.SetTimeout(cfg.HTTP.HealthCheckTimeout)
	health.AddCheck("postgres", db.CheckHealth)
	if redisClient != nil {
		health.AddOptionalCheck("redis", handlers.PingCheck(redisClient))
	}
	if remote, ok := classifier.(*model.RemoteClassifier); ok {
		health.AddOptionalCheck("risk_model", func(context.Context) error {
			if remote.BreakerState() == circuitbreaker.StateOpen {
				return errors.New("model server circuit is open")
			}
			return nil
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	deps := http.Dependencies{
		Dashboard:         query.NewGetDashboardHandler(directory, analyzer, assessor, cfg.Features),
		WeeklyProgress:    query.NewGetWeeklyProgressHandler(directory, analyzer, cfg.Features),
		EngagementDetails: query.NewGetEngagementDetailsHandler(directory, analyzer),
		Risk:              query.NewGetRiskHandler(directory, analyzer, assessor),
		Toggles:           cfg.Features,
		HealthChecker:     health,
		RateLimiter:       limiter,
		Metrics:           m,
		Logger:            log,
		Version:           cfg.App.Version,
	}

	for name, f := range cfg.Features.Snapshot() {
		log.Debug("feature flag",
			logger.String("feature", name),
			logger.Bool("enabled", f.Enabled),
			logger.Int("rollout_percent", f.RolloutPercent),
		)
	}
	if cfg.IsProduction() && len(cfg.HTTP.APIKeys) == 0 {
		log.Warn("API_KEYS is empty, /api/v1 accepts unauthenticated requests")
	}

	server := http.NewServer(serverConfig(cfg.HTTP), deps)
	errCh := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	log.Info("API stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupSlog configures the slog logger used by the redis rate limiter.
func setupSlog(cfg *config.Config) *slog.Logger {
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
	if cfg.Log.Format == "console" {
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

func serverConfig(c config.HTTPConfig) http.Config {
	sc := http.DefaultConfig()
	sc.Host = c.Host
	sc.Port = c.Port
	sc.ReadTimeout = c.ReadTimeout
	sc.WriteTimeout = c.WriteTimeout
	sc.IdleTimeout = c.IdleTimeout
	sc.RequestTimeout = c.RequestTimeout
	sc.EnableCORS = c.EnableCORS
	sc.AllowedOrigins = c.AllowedOrigins
	sc.EnableMetrics = c.EnableMetrics
	sc.APIKeyHeader = c.APIKeyHeader
	sc.APIKeys = c.APIKeys
	return sc
}
