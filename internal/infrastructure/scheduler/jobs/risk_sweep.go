// Package jobs contains the scheduled jobs of the analytics worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/application/query"
	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// RISK SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// RiskQuerier computes the risk of one registration.
type RiskQuerier interface {
	Handle(ctx context.Context, q query.GetRiskQuery) (*query.RiskResult, error)
}

// AlertPublisher delivers sweep output.
type AlertPublisher interface {
	PublishHighRisk(ctx context.Context, event shared.HighRiskDetectedEvent) error
	PublishSweepCompleted(ctx context.Context, event shared.RiskSweepCompletedEvent) error
}

// Locker guards the sweep against concurrent workers. An error wrapping
// redis.ErrLockHeld skips the run.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Recorder receives sweep metrics.
type Recorder interface {
	ObserveRisk(usedModel bool, level string)
	ObserveSweep(outcome string, d time.Duration)
	AlertPublished()
}

// RiskSweepConfig contains configuration for the sweep.
type RiskSweepConfig struct {
	// Parallelism bounds concurrent risk computations per course.
	Parallelism int

	// Timeout is the maximum duration of one sweep.
	Timeout time.Duration
}

// DefaultRiskSweepConfig returns sensible defaults.
func DefaultRiskSweepConfig() RiskSweepConfig {
	return RiskSweepConfig{Parallelism: 8, Timeout: 30 * time.Minute}
}

// RiskSweepStats summarises one run.
type RiskSweepStats struct {
	RunID         string             `json:"run_id"`
	StartedAt     time.Time          `json:"started_at"`
	Duration      time.Duration      `json:"duration_ns"`
	Courses       int                `json:"courses"`
	Registrations int                `json:"registrations"`
	HighRisk      int                `json:"high_risk"`
	AlertsSent    int                `json:"alerts_sent"`
	Failures      int                `json:"failures"`
	ByLevel       map[risk.Level]int `json:"by_level"`
}

// RiskSweepJob estimates risk for every active registration and publishes an
// alert for each HIGH result when the alerts feature is enabled.
type RiskSweepJob struct {
	roster    engagement.RosterRepository
	risk      RiskQuerier
	publisher AlertPublisher
	lock      Locker
	toggles   query.Toggles
	recorder  Recorder
	logger    *slog.Logger
	config    RiskSweepConfig

	lastRunStats atomic.Pointer[RiskSweepStats]
}

// RiskSweepDeps groups the collaborators of the sweep. Lock, Toggles and
// Recorder are optional.
type RiskSweepDeps struct {
	Roster    engagement.RosterRepository
	Risk      RiskQuerier
	Publisher AlertPublisher
	Lock      Locker
	Toggles   query.Toggles
	Recorder  Recorder
	Logger    *slog.Logger
}

// NewRiskSweepJob creates the job.
func NewRiskSweepJob(deps RiskSweepDeps, config RiskSweepConfig) *RiskSweepJob {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	return &RiskSweepJob{
		roster:    deps.Roster,
		risk:      deps.Risk,
		publisher: deps.Publisher,
		lock:      deps.Lock,
		toggles:   deps.Toggles,
		recorder:  deps.Recorder,
		logger:    deps.Logger.With("job", "risk_sweep"),
		config:    config,
	}
}

// Name implements scheduler.Job.
func (j *RiskSweepJob) Name() string { return "risk_sweep" }

// Description implements scheduler.Job.
func (j *RiskSweepJob) Description() string {
	return "Estimates dropout risk for every active registration and raises HIGH risk alerts"
}

// LastRunStats returns the stats of the last completed run, or nil.
func (j *RiskSweepJob) LastRunStats() *RiskSweepStats {
	return j.lastRunStats.Load()
}

// Run implements scheduler.Job.
func (j *RiskSweepJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.lock != nil {
		release, err := j.lock.Acquire(ctx)
		if err != nil {
			if errors.Is(err, redis.ErrLockHeld) {
				j.logger.Info("another worker is sweeping, skipping run")
				j.observeSweep("skipped", 0)
				return nil
			}
			return fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	stats := &RiskSweepStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		ByLevel:   make(map[risk.Level]int),
	}

	courses, err := j.roster.ActiveCourseIDs(ctx)
	if err != nil {
		j.observeSweep("failed", time.Since(stats.StartedAt))
		return fmt.Errorf("list active courses: %w", err)
	}

	for _, courseID := range courses {
		if err := j.sweepCourse(ctx, courseID, stats); err != nil {
			if ctx.Err() != nil {
				j.observeSweep("failed", time.Since(stats.StartedAt))
				return fmt.Errorf("sweep interrupted: %w", ctx.Err())
			}
			stats.Failures++
			j.logger.Error("course sweep failed", "course_id", courseID, "error", err)
			continue
		}
		stats.Courses++
	}

	stats.Duration = time.Since(stats.StartedAt)
	j.lastRunStats.Store(stats)
	j.observeSweep("completed", stats.Duration)

	j.logger.Info("risk sweep completed",
		"run_id", stats.RunID,
		"courses", stats.Courses,
		"registrations", stats.Registrations,
		"high_risk", stats.HighRisk,
		"alerts_sent", stats.AlertsSent,
		"failures", stats.Failures,
		"duration", stats.Duration.String(),
	)

	if j.publisher != nil {
		summary := shared.NewRiskSweepCompletedEvent(stats.RunID, stats.Courses, stats.Registrations, stats.HighRisk, stats.Duration)
		if err := j.publisher.PublishSweepCompleted(ctx, summary); err != nil {
			j.logger.Warn("failed to publish sweep summary", "error", err)
		}
	}
	return nil
}

// sweepCourse assesses every active student of a course. Individual failures
// are counted and logged; only roster errors fail the course.
func (j *RiskSweepJob) sweepCourse(ctx context.Context, courseID int64, stats *RiskSweepStats) error {
	students, err := j.roster.ActiveStudentIDs(ctx, courseID)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Parallelism)

	for _, studentID := range students {
		g.Go(func() error {
			res, err := j.risk.Handle(gctx, query.GetRiskQuery{StudentID: studentID, CourseID: courseID})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				defer mu.Unlock()
				if !shared.IsNotFound(err) {
					stats.Failures++
					j.logger.Warn("risk estimation failed", "student_id", studentID, "course_id", courseID, "error", err)
				}
				return nil
			}

			a := res.Assessment
			if j.recorder != nil {
				j.recorder.ObserveRisk(a.UsedModel, string(a.Level))
			}
			alerted := a.Level == risk.LevelHigh && j.alertsEnabled(studentID, courseID) && j.alert(gctx, res)

			mu.Lock()
			defer mu.Unlock()
			stats.Registrations++
			stats.ByLevel[a.Level]++
			if a.Level == risk.LevelHigh {
				stats.HighRisk++
			}
			if alerted {
				stats.AlertsSent++
			}
			return nil
		})
	}
	return g.Wait()
}

func (j *RiskSweepJob) alertsEnabled(studentID, courseID int64) bool {
	if j.publisher == nil {
		return false
	}
	return j.toggles == nil || j.toggles.Enabled(config.FeatureRiskAlerts, studentID, courseID)
}

func (j *RiskSweepJob) alert(ctx context.Context, res *query.RiskResult) bool {
	a := res.Assessment
	event := shared.NewHighRiskDetectedEvent(res.StudentID, res.CourseID, shared.Round2(a.Score), string(a.Level), a.Feedback, a.UsedModel)
	if err := j.publisher.PublishHighRisk(ctx, event); err != nil {
		j.logger.Warn("failed to publish high risk alert",
			"student_id", res.StudentID,
			"course_id", res.CourseID,
			"error", err,
		)
		return false
	}
	if j.recorder != nil {
		j.recorder.AlertPublished()
	}
	return true
}

func (j *RiskSweepJob) observeSweep(outcome string, d time.Duration) {
	if j.recorder != nil {
		j.recorder.ObserveSweep(outcome, d)
	}
}
