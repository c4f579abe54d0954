package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/application/query"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/persistence/redis"
)

type fakeRoster struct {
	courseIDs []int64
	courses   map[int64][]int64
	failFor   int64
	err       error
}

func (r *fakeRoster) ActiveCourseIDs(context.Context) ([]int64, error) {
	return r.courseIDs, r.err
}

func (r *fakeRoster) ActiveStudentIDs(_ context.Context, courseID int64) ([]int64, error) {
	if courseID == r.failFor {
		return nil, errors.New("roster unavailable")
	}
	return r.courses[courseID], nil
}

type fakeRisk struct {
	levels map[int64]risk.Level
	errs   map[int64]error
}

func (f *fakeRisk) Handle(_ context.Context, q query.GetRiskQuery) (*query.RiskResult, error) {
	if err := f.errs[q.StudentID]; err != nil {
		return nil, err
	}
	level := f.levels[q.StudentID]
	return &query.RiskResult{
		StudentID:  q.StudentID,
		CourseID:   q.CourseID,
		Assessment: risk.Assessment{Score: 0.7512, Level: level, Feedback: "Attend more sessions"},
	}, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	alerts  []shared.HighRiskDetectedEvent
	summary []shared.RiskSweepCompletedEvent
}

func (p *fakePublisher) PublishHighRisk(_ context.Context, e shared.HighRiskDetectedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, e)
	return nil
}

func (p *fakePublisher) PublishSweepCompleted(_ context.Context, e shared.RiskSweepCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary = append(p.summary, e)
	return nil
}

type fakeLock struct {
	err      error
	released bool
}

func (l *fakeLock) Acquire(context.Context) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) error { l.released = true; return nil }, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	risks    int
	alerts   int
}

func (r *fakeRecorder) ObserveRisk(bool, string) { r.mu.Lock(); r.risks++; r.mu.Unlock() }
func (r *fakeRecorder) AlertPublished()          { r.mu.Lock(); r.alerts++; r.mu.Unlock() }
func (r *fakeRecorder) ObserveSweep(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type toggles map[string]bool

func (t toggles) Enabled(feature string, _, _ int64) bool { return t[feature] }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSweep(roster *fakeRoster, rk *fakeRisk, pub *fakePublisher, lock Locker, tg query.Toggles, rec *fakeRecorder) *RiskSweepJob {
	deps := RiskSweepDeps{
		Roster:  roster,
		Risk:    rk,
		Lock:    lock,
		Toggles: tg,
		Logger:  quietLogger(),
	}
	if pub != nil {
		deps.Publisher = pub
	}
	if rec != nil {
		deps.Recorder = rec
	}
	return NewRiskSweepJob(deps, RiskSweepConfig{Parallelism: 2, Timeout: time.Minute})
}

func TestRiskSweep_PublishesHighRiskAlerts(t *testing.T) {
	roster := &fakeRoster{
		courseIDs: []int64{10, 20},
		courses:   map[int64][]int64{10: {1, 2, 3}, 20: {4}},
	}
	rk := &fakeRisk{levels: map[int64]risk.Level{1: risk.LevelHigh, 2: risk.LevelLow, 3: risk.LevelMedium, 4: risk.LevelHigh}}
	pub := &fakePublisher{}
	lock := &fakeLock{}
	rec := &fakeRecorder{}

	job := newSweep(roster, rk, pub, lock, toggles{config.FeatureRiskAlerts: true}, rec)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Courses)
	assert.Equal(t, 4, stats.Registrations)
	assert.Equal(t, 2, stats.HighRisk)
	assert.Equal(t, 2, stats.AlertsSent)
	assert.Equal(t, 1, stats.ByLevel[risk.LevelMedium])

	require.Len(t, pub.alerts, 2)
	for _, a := range pub.alerts {
		assert.Equal(t, "HIGH", a.Level)
		assert.Equal(t, 0.75, a.Score)
	}
	require.Len(t, pub.summary, 1)
	assert.Equal(t, 4, pub.summary[0].Registrations)

	assert.True(t, lock.released)
	assert.Equal(t, 4, rec.risks)
	assert.Equal(t, 2, rec.alerts)
	assert.Equal(t, []string{"completed"}, rec.outcomes)
}

func TestRiskSweep_AlertsDisabledByFlag(t *testing.T) {
	roster := &fakeRoster{courseIDs: []int64{10}, courses: map[int64][]int64{10: {1}}}
	rk := &fakeRisk{levels: map[int64]risk.Level{1: risk.LevelHigh}}
	pub := &fakePublisher{}

	job := newSweep(roster, rk, pub, nil, toggles{}, nil)
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, pub.alerts)
	assert.Equal(t, 1, job.LastRunStats().HighRisk)
	assert.Equal(t, 0, job.LastRunStats().AlertsSent)
}

func TestRiskSweep_SkipsWhenLockHeld(t *testing.T) {
	roster := &fakeRoster{courseIDs: []int64{10}}
	rec := &fakeRecorder{}
	lock := &fakeLock{err: fmt.Errorf("acquire: %w", redis.ErrLockHeld)}

	job := newSweep(roster, &fakeRisk{}, &fakePublisher{}, lock, nil, rec)
	require.NoError(t, job.Run(context.Background()))

	assert.Nil(t, job.LastRunStats())
	assert.Equal(t, []string{"skipped"}, rec.outcomes)
}

func TestRiskSweep_CountsFailures(t *testing.T) {
	roster := &fakeRoster{
		courseIDs: []int64{10, 20},
		courses:   map[int64][]int64{10: {1, 2, 3}},
		failFor:   20,
	}
	rk := &fakeRisk{
		levels: map[int64]risk.Level{1: risk.LevelLow},
		errs: map[int64]error{
			2: shared.ErrStudentNotFound,
			3: errors.New("connection reset"),
		},
	}

	job := newSweep(roster, rk, &fakePublisher{}, nil, nil, nil)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	assert.Equal(t, 1, stats.Courses)
	assert.Equal(t, 1, stats.Registrations)
	// one failed estimation plus one failed course roster
	assert.Equal(t, 2, stats.Failures)
}

func TestRiskSweep_CourseListError(t *testing.T) {
	roster := &fakeRoster{err: errors.New("db down")}
	rec := &fakeRecorder{}

	job := newSweep(roster, &fakeRisk{}, nil, nil, nil, rec)
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, []string{"failed"}, rec.outcomes)
}
