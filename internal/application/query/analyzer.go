package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZER
// Fetches records through the repositories and runs the pure engagement and
// progress computations over them. Holds no state between calls.
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzerConfig tunes the Analyzer.
type AnalyzerConfig struct {
	// TotalWeeks is the weekly progress chart length.
	TotalWeeks int

	// CohortParallelism bounds concurrent per-student fetches for class averages.
	CohortParallelism int
}

// DefaultAnalyzerConfig returns production defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		TotalWeeks:        progress.DefaultTotalWeeks,
		CohortParallelism: 8,
	}
}

// Analyzer computes engagement snapshots, week scores and progress charts.
type Analyzer struct {
	records engagement.RecordRepository
	roster  engagement.RosterRepository
	cfg     AnalyzerConfig
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(records engagement.RecordRepository, roster engagement.RosterRepository, cfg AnalyzerConfig) *Analyzer {
	if cfg.TotalWeeks <= 0 {
		cfg.TotalWeeks = progress.DefaultTotalWeeks
	}
	if cfg.CohortParallelism <= 0 {
		cfg.CohortParallelism = 1
	}
	return &Analyzer{records: records, roster: roster, cfg: cfg}
}

// TotalWeeks returns the configured chart length.
func (a *Analyzer) TotalWeeks() int {
	return a.cfg.TotalWeeks
}

// Engagement fetches the student's records for week (or AllWeeks) and
// computes the snapshot. The records are returned for further use.
func (a *Analyzer) Engagement(ctx context.Context, studentID, courseID int64, week int) (engagement.Records, engagement.Snapshot, error) {
	records, err := engagement.Fetch(ctx, a.records, studentID, courseID, week)
	if err != nil {
		return engagement.Records{}, engagement.Snapshot{}, fmt.Errorf("failed to fetch engagement records: %w", err)
	}
	return records, engagement.Compute(records), nil
}

// WeekScore returns the student's blended score for one week, nil when nothing
// was assessed that week.
func (a *Analyzer) WeekScore(ctx context.Context, studentID, courseID int64, week int) (*float64, error) {
	records, err := engagement.Fetch(ctx, a.records, studentID, courseID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch week records: %w", err)
	}
	return progress.WeekScore(records.ForWeek(week)), nil
}

// CohortWeekAverage averages the non-nil week scores of studentIDs.
func (a *Analyzer) CohortWeekAverage(ctx context.Context, courseID int64, week int, studentIDs []int64) (*float64, error) {
	scores := make([]*float64, len(studentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.CohortParallelism)
	for i, id := range studentIDs {
		g.Go(func() error {
			s, err := a.WeekScore(gctx, id, courseID, week)
			if err != nil {
				return err
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return progress.CohortAverage(scores), nil
}

// WeeklyProgress builds the chart for weeks 1..totalWeeks. With gated set the
// chart stays empty until the student shows activity in week 2 or 3.
func (a *Analyzer) WeeklyProgress(ctx context.Context, studentID, courseID int64, totalWeeks int, gated bool) ([]progress.Point, error) {
	if totalWeeks <= 0 {
		totalWeeks = a.cfg.TotalWeeks
	}

	own, err := engagement.Fetch(ctx, a.records, studentID, courseID, engagement.AllWeeks)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch student records: %w", err)
	}
	if gated && !progress.Visible(own) {
		return progress.Build(totalWeeks, false, nil), nil
	}

	cohort, err := a.roster.ActiveStudentIDs(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch course roster: %w", err)
	}
	cohortScores, err := a.cohortScores(ctx, courseID, cohort, totalWeeks)
	if err != nil {
		return nil, err
	}

	weeks := make(map[int]progress.Week, totalWeeks)
	for w := 1; w <= totalWeeks; w++ {
		weeks[w] = progress.Week{
			StudentScore: progress.WeekScore(own.ForWeek(w)),
			CohortScore:  progress.CohortAverage(cohortScores[w]),
		}
	}
	return progress.Build(totalWeeks, true, weeks), nil
}

// cohortScores loads every cohort member's records once and returns, per week,
// the members' week scores.
func (a *Analyzer) cohortScores(ctx context.Context, courseID int64, studentIDs []int64, totalWeeks int) (map[int][]*float64, error) {
	perStudent := make([][]*float64, len(studentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.CohortParallelism)
	for i, id := range studentIDs {
		g.Go(func() error {
			records, err := engagement.Fetch(gctx, a.records, id, courseID, engagement.AllWeeks)
			if err != nil {
				return fmt.Errorf("failed to fetch records for student %d: %w", id, err)
			}
			scores := make([]*float64, totalWeeks+1)
			for w := 1; w <= totalWeeks; w++ {
				scores[w] = progress.WeekScore(records.ForWeek(w))
			}
			perStudent[i] = scores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byWeek := make(map[int][]*float64, totalWeeks)
	for _, scores := range perStudent {
		for w := 1; w <= totalWeeks; w++ {
			byWeek[w] = append(byWeek[w], scores[w])
		}
	}
	return byWeek, nil
}
