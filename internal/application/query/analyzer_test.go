package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

func TestAnalyzer_CohortWeekAverageSkipsStudentsWithoutData(t *testing.T) {
	f := courseFixture()
	a := NewAnalyzer(f, f, DefaultAnalyzerConfig())

	avg, err := a.CohortWeekAverage(context.Background(), 10, 4, []int64{1, 2, 3})
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 70.0, *avg)

	reordered, err := a.CohortWeekAverage(context.Background(), 10, 4, []int64{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, *avg, *reordered)
}

func TestAnalyzer_CohortWeekAverageEmpty(t *testing.T) {
	f := courseFixture()
	a := NewAnalyzer(f, f, DefaultAnalyzerConfig())

	avg, err := a.CohortWeekAverage(context.Background(), 10, 6, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Nil(t, avg)
}

func TestAnalyzer_WeekScore(t *testing.T) {
	f := courseFixture()
	a := NewAnalyzer(f, f, DefaultAnalyzerConfig())

	s, err := a.WeekScore(context.Background(), 2, 10, 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 90.0, *s)

	none, err := a.WeekScore(context.Background(), 3, 10, 1)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAnalyzer_CohortFetchFailurePropagates(t *testing.T) {
	f := courseFixture()
	f.recordErr = assert.AnError
	a := NewAnalyzer(f, f, DefaultAnalyzerConfig())

	_, err := a.CohortWeekAverage(context.Background(), 10, 4, []int64{1, 2, 3})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetEngagementDetails(t *testing.T) {
	f := courseFixture()
	h := NewGetEngagementDetailsHandler(f, NewAnalyzer(f, f, DefaultAnalyzerConfig()))

	res, err := h.Handle(context.Background(), GetEngagementDetailsQuery{StudentID: 1, CourseID: 10, WeekNumber: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, res.WeekNumber)
	assert.Equal(t, 2, res.Details.Attendance.Present)
	assert.Equal(t, 3, res.Details.Attendance.Total)
	require.Len(t, res.Details.Assignments, 1)
	assert.Equal(t, "Loops", res.Details.Assignments[0].Title)
	require.NotNil(t, res.WeekScore)
	assert.Equal(t, 60.0, *res.WeekScore)
	// only student 1 was assessed in week 2
	require.NotNil(t, res.ClassAverage)
	assert.Equal(t, 60.0, *res.ClassAverage)
}

func TestGetEngagementDetails_AllWeeksHasNoWeekScore(t *testing.T) {
	f := courseFixture()
	h := NewGetEngagementDetailsHandler(f, NewAnalyzer(f, f, DefaultAnalyzerConfig()))

	res, err := h.Handle(context.Background(), GetEngagementDetailsQuery{StudentID: 1, CourseID: 10})
	require.NoError(t, err)

	assert.Nil(t, res.WeekScore)
	assert.Nil(t, res.ClassAverage)
	assert.Len(t, res.Details.Assignments, 2)
	assert.Equal(t, 9, res.Details.Attendance.Total)
}

func TestGetWeeklyProgress_TotalWeeksOverride(t *testing.T) {
	f := courseFixture()
	h := NewGetWeeklyProgressHandler(f, NewAnalyzer(f, f, DefaultAnalyzerConfig()), nil)

	res, err := h.Handle(context.Background(), GetWeeklyProgressQuery{StudentID: 1, CourseID: 10, TotalWeeks: 5})
	require.NoError(t, err)

	assert.Len(t, res.Points, 5)
	assert.Equal(t, 5, res.Points[4].WeekNumber)
}

func TestGetWeeklyProgress_NotFound(t *testing.T) {
	f := courseFixture()
	h := NewGetWeeklyProgressHandler(f, NewAnalyzer(f, f, DefaultAnalyzerConfig()), nil)

	_, err := h.Handle(context.Background(), GetWeeklyProgressQuery{StudentID: 404, CourseID: 10})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetRisk(t *testing.T) {
	f := courseFixture()
	formula := risk.NewFormulaEstimator(risk.DefaultPolicy(), nil)
	h := NewGetRiskHandler(f, NewAnalyzer(f, f, DefaultAnalyzerConfig()), NewRiskAssessor(formula, nil, nil))

	res, err := h.Handle(context.Background(), GetRiskQuery{StudentID: 2, CourseID: 10})
	require.NoError(t, err)

	// student 2: attendance 0, assignments 90/200, quizzes 80/100, labs 0
	assert.Equal(t, engagement.Snapshot{Attendance: 0, Assignments: 45, Quizzes: 80, LabActivity: 0}, res.Engagement)
	assert.InDelta(t, 0.25+0.30*0.55+0.25*0.2+0.20, res.Assessment.Score, 1e-9)
	assert.Equal(t, risk.LevelHigh, res.Assessment.Level)
	assert.False(t, res.Risk.UsedStatisticalModel)
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "student_id", toSnake("StudentID"))
	assert.Equal(t, "week_number", toSnake("WeekNumber"))
	assert.Equal(t, "course_id", toSnake("CourseID"))
}
