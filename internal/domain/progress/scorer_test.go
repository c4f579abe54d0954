package progress

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
)

func f(v float64) *float64 { return &v }

func TestWeekScore_NilWhenNothingAssessed(t *testing.T) {
	r := engagement.Records{
		Assignments: []engagement.Item{{ID: 1, WeekNumber: 4, MaxScore: 10}},
		Submissions: []engagement.Submission{{AssignmentID: 1, Status: engagement.SubmissionMissing, Score: f(10)}},
	}

	assert.Nil(t, WeekScore(r))
	assert.Nil(t, WeekScore(engagement.Records{}))
}

func TestWeekScore_ZeroIsNotNil(t *testing.T) {
	r := engagement.Records{
		Quizzes:    []engagement.Item{{ID: 3, WeekNumber: 4, MaxScore: 10}},
		QuizScores: []engagement.QuizScore{{QuizID: 3, Score: 0}},
	}

	got := WeekScore(r)

	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestWeekScore_MeanOfItemPercentages(t *testing.T) {
	r := engagement.Records{
		Assignments: []engagement.Item{{ID: 1, MaxScore: 50}, {ID: 2, MaxScore: 10}},
		Submissions: []engagement.Submission{
			{AssignmentID: 1, Score: f(40), Status: engagement.SubmissionGraded},
			{AssignmentID: 2, Score: nil, Status: engagement.SubmissionSubmitted},
		},
		Quizzes:    []engagement.Item{{ID: 3, MaxScore: 20}},
		QuizScores: []engagement.QuizScore{{QuizID: 3, Score: 12}},
	}

	got := WeekScore(r)

	require.NotNil(t, got)
	assert.InDelta(t, 140.0/3, *got, 1e-9) // (80 + 0 + 60) / 3
}

func TestWeekScore_UngradedSubmissionCountsAsZero(t *testing.T) {
	r := engagement.Records{
		Assignments: []engagement.Item{{ID: 1, WeekNumber: 4, MaxScore: 100}},
		Submissions: []engagement.Submission{{AssignmentID: 1, Status: engagement.SubmissionSubmitted}},
	}

	got := WeekScore(r)

	require.True(t, r.HasActivity())
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestCohortAverage_ExcludesNil(t *testing.T) {
	got := CohortAverage([]*float64{nil, f(80), f(60)})

	require.NotNil(t, got)
	assert.Equal(t, 70.0, *got)
}

func TestCohortAverage_AllNil(t *testing.T) {
	assert.Nil(t, CohortAverage([]*float64{nil, nil}))
	assert.Nil(t, CohortAverage(nil))
}

func TestCohortAverage_OrderInsensitive(t *testing.T) {
	scores := []*float64{f(12.5), nil, f(99), f(47.25), f(0), nil, f(63.1)}
	want := CohortAverage(scores)
	require.NotNil(t, want)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]*float64(nil), scores...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := CohortAverage(shuffled)
		require.NotNil(t, got)
		assert.InDelta(t, *want, *got, 1e-9)
	}
}

func TestVisible(t *testing.T) {
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	week1Only := engagement.Records{
		Attendance: []engagement.AttendanceRecord{{Date: day, WeekNumber: 1, Status: engagement.AttendancePresent}},
		Quizzes:    []engagement.Item{{ID: 1, WeekNumber: 5, MaxScore: 10}},
		QuizScores: []engagement.QuizScore{{QuizID: 1, Score: 9}},
	}
	assert.False(t, Visible(week1Only))

	absentWeek2 := engagement.Records{
		Attendance: []engagement.AttendanceRecord{{Date: day, WeekNumber: 2, Status: engagement.AttendanceAbsent}},
	}
	assert.False(t, Visible(absentWeek2))

	week3 := engagement.Records{
		Assignments: []engagement.Item{{ID: 2, WeekNumber: 3, MaxScore: 10}},
		Submissions: []engagement.Submission{{AssignmentID: 2, Status: engagement.SubmissionSubmitted}},
	}
	assert.True(t, Visible(week3))
}

func TestBuild_HiddenChart(t *testing.T) {
	weeks := map[int]Week{1: {StudentScore: f(90), CohortScore: f(80)}, 5: {StudentScore: f(70)}}

	points := Build(7, false, weeks)

	require.Len(t, points, 7)
	for i, p := range points {
		assert.Equal(t, i+1, p.WeekNumber)
		assert.False(t, p.HasData)
		assert.Nil(t, p.StudentScore)
		assert.Nil(t, p.ClassAverage)
	}
}

func TestBuild_VisibleChart(t *testing.T) {
	weeks := map[int]Week{
		1: {StudentScore: f(66.66), CohortScore: f(71.04)},
		2: {StudentScore: f(55)},
		3: {CohortScore: f(40)},
	}

	points := Build(4, true, weeks)

	require.Len(t, points, 4)
	assert.Equal(t, 66.7, *points[0].StudentScore)
	assert.Equal(t, 71.0, *points[0].ClassAverage)
	assert.True(t, points[0].HasData)

	assert.Equal(t, 55.0, *points[1].ClassAverage, "falls back to own score")

	assert.Nil(t, points[2].StudentScore)
	assert.Equal(t, 40.0, *points[2].ClassAverage)
	assert.True(t, points[2].HasData)

	assert.False(t, points[3].HasData)
}

func TestBuild_DefaultLength(t *testing.T) {
	assert.Len(t, Build(0, false, nil), DefaultTotalWeeks)
}
