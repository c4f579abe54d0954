// Package progress computes weekly scores for a student and the cohort
// averages they are compared against.
package progress

import (
	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// DefaultTotalWeeks is the chart length when none is configured.
const DefaultTotalWeeks = 7

// GateWeeks are the weeks in which activity makes the chart visible.
var GateWeeks = []int{2, 3}

// Point is one week of the progress chart.
type Point struct {
	WeekNumber   int      `json:"week_number"`
	StudentScore *float64 `json:"student_score"`
	ClassAverage *float64 `json:"class_average"`
	// HasData is per week: false when neither score exists, even on a visible chart.
	HasData      bool     `json:"has_data"`
}

// WeekScore returns the unweighted mean percentage over the handed-in
// submissions and quiz scores in r, each taken against its own item's max
// score. A submission without a score counts as 0%.
// r should already be limited to one week. Returns nil when nothing was handed in.
func WeekScore(r engagement.Records) *float64 {
	assignments := maxScores(r.Assignments)
	quizzes := maxScores(r.Quizzes)

	var sum float64
	var n int
	for _, s := range r.Submissions {
		maxScore, ok := assignments[s.AssignmentID]
		if !ok || s.Status.IsUnsubmitted() {
			continue
		}
		if s.Score != nil {
			sum += shared.RawPercent(*s.Score, maxScore)
		}
		n++
	}
	for _, q := range r.QuizScores {
		maxScore, ok := quizzes[q.QuizID]
		if !ok {
			continue
		}
		sum += shared.RawPercent(q.Score, maxScore)
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// CohortAverage is the mean of the non-nil scores, or nil when there are none.
// The result does not depend on the order of scores.
func CohortAverage(scores []*float64) *float64 {
	var sum float64
	var n int
	for _, s := range scores {
		if s == nil {
			continue
		}
		sum += *s
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// Visible applies the warm-up gate: the chart shows only once the student has
// activity in one of GateWeeks. r holds the student's records for all weeks.
func Visible(r engagement.Records) bool {
	for _, w := range GateWeeks {
		if r.ForWeek(w).HasActivity() {
			return true
		}
	}
	return false
}

// Week carries the raw scores for one week before rounding.
type Week struct {
	StudentScore *float64
	CohortScore  *float64
}

// Build returns one point per week 1..totalWeeks. weeks is keyed by week
// number; missing weeks have no data. When visible is false every point is empty.
func Build(totalWeeks int, visible bool, weeks map[int]Week) []Point {
	if totalWeeks <= 0 {
		totalWeeks = DefaultTotalWeeks
	}
	points := make([]Point, 0, totalWeeks)
	for w := 1; w <= totalWeeks; w++ {
		p := Point{WeekNumber: w}
		if visible {
			in := weeks[w]
			p.StudentScore = rounded(in.StudentScore)
			p.ClassAverage = rounded(in.CohortScore)
			if p.ClassAverage == nil {
				p.ClassAverage = rounded(in.StudentScore)
			}
			p.HasData = p.StudentScore != nil || p.ClassAverage != nil
		}
		points = append(points, p)
	}
	return points
}

func rounded(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := shared.Round1(*v)
	return &r
}

func maxScores(items []engagement.Item) map[int64]float64 {
	out := make(map[int64]float64, len(items))
	for _, it := range items {
		out[it.ID] = it.MaxScore
	}
	return out
}
