// Package engagement turns raw attendance, assignment, quiz and lab records
// into engagement percentages.
package engagement

import (
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// Snapshot holds the four engagement percentages, each in [0,100] with one decimal.
type Snapshot struct {
	Attendance  float64 `json:"attendance"`
	Assignments float64 `json:"assignments"`
	Quizzes     float64 `json:"quizzes"`
	LabActivity float64 `json:"lab_activity"`
}

// Tally is an earned/possible pair before conversion to a percentage.
type Tally struct {
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
}

// Percent converts the tally; 0 when nothing was possible.
func (t Tally) Percent() float64 {
	return shared.Percent(t.Earned, t.Possible)
}

func (t *Tally) add(earned, possible float64) {
	t.Earned += earned
	t.Possible += possible
}

// Compute derives the engagement snapshot from a record bundle.
//
// Every assignment and quiz item in the bundle counts its max score as
// possible, submitted or not; only graded, handed-in work earns points.
// Lab activity uses the participation's own max score.
func Compute(r Records) Snapshot {
	return Snapshot{
		Attendance:  AttendanceTally(r.Attendance).Percent(),
		Assignments: AssignmentTally(r.Assignments, r.Submissions).Percent(),
		Quizzes:     QuizTally(r.Quizzes, r.QuizScores).Percent(),
		LabActivity: LabTally(r.Participations).Percent(),
	}
}

// AttendanceTally counts present marks over all marks.
func AttendanceTally(records []AttendanceRecord) Tally {
	var t Tally
	for _, a := range records {
		if a.IsPresent() {
			t.add(1, 1)
		} else {
			t.add(0, 1)
		}
	}
	return t
}

// AssignmentTally sums graded submission scores over the max scores of all items.
func AssignmentTally(items []Item, submissions []Submission) Tally {
	byItem := submissionsByItem(submissions)
	var t Tally
	for _, it := range items {
		earned := 0.0
		if s, ok := byItem[it.ID]; ok && s.IsAssessed() {
			earned = *s.Score
		}
		t.add(earned, it.MaxScore)
	}
	return t
}

// QuizTally sums quiz scores over the max scores of all quizzes.
func QuizTally(items []Item, scores []QuizScore) Tally {
	byItem := quizScoresByItem(scores)
	var t Tally
	for _, it := range items {
		earned := 0.0
		if q, ok := byItem[it.ID]; ok {
			earned = q.Score
		}
		t.add(earned, it.MaxScore)
	}
	return t
}

// LabTally sums participation scores over participation max scores.
func LabTally(participations []LabParticipation) Tally {
	var t Tally
	for _, p := range participations {
		t.add(p.Score, p.MaxScore)
	}
	return t
}

// submissionsByItem keeps one submission per assignment, preferring a graded one.
func submissionsByItem(submissions []Submission) map[int64]Submission {
	out := make(map[int64]Submission, len(submissions))
	for _, s := range submissions {
		prev, ok := out[s.AssignmentID]
		if !ok || (!prev.IsAssessed() && s.IsAssessed()) {
			out[s.AssignmentID] = s
		}
	}
	return out
}

// quizScoresByItem keeps the best score per quiz.
func quizScoresByItem(scores []QuizScore) map[int64]QuizScore {
	out := make(map[int64]QuizScore, len(scores))
	for _, q := range scores {
		if prev, ok := out[q.QuizID]; !ok || q.Score > prev.Score {
			out[q.QuizID] = q
		}
	}
	return out
}
