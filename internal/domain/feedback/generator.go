// Package feedback turns engagement figures into advice for the student.
//
// Rules are evaluated in a fixed order: attendance, assignments, quizzes, labs.
// Each triggered rule contributes one fragment. The short form joins fragments
// with " and "; the message form writes one sentence per fragment.
package feedback

import (
	"fmt"
	"strings"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
)

// Thresholds are the percentages below which a rule triggers.
type Thresholds struct {
	Attendance  float64
	Assignments float64
	Quizzes     float64
	Labs        float64
}

// ShortThresholds are used by the one-line risk feedback.
var ShortThresholds = Thresholds{Attendance: 75, Assignments: 70, Quizzes: 70, Labs: 50}

// DetailedThresholds are used by the dashboard message.
var DetailedThresholds = Thresholds{Attendance: 60, Assignments: 70, Quizzes: 60, Labs: 50}

const (
	shortAttendance  = "Improve attendance"
	shortAssignments = "Complete assignments"
	shortQuizzes     = "Study for quizzes"
	shortLabs        = "Attend lab sessions"
	shortMaintain    = "Maintain consistent effort"
	shortPositive    = "Keep up the excellent work!"
)

// Short returns the one-line advice for a snapshot and risk level.
func Short(s engagement.Snapshot, level risk.Level, th Thresholds) string {
	var parts []string
	if s.Attendance < th.Attendance {
		parts = append(parts, shortAttendance)
	}
	if s.Assignments < th.Assignments {
		parts = append(parts, shortAssignments)
	}
	if s.Quizzes < th.Quizzes {
		parts = append(parts, shortQuizzes)
	}
	if s.LabActivity < th.Labs {
		parts = append(parts, shortLabs)
	}
	if len(parts) == 0 && level != risk.LevelLow {
		parts = append(parts, shortMaintain)
	}
	if len(parts) == 0 {
		return shortPositive
	}
	return strings.Join(parts, " and ")
}

// ShortCommenter plugs Short into risk estimators.
func ShortCommenter(th Thresholds) risk.Commenter {
	return risk.CommenterFunc(func(s engagement.Snapshot, level risk.Level) string {
		return Short(s, level, th)
	})
}

// Input is what the message form needs beyond the snapshot.
type Input struct {
	Snapshot   engagement.Snapshot
	Level      risk.Level
	MissedLabs int
}

// Message is the dashboard feedback block.
type Message struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// Detailed returns the sentence-joined message with one suggestion per rule.
func Detailed(in Input, th Thresholds) Message {
	var messages, suggestions []string
	add := func(msg, suggestion string) {
		messages = append(messages, msg)
		suggestions = append(suggestions, suggestion)
	}

	s := in.Snapshot
	if s.Attendance < th.Attendance {
		add("You missed several classes this week", "Attend all classes to boost performance")
	}
	if s.Assignments < th.Assignments {
		add("Assignment completion is low", "Submit all weekly assignments on time")
	}
	if s.Quizzes < th.Quizzes {
		add("Quiz scores need improvement", "Review course materials regularly")
	}
	if s.LabActivity < th.Labs {
		switch {
		case in.MissedLabs == 1:
			add("You missed 1 lab this week", "Attend all labs to boost performance")
		case in.MissedLabs > 1:
			add(fmt.Sprintf("You missed %d labs this week", in.MissedLabs), "Attend all labs to boost performance")
		default:
			add("Lab activity is low", "Attend all labs to boost performance")
		}
	}
	if len(messages) == 0 && in.Level != "" && in.Level != risk.LevelLow {
		add("Keep your effort consistent", "Maintain a steady weekly study routine")
	}
	if len(messages) == 0 {
		return Message{
			Message:     "Great work! Keep it up.",
			Suggestions: []string{"Maintain your current performance level"},
		}
	}
	return Message{
		Message:     strings.Join(messages, ". ") + ".",
		Suggestions: suggestions,
	}
}
