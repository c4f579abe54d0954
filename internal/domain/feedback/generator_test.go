package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
)

var strong = engagement.Snapshot{Attendance: 95, Assignments: 90, Quizzes: 88, LabActivity: 80}

func TestShort(t *testing.T) {
	cases := []struct {
		name  string
		snap  engagement.Snapshot
		level risk.Level
		want  string
	}{
		{"doing well", strong, risk.LevelLow, "Keep up the excellent work!"},
		{"no trigger but not low", strong, risk.LevelMedium, "Maintain consistent effort"},
		{"attendance only", engagement.Snapshot{Attendance: 74.9, Assignments: 90, Quizzes: 90, LabActivity: 90}, risk.LevelMedium, "Improve attendance"},
		{
			"all rules in order",
			engagement.Snapshot{Attendance: 10, Assignments: 10, Quizzes: 10, LabActivity: 10},
			risk.LevelHigh,
			"Improve attendance and Complete assignments and Study for quizzes and Attend lab sessions",
		},
		{"boundary is not below", engagement.Snapshot{Attendance: 75, Assignments: 70, Quizzes: 70, LabActivity: 50}, risk.LevelLow, "Keep up the excellent work!"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Short(c.snap, c.level, ShortThresholds))
		})
	}
}

func TestShortCommenter(t *testing.T) {
	c := ShortCommenter(ShortThresholds)
	assert.Equal(t, "Study for quizzes", c.Comment(engagement.Snapshot{Attendance: 80, Assignments: 80, Quizzes: 40, LabActivity: 80}, risk.LevelLow))
}

func TestDetailed_Positive(t *testing.T) {
	m := Detailed(Input{Snapshot: strong, Level: risk.LevelLow}, DetailedThresholds)

	assert.Equal(t, "Great work! Keep it up.", m.Message)
	assert.Equal(t, []string{"Maintain your current performance level"}, m.Suggestions)
}

func TestDetailed_SentenceJoined(t *testing.T) {
	in := Input{
		Snapshot:   engagement.Snapshot{Attendance: 55.6, Assignments: 65, Quizzes: 80, LabActivity: 20},
		Level:      risk.LevelMedium,
		MissedLabs: 2,
	}

	m := Detailed(in, DetailedThresholds)

	assert.Equal(t, "You missed several classes this week. Assignment completion is low. You missed 2 labs this week.", m.Message)
	assert.Equal(t, []string{
		"Attend all classes to boost performance",
		"Submit all weekly assignments on time",
		"Attend all labs to boost performance",
	}, m.Suggestions)
}

func TestDetailed_LabWording(t *testing.T) {
	low := engagement.Snapshot{Attendance: 90, Assignments: 90, Quizzes: 90, LabActivity: 10}

	assert.Equal(t, "You missed 1 lab this week.", Detailed(Input{Snapshot: low, MissedLabs: 1}, DetailedThresholds).Message)
	assert.Equal(t, "Lab activity is low.", Detailed(Input{Snapshot: low}, DetailedThresholds).Message)
}

func TestDetailed_MaintainEffort(t *testing.T) {
	m := Detailed(Input{Snapshot: strong, Level: risk.LevelHigh}, DetailedThresholds)

	assert.Equal(t, "Keep your effort consistent.", m.Message)
	assert.Len(t, m.Suggestions, 1)
}
