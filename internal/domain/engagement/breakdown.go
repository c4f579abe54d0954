package engagement

import (
	"sort"
	"time"
)

// Details is the per-record view behind a Snapshot.
type Details struct {
	Snapshot    Snapshot         `json:"engagement"`
	Attendance  AttendanceDetail `json:"attendance"`
	Assignments []ItemDetail     `json:"assignments"`
	Quizzes     []ItemDetail     `json:"quizzes"`
	Labs        []LabDetail      `json:"labs"`
}

// AttendanceDetail summarises attendance with the individual marks.
type AttendanceDetail struct {
	Present int              `json:"present"`
	Total   int              `json:"total"`
	Marks   []AttendanceMark `json:"records"`
}

// AttendanceMark is one dated attendance entry.
type AttendanceMark struct {
	Date       time.Time        `json:"date"`
	WeekNumber int              `json:"week_number"`
	Section    Section          `json:"section"`
	Status     AttendanceStatus `json:"status"`
}

// ItemDetail is the earned/possible line for an assignment or quiz.
type ItemDetail struct {
	ItemID     int64            `json:"id"`
	Title      string           `json:"title"`
	WeekNumber int              `json:"week_number"`
	Earned     float64          `json:"earned"`
	Possible   float64          `json:"possible"`
	Percent    float64          `json:"percent"`
	Status     SubmissionStatus `json:"status,omitempty"`
}

// LabDetail is the line for one lab.
type LabDetail struct {
	LabID      int64   `json:"id"`
	Title      string  `json:"title"`
	WeekNumber int     `json:"week_number"`
	Earned     float64 `json:"earned"`
	Possible   float64 `json:"possible"`
	Percent    float64 `json:"percent"`
	Attended   bool    `json:"attended"`
}

// Breakdown builds Details for a record bundle. Lines are sorted by week then id.
func Breakdown(r Records) Details {
	d := Details{Snapshot: Compute(r)}

	att := AttendanceTally(r.Attendance)
	d.Attendance = AttendanceDetail{
		Present: int(att.Earned),
		Total:   int(att.Possible),
		Marks:   make([]AttendanceMark, 0, len(r.Attendance)),
	}
	for _, a := range r.Attendance {
		d.Attendance.Marks = append(d.Attendance.Marks, AttendanceMark{
			Date:       a.Date,
			WeekNumber: a.WeekNumber,
			Section:    a.Section,
			Status:     a.Status,
		})
	}
	sort.Slice(d.Attendance.Marks, func(i, j int) bool {
		mi, mj := d.Attendance.Marks[i], d.Attendance.Marks[j]
		if !mi.Date.Equal(mj.Date) {
			return mi.Date.Before(mj.Date)
		}
		return mi.Section.Order() < mj.Section.Order()
	})

	subs := submissionsByItem(r.Submissions)
	for _, it := range sortedItems(r.Assignments) {
		line := ItemDetail{ItemID: it.ID, Title: it.Title, WeekNumber: it.WeekNumber, Possible: it.MaxScore, Status: SubmissionMissing}
		if s, ok := subs[it.ID]; ok {
			line.Status = s.Status
			if s.IsAssessed() {
				line.Earned = *s.Score
			}
		}
		line.Percent = Tally{line.Earned, line.Possible}.Percent()
		d.Assignments = append(d.Assignments, line)
	}

	scores := quizScoresByItem(r.QuizScores)
	for _, it := range sortedItems(r.Quizzes) {
		line := ItemDetail{ItemID: it.ID, Title: it.Title, WeekNumber: it.WeekNumber, Possible: it.MaxScore}
		if q, ok := scores[it.ID]; ok {
			line.Earned = q.Score
		}
		line.Percent = Tally{line.Earned, line.Possible}.Percent()
		d.Quizzes = append(d.Quizzes, line)
	}

	labs := indexItems(r.Labs)
	for _, p := range r.Participations {
		lab := labs[p.LabID]
		d.Labs = append(d.Labs, LabDetail{
			LabID:      p.LabID,
			Title:      lab.Title,
			WeekNumber: lab.WeekNumber,
			Earned:     p.Score,
			Possible:   p.MaxScore,
			Percent:    Tally{p.Score, p.MaxScore}.Percent(),
			Attended:   p.Attended,
		})
	}
	sort.Slice(d.Labs, func(i, j int) bool {
		if d.Labs[i].WeekNumber != d.Labs[j].WeekNumber {
			return d.Labs[i].WeekNumber < d.Labs[j].WeekNumber
		}
		return d.Labs[i].LabID < d.Labs[j].LabID
	})

	return d
}

func sortedItems(items []Item) []Item {
	out := append([]Item(nil), items...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekNumber != out[j].WeekNumber {
			return out[i].WeekNumber < out[j].WeekNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}
