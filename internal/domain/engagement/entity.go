package engagement

import (
	"time"
)

// AllWeeks disables the week filter in record queries.
const AllWeeks = 0

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// Gender follows the encoding the risk model was trained with.
type Gender int

const (
	GenderFemale Gender = 0
	GenderMale   Gender = 1
)

// DefaultGender is used when the student record has no gender.
const DefaultGender = GenderMale

// Student is the read-only view of an LMS user with the student role.
type Student struct {
	ID        int64
	StudentID string // institutional number, e.g. "S2024-0113"
	FirstName string
	LastName  string
	Email     string
	Gender    *Gender
}

// FullName returns "First Last", or the institutional number when both are empty.
func (s *Student) FullName() string {
	switch {
	case s.FirstName == "" && s.LastName == "":
		return s.StudentID
	case s.LastName == "":
		return s.FirstName
	case s.FirstName == "":
		return s.LastName
	}
	return s.FirstName + " " + s.LastName
}

// ModelGender returns the gender encoding with the default applied.
func (s *Student) ModelGender() Gender {
	if s.Gender == nil {
		return DefaultGender
	}
	return *s.Gender
}

// Course is the read-only view of an LMS course.
type Course struct {
	ID    int64
	Code  string
	Title string
	Year  int
	Term  string
}

// RegistrationStatus mirrors the LMS course registration states.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationDropped   RegistrationStatus = "dropped"
	RegistrationCompleted RegistrationStatus = "completed"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceStatus is the mark for one section of a class day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// Section identifies one of the teaching blocks of a day.
type Section string

const (
	SectionFirst  Section = "first-section"
	SectionSecond Section = "second-section"
	SectionThird  Section = "third-section"
	SectionFourth Section = "fourth-section"
)

// Order returns the position of the section within the day. Unknown sections sort last.
func (s Section) Order() int {
	switch s {
	case SectionFirst:
		return 1
	case SectionSecond:
		return 2
	case SectionThird:
		return 3
	case SectionFourth:
		return 4
	}
	return 5
}

// AttendanceRecord is unique per (student, course, date, section).
type AttendanceRecord struct {
	StudentID  int64
	CourseID   int64
	Date       time.Time
	WeekNumber int
	Section    Section
	Status     AttendanceStatus
}

// IsPresent reports whether the student attended.
func (a AttendanceRecord) IsPresent() bool {
	return a.Status == AttendancePresent
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSED ITEMS
// ══════════════════════════════════════════════════════════════════════════════

// Item is an assignment, quiz or lab that belongs to a course week.
type Item struct {
	ID         int64
	CourseID   int64
	Title      string
	WeekNumber int
	MaxScore   float64
}

// SubmissionStatus is the lifecycle state of an assignment submission.
type SubmissionStatus string

const (
	SubmissionSubmitted     SubmissionStatus = "submitted"
	SubmissionLateSubmitted SubmissionStatus = "late_submitted"
	SubmissionNotSubmitted  SubmissionStatus = "not_submitted"
	SubmissionGraded        SubmissionStatus = "graded"
	SubmissionMissing       SubmissionStatus = "missing"
)

// IsUnsubmitted reports whether the status means nothing was handed in.
func (s SubmissionStatus) IsUnsubmitted() bool {
	return s == SubmissionMissing || s == SubmissionNotSubmitted
}

// Submission is one student's hand-in for an assignment. Score is nil until graded.
type Submission struct {
	AssignmentID int64
	StudentID    int64
	Score        *float64
	Status       SubmissionStatus
}

// IsAssessed reports whether the submission exists and carries a grade.
func (s Submission) IsAssessed() bool {
	return !s.Status.IsUnsubmitted() && s.Score != nil
}

// QuizScore is one student's score on a quiz.
type QuizScore struct {
	QuizID    int64
	StudentID int64
	Score     float64
}

// LabParticipation records a lab session for a student. MaxScore is the
// participation's own maximum and may differ from the lab item's.
type LabParticipation struct {
	LabID     int64
	StudentID int64
	Score     float64
	MaxScore  float64
	Attended  bool
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD BUNDLE
// ══════════════════════════════════════════════════════════════════════════════

// Records holds everything fetched for one (student, course, week filter).
// Items are the course items in the filtered weeks; the per-student slices
// reference them by ID.
type Records struct {
	Attendance     []AttendanceRecord
	Assignments    []Item
	Submissions    []Submission
	Quizzes        []Item
	QuizScores     []QuizScore
	Labs           []Item
	Participations []LabParticipation
}

// ForWeek returns the subset of records whose items or dates fall in week.
func (r Records) ForWeek(week int) Records {
	out := Records{}
	for _, a := range r.Attendance {
		if a.WeekNumber == week {
			out.Attendance = append(out.Attendance, a)
		}
	}
	out.Assignments = itemsInWeek(r.Assignments, week)
	out.Quizzes = itemsInWeek(r.Quizzes, week)
	out.Labs = itemsInWeek(r.Labs, week)

	assignments := indexItems(out.Assignments)
	for _, s := range r.Submissions {
		if _, ok := assignments[s.AssignmentID]; ok {
			out.Submissions = append(out.Submissions, s)
		}
	}
	quizzes := indexItems(out.Quizzes)
	for _, q := range r.QuizScores {
		if _, ok := quizzes[q.QuizID]; ok {
			out.QuizScores = append(out.QuizScores, q)
		}
	}
	labs := indexItems(out.Labs)
	for _, p := range r.Participations {
		if _, ok := labs[p.LabID]; ok {
			out.Participations = append(out.Participations, p)
		}
	}
	return out
}

// HasActivity reports whether the student did anything in these records:
// attended a class, handed in an assignment, sat a quiz or attended a lab.
func (r Records) HasActivity() bool {
	for _, a := range r.Attendance {
		if a.IsPresent() {
			return true
		}
	}
	for _, s := range r.Submissions {
		if !s.Status.IsUnsubmitted() {
			return true
		}
	}
	if len(r.QuizScores) > 0 {
		return true
	}
	for _, p := range r.Participations {
		if p.Attended {
			return true
		}
	}
	return false
}

// MissedLabs counts labs in the records the student did not attend,
// including labs without a participation row.
func (r Records) MissedLabs() int {
	attended := make(map[int64]bool, len(r.Participations))
	for _, p := range r.Participations {
		if p.Attended {
			attended[p.LabID] = true
		}
	}
	missed := 0
	for _, l := range r.Labs {
		if !attended[l.ID] {
			missed++
		}
	}
	return missed
}

func itemsInWeek(items []Item, week int) []Item {
	var out []Item
	for _, it := range items {
		if it.WeekNumber == week {
			out = append(out, it)
		}
	}
	return out
}

func indexItems(items []Item) map[int64]Item {
	idx := make(map[int64]Item, len(items))
	for _, it := range items {
		idx[it.ID] = it
	}
	return idx
}
