package query

import (
	"context"
	"sync"
	"time"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// fakeStore is an in-memory LMS used by the query tests.
type fakeStore struct {
	mu sync.Mutex

	students    map[int64]*engagement.Student
	courses     map[int64]*engagement.Course
	roster      map[int64][]int64
	items       map[int64]engagement.CourseItems
	attendance  []engagement.AttendanceRecord
	submissions []engagement.Submission
	quizScores  []engagement.QuizScore
	labs        []engagement.LabParticipation

	recordErr error
	fetches   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		students: map[int64]*engagement.Student{},
		courses:  map[int64]*engagement.Course{},
		roster:   map[int64][]int64{},
		items:    map[int64]engagement.CourseItems{},
	}
}

func (f *fakeStore) addStudent(id int64, first, last string) {
	f.students[id] = &engagement.Student{ID: id, StudentID: "S-" + first, FirstName: first, LastName: last}
}

func (f *fakeStore) addCourse(id int64, code string, students ...int64) {
	f.courses[id] = &engagement.Course{ID: id, Code: code, Title: code + " course", Year: 2025, Term: "fall"}
	f.roster[id] = append(f.roster[id], students...)
}

func (f *fakeStore) addAssignment(courseID int64, it engagement.Item) {
	it.CourseID = courseID
	ci := f.items[courseID]
	ci.Assignments = append(ci.Assignments, it)
	f.items[courseID] = ci
}

func (f *fakeStore) addQuiz(courseID int64, it engagement.Item) {
	it.CourseID = courseID
	ci := f.items[courseID]
	ci.Quizzes = append(ci.Quizzes, it)
	f.items[courseID] = ci
}

func (f *fakeStore) addLab(courseID int64, it engagement.Item) {
	it.CourseID = courseID
	ci := f.items[courseID]
	ci.Labs = append(ci.Labs, it)
	f.items[courseID] = ci
}

func (f *fakeStore) mark(studentID, courseID int64, week int, day int, status engagement.AttendanceStatus) {
	f.attendance = append(f.attendance, engagement.AttendanceRecord{
		StudentID:  studentID,
		CourseID:   courseID,
		Date:       time.Date(2025, 9, day, 0, 0, 0, 0, time.UTC),
		WeekNumber: week,
		Section:    engagement.SectionFirst,
		Status:     status,
	})
}

func (f *fakeStore) submit(studentID, assignmentID int64, score float64, status engagement.SubmissionStatus) {
	s := score
	f.submissions = append(f.submissions, engagement.Submission{AssignmentID: assignmentID, StudentID: studentID, Score: &s, Status: status})
}

func (f *fakeStore) quiz(studentID, quizID int64, score float64) {
	f.quizScores = append(f.quizScores, engagement.QuizScore{QuizID: quizID, StudentID: studentID, Score: score})
}

func (f *fakeStore) lab(studentID, labID int64, score, maxScore float64, attended bool) {
	f.labs = append(f.labs, engagement.LabParticipation{LabID: labID, StudentID: studentID, Score: score, MaxScore: maxScore, Attended: attended})
}

func inWeek(itemWeek, week int) bool {
	return week == engagement.AllWeeks || itemWeek == week
}

func (f *fakeStore) itemWeeks(items []engagement.Item, week int) map[int64]bool {
	out := map[int64]bool{}
	for _, it := range items {
		if inWeek(it.WeekNumber, week) {
			out[it.ID] = true
		}
	}
	return out
}

func (f *fakeStore) Attendance(_ context.Context, studentID, courseID int64, week int) ([]engagement.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	var out []engagement.AttendanceRecord
	for _, a := range f.attendance {
		if a.StudentID == studentID && a.CourseID == courseID && inWeek(a.WeekNumber, week) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) Submissions(_ context.Context, studentID, courseID int64, week int) ([]engagement.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.itemWeeks(f.items[courseID].Assignments, week)
	var out []engagement.Submission
	for _, s := range f.submissions {
		if s.StudentID == studentID && ids[s.AssignmentID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) QuizScores(_ context.Context, studentID, courseID int64, week int) ([]engagement.QuizScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.itemWeeks(f.items[courseID].Quizzes, week)
	var out []engagement.QuizScore
	for _, q := range f.quizScores {
		if q.StudentID == studentID && ids[q.QuizID] {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) LabParticipations(_ context.Context, studentID, courseID int64, week int) ([]engagement.LabParticipation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.itemWeeks(f.items[courseID].Labs, week)
	var out []engagement.LabParticipation
	for _, p := range f.labs {
		if p.StudentID == studentID && ids[p.LabID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) Items(_ context.Context, courseID int64, week int) (engagement.CourseItems, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.items[courseID]
	filter := func(items []engagement.Item) []engagement.Item {
		var out []engagement.Item
		for _, it := range items {
			if inWeek(it.WeekNumber, week) {
				out = append(out, it)
			}
		}
		return out
	}
	return engagement.CourseItems{
		Assignments: filter(all.Assignments),
		Quizzes:     filter(all.Quizzes),
		Labs:        filter(all.Labs),
	}, nil
}

func (f *fakeStore) ActiveStudentIDs(_ context.Context, courseID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.roster[courseID]...), nil
}

func (f *fakeStore) ActiveCourseIDs(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.courses {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) StudentByID(_ context.Context, id int64) (*engagement.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return nil, shared.ErrStudentNotFound
}

func (f *fakeStore) CourseByID(_ context.Context, id int64) (*engagement.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.courses[id]; ok {
		return c, nil
	}
	return nil, shared.ErrCourseNotFound
}

type toggleMap map[string]bool

func (t toggleMap) Enabled(feature string, _, _ int64) bool {
	enabled, ok := t[feature]
	return !ok || enabled
}
