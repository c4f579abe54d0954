package shared

import (
	"fmt"
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	EventHighRiskDetected   EventType = "risk.high_detected"
	EventRiskSweepCompleted EventType = "risk.sweep_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event. The ID is assigned by the publisher.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// HighRiskDetectedEvent is emitted when a registration is estimated HIGH risk.
type HighRiskDetectedEvent struct {
	BaseEvent
	StudentID int64   `json:"student_id"`
	CourseID  int64   `json:"course_id"`
	Score     float64 `json:"risk_score"`
	Level     string  `json:"risk_level"`
	Feedback  string  `json:"feedback"`
	UsedModel bool    `json:"used_model"`
}

// NewHighRiskDetectedEvent creates the alert event for a registration.
func NewHighRiskDetectedEvent(studentID, courseID int64, score float64, level, feedback string, usedModel bool) HighRiskDetectedEvent {
	return HighRiskDetectedEvent{
		BaseEvent: NewBaseEvent(EventHighRiskDetected, fmt.Sprintf("%d:%d", courseID, studentID)),
		StudentID: studentID,
		CourseID:  courseID,
		Score:     score,
		Level:     level,
		Feedback:  feedback,
		UsedModel: usedModel,
	}
}

// RiskSweepCompletedEvent summarises one sweep over all active courses.
type RiskSweepCompletedEvent struct {
	BaseEvent
	Courses       int           `json:"courses"`
	Registrations int           `json:"registrations"`
	HighRisk      int           `json:"high_risk"`
	Duration      time.Duration `json:"duration_ns"`
}

// NewRiskSweepCompletedEvent creates the sweep summary event.
func NewRiskSweepCompletedEvent(runID string, courses, registrations, highRisk int, d time.Duration) RiskSweepCompletedEvent {
	return RiskSweepCompletedEvent{
		BaseEvent:     NewBaseEvent(EventRiskSweepCompleted, runID),
		Courses:       courses,
		Registrations: registrations,
		HighRisk:      highRisk,
		Duration:      d,
	}
}
