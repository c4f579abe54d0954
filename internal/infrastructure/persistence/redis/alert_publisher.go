package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// Alert topics.
const (
	TopicHighRisk       = "risk.high"
	TopicSweepCompleted = "risk.sweep_completed"
)

// publisher is the part of Client the alert publisher needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// AlertPublisher publishes high-risk events on AlertChannel(TopicHighRisk).
type AlertPublisher struct {
	client  publisher
	channel string
}

// NewAlertPublisher creates a publisher over client.
func NewAlertPublisher(client publisher) *AlertPublisher {
	return &AlertPublisher{client: client, channel: AlertChannel(TopicHighRisk)}
}

// Channel returns the channel alerts are published on.
func (p *AlertPublisher) Channel() string {
	return p.channel
}

// PublishHighRisk assigns an event ID when missing and publishes the event.
func (p *AlertPublisher) PublishHighRisk(ctx context.Context, event shared.HighRiskDetectedEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := p.client.Publish(ctx, p.channel, event); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", event.AggregateID(), err)
	}
	return nil
}

// PublishSweepCompleted publishes the summary of a finished risk sweep.
func (p *AlertPublisher) PublishSweepCompleted(ctx context.Context, event shared.RiskSweepCompletedEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := p.client.Publish(ctx, AlertChannel(TopicSweepCompleted), event); err != nil {
		return fmt.Errorf("failed to publish sweep summary: %w", err)
	}
	return nil
}
