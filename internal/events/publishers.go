package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the logger instead of a bus.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event DomainEvent) error {
	p.logger.Info("Domain event",
		zap.String("eventType", event.GetEventType()),
		zap.String("eventId", event.GetEventID()),
		zap.String("aggregateId", event.GetAggregateID()),
		zap.Time("timestamp", event.GetTimestamp()),
	)
	return nil
}

func (p *LogPublisher) PublishBatch(ctx context.Context, events []DomainEvent) error {
	for _, e := range events {
		_ = p.Publish(ctx, e)
	}
	return nil
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, DomainEvent) error        { return nil }
func (NoOpPublisher) PublishBatch(context.Context, []DomainEvent) error { return nil }

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = NoOpPublisher{}
)
