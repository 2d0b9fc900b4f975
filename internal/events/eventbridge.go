package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// EventBridge accepts at most ten entries per PutEvents call.
const maxBatchSize = 10

// PutEventsAPI is the slice of the EventBridge client the publisher uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher sends events to an EventBridge bus.
type EventBridgePublisher struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

// NewEventBridgePublisher creates a publisher for the given bus.
func NewEventBridgePublisher(client PutEventsAPI, eventBusName string, logger *zap.Logger) *EventBridgePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		source:       Source,
		logger:       logger,
	}
}

func (p *EventBridgePublisher) Publish(ctx context.Context, event DomainEvent) error {
	return p.PublishBatch(ctx, []DomainEvent{event})
}

func (p *EventBridgePublisher) PublishBatch(ctx context.Context, domainEvents []DomainEvent) error {
	for i := 0; i < len(domainEvents); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(domainEvents) {
			end = len(domainEvents)
		}
		if err := p.publishBatch(ctx, domainEvents[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, domainEvents []DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(domainEvents))
	for _, event := range domainEvents {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.Error(err),
				zap.String("eventType", event.GetEventType()),
			)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources:    []string{fmt.Sprintf("journal:entry/%s", event.GetAggregateID())},
		})
	}
	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil && i < len(domainEvents) {
				p.logger.Error("Failed to publish event",
					zap.String("eventType", domainEvents[i].GetEventType()),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}

var _ Publisher = (*EventBridgePublisher)(nil)
