// Package events defines the domain events emitted by the record workflow
// and the publishers that deliver them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Source is the EventBridge source of every event this service emits.
const Source = "emotion-tracker.journal"

const TypeEntryRecorded = "EntryRecorded"

// DomainEvent is the contract every published event satisfies.
type DomainEvent interface {
	GetEventID() string
	GetEventType() string
	GetAggregateID() string
	GetTimestamp() time.Time
}

// BaseEvent carries the fields common to all events.
type BaseEvent struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	AggregateID string    `json:"aggregateId"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// EntryRecorded is emitted when step 3 completes.
type EntryRecorded struct {
	BaseEvent
	UserID    string `json:"userId,omitempty"`
	EntryDate string `json:"entryDate"`
	HasNote   bool   `json:"hasNote"`
}

// NewEntryRecorded builds the event for a saved entry.
func NewEntryRecorded(entryID, userID, entryDate string, hasNote bool, at time.Time) EntryRecorded {
	return EntryRecorded{
		BaseEvent: BaseEvent{
			EventID:     uuid.NewString(),
			EventType:   TypeEntryRecorded,
			AggregateID: entryID,
			Timestamp:   at,
		},
		UserID:    userID,
		EntryDate: entryDate,
		HasNote:   hasNote,
	}
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	PublishBatch(ctx context.Context, events []DomainEvent) error
}
