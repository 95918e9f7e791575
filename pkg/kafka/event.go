package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix namespaces every topic produced by this platform.
const TopicPrefix = "draftgenie"

// Topic returns draftgenie.<domain>.<action>.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// envelopeVersion is bumped when the Event layout changes incompatibly.
const envelopeVersion = 1

// Event is the JSON envelope written as the value of every Kafka message.
// AggregateID doubles as the message key.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Aggregate names the entity an event is about.
type Aggregate struct {
	Type string
	ID   string
}

// EventOption customizes an Event built by NewEvent.
type EventOption func(*Event)

// WithCorrelationID tags the event with a request correlation id. An empty
// id leaves the event untouched.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) {
		if id != "" {
			e.CorrelationID = id
		}
	}
}

// WithMetadata sets one metadata entry.
func WithMetadata(key, value string) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		e.Metadata[key] = value
	}
}

// NewEvent marshals data into a fresh envelope stamped with a random id and
// the current UTC time.
func NewEvent(eventType, source string, agg Aggregate, data any, opts ...EventOption) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	e := &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   agg.ID,
		AggregateType: agg.Type,
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decode unmarshals the payload into target.
func (e *Event) Decode(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
