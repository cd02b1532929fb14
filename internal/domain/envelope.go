package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const EnvelopeSchemaVersion = "1.0"

// Envelope is the JSON document carried as the outbox payload and the broker
// message value.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion string          `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

func NewEnvelope(eventID, eventType, aggregateID string, occurredAt time.Time, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode %s data: %v", ErrInvalidInput, eventType, err)
	}
	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		SchemaVersion: EnvelopeSchemaVersion,
		Data:          raw,
	}, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a broker message value. Any failure wraps
// ErrMalformedEvent.
func DecodeEnvelope(value []byte) (Envelope, error) {
	if len(bytes.TrimSpace(value)) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty message value", ErrMalformedEvent)
	}
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(env.EventID) == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	}
	return env, nil
}
