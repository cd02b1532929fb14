package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxErrorLength bounds every persisted diagnostic string.
const MaxErrorLength = 800

type OutboxStatus string

const (
	OutboxStatusNew        OutboxStatus = "NEW"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

func ParseOutboxStatus(v string) (OutboxStatus, error) {
	switch s := OutboxStatus(strings.ToUpper(strings.TrimSpace(v))); s {
	case OutboxStatusNew, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown outbox status %q", ErrInvalidInput, v)
	}
}

// OutboxEvent is one notification waiting to be relayed to the broker.
// ID is also the broker key and the downstream idempotency key.
type OutboxEvent struct {
	ID           uuid.UUID
	EventType    string
	AggregateID  string
	Payload      []byte
	Status       OutboxStatus
	AttemptCount int
	LastError    *string
	CreatedAt    time.Time
	SentAt       *time.Time
}

func NewOutboxEvent(id uuid.UUID, eventType, aggregateID string, payload []byte, createdAt time.Time) (OutboxEvent, error) {
	if id == uuid.Nil {
		return OutboxEvent{}, fmt.Errorf("%w: outbox id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(eventType) == "" {
		return OutboxEvent{}, fmt.Errorf("%w: event_type is required", ErrInvalidInput)
	}
	if !json.Valid(payload) {
		return OutboxEvent{}, fmt.Errorf("%w: payload must be valid json", ErrInvalidInput)
	}
	return OutboxEvent{
		ID:          id,
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      OutboxStatusNew,
		CreatedAt:   createdAt.UTC(),
	}, nil
}

func (e *OutboxEvent) MarkProcessing() error {
	if e.Status != OutboxStatusNew {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, OutboxStatusProcessing)
	}
	e.Status = OutboxStatusProcessing
	return nil
}

func (e *OutboxEvent) MarkSent(at time.Time) error {
	if e.Status != OutboxStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, OutboxStatusSent)
	}
	sentAt := at.UTC()
	e.Status = OutboxStatusSent
	e.SentAt = &sentAt
	e.LastError = nil
	return nil
}

func (e *OutboxEvent) MarkFailed(reason string) error {
	if e.Status != OutboxStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, OutboxStatusFailed)
	}
	msg := TruncateError(reason)
	e.Status = OutboxStatusFailed
	e.AttemptCount++
	e.LastError = &msg
	return nil
}

// Release undoes a claim when no send was attempted.
func (e *OutboxEvent) Release() error {
	if e.Status != OutboxStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, OutboxStatusNew)
	}
	e.Status = OutboxStatusNew
	return nil
}

// Requeue is the operator path out of FAILED. Attempt history is kept.
func (e *OutboxEvent) Requeue() error {
	if e.Status != OutboxStatusFailed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, OutboxStatusNew)
	}
	e.Status = OutboxStatusNew
	return nil
}

// TruncateError cuts s to MaxErrorLength characters.
func TruncateError(s string) string {
	if len(s) <= MaxErrorLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxErrorLength {
		return s
	}
	return string(runes[:MaxErrorLength])
}

// SafeErrorMessage returns the error text, falling back to the error's type
// name when the text is blank.
func SafeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = errorTypeName(err)
	}
	return TruncateError(msg)
}

func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
