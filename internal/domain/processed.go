package domain

import (
	"fmt"
	"strings"
	"time"
)

type ProcessedStatus string

const (
	ProcessedStatusProcessed ProcessedStatus = "PROCESSED"
	ProcessedStatusFailed    ProcessedStatus = "FAILED"
)

// ProcessedEvent is the consumer-side dedup marker. One row per event id,
// never overwritten.
type ProcessedEvent struct {
	EventID     string
	ProcessedAt time.Time
	Status      ProcessedStatus
	Error       *string
}

func NewProcessedEvent(eventID string, at time.Time) (ProcessedEvent, error) {
	if strings.TrimSpace(eventID) == "" {
		return ProcessedEvent{}, fmt.Errorf("%w: event_id is required", ErrInvalidInput)
	}
	return ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: at.UTC(),
		Status:      ProcessedStatusProcessed,
	}, nil
}

func NewFailedProcessedEvent(eventID string, at time.Time, cause error) (ProcessedEvent, error) {
	rec, err := NewProcessedEvent(eventID, at)
	if err != nil {
		return ProcessedEvent{}, err
	}
	msg := SafeErrorMessage(cause)
	if msg == "" {
		msg = "unknown failure"
	}
	rec.Status = ProcessedStatusFailed
	rec.Error = &msg
	return rec, nil
}
