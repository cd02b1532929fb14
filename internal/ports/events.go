package ports

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

var (
	ErrBrokerTimeout     = errors.New("broker send timed out")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrPayloadRejected   = errors.New("broker rejected payload")
	// ErrBrokerCircuitOpen marks a send refused locally without reaching the
	// broker. It always travels with ErrBrokerUnavailable.
	ErrBrokerCircuitOpen = errors.New("circuit open")
)

// BrokerClient sends one message and blocks until the broker acknowledges it
// or the send times out. Implementations do not retry.
type BrokerClient interface {
	SendSync(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// MessageHandler is invoked once per delivery. A nil return acknowledges the
// offset; a non-nil return leaves it uncommitted.
type MessageHandler interface {
	HandleMessage(ctx context.Context, delivery Delivery) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// EventHandler is the business collaborator behind the consumer. Errors
// wrapping domain.ErrEventRejected are permanent; anything else is retried.
type EventHandler interface {
	Handle(ctx context.Context, envelope domain.Envelope) error
}
