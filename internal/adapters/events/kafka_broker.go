package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type KafkaBrokerClient struct {
	writer      *kafka.Writer
	sendTimeout time.Duration
}

func NewKafkaBrokerClient(brokers []string, sendTimeout time.Duration) (*KafkaBrokerClient, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka broker client requires at least one broker")
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &KafkaBrokerClient{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			// Retries are counted by the outbox, not the writer.
			MaxAttempts:  1,
			BatchSize:    1,
			BatchTimeout: 5 * time.Millisecond,
			WriteTimeout: sendTimeout,
		},
		sendTimeout: sendTimeout,
	}, nil
}

func (c *KafkaBrokerClient) SendSync(ctx context.Context, topic, key string, value []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	err := c.writer.WriteMessages(sendCtx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	return classifyKafkaError(err)
}

func (c *KafkaBrokerClient) Close() error {
	return c.writer.Close()
}

func classifyKafkaError(err error) error {
	if err == nil {
		return nil
	}
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, item := range writeErrs {
			if item != nil {
				return classifyKafkaError(item)
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ports.ErrBrokerTimeout, err)
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch kerr {
		case kafka.MessageSizeTooLarge, kafka.InvalidMessage, kafka.InvalidMessageSize:
			return fmt.Errorf("%w: %v", ports.ErrPayloadRejected, err)
		case kafka.RequestTimedOut:
			return fmt.Errorf("%w: %v", ports.ErrBrokerTimeout, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ports.ErrBrokerTimeout, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrBrokerUnavailable, err)
}

var _ ports.BrokerClient = (*KafkaBrokerClient)(nil)
