package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/IBM/sarama"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type SaramaBrokerClient struct {
	producer sarama.SyncProducer
}

func newSaramaProducerConfig(sendTimeout time.Duration) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 0
	cfg.Producer.Timeout = sendTimeout
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.DialTimeout = sendTimeout
	cfg.Net.ReadTimeout = sendTimeout
	cfg.Net.WriteTimeout = sendTimeout
	return cfg
}

func NewSaramaBrokerClient(brokers []string, sendTimeout time.Duration) (*SaramaBrokerClient, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("sarama broker client requires at least one broker")
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	producer, err := sarama.NewSyncProducer(brokers, newSaramaProducerConfig(sendTimeout))
	if err != nil {
		return nil, fmt.Errorf("create sarama producer: %w", err)
	}
	return &SaramaBrokerClient{producer: producer}, nil
}

// SendSync returns early with a timeout when ctx ends, the in-flight produce
// request still completes on its own.
func (c *SaramaBrokerClient) SendSync(ctx context.Context, topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now().UTC(),
	}
	done := make(chan error, 1)
	go func() {
		_, _, err := c.producer.SendMessage(msg)
		done <- err
	}()
	select {
	case err := <-done:
		return classifySaramaError(err)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ports.ErrBrokerTimeout, ctx.Err())
	}
}

func (c *SaramaBrokerClient) Close() error {
	return c.producer.Close()
}

func classifySaramaError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sarama.ErrRequestTimedOut), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ports.ErrBrokerTimeout, err)
	case errors.Is(err, sarama.ErrMessageSizeTooLarge),
		errors.Is(err, sarama.ErrInvalidMessage),
		errors.Is(err, sarama.ErrInvalidMessageSize):
		return fmt.Errorf("%w: %v", ports.ErrPayloadRejected, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ports.ErrBrokerTimeout, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrBrokerUnavailable, err)
}

var _ ports.BrokerClient = (*SaramaBrokerClient)(nil)
