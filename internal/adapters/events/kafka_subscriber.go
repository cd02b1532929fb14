package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type KafkaSubscriber struct {
	reader *kafka.Reader
}

func NewKafkaSubscriber(brokers []string, groupID, topic string) (*KafkaSubscriber, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka subscriber requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka subscriber requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka subscriber requires a topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: []string{topic},
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
		// Zero interval commits synchronously inside CommitMessages.
		CommitInterval: 0,
	})
	return &KafkaSubscriber{reader: reader}, nil
}

// Subscribe fetches one message at a time and commits its offset only after
// the handler returns nil.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, handler ports.MessageHandler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, io.EOF):
				return nil
			default:
				return fmt.Errorf("fetch message: %w", err)
			}
		}
		delivery := ports.Delivery{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Timestamp: msg.Time,
		}
		if err := handler.HandleMessage(ctx, delivery); err != nil {
			return fmt.Errorf("handle %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = s.reader.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			return fmt.Errorf("commit %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}

var _ ports.Subscriber = (*KafkaSubscriber)(nil)
