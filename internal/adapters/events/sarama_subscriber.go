package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type SaramaSubscriber struct {
	group sarama.ConsumerGroup
	topic string
}

func newSaramaConsumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	return cfg
}

func NewSaramaSubscriber(brokers []string, groupID, topic string) (*SaramaSubscriber, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("sarama subscriber requires at least one broker")
	}
	if groupID == "" || topic == "" {
		return nil, fmt.Errorf("sarama subscriber requires group id and topic")
	}
	group, err := sarama.NewConsumerGroup(brokers, groupID, newSaramaConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create sarama consumer group: %w", err)
	}
	return &SaramaSubscriber{group: group, topic: topic}, nil
}

func (s *SaramaSubscriber) Subscribe(ctx context.Context, handler ports.MessageHandler) error {
	gh := &saramaGroupHandler{handler: handler}
	for {
		// Consume returns on every rebalance; loop to rejoin.
		if err := s.group.Consume(ctx, []string{s.topic}, gh); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume %s: %w", s.topic, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *SaramaSubscriber) Close() error {
	return s.group.Close()
}

type saramaGroupHandler struct {
	handler ports.MessageHandler
}

func (h *saramaGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *saramaGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			delivery := ports.Delivery{
				Topic:     msg.Topic,
				Partition: int(msg.Partition),
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
				Timestamp: msg.Timestamp,
			}
			if err := h.handler.HandleMessage(sess.Context(), delivery); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
			sess.Commit()
		case <-sess.Context().Done():
			return nil
		}
	}
}
