package events

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

// LoggingBrokerClient stands in for a broker when none is configured.
type LoggingBrokerClient struct {
	logger *slog.Logger
}

func NewLoggingBrokerClient(logger *slog.Logger) *LoggingBrokerClient {
	return &LoggingBrokerClient{logger: logger}
}

func (c *LoggingBrokerClient) SendSync(ctx context.Context, topic, key string, value []byte) error {
	c.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "send_sync",
		"outcome", "success",
		"topic", topic,
		"key", key,
		"payload_bytes", len(value),
	)
	return nil
}

func (c *LoggingBrokerClient) Close() error { return nil }

var _ ports.BrokerClient = (*LoggingBrokerClient)(nil)
