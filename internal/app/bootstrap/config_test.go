package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DB_URL", "POSTGRES_URL", "KAFKA_BROKERS", "KAFKA_CLIENT", "OUTBOX_BATCH_SIZE",
		"OUTBOX_PUBLISH_DELAY_MS", "KAFKA_TOPIC_INFERENCE_EVENTS", "KAFKA_CONSUMER_GROUP_ID_INFERENCE",
		"OUTBOX_LOCKING_CLAIM", "BROKER_BREAKER_ENABLED", "HTTP_PORT", "APP_TOPIC",
	} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	// Keep godotenv away from any .env in the package directory.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.PublishDelay())
	assert.Equal(t, "inference.events.v1", cfg.KafkaTopic)
	assert.Equal(t, "inference-consumer-v1", cfg.KafkaConsumerGroup)
	assert.Equal(t, "kafka-go", cfg.KafkaClient)
	assert.True(t, cfg.OutboxLockingClaim)
	assert.True(t, cfg.BrokerBreakerEnabled)
	assert.Equal(t, 10*time.Second, cfg.BrokerSendTimeout())
	assert.Equal(t, 30*time.Second, cfg.ProductCacheTTL())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadConfigLayersFileThenEnvironment(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  http_port: 8181
database:
  url: postgres://file
kafka:
  brokers: ["file-broker:9092"]
  client: sarama
  breaker_enabled: false
outbox:
  batch_size: 50
  locking_claim: false
`), 0o600))

	t.Setenv("OUTBOX_BATCH_SIZE", "7")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.HTTPPort)
	assert.Equal(t, "postgres://file", cfg.DatabaseURL)
	assert.Equal(t, "sarama", cfg.KafkaClient)
	assert.False(t, cfg.BrokerBreakerEnabled)
	assert.False(t, cfg.OutboxLockingClaim)
	assert.Equal(t, 7, cfg.OutboxBatchSize)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	require.NoError(t, validateConfig(cfg))
}

func TestLoadConfigReadsDotEnvAndLegacyDatabaseURL(t *testing.T) {
	clearConfigEnv(t)

	require.NoError(t, os.WriteFile(".env", []byte("POSTGRES_URL=postgres://legacy\nOUTBOX_PUBLISH_DELAY_MS=500\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("POSTGRES_URL")
		_ = os.Unsetenv("OUTBOX_PUBLISH_DELAY_MS")
	})

	cfg, err := LoadConfig("missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, "postgres://legacy", cfg.DatabaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PublishDelay())

	t.Setenv("DB_URL", "postgres://primary")
	cfg, err = LoadConfig("missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.DatabaseURL)
}

func TestLoadConfigRejectsInvalidNumbers(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OUTBOX_BATCH_SIZE", "twenty")

	_, err := LoadConfig("missing.yaml")
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := defaultConfig()
	valid.DatabaseURL = "postgres://db"
	require.NoError(t, validateConfig(valid))

	cases := map[string]func(*Config){
		"missing database": func(c *Config) { c.DatabaseURL = "" },
		"zero batch":       func(c *Config) { c.OutboxBatchSize = 0 },
		"zero delay":       func(c *Config) { c.OutboxPublishDelayMS = 0 },
		"blank topic":      func(c *Config) { c.KafkaTopic = " " },
		"blank group":      func(c *Config) { c.KafkaConsumerGroup = "" },
		"unknown client":   func(c *Config) { c.KafkaClient = "franz" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestValidateSmokeConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Error(t, validateSmokeConfig(cfg))
	cfg.SmokeTopic = "smoke"
	assert.Error(t, validateSmokeConfig(cfg))
	cfg.KafkaBrokers = []string{"localhost:9092"}
	assert.NoError(t, validateSmokeConfig(cfg))
}
