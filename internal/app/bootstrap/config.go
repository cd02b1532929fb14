package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/default.yaml"

type Config struct {
	ServiceID string `env:"SERVICE_ID"`
	HTTPPort  int    `env:"HTTP_PORT"`
	GRPCPort  int    `env:"GRPC_PORT"`
	LogLevel  string `env:"LOG_LEVEL"`

	DatabaseURL string `env:"DB_URL"`
	MaxDBConns  int32  `env:"DB_MAX_CONNS"`
	RedisURL    string `env:"REDIS_URL"`

	KafkaBrokers          []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaClient           string   `env:"KAFKA_CLIENT"`
	KafkaTopic            string   `env:"KAFKA_TOPIC_INFERENCE_EVENTS"`
	KafkaConsumerGroup    string   `env:"KAFKA_CONSUMER_GROUP_ID_INFERENCE"`
	BrokerSendTimeoutMS   int      `env:"BROKER_SEND_TIMEOUT_MS"`
	BrokerBreakerEnabled  bool     `env:"BROKER_BREAKER_ENABLED"`
	BrokerBreakerFailures uint32   `env:"BROKER_BREAKER_FAILURES"`
	BrokerBreakerOpenMS   int      `env:"BROKER_BREAKER_OPEN_MS"`
	SmokeTopic            string   `env:"APP_TOPIC"`

	OutboxBatchSize            int  `env:"OUTBOX_BATCH_SIZE"`
	OutboxPublishDelayMS       int  `env:"OUTBOX_PUBLISH_DELAY_MS"`
	OutboxLockingClaim         bool `env:"OUTBOX_LOCKING_CLAIM"`
	ConsumerRetryMaxIntervalMS int  `env:"CONSUMER_RETRY_MAX_INTERVAL_MS"`
	ProductCacheTTLSeconds     int  `env:"PRODUCT_CACHE_TTL_SECONDS"`

	InferenceBaseURL   string `env:"INFERENCE_BASE_URL"`
	InferenceTimeoutMS int    `env:"INFERENCE_TIMEOUT_MS"`
	OperatorJWTSecret  string `env:"OPERATOR_JWT_SECRET"`
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Database struct {
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		Client          string   `yaml:"client"`
		Topic           string   `yaml:"topic"`
		ConsumerGroup   string   `yaml:"consumer_group"`
		SendTimeoutMS   int      `yaml:"send_timeout_ms"`
		BreakerEnabled  *bool    `yaml:"breaker_enabled"`
		BreakerFailures uint32   `yaml:"breaker_failures"`
		BreakerOpenMS   int      `yaml:"breaker_open_ms"`
	} `yaml:"kafka"`
	Outbox struct {
		BatchSize      int   `yaml:"batch_size"`
		PublishDelayMS int   `yaml:"publish_delay_ms"`
		LockingClaim   *bool `yaml:"locking_claim"`
	} `yaml:"outbox"`
	Consumer struct {
		RetryMaxIntervalMS int `yaml:"retry_max_interval_ms"`
	} `yaml:"consumer"`
	Cache struct {
		ProductTTLSeconds int `yaml:"product_ttl_seconds"`
	} `yaml:"cache"`
	Inference struct {
		BaseURL   string `yaml:"base_url"`
		TimeoutMS int    `yaml:"timeout_ms"`
	} `yaml:"inference"`
}

func defaultConfig() Config {
	return Config{
		ServiceID:                  "M59-Inference-Event-Relay",
		HTTPPort:                   8080,
		GRPCPort:                   9090,
		LogLevel:                   "info",
		MaxDBConns:                 10,
		KafkaClient:                "kafka-go",
		KafkaTopic:                 "inference.events.v1",
		KafkaConsumerGroup:         "inference-consumer-v1",
		BrokerSendTimeoutMS:        10000,
		BrokerBreakerEnabled:       true,
		BrokerBreakerFailures:      5,
		BrokerBreakerOpenMS:        30000,
		OutboxBatchSize:            20,
		OutboxPublishDelayMS:       2000,
		OutboxLockingClaim:         true,
		ConsumerRetryMaxIntervalMS: 30000,
		ProductCacheTTLSeconds:     30,
		InferenceTimeoutMS:         3000,
	}
}

// ConfigPath returns CONFIG_PATH or the bundled default file.
func ConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p
	}
	return defaultConfigPath
}

// LoadConfig layers defaults, the YAML file at path, a local .env file and
// the process environment, in that order. Missing files are skipped.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if raw, err := os.ReadFile(path); err == nil {
		var fileCfg configFile
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		applyConfigFile(&cfg, fileCfg)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if os.Getenv("DB_URL") == "" {
		if legacy := strings.TrimSpace(os.Getenv("POSTGRES_URL")); legacy != "" {
			cfg.DatabaseURL = legacy
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	return cfg, nil
}

func applyConfigFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = f.Service.LogLevel
	}
	if f.Database.URL != "" {
		cfg.DatabaseURL = f.Database.URL
	}
	if f.Database.MaxConns > 0 {
		cfg.MaxDBConns = f.Database.MaxConns
	}
	if f.Redis.URL != "" {
		cfg.RedisURL = f.Redis.URL
	}
	if len(f.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Kafka.Brokers
	}
	if f.Kafka.Client != "" {
		cfg.KafkaClient = f.Kafka.Client
	}
	if f.Kafka.Topic != "" {
		cfg.KafkaTopic = f.Kafka.Topic
	}
	if f.Kafka.ConsumerGroup != "" {
		cfg.KafkaConsumerGroup = f.Kafka.ConsumerGroup
	}
	if f.Kafka.SendTimeoutMS > 0 {
		cfg.BrokerSendTimeoutMS = f.Kafka.SendTimeoutMS
	}
	if f.Kafka.BreakerEnabled != nil {
		cfg.BrokerBreakerEnabled = *f.Kafka.BreakerEnabled
	}
	if f.Kafka.BreakerFailures > 0 {
		cfg.BrokerBreakerFailures = f.Kafka.BreakerFailures
	}
	if f.Kafka.BreakerOpenMS > 0 {
		cfg.BrokerBreakerOpenMS = f.Kafka.BreakerOpenMS
	}
	if f.Outbox.BatchSize > 0 {
		cfg.OutboxBatchSize = f.Outbox.BatchSize
	}
	if f.Outbox.PublishDelayMS > 0 {
		cfg.OutboxPublishDelayMS = f.Outbox.PublishDelayMS
	}
	if f.Outbox.LockingClaim != nil {
		cfg.OutboxLockingClaim = *f.Outbox.LockingClaim
	}
	if f.Consumer.RetryMaxIntervalMS > 0 {
		cfg.ConsumerRetryMaxIntervalMS = f.Consumer.RetryMaxIntervalMS
	}
	if f.Cache.ProductTTLSeconds > 0 {
		cfg.ProductCacheTTLSeconds = f.Cache.ProductTTLSeconds
	}
	if f.Inference.BaseURL != "" {
		cfg.InferenceBaseURL = f.Inference.BaseURL
	}
	if f.Inference.TimeoutMS > 0 {
		cfg.InferenceTimeoutMS = f.Inference.TimeoutMS
	}
}

func validateConfig(cfg Config) error {
	if cfg.ServiceID == "" {
		return fmt.Errorf("service.id is required")
	}
	if cfg.HTTPPort <= 0 || cfg.GRPCPort <= 0 {
		return fmt.Errorf("service ports must be positive")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if cfg.OutboxPublishDelayMS <= 0 {
		return fmt.Errorf("OUTBOX_PUBLISH_DELAY_MS must be positive")
	}
	if strings.TrimSpace(cfg.KafkaTopic) == "" {
		return fmt.Errorf("KAFKA_TOPIC_INFERENCE_EVENTS is required")
	}
	if strings.TrimSpace(cfg.KafkaConsumerGroup) == "" {
		return fmt.Errorf("KAFKA_CONSUMER_GROUP_ID_INFERENCE is required")
	}
	switch cfg.KafkaClient {
	case "kafka-go", "sarama":
	default:
		return fmt.Errorf("KAFKA_CLIENT must be kafka-go or sarama, got %q", cfg.KafkaClient)
	}
	if cfg.BrokerSendTimeoutMS <= 0 {
		return fmt.Errorf("BROKER_SEND_TIMEOUT_MS must be positive")
	}
	return nil
}

func (c Config) PublishDelay() time.Duration {
	return time.Duration(c.OutboxPublishDelayMS) * time.Millisecond
}

func (c Config) BrokerSendTimeout() time.Duration {
	return time.Duration(c.BrokerSendTimeoutMS) * time.Millisecond
}

func (c Config) BrokerBreakerOpen() time.Duration {
	return time.Duration(c.BrokerBreakerOpenMS) * time.Millisecond
}

func (c Config) ConsumerRetryMaxInterval() time.Duration {
	return time.Duration(c.ConsumerRetryMaxIntervalMS) * time.Millisecond
}

func (c Config) ProductCacheTTL() time.Duration {
	return time.Duration(c.ProductCacheTTLSeconds) * time.Second
}

func (c Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutMS) * time.Millisecond
}

func (c Config) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func validateSmokeConfig(cfg Config) error {
	if strings.TrimSpace(cfg.SmokeTopic) == "" {
		return fmt.Errorf("APP_TOPIC is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	return nil
}
