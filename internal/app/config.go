package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/vladislavdragonenkov/digidine/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/digidine/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

// EnvPrefix — общий префикс переменных окружения сервиса.
const EnvPrefix = "STOREFRONT_"

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска витрины.
type Config struct {
	GRPCAddr    string `env:"GRPC_ADDR"`
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Origin ограничивает ключи хранилища одним магазином.
	Origin   string `env:"ORIGIN"`
	Timezone string `env:"TIMEZONE"`

	StorageDriver       string `env:"STORAGE_DRIVER"`
	SQLitePath          string `env:"SQLITE_PATH"`
	PostgresDSN         string `env:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"POSTGRES_AUTO_MIGRATE"`
	PostgresMaxConns    int    `env:"POSTGRES_MAX_CONNS"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS"`
	KafkaClientID    string   `env:"KAFKA_CLIENT_ID"`
	KafkaTopic       string   `env:"KAFKA_TOPIC"`
	KafkaStatusTopic string   `env:"KAFKA_STATUS_TOPIC"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID"`
	KafkaMaxRetries  int      `env:"KAFKA_MAX_RETRIES"`
	// KafkaDeadLetterTopic принимает события заказов, не доставленные из outbox.
	KafkaDeadLetterTopic string `env:"KAFKA_DEAD_LETTER_TOPIC"`

	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE"`

	TrackingInterval time.Duration `env:"TRACKING_INTERVAL"`
	CookingDuration  time.Duration `env:"COOKING_DURATION"`
	ShippingDuration time.Duration `env:"SHIPPING_DURATION"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `env:"OUTBOX_RETRY_DELAY"`
	// OutboxMaxPending ограничивает очередь недоставленных событий; 0 — без ограничения.
	OutboxMaxPending int `env:"OUTBOX_MAX_PENDING"`

	FetchTimeout time.Duration `env:"FETCH_TIMEOUT"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних брокеров.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:             ":50051",
		MetricsAddr:          ":9090",
		LogLevel:             "info",
		Origin:               storage.DefaultOrigin,
		Timezone:             "UTC",
		StorageDriver:        StorageDriverMemory,
		SQLitePath:           "digidine.db",
		PostgresAutoMigrate:  true,
		PostgresMaxConns:     10,
		KafkaClientID:        kafka.DefaultClientID,
		KafkaTopic:           kafka.TopicOrderEvents,
		KafkaStatusTopic:     kafka.TopicStatusUpdates,
		KafkaGroupID:         "digidine-storefront",
		KafkaMaxRetries:      3,
		KafkaDeadLetterTopic: kafka.TopicOrderEventsDLQ,
		RabbitMQExchange:     rabbitmq.DefaultExchange,
		TrackingInterval:     15 * time.Second,
		CookingDuration:      10 * time.Minute,
		ShippingDuration:     20 * time.Minute,
		OutboxPollInterval:   time.Second,
		OutboxBatchSize:      100,
		OutboxMaxAttempts:    3,
		OutboxRetryDelay:     50 * time.Millisecond,
		OutboxMaxPending:     10000,
		FetchTimeout:         10 * time.Second,
	}
}

// LoadConfig читает конфигурацию из окружения процесса поверх DefaultConfig.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFrom читает конфигурацию из переданного набора переменных.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)

	brokers := c.KafkaBrokers[:0]
	for _, broker := range c.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	c.KafkaBrokers = brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%sSQLITE_PATH is required for sqlite storage", EnvPrefix)
		}
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%sPOSTGRES_DSN is required for postgres storage", EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.PostgresMaxConns <= 0 {
		return fmt.Errorf("postgres max conns must be positive, got %d", c.PostgresMaxConns)
	}
	if c.TrackingInterval <= 0 {
		return fmt.Errorf("tracking interval must be positive, got %s", c.TrackingInterval)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be positive, got %s", c.OutboxPollInterval)
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return errors.New("outbox batch size and max attempts must be positive")
	}
	if c.OutboxRetryDelay < 0 || c.OutboxMaxPending < 0 {
		return errors.New("outbox retry delay and max pending must be >= 0")
	}
	if c.KafkaMaxRetries < 0 {
		return fmt.Errorf("kafka max retries must be >= 0, got %d", c.KafkaMaxRetries)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return nil
}
