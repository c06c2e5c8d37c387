package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Поддерживаемые драйверы хранилища заказов и складского реестра.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	LedgerDriverMemory   = "memory"
	LedgerDriverPostgres = "postgres"
	LedgerDriverRedis    = "redis"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	LedgerDriver        string
	PostgresDSN         string
	PostgresAutoMigrate bool
	RedisAddr           string

	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	LogLevel string
}

// DefaultConfig возвращает конфигурацию по умолчанию:
// in-memory хранилища и стандартные адреса.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		LedgerDriver:                LedgerDriverMemory,
		PostgresAutoMigrate:         true,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    "info",
	}
}

// LoadConfig читает конфигурацию из переменных окружения BOOKSTORE_*,
// используя DefaultConfig как значения по умолчанию.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("BOOKSTORE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("BOOKSTORE_METRICS_ADDR", cfg.MetricsAddr)
	cfg.StorageDriver = envString("BOOKSTORE_STORAGE_DRIVER", cfg.StorageDriver)
	cfg.LedgerDriver = envString("BOOKSTORE_LEDGER_DRIVER", cfg.LedgerDriver)
	cfg.PostgresDSN = envString("BOOKSTORE_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("BOOKSTORE_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)
	cfg.RedisAddr = envString("BOOKSTORE_REDIS_ADDR", cfg.RedisAddr)
	cfg.KafkaBrokers = envString("BOOKSTORE_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.OutboxPollInterval = envDuration("BOOKSTORE_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("BOOKSTORE_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("BOOKSTORE_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("BOOKSTORE_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)
	cfg.IdempotencyCleanupInterval = envDuration("BOOKSTORE_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.IdempotencyCleanupBatchSize = envInt("BOOKSTORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize)
	cfg.LogLevel = envString("BOOKSTORE_LOG_LEVEL", cfg.LogLevel)

	return cfg
}

func envString(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
