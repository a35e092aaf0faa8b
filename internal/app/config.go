package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config описывает настройки запуска сервиса. Все поля можно
// переопределить через переменные окружения с префиксом FOODORDER_.
type Config struct {
	// HTTPAddr — адрес публичного REST API.
	HTTPAddr string
	// AdminAddr — адрес служебного сервера: /metrics и health-пробы.
	AdminAddr string

	// PostgresDSN — строка подключения к PostgreSQL. Пустое значение
	// включает in-memory хранилище (для разработки и тестов).
	PostgresDSN string

	// KafkaBrokers — список брокеров через запятую. Пустое значение
	// отключает публикацию и подписку на события.
	KafkaBrokers  string
	ConsumerGroup string

	// SagaWorkers — число воркеров планировщика саг.
	SagaWorkers int
	// SagaStepTimeout ограничивает каждый удалённый вызов шага.
	SagaStepTimeout time.Duration

	// OutboxPollInterval и OutboxBatchSize управляют воркером outbox.
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// IdempotencyCleanupInterval — период чистки истёкших idempotency-ключей.
	IdempotencyCleanupInterval time.Duration

	// DeliveryFee и TaxRate задают ценовую политику заказов.
	DeliveryFee decimal.Decimal
	TaxRate     decimal.Decimal

	// ShutdownTimeout ограничивает graceful stop HTTP-серверов.
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		AdminAddr:                  ":9090",
		ConsumerGroup:              "foodorder-order-service",
		SagaWorkers:                4,
		SagaStepTimeout:            5 * time.Second,
		OutboxPollInterval:         2 * time.Second,
		OutboxBatchSize:            100,
		IdempotencyCleanupInterval: 10 * time.Minute,
		DeliveryFee:                decimal.NewFromFloat(2.99),
		TaxRate:                    decimal.NewFromFloat(0.08),
		ShutdownTimeout:            5 * time.Second,
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по
// умолчанию. Файл .env подхватывается, если он есть рядом с бинарём.
func LoadConfig() (Config, error) {
	// .env опционален: в проде переменные задаёт оркестратор контейнеров.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("FOODORDER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.AdminAddr = envString("FOODORDER_ADMIN_ADDR", cfg.AdminAddr)
	cfg.PostgresDSN = envString("FOODORDER_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaBrokers = envString("FOODORDER_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.ConsumerGroup = envString("FOODORDER_CONSUMER_GROUP", cfg.ConsumerGroup)

	var err error
	if cfg.SagaWorkers, err = envInt("FOODORDER_SAGA_WORKERS", cfg.SagaWorkers); err != nil {
		return Config{}, err
	}
	if cfg.SagaStepTimeout, err = envDuration("FOODORDER_SAGA_STEP_TIMEOUT", cfg.SagaStepTimeout); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = envDuration("FOODORDER_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.OutboxBatchSize, err = envInt("FOODORDER_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyCleanupInterval, err = envDuration("FOODORDER_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval); err != nil {
		return Config{}, err
	}
	if cfg.DeliveryFee, err = envDecimal("FOODORDER_DELIVERY_FEE", cfg.DeliveryFee); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate, err = envDecimal("FOODORDER_TAX_RATE", cfg.TaxRate); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = envDuration("FOODORDER_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
