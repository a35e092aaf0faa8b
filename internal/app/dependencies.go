package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/service/catalog"
	"github.com/vladislavdragonenkov/foodorder/internal/service/delivery"
	"github.com/vladislavdragonenkov/foodorder/internal/service/payment"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/memory"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	SagaLog     domain.SagaLogRepository
	Events      domain.OrderEventRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	Catalog  domain.CatalogService
	Payments domain.PaymentService
	Delivery domain.DeliveryService

	// Store не nil только при работе с PostgreSQL.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies собирает зависимости приложения. Непустой DSN включает
// PostgreSQL-хранилище с применением миграций, иначе всё живёт в памяти.
// NOTE: catalog, payment и delivery здесь mock-клиенты; в production их
// заменяют реальные клиенты внешних сервисов.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Catalog:  catalog.NewMockService(),
		Payments: payment.NewMockService(),
		Delivery: delivery.NewMockService(),
		Logger:   logger,
	}

	if cfg.PostgresDSN == "" {
		logger.Info("postgres DSN не задан, используем in-memory хранилище")
		deps.Events = memory.NewEventRepository()
		deps.Orders = memory.NewOrderRepository(deps.Events)
		deps.SagaLog = memory.NewSagaLogRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		return deps, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("postgres storage initialized")

	deps.Store = store
	deps.Orders = postgres.NewOrderRepository(store)
	deps.SagaLog = postgres.NewSagaLogRepository(store)
	deps.Events = postgres.NewEventRepository(store)
	deps.Outbox = postgres.NewOutboxRepository(store)
	deps.Idempotency = postgres.NewIdempotencyRepository(store)

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
