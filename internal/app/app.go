package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/command"
	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/foodorder/internal/health"
	"github.com/vladislavdragonenkov/foodorder/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/foodorder/internal/query"
	"github.com/vladislavdragonenkov/foodorder/internal/service/idempotency"
	"github.com/vladislavdragonenkov/foodorder/internal/service/outbox"
	"github.com/vladislavdragonenkov/foodorder/internal/service/saga"
	httptransport "github.com/vladislavdragonenkov/foodorder/internal/transport/http"
	"github.com/vladislavdragonenkov/foodorder/internal/version"
)

// Run собирает и запускает сервис заказов: REST API, планировщик саг,
// воркеры outbox и idempotency-cleanup, Kafka-подписчики и служебный
// сервер с метриками. Блокируется до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Kafka опционален: без брокера события копятся в outbox.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	orchestrator := saga.NewOrchestrator(
		deps.Orders,
		deps.SagaLog,
		deps.Outbox,
		deps.Catalog,
		deps.Payments,
		deps.Delivery,
		saga.Config{StepTimeout: cfg.SagaStepTimeout, Retry: saga.DefaultRetryConfig()},
		logger.WithField("layer", "saga"),
	)

	scheduler := saga.NewScheduler(orchestrator, deps.Orders, cfg.SagaWorkers, logger.WithField("layer", "saga-scheduler"))
	scheduler.Start(ctx)

	// Подхватываем саги, прерванные рестартом процесса.
	if err := scheduler.Recover(ctx); err != nil {
		logger.WithError(err).Warn("saga recovery scan failed")
	}

	commands := command.NewService(
		deps.Orders,
		deps.SagaLog,
		deps.Outbox,
		deps.Payments,
		scheduler,
		command.Config{DeliveryFee: cfg.DeliveryFee, TaxRate: cfg.TaxRate},
		logger.WithField("layer", "command"),
	)
	queries := query.NewService(deps.Orders, deps.SagaLog, deps.Events, logger.WithField("layer", "query"))

	var workersWG sync.WaitGroup

	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		outboxWorker := outbox.NewWorker(
			deps.Outbox,
			publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
		)
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			outboxWorker.Run(ctx)
		}()
	}

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.Idempotency,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	workersWG.Add(1)
	go func() {
		defer workersWG.Done()
		cleanupWorker.Run(ctx)
	}()

	consumer := startSubscribers(ctx, cfg, producer, commands, scheduler, logger)

	healthHandler := newHealthHandler(deps)
	adminSrv := startAdminServer(ctx, cfg, logger, healthHandler)

	router := httptransport.NewRouter(
		httptransport.NewHandler(commands, queries, logger.WithField("layer", "http")),
		deps.Idempotency,
		logger.WithField("layer", "http"),
	)
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	stopConsumer := func() {
		if consumer == nil {
			return
		}
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(adminSrv, cfg.ShutdownTimeout, logger)
		stopConsumer()
		if err := scheduler.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Warn("saga scheduler stopped with error")
		}
		workersWG.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(adminSrv, cfg.ShutdownTimeout, logger)
		stopConsumer()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startSubscribers подключает consumer group к payment- и delivery-топикам.
// Подтверждения внешних сервисов двигают заказ дальше по жизненному циклу,
// отказ оплаты после capture запускает компенсацию.
func startSubscribers(
	ctx context.Context,
	cfg Config,
	producer *kafka.Producer,
	commands *command.Service,
	scheduler *saga.Scheduler,
	logger *log.Entry,
) *kafka.Consumer {
	if producer == nil {
		return nil
	}

	systemActor := domain.Actor{ID: "event-subscriber", Role: domain.RoleSystem}

	applyStatus := func(ctx context.Context, orderID string, status domain.OrderStatus) error {
		_, err := commands.UpdateOrderStatus(ctx, systemActor, command.UpdateStatusCommand{
			OrderID: orderID,
			Status:  status,
			Reason:  "external event",
		})
		switch {
		case err == nil:
			return nil
		case domain.IsNotFound(err):
			// Чужой заказ (другой инстанс, другая среда): подтверждаем.
			return nil
		default:
			return err
		}
	}

	subscriber := kafka.NewSubscriber(kafka.SubscriberHandlers{
		OnPaymentFailed: func(ctx context.Context, orderID, reason string) error {
			// Отказ провайдера — не клиентская отмена: заказ должен
			// закончить failed.
			scheduler.AbortSaga(orderID, "payment failed: "+reason)
			return nil
		},
		OnDeliveryPickedUp: func(ctx context.Context, orderID string) error {
			return applyStatus(ctx, orderID, domain.OrderStatusOutForDelivery)
		},
		OnDeliveryCompleted: func(ctx context.Context, orderID string) error {
			return applyStatus(ctx, orderID, domain.OrderStatusDelivered)
		},
	})

	consumer, err := kafka.NewConsumerWithDLQ(
		splitBrokers(cfg.KafkaBrokers),
		cfg.ConsumerGroup,
		[]string{kafka.TopicPaymentEvents, kafka.TopicDeliveryEvents},
		subscriber.HandleMessage,
		producer,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without subscriptions")
		return nil
	}

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start kafka consumer")
		return nil
	}

	logger.WithField("group", cfg.ConsumerGroup).Info("kafka subscriptions started")
	return consumer
}

// newHealthHandler регистрирует проверки критичных компонентов.
func newHealthHandler(deps *Dependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())

	if deps.Store != nil {
		store := deps.Store
		handler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		}))
	}

	handler.RegisterChecker("outbox", healthcheck.NewSimpleChecker("outbox", func() error {
		_, err := deps.Outbox.Stats()
		return err
	}))

	return handler
}

// startAdminServer поднимает служебный HTTP-сервер: метрики и health-пробы.
func startAdminServer(ctx context.Context, cfg Config, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: cfg.AdminAddr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", cfg.AdminAddr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", cfg.AdminAddr, cfg.AdminAddr, cfg.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("admin server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, cfg.ShutdownTimeout, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
