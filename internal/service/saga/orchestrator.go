package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/foodorder/internal/metrics"
)

// Orchestrator управляет сагой заказа: прямые шаги и компенсации.
type Orchestrator interface {
	// Start выполняет сагу заказа с первого незавершённого шага.
	// Метод идемпотентен: completed-шаги из saga-лога не переигрываются.
	Start(ctx context.Context, orderID string)
	// Cancel обрабатывает клиентскую отмену: компенсирует выполненные шаги,
	// заказ завершается cancelled.
	Cancel(ctx context.Context, orderID, reason string)
	// Abort обрабатывает сбой, пришедший извне (например отказ оплаты после
	// capture): компенсирует выполненные шаги, заказ завершается failed.
	Abort(ctx context.Context, orderID, reason string)
}

// Config задаёт тайминги выполнения саги.
type Config struct {
	// StepTimeout ограничивает каждый удалённый вызов.
	StepTimeout time.Duration
	// InterStepDelay — пауза между шагами одного заказа.
	InterStepDelay time.Duration
	// Retry применяется только к шагам, идемпотентным по построению.
	Retry RetryConfig
}

// DefaultConfig возвращает тайминги по умолчанию.
func DefaultConfig() Config {
	return Config{
		StepTimeout:    5 * time.Second,
		InterStepDelay: 0,
		Retry:          DefaultRetryConfig(),
	}
}

// orchestrator реализует фиксированную последовательность шагов:
// validate_order → process_payment → notify_restaurant → assign_delivery → complete_order.
type orchestrator struct {
	orders   domain.OrderRepository
	sagalog  domain.SagaLogRepository
	outbox   domain.OutboxRepository
	catalog  domain.CatalogService
	payments domain.PaymentService
	delivery domain.DeliveryService
	cfg      Config
	steps    []stepDef
	logger   *log.Entry
	metrics  *metrics.SagaMetrics

	// Пер-заказные мьютексы: шаги одного заказа строго последовательны,
	// разные заказы идут параллельно.
	mu    sync.Mutex
	locks map[string]*orderLock
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(
	orders domain.OrderRepository,
	sagalog domain.SagaLogRepository,
	outbox domain.OutboxRepository,
	catalog domain.CatalogService,
	payments domain.PaymentService,
	delivery domain.DeliveryService,
	cfg Config,
	logger *log.Entry,
) Orchestrator {
	return newOrchestrator(orders, sagalog, outbox, catalog, payments, delivery, cfg, logger, metrics.NewSagaMetrics())
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	orders domain.OrderRepository,
	sagalog domain.SagaLogRepository,
	outbox domain.OutboxRepository,
	catalog domain.CatalogService,
	payments domain.PaymentService,
	delivery domain.DeliveryService,
	cfg Config,
	logger *log.Entry,
) Orchestrator {
	return newOrchestrator(orders, sagalog, outbox, catalog, payments, delivery, cfg, logger, nil)
}

func newOrchestrator(
	orders domain.OrderRepository,
	sagalog domain.SagaLogRepository,
	outbox domain.OutboxRepository,
	catalog domain.CatalogService,
	payments domain.PaymentService,
	delivery domain.DeliveryService,
	cfg Config,
	logger *log.Entry,
	m *metrics.SagaMetrics,
) *orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "saga")
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultConfig().StepTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	o := &orchestrator{
		orders:   orders,
		sagalog:  sagalog,
		outbox:   outbox,
		catalog:  catalog,
		payments: payments,
		delivery: delivery,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		locks:    make(map[string]*orderLock),
	}
	o.steps = o.buildSteps()
	return o
}

// Start выполняет сагу заказа с первого незавершённого шага.
func (o *orchestrator) Start(ctx context.Context, orderID string) {
	lock := o.lockOrder(orderID)
	defer o.unlockOrder(orderID, lock)

	order, err := o.orders.Get(orderID)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("order not found for saga")
		return
	}
	if domain.IsTerminalSagaStatus(order.SagaStatus) {
		o.logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"saga_status": order.SagaStatus,
		}).Debug("saga already finished, skipping")
		return
	}

	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordSagaStarted()
		defer func() {
			o.metrics.RecordSagaFinished()
			o.metrics.RecordSagaDuration(time.Since(start))
		}()
	}

	if order.SagaStatus == domain.SagaStatusNotStarted {
		if err := o.updateOrder(&order, func(ord *domain.Order) {
			ord.SagaStatus = domain.SagaStatusInProgress
		}); err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to mark saga in progress")
			return
		}
	}
	if order.SagaStatus == domain.SagaStatusCompensating {
		// Рестарт прервал компенсацию: доигрываем откат, не прямые шаги.
		o.compensate(ctx, &order, "", order.CancelReason, order.CancelRequested)
		return
	}

	for i, step := range o.steps {
		// Граница шага: клиентская отмена выигрывает у следующего прямого шага.
		fresh, err := o.orders.Get(order.ID)
		if err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to reload order at step boundary")
			return
		}
		order = fresh
		if order.CancelRequested {
			o.compensate(ctx, &order, "", order.CancelReason, true)
			return
		}

		tx, err := o.sagalog.Get(order.ID, step.name)
		if err == nil && tx.Status == domain.StepStatusCompleted {
			// Шаг уже выполнен: повторная доставка триггера или resume
			// после рестарта. Удалённый вызов не повторяем.
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrSagaStepNotFound) {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"step":     step.name,
			}).Error("failed to read saga log")
			return
		}

		if err := o.executeStep(ctx, &order, step); err != nil {
			o.compensate(ctx, &order, step.name, err.Error(), false)
			return
		}

		if o.cfg.InterStepDelay > 0 && i < len(o.steps)-1 {
			select {
			case <-ctx.Done():
				// Остановка процесса между шагами не теряет сагу:
				// recovery-скан переиграет триггер при старте.
				return
			case <-time.After(o.cfg.InterStepDelay):
			}
		}
	}

	if o.metrics != nil {
		o.metrics.RecordSagaCompleted()
	}
	o.logger.WithField("order_id", order.ID).Info("saga completed successfully")
}

// Cancel обрабатывает клиентскую отмену заказа.
// Если сага ещё не стартовала, заказ отменяется напрямую; если сага уже
// шла и процесс её не держит (рестарт), компенсация запускается отсюда.
func (o *orchestrator) Cancel(ctx context.Context, orderID, reason string) {
	if o.metrics != nil {
		o.metrics.RecordSagaCancelled()
	}
	o.rollback(ctx, orderID, reason, true)
}

// Abort запускает компенсацию по внешнему сбою: в отличие от Cancel,
// заказ завершается failed, чтобы поддержка отличала отказ провайдера
// от клиентской отмены.
func (o *orchestrator) Abort(ctx context.Context, orderID, reason string) {
	o.rollback(ctx, orderID, reason, false)
}

func (o *orchestrator) rollback(ctx context.Context, orderID, reason string, customerInitiated bool) {
	lock := o.lockOrder(orderID)
	defer o.unlockOrder(orderID, lock)

	order, err := o.orders.Get(orderID)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("order not found for rollback")
		return
	}
	if domain.IsTerminalSagaStatus(order.SagaStatus) || order.Status == domain.OrderStatusCancelled {
		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Debug("order already finished, rollback is a no-op")
		return
	}

	if order.SagaStatus == domain.SagaStatusNotStarted && customerInitiated {
		event := o.newEvent(order.ID, domain.OrderEventCancelled, reason, nil)
		if err := o.updateOrder(&order, func(ord *domain.Order) {
			ord.Status = domain.OrderStatusCancelled
			ord.CancelReason = reason
		}, event); err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to cancel order")
			return
		}
		o.emitBrokerEvent(&order, kafka.EventTypeOrderCancelled, map[string]string{"reason": reason})
		return
	}

	o.compensate(ctx, &order, "", reason, customerInitiated)
}

// executeStep записывает pending-строку, выполняет удалённый вызов и
// фиксирует исход в saga-логе, журнале заказа и outbox.
func (o *orchestrator) executeStep(ctx context.Context, order *domain.Order, step stepDef) error {
	request := step.request(order)

	if _, err := o.sagalog.Record(domain.SagaTransaction{
		OrderID: order.ID,
		Step:    step.name,
		Status:  domain.StepStatusPending,
		Request: request,
	}); err != nil {
		return fmt.Errorf("record pending step %s: %w", step.name, err)
	}

	started := time.Now()
	response, attempts, callErr := o.callWithRetry(ctx, order, step)

	if callErr != nil {
		if _, err := o.sagalog.Record(domain.SagaTransaction{
			OrderID:    order.ID,
			Step:       step.name,
			Status:     domain.StepStatusFailed,
			Request:    request,
			Error:      callErr.Error(),
			RetryCount: int32(attempts - 1),
		}); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"step":     step.name,
			}).Error("failed to record failed step")
		}
		if o.metrics != nil {
			o.metrics.RecordStepFailed(string(step.name))
		}
		o.logger.WithError(callErr).WithFields(log.Fields{
			"order_id": order.ID,
			"step":     step.name,
			"attempts": attempts,
		}).Warn("saga step failed")
		return fmt.Errorf("%w: step %s: %s", domain.ErrRemoteCall, step.name, callErr)
	}

	if _, err := o.sagalog.Record(domain.SagaTransaction{
		OrderID:    order.ID,
		Step:       step.name,
		Status:     domain.StepStatusCompleted,
		Request:    request,
		Response:   response,
		RetryCount: int32(attempts - 1),
	}); err != nil {
		// Без durable-записи продолжать нельзя: иначе рестарт повторит
		// сторонний эффект шага.
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"step":     step.name,
		}).Error("failed to record completed step")
		return fmt.Errorf("%w: persist step %s", domain.ErrRemoteCall, step.name)
	}
	if o.metrics != nil {
		o.metrics.RecordStepCompleted(string(step.name), time.Since(started))
	}

	eventMetadata := map[string]string{"step": string(step.name)}
	if step.nextStatus != "" {
		eventMetadata["status"] = string(step.nextStatus)
	}
	events := []domain.OrderEvent{
		o.newEvent(order.ID, step.eventType, fmt.Sprintf("saga step %s completed", step.name), eventMetadata),
	}
	prevStatus := order.Status
	// ETA проставляется шагом notify_restaurant на переданном агрегате;
	// снимаем значение до сохранения, чтобы не потерять его при reload
	// после конфликта версий.
	eta := order.EstimatedDeliveryAt
	if err := o.updateOrder(order, func(ord *domain.Order) {
		if step.nextStatus != "" && ord.Status != step.nextStatus {
			ord.Status = step.nextStatus
		}
		if step.name == domain.SagaStepCompleteOrder {
			ord.SagaStatus = domain.SagaStatusCompleted
		}
		if eta != nil {
			ord.EstimatedDeliveryAt = eta
		}
	}, events...); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"step":     step.name,
		}).Error("failed to persist order after step")
		return fmt.Errorf("%w: persist order after %s", domain.ErrRemoteCall, step.name)
	}
	if prevStatus != order.Status {
		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     prevStatus,
			"to":       order.Status,
		}).Debug("order status advanced")
	}

	o.emitBrokerEvent(order, step.brokerEvent, map[string]string{
		"step":   string(step.name),
		"status": string(order.Status),
	})
	return nil
}

// compensate откатывает completed-шаги в обратном порядке. Ошибка одной
// компенсации не останавливает остальные: откат выполняется best-effort,
// а грязный финиш помечает сагу failed для ручной сверки.
func (o *orchestrator) compensate(ctx context.Context, order *domain.Order, failedStep domain.SagaStep, reason string, customerInitiated bool) {
	if order.SagaStatus != domain.SagaStatusCompensating {
		if err := o.updateOrder(order, func(ord *domain.Order) {
			ord.SagaStatus = domain.SagaStatusCompensating
		}); err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to mark saga compensating")
			return
		}
	}

	rows, err := o.sagalog.ListByOrder(order.ID)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to list saga log for compensation")
		return
	}

	compensationDirty := false
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if row.Status != domain.StepStatusCompleted {
			continue
		}
		step := o.stepByName(row.Step)
		if step == nil || step.compensate == nil {
			// У шага нет стороннего эффекта — компенсировать нечего,
			// запись остаётся completed.
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		response, compErr := step.compensate(cctx, order, row)
		cancel()

		if compErr != nil {
			compensationDirty = true
			row.Error = fmt.Sprintf("compensation failed: %s", compErr)
			if _, err := o.sagalog.Record(row); err != nil {
				o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to record compensation error")
			}
			o.logger.WithError(compErr).WithFields(log.Fields{
				"order_id": order.ID,
				"step":     row.Step,
			}).Error("compensation failed, continuing with remaining steps")
			continue
		}

		row.Status = domain.StepStatusCompensated
		if !response.IsZero() {
			row.Response = response
		}
		if _, err := o.sagalog.Record(row); err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to record compensated step")
		}
		if o.metrics != nil {
			o.metrics.RecordStepCompensated(string(row.Step))
		}
	}

	sagaStatus := domain.SagaStatusCompensated
	if compensationDirty {
		sagaStatus = domain.SagaStatusFailed
	}
	orderStatus := domain.OrderStatusFailed
	if customerInitiated {
		orderStatus = domain.OrderStatusCancelled
	}

	description := reason
	if failedStep != "" {
		description = fmt.Sprintf("order processing failed at stage %s", failedStep)
	}
	eventType := domain.OrderEventCancelled
	if !customerInitiated {
		eventType = domain.OrderEventStatusChanged
	}
	event := o.newEvent(order.ID, eventType, description, map[string]string{
		"failed_step": string(failedStep),
	})

	if err := o.updateOrder(order, func(ord *domain.Order) {
		ord.SagaStatus = sagaStatus
		ord.Status = orderStatus
		if customerInitiated && ord.CancelReason == "" {
			ord.CancelReason = reason
		}
	}, event); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("failed to persist compensated order")
		return
	}

	if o.metrics != nil {
		if compensationDirty {
			o.metrics.RecordSagaFailed()
		} else {
			o.metrics.RecordSagaCompensated()
		}
	}

	brokerEvent := kafka.EventTypeCompensationCompleted
	if compensationDirty {
		brokerEvent = kafka.EventTypeSagaFailed
	}
	o.emitBrokerEvent(order, brokerEvent, map[string]string{
		"failed_step": string(failedStep),
		"reason":      reason,
		"status":      string(order.Status),
	})

	o.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"saga_status": sagaStatus,
		"failed_step": failedStep,
	}).Info("saga compensation finished")
}

// updateOrder сохраняет мутацию заказа с retry на конфликт версий.
func (o *orchestrator) updateOrder(order *domain.Order, mutate func(*domain.Order), events ...domain.OrderEvent) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		mutate(order)
		order.UpdatedAt = time.Now().UTC()
		prevVersion := order.Version

		err := o.orders.Save(*order, events...)
		if err == nil {
			order.Version = prevVersion + 1
			if o.metrics != nil {
				for range events {
					o.metrics.RecordOrderEvent()
				}
			}
			return nil
		}

		if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
			o.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
			}).Warn("version conflict detected, retrying")

			fresh, loadErr := o.orders.Get(order.ID)
			if loadErr != nil {
				return loadErr
			}
			*order = fresh
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		return err
	}
	return domain.ErrVersionConflict
}

// emitBrokerEvent кладёт событие саги в transactional outbox.
func (o *orchestrator) emitBrokerEvent(order *domain.Order, eventType kafka.EventType, metadata map[string]string) {
	if o.outbox == nil || eventType == "" {
		return
	}

	payload, err := json.Marshal(kafka.NewOrderEvent(eventType, order.ID, metadata))
	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal broker event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}
	if _, err := o.outbox.Enqueue(msg); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue broker event failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}
}

func (o *orchestrator) newEvent(orderID string, eventType domain.OrderEventType, description string, metadata map[string]string) domain.OrderEvent {
	return domain.OrderEvent{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Type:        eventType,
		Description: description,
		Metadata:    metadata,
		Occurred:    time.Now().UTC(),
	}
}

func (o *orchestrator) stepByName(name domain.SagaStep) *stepDef {
	for i := range o.steps {
		if o.steps[i].name == name {
			return &o.steps[i]
		}
	}
	return nil
}

// orderLock — пер-заказный мьютекс со счётчиком держателей.
type orderLock struct {
	sync.Mutex
	refs int
}

func (o *orchestrator) lockOrder(orderID string) *orderLock {
	o.mu.Lock()
	lock, ok := o.locks[orderID]
	if !ok {
		lock = &orderLock{}
		o.locks[orderID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.Lock()
	return lock
}

// unlockOrder снимает мьютекс и удаляет запись из карты, когда держателей
// не осталось, — иначе карта растёт с каждым новым заказом.
func (o *orchestrator) unlockOrder(orderID string, lock *orderLock) {
	lock.Unlock()

	o.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(o.locks, orderID)
	}
	o.mu.Unlock()
}

var _ Orchestrator = (*orchestrator)(nil)
