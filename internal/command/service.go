package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/messaging/kafka"
)

// Config задаёт ценовые параметры, которые сервис добавляет к сумме позиций.
type Config struct {
	DeliveryFee decimal.Decimal
	// TaxRate — доля налога от суммы позиций, например 0.08.
	TaxRate decimal.Decimal
}

// DefaultConfig возвращает ценовые параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		DeliveryFee: decimal.NewFromFloat(2.99),
		TaxRate:     decimal.NewFromFloat(0.08),
	}
}

// Service — write-сторона CQRS: принимает команды, меняет состояние
// заказов и ставит триггеры саги. Чтением занимается query.Service.
type Service struct {
	orders   domain.OrderRepository
	sagalog  domain.SagaLogRepository
	outbox   domain.OutboxRepository
	payments domain.PaymentService
	trigger  SagaTrigger
	cfg      Config
	logger   *log.Entry
}

// NewService создаёт command-сервис заказов.
func NewService(
	orders domain.OrderRepository,
	sagalog domain.SagaLogRepository,
	outbox domain.OutboxRepository,
	payments domain.PaymentService,
	trigger SagaTrigger,
	cfg Config,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "command-service")
	}
	if cfg.DeliveryFee.IsZero() && cfg.TaxRate.IsZero() {
		cfg = DefaultConfig()
	}
	return &Service{
		orders:   orders,
		sagalog:  sagalog,
		outbox:   outbox,
		payments: payments,
		trigger:  trigger,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateOrder валидирует команду, сохраняет заказ со статусом pending
// и ставит триггер запуска саги. Сумма заказа считается на сервере
// из снапшотов цен позиций.
func (s *Service) CreateOrder(ctx context.Context, actor domain.Actor, cmd CreateOrderCommand) (domain.Order, error) {
	if actor.Role == domain.RoleCustomer && actor.ID != cmd.UserID {
		return domain.Order{}, domain.ErrNotAuthorized
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		items = append(items, domain.OrderItem{
			ID:            uuid.NewString(),
			CatalogItemID: item.CatalogItemID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Qty:           item.Qty,
			Instructions:  item.Instructions,
			CreatedAt:     now,
		})
	}

	order := domain.Order{
		ID:                  uuid.NewString(),
		UserID:              cmd.UserID,
		RestaurantID:        cmd.RestaurantID,
		Status:              domain.OrderStatusPending,
		SagaStatus:          domain.SagaStatusNotStarted,
		Items:               items,
		DeliveryAddress:     cmd.DeliveryAddress,
		SpecialInstructions: cmd.SpecialInstructions,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	order.TotalAmount = order.ItemsTotal()
	order.DeliveryFee = s.cfg.DeliveryFee
	order.TaxAmount = order.TotalAmount.Mul(s.cfg.TaxRate).Round(2)

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	created := domain.OrderEvent{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Type:        domain.OrderEventCreated,
		Description: fmt.Sprintf("order created with %d items", len(order.Items)),
		Metadata: map[string]string{
			"user_id":       order.UserID,
			"restaurant_id": order.RestaurantID,
			"total":         order.GrandTotal().StringFixed(2),
		},
		Occurred: now,
	}

	if err := s.orders.Create(order, created); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":      order.ID,
		"user_id":       order.UserID,
		"restaurant_id": order.RestaurantID,
		"total":         order.GrandTotal().StringFixed(2),
	}).Info("order created")

	if s.trigger != nil {
		s.trigger.StartSaga(order.ID)
	}
	return order, nil
}

// UpdateOrderStatus двигает статус заказа по таблице переходов с учётом
// прав актора и optimistic locking. Конфликт версий повторяется с
// перечитыванием заказа: правила переходов перепроверяются на свежем
// состоянии.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor domain.Actor, cmd UpdateStatusCommand) (domain.Order, error) {
	const maxRetries = 3

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := s.orders.Get(cmd.OrderID)
		if err != nil {
			return domain.Order{}, err
		}

		if !actor.CanUpdateStatus(order) {
			return domain.Order{}, domain.ErrNotAuthorized
		}
		if order.Status == cmd.Status {
			// Идемпотентный повтор той же команды.
			return order, nil
		}
		if !domain.CanTransition(order.Status, cmd.Status) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, cmd.Status)
		}

		prevStatus := order.Status
		order.Status = cmd.Status
		order.UpdatedAt = time.Now().UTC()

		eventType := domain.OrderEventStatusChanged
		if cmd.Status == domain.OrderStatusDelivered {
			eventType = domain.OrderEventDelivered
			deliveredAt := order.UpdatedAt
			order.ActualDeliveryAt = &deliveredAt
		}
		event := domain.OrderEvent{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			Type:        eventType,
			Description: cmd.Reason,
			Metadata: map[string]string{
				"from":     string(prevStatus),
				"to":       string(cmd.Status),
				"actor_id": actor.ID,
				"role":     string(actor.Role),
			},
			Occurred: order.UpdatedAt,
		}

		if err := s.orders.Save(order, event); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				s.logger.WithFields(log.Fields{
					"order_id": order.ID,
					"attempt":  attempt + 1,
				}).Warn("version conflict on status update, retrying")
				continue
			}
			return domain.Order{}, err
		}
		order.Version++

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     prevStatus,
			"to":       cmd.Status,
			"actor":    actor.ID,
		}).Info("order status updated")
		return order, nil
	}
	return domain.Order{}, lastErr
}

// CancelOrder фиксирует запрос отмены и ставит триггер компенсации.
// Если сага заказа сейчас выполняет шаг, флаг будет замечен на границе
// следующего шага; параллельный Cancel-триггер дождётся пер-заказного лока.
func (s *Service) CancelOrder(ctx context.Context, actor domain.Actor, cmd CancelOrderCommand) (domain.Order, error) {
	const maxRetries = 3

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := s.orders.Get(cmd.OrderID)
		if err != nil {
			return domain.Order{}, err
		}

		if !actor.CanCancelOrder(order) {
			return domain.Order{}, domain.ErrNotAuthorized
		}
		if order.Status == domain.OrderStatusCancelled || order.CancelRequested {
			// Повторная отмена — no-op.
			return order, nil
		}
		if !order.CanBeCancelled() {
			return domain.Order{}, fmt.Errorf("%w: order is %s", domain.ErrInvalidState, order.Status)
		}

		order.CancelRequested = true
		order.CancelReason = cmd.Reason
		order.UpdatedAt = time.Now().UTC()

		event := domain.OrderEvent{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			Type:        domain.OrderEventStatusChanged,
			Description: "cancellation requested: " + cmd.Reason,
			Metadata: map[string]string{
				"actor_id": actor.ID,
				"role":     string(actor.Role),
			},
			Occurred: order.UpdatedAt,
		}

		if err := s.orders.Save(order, event); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				continue
			}
			return domain.Order{}, err
		}
		order.Version++

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"reason":   cmd.Reason,
			"actor":    actor.ID,
		}).Info("order cancellation requested")

		if s.trigger != nil {
			s.trigger.CancelSaga(order.ID, cmd.Reason)
		}
		return order, nil
	}
	return domain.Order{}, lastErr
}

// ProcessRefund возвращает средства по отменённому или провалившемуся
// заказу. Операция идемпотентна: повторный вызов по заказу с уже
// оформленным возвратом отвечает прежним refund_id без второго вызова
// платёжного провайдера. Источник истины — payment-строка saga-лога.
func (s *Service) ProcessRefund(ctx context.Context, actor domain.Actor, cmd RefundCommand) (RefundOutcome, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return RefundOutcome{}, domain.ErrNotAuthorized
	}

	order, err := s.orders.Get(cmd.OrderID)
	if err != nil {
		return RefundOutcome{}, err
	}
	if order.Status == domain.OrderStatusRefunded {
		// Статус уже refunded: возвращаем сохранённый refund_id.
		if outcome, ok := s.refundFromLog(order.ID); ok {
			outcome.AlreadyRefunded = true
			return outcome, nil
		}
		return RefundOutcome{AlreadyRefunded: true}, nil
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusRefunded) {
		return RefundOutcome{}, fmt.Errorf("%w: cannot refund order in status %s", domain.ErrInvalidState, order.Status)
	}

	row, err := s.sagalog.Get(order.ID, domain.SagaStepProcessPayment)
	if err != nil {
		if errors.Is(err, domain.ErrSagaStepNotFound) {
			return RefundOutcome{}, fmt.Errorf("%w: order has no captured payment", domain.ErrInvalidState)
		}
		return RefundOutcome{}, err
	}
	payment := row.Response.Payment
	if payment == nil || payment.PaymentID == "" {
		return RefundOutcome{}, fmt.Errorf("%w: order has no captured payment", domain.ErrInvalidState)
	}

	outcome := RefundOutcome{Amount: payment.Amount}
	if payment.RefundID != "" {
		// Компенсация саги уже вернула деньги: фиксируем только статус.
		outcome.RefundID = payment.RefundID
		outcome.AlreadyRefunded = true
	} else {
		refund, err := s.payments.Refund(ctx, payment.PaymentID, payment.Amount, cmd.Reason)
		if err != nil {
			return RefundOutcome{}, fmt.Errorf("%w: refund: %s", domain.ErrRemoteCall, err)
		}
		outcome.RefundID = refund.RefundID

		updated := *payment
		updated.RefundID = refund.RefundID
		updated.RefundReason = cmd.Reason
		row.Response = domain.NewPaymentPayload(updated)
		if _, err := s.sagalog.Record(row); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to record refund in saga log")
		}
	}

	prevStatus := order.Status
	order.Status = domain.OrderStatusRefunded
	order.UpdatedAt = time.Now().UTC()
	event := domain.OrderEvent{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Type:        domain.OrderEventStatusChanged,
		Description: "refund processed: " + cmd.Reason,
		Metadata: map[string]string{
			"from":      string(prevStatus),
			"to":        string(domain.OrderStatusRefunded),
			"refund_id": outcome.RefundID,
		},
		Occurred: order.UpdatedAt,
	}
	if err := s.orders.Save(order, event); err != nil {
		return RefundOutcome{}, err
	}

	s.emitRefundEvent(order.ID, outcome)
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"refund_id": outcome.RefundID,
		"amount":    outcome.Amount.StringFixed(2),
	}).Info("refund processed")
	return outcome, nil
}

func (s *Service) refundFromLog(orderID string) (RefundOutcome, bool) {
	row, err := s.sagalog.Get(orderID, domain.SagaStepProcessPayment)
	if err != nil || row.Response.Payment == nil || row.Response.Payment.RefundID == "" {
		return RefundOutcome{}, false
	}
	return RefundOutcome{
		RefundID: row.Response.Payment.RefundID,
		Amount:   row.Response.Payment.Amount,
	}, true
}

func (s *Service) emitRefundEvent(orderID string, outcome RefundOutcome) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(kafka.NewOrderEvent(kafka.EventTypeOrderRefunded, orderID, map[string]string{
		"refund_id": outcome.RefundID,
		"amount":    outcome.Amount.StringFixed(2),
	}))
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("marshal refund event failed")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     string(kafka.EventTypeOrderRefunded),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("enqueue refund event failed")
	}
}
