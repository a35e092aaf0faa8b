package saga

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/messaging/kafka"
)

// courierBufferMinutes — запас к оценке кухни на подбор и дорогу курьера.
const courierBufferMinutes = 30

// stepDef описывает один шаг саги: построение снапшота запроса, удалённый
// вызов и компенсирующее действие. Шаги без стороннего эффекта обходятся
// без компенсации.
type stepDef struct {
	name domain.SagaStep
	// idempotent разрешает повтор удалённого вызова при сетевой ошибке.
	idempotent bool
	// nextStatus — статус заказа после успешного шага (пусто — без смены).
	nextStatus domain.OrderStatus
	// eventType — тип записи в журнале событий заказа.
	eventType domain.OrderEventType
	// brokerEvent — событие-веха, публикуемое через outbox.
	brokerEvent kafka.EventType

	request    func(order *domain.Order) domain.StepPayload
	call       func(ctx context.Context, order *domain.Order) (domain.StepPayload, error)
	compensate func(ctx context.Context, order *domain.Order, completed domain.SagaTransaction) (domain.StepPayload, error)
}

func (o *orchestrator) buildSteps() []stepDef {
	return []stepDef{
		{
			name:        domain.SagaStepValidateOrder,
			idempotent:  true,
			nextStatus:  domain.OrderStatusConfirmed,
			eventType:   domain.OrderEventSagaMilestone,
			brokerEvent: kafka.EventTypeOrderValidated,
			request:     o.validateRequest,
			call:        o.runValidate,
			// Валидация не создаёт стороннего эффекта — компенсации нет.
		},
		{
			name: domain.SagaStepProcessPayment,
			// Повтор безопасен: списание защищено ключом идемпотентности.
			idempotent:  true,
			eventType:   domain.OrderEventPaymentProcessed,
			brokerEvent: kafka.EventTypePaymentProcessed,
			request:     o.paymentRequest,
			call:        o.runPayment,
			compensate:  o.compensatePayment,
		},
		{
			name:        domain.SagaStepNotifyRestaurant,
			nextStatus:  domain.OrderStatusPreparing,
			eventType:   domain.OrderEventSagaMilestone,
			brokerEvent: kafka.EventTypeRestaurantNotified,
			request:     o.notifyRequest,
			call:        o.runNotify,
			compensate:  o.compensateNotify,
		},
		{
			name:        domain.SagaStepAssignDelivery,
			nextStatus:  domain.OrderStatusReadyForPickup,
			eventType:   domain.OrderEventSagaMilestone,
			brokerEvent: kafka.EventTypeDeliveryAssigned,
			request:     o.assignRequest,
			call:        o.runAssign,
			compensate:  o.compensateAssign,
		},
		{
			name:        domain.SagaStepCompleteOrder,
			idempotent:  true,
			eventType:   domain.OrderEventSagaMilestone,
			brokerEvent: kafka.EventTypeSagaCompleted,
			request:     o.completeRequest,
			call:        o.runComplete,
		},
	}
}

// --- validate_order ---

func (o *orchestrator) validateRequest(order *domain.Order) domain.StepPayload {
	itemIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		itemIDs = append(itemIDs, item.CatalogItemID)
	}
	return domain.NewValidatePayload(domain.ValidatePayload{
		RestaurantID: order.RestaurantID,
		ItemIDs:      itemIDs,
	})
}

func (o *orchestrator) runValidate(ctx context.Context, order *domain.Order) (domain.StepPayload, error) {
	if err := o.catalog.ValidateItems(ctx, order.RestaurantID, order.Items); err != nil {
		return domain.StepPayload{}, err
	}
	return domain.NewValidatePayload(domain.ValidatePayload{
		RestaurantID: order.RestaurantID,
		Accepted:     true,
	}), nil
}

// --- process_payment ---

// paymentIdempotencyKey стабилен для заказа: повтор шага после рестарта
// или сетевой ошибки попадает провайдеру с тем же ключом и не создаёт
// второго списания.
func paymentIdempotencyKey(orderID string) string {
	return "order-" + orderID
}

func (o *orchestrator) paymentRequest(order *domain.Order) domain.StepPayload {
	return domain.NewPaymentPayload(domain.PaymentPayload{
		Amount:         order.GrandTotal(),
		IdempotencyKey: paymentIdempotencyKey(order.ID),
	})
}

func (o *orchestrator) runPayment(ctx context.Context, order *domain.Order) (domain.StepPayload, error) {
	result, err := o.payments.CapturePayment(ctx, order.ID, order.GrandTotal(), paymentIdempotencyKey(order.ID))
	if err != nil {
		return domain.StepPayload{}, err
	}
	return domain.NewPaymentPayload(domain.PaymentPayload{
		Amount:         order.GrandTotal(),
		IdempotencyKey: paymentIdempotencyKey(order.ID),
		PaymentID:      result.PaymentID,
		Status:         result.Status,
	}), nil
}

func (o *orchestrator) compensatePayment(ctx context.Context, order *domain.Order, completed domain.SagaTransaction) (domain.StepPayload, error) {
	payment := completed.Response.Payment
	if payment == nil || payment.PaymentID == "" {
		// Ответ шага не сохранил payment_id — возвращать нечего.
		return domain.StepPayload{}, nil
	}
	if payment.RefundID != "" {
		// Возврат уже выполнен ранее.
		return completed.Response, nil
	}

	refund, err := o.payments.Refund(ctx, payment.PaymentID, payment.Amount, "saga compensation")
	if err != nil {
		return domain.StepPayload{}, err
	}

	updated := *payment
	updated.RefundID = refund.RefundID
	updated.RefundReason = "saga compensation"
	return domain.NewPaymentPayload(updated), nil
}

// --- notify_restaurant ---

func (o *orchestrator) notifyRequest(order *domain.Order) domain.StepPayload {
	return domain.NewRestaurantPayload(domain.RestaurantPayload{
		ItemCount:   len(order.Items),
		TotalAmount: order.TotalAmount,
	})
}

func (o *orchestrator) runNotify(ctx context.Context, order *domain.Order) (domain.StepPayload, error) {
	prepMinutes, err := o.catalog.NotifyRestaurant(ctx, order.ID, order.Items, order.TotalAmount)
	if err != nil {
		return domain.StepPayload{}, err
	}

	eta := time.Now().UTC().Add(time.Duration(prepMinutes+courierBufferMinutes) * time.Minute)
	order.EstimatedDeliveryAt = &eta

	return domain.NewRestaurantPayload(domain.RestaurantPayload{
		ItemCount:           len(order.Items),
		TotalAmount:         order.TotalAmount,
		EstimatedPrepMinute: prepMinutes,
	}), nil
}

func (o *orchestrator) compensateNotify(ctx context.Context, order *domain.Order, completed domain.SagaTransaction) (domain.StepPayload, error) {
	if err := o.catalog.CancelRestaurantOrder(ctx, order.ID); err != nil {
		return domain.StepPayload{}, err
	}

	response := domain.RestaurantPayload{CancelNotified: true}
	if completed.Response.Restaurant != nil {
		response = *completed.Response.Restaurant
		response.CancelNotified = true
	}
	return domain.NewRestaurantPayload(response), nil
}

// --- assign_delivery ---

func (o *orchestrator) assignRequest(order *domain.Order) domain.StepPayload {
	return domain.NewDeliveryPayload(domain.DeliveryPayload{
		Address: order.DeliveryAddress,
	})
}

func (o *orchestrator) runAssign(ctx context.Context, order *domain.Order) (domain.StepPayload, error) {
	result, err := o.delivery.AssignDelivery(ctx, order.ID, order.RestaurantID, order.DeliveryAddress)
	if err != nil {
		return domain.StepPayload{}, err
	}
	return domain.NewDeliveryPayload(domain.DeliveryPayload{
		DeliveryID: result.DeliveryID,
		Address:    order.DeliveryAddress,
	}), nil
}

func (o *orchestrator) compensateAssign(ctx context.Context, order *domain.Order, completed domain.SagaTransaction) (domain.StepPayload, error) {
	delivery := completed.Response.Delivery
	if delivery == nil || delivery.DeliveryID == "" {
		return domain.StepPayload{}, nil
	}
	if delivery.CancelNotified {
		return completed.Response, nil
	}

	if err := o.delivery.CancelDelivery(ctx, delivery.DeliveryID); err != nil {
		return domain.StepPayload{}, err
	}

	updated := *delivery
	updated.CancelNotified = true
	return domain.NewDeliveryPayload(updated), nil
}

// --- complete_order ---

func (o *orchestrator) completeRequest(order *domain.Order) domain.StepPayload {
	return domain.NewCompletePayload(domain.CompletePayload{})
}

// runComplete не делает удалённых вызовов: шаг фиксирует успешный финиш
// саги. Жизненный цикл доставки дальше идёт по событиям с брокера.
func (o *orchestrator) runComplete(ctx context.Context, order *domain.Order) (domain.StepPayload, error) {
	return domain.NewCompletePayload(domain.CompletePayload{
		CompletedAt: time.Now().UTC(),
	}), nil
}
