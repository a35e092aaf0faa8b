package kafka

import "time"

// EventType определяет тип события на брокере.
type EventType string

const (
	// Вехи саги, публикуемые этим сервисом.
	EventTypeOrderValidated         EventType = "order.validated"
	EventTypePaymentProcessed       EventType = "order.payment_processed"
	EventTypeRestaurantNotified     EventType = "order.restaurant_notified"
	EventTypeDeliveryAssigned       EventType = "order.delivery_assigned"
	EventTypeSagaCompleted          EventType = "order.saga_completed"
	EventTypeSagaFailed             EventType = "order.saga_failed"
	EventTypeCompensationCompleted  EventType = "order.compensation_completed"
	EventTypeOrderCancelled         EventType = "order.cancelled"
	EventTypeOrderRefunded          EventType = "order.refunded"

	// События внешних сервисов, на которые сервис подписан.
	EventTypeExtPaymentProcessed  EventType = "payment.processed"
	EventTypeExtPaymentFailed     EventType = "payment.failed"
	EventTypeExtDeliveryAssigned  EventType = "delivery.assigned"
	EventTypeExtDeliveryPickedUp  EventType = "delivery.picked_up"
	EventTypeExtDeliveryCompleted EventType = "delivery.completed"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "foodorder.order.events"
	TopicPaymentEvents   = "foodorder.payment.events"
	TopicDeliveryEvents  = "foodorder.delivery.events"
	TopicDeadLetterQueue = "foodorder.dlq"
)

// Kafka headers для retry-логики consumer'а.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — событие заказа на брокере: вехи саги наружу и
// внешние подтверждения внутрь, формат общий.
type OrderEvent struct {
	EventType EventType         `json:"event_type"`
	OrderID   string            `json:"order_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа с текущим временем.
func NewOrderEvent(eventType EventType, orderID string, metadata map[string]string) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
