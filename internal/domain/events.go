package domain

import "time"

// OrderEventType классифицирует запись аудиторского журнала заказа.
type OrderEventType string

const (
	// OrderEventCreated — заказ создан.
	OrderEventCreated OrderEventType = "created"
	// OrderEventStatusChanged — изменился статус заказа.
	OrderEventStatusChanged OrderEventType = "status_changed"
	// OrderEventPaymentProcessed — оплата по заказу зафиксирована.
	OrderEventPaymentProcessed OrderEventType = "payment_processed"
	// OrderEventSagaMilestone — сага прошла очередной шаг.
	OrderEventSagaMilestone OrderEventType = "saga_milestone"
	// OrderEventCancelled — заказ отменён.
	OrderEventCancelled OrderEventType = "cancelled"
	// OrderEventDelivered — заказ доставлен.
	OrderEventDelivered OrderEventType = "delivered"
)

// OrderEvent — запись append-only журнала заказа. После записи не меняется;
// из этих событий строится клиентский tracking-таймлайн.
type OrderEvent struct {
	ID          string
	OrderID     string
	Type        OrderEventType
	Description string
	Metadata    map[string]string
	Occurred    time.Time
}

// OrderEventRepository хранит события жизненного цикла заказа.
type OrderEventRepository interface {
	Append(event OrderEvent) error
	List(orderID string) ([]OrderEvent, error)
}
