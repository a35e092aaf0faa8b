package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogService описывает взаимодействие с каталогом/рестораном.
type CatalogService interface {
	// ValidateItems проверяет, что позиции существуют и доступны у ресторана.
	ValidateItems(ctx context.Context, restaurantID string, items []OrderItem) error
	// NotifyRestaurant сообщает ресторану о новом заказе и возвращает
	// оценку времени приготовления в минутах.
	NotifyRestaurant(ctx context.Context, orderID string, items []OrderItem, totalAmount decimal.Decimal) (int32, error)
	// CancelRestaurantOrder уведомляет ресторан об отмене (компенсация).
	CancelRestaurantOrder(ctx context.Context, orderID string) error
}

// PaymentResult — ответ платёжного провайдера на списание.
type PaymentResult struct {
	PaymentID string
	Status    string
}

// RefundResult — ответ платёжного провайдера на возврат.
type RefundResult struct {
	RefundID string
	Status   string
}

// PaymentService описывает взаимодействие с платёжным провайдером.
type PaymentService interface {
	// CapturePayment списывает сумму заказа. Ключ идемпотентности гарантирует,
	// что повтор вызова не приведёт ко второму списанию.
	CapturePayment(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (PaymentResult, error)
	// Refund возвращает средства по ранее выполненному платежу.
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (RefundResult, error)
}

// DeliveryResult — ответ delivery-сервиса на запрос назначения курьера.
type DeliveryResult struct {
	DeliveryID string
}

// DeliveryService описывает взаимодействие с сервисом доставки.
type DeliveryService interface {
	// AssignDelivery запрашивает назначение курьера на заказ.
	AssignDelivery(ctx context.Context, orderID, restaurantID string, address DeliveryAddress) (DeliveryResult, error)
	// CancelDelivery уведомляет об отмене назначения (компенсация).
	CancelDelivery(ctx context.Context, deliveryID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки команд по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
