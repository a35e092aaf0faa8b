package command

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// CreateOrderItem — позиция нового заказа.
type CreateOrderItem struct {
	CatalogItemID string
	Name          string
	UnitPrice     decimal.Decimal
	Qty           int32
	Instructions  string
}

// CreateOrderCommand — команда создания заказа.
type CreateOrderCommand struct {
	UserID              string
	RestaurantID        string
	Items               []CreateOrderItem
	DeliveryAddress     domain.DeliveryAddress
	SpecialInstructions string
}

// UpdateStatusCommand — команда смены статуса заказа.
type UpdateStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Reason  string
}

// CancelOrderCommand — команда отмены заказа клиентом или администратором.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
}

// RefundCommand — команда возврата средств по отменённому заказу.
type RefundCommand struct {
	OrderID string
	Reason  string
}

// RefundOutcome — результат обработки возврата.
type RefundOutcome struct {
	RefundID        string
	Amount          decimal.Decimal
	AlreadyRefunded bool
}

// SagaTrigger принимает триггеры саги от команд. Команда не выполняет
// шаги сама: она фиксирует состояние и ставит триггер в очередь.
type SagaTrigger interface {
	StartSaga(orderID string)
	CancelSaga(orderID, reason string)
}
