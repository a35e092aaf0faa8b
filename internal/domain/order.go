package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа доставки еды.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сага ещё не началась.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ прошёл валидацию и подтверждён.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing — ресторан уведомлён и готовит заказ.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReadyForPickup — курьер назначен, заказ ждёт передачи.
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	// OrderStatusOutForDelivery — курьер забрал заказ и едет к клиенту.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered — заказ доставлен клиенту (терминальный).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до доставки (терминальный).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — по заказу оформлен возврат средств (терминальный).
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusFailed — сага провалилась и компенсации выполнены (терминальный).
	OrderStatusFailed OrderStatus = "failed"
)

// statusTransitions задаёт допустимые переходы статусов заказа.
// Отсутствие записи означает, что из статуса перейти никуда нельзя.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPreparing:      {OrderStatusReadyForPickup, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusReadyForPickup: {OrderStatusOutForDelivery, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusCancelled:      {OrderStatusRefunded},
	OrderStatusFailed:         {OrderStatusRefunded},
}

// CanTransition проверяет, разрешён ли переход from → to по таблице переходов.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus сообщает, завершён ли жизненный цикл заказа.
// refunded достижим из cancelled/failed, поэтому терминальность тут
// означает «дальше только возврат средств».
func IsTerminalStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// DeliveryAddress — снапшот адреса доставки на момент создания заказа.
type DeliveryAddress struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
	// Координаты опциональны: их проставляет геокодер на стороне гейтвея.
	Latitude  *float64
	Longitude *float64
}

// IsZero сообщает, заполнен ли адрес хоть чем-то.
func (a DeliveryAddress) IsZero() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.ZipCode == "" && a.Country == ""
}

// OrderItem представляет одну позицию заказа.
// Name и UnitPrice — снапшоты из каталога: позже меню может измениться,
// а заказ должен остаться аудируемым.
type OrderItem struct {
	ID            string
	CatalogItemID string
	Name          string
	UnitPrice     decimal.Decimal
	Qty           int32
	Instructions  string
	CreatedAt     time.Time
}

// Subtotal возвращает стоимость позиции: qty * unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Qty))
}

// Order агрегирует состояние заказа, его позиции и снапшот адреса доставки.
type Order struct {
	ID           string
	UserID       string
	RestaurantID string
	Status       OrderStatus
	SagaStatus   SagaStatus
	Items        []OrderItem
	// TotalAmount фиксируется при создании как сумма позиций и далее
	// не мутируется: возвраты учитываются отдельно в saga-логе.
	TotalAmount         decimal.Decimal
	DeliveryFee         decimal.Decimal
	TaxAmount           decimal.Decimal
	DeliveryAddress     DeliveryAddress
	SpecialInstructions string
	CancelRequested     bool
	CancelReason        string
	EstimatedDeliveryAt *time.Time
	ActualDeliveryAt    *time.Time
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ItemsTotal считает сумму позиций заказа.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// GrandTotal возвращает полную стоимость: позиции + доставка + налог.
func (o *Order) GrandTotal() decimal.Decimal {
	return o.TotalAmount.Add(o.DeliveryFee).Add(o.TaxAmount)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.RestaurantID == "" {
		errs = append(errs, ErrRestaurantRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.DeliveryAddress.IsZero() {
		errs = append(errs, ErrAddressRequired)
	}

	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// Сумма заказа обязана совпадать с суммой позиций: клиентским
	// тоталам сервер не доверяет.
	if !o.TotalAmount.Equal(o.ItemsTotal()) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// CanBeCancelled сообщает, может ли клиент ещё отменить заказ.
// После передачи курьеру отмена невозможна, как и после завершения саги.
func (o *Order) CanBeCancelled() bool {
	switch o.Status {
	case OrderStatusOutForDelivery, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return false
	}
	return o.SagaStatus != SagaStatusCompleted
}
