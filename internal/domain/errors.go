package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора ресторана.
	ErrRestaurantRequired = errors.New("restaurant_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = errors.New("delivery address is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVersionConflict сигнализирует о конфликте версий при optimistic locking.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrNotAuthorized — актор не имеет права на операцию с этим заказом.
	ErrNotAuthorized = errors.New("actor is not authorized for this order")
	// ErrInvalidTransition — запрошенный статус недостижим из текущего.
	ErrInvalidTransition = errors.New("status transition is not allowed")
	// ErrInvalidState — статус или статус саги не позволяет операцию.
	ErrInvalidState = errors.New("order state does not permit this operation")

	// ErrRemoteCall — вызов внешнего сервиса провалился или превысил таймаут.
	// Единственный вид ошибки, запускающий компенсацию саги.
	ErrRemoteCall = errors.New("remote collaborator call failed")
	// ErrSagaStepNotFound — в saga-логе нет записи по (order_id, step).
	ErrSagaStepNotFound = errors.New("saga step record not found")
	// ErrUnknownSagaStep — имя шага вне фиксированной последовательности.
	ErrUnknownSagaStep = errors.New("unknown saga step")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-слоя команд.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, что заказ или запись отсутствует.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrSagaStepNotFound)
}

// IsRemote проверяет, что ошибка относится к внешнему вызову и должна
// обрабатываться компенсацией, а не возвращаться вызывающему напрямую.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemoteCall)
}

// IsValidation группирует ошибки, отклоняющие команду до изменения состояния.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUserRequired) ||
		errors.Is(err, ErrRestaurantRequired) ||
		errors.Is(err, ErrItemsRequired) ||
		errors.Is(err, ErrAddressRequired) ||
		errors.Is(err, ErrItemQtyInvalid) ||
		errors.Is(err, ErrItemPriceInvalid) ||
		errors.Is(err, ErrAmountMismatch)
}
