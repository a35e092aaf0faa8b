package domain

import "time"

// OrderFilter задаёт условия выборки заказов для read-стороны.
type OrderFilter struct {
	UserID       string
	RestaurantID string
	Statuses     []OrderStatus
	CreatedFrom  time.Time
	CreatedTo    time.Time
	Offset       int
	Limit        int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями и начальным событием
	// атомарно. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order, created OrderEvent) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// List возвращает страницу заказов по фильтру и общее число совпадений.
	List(filter OrderFilter) ([]Order, int, error)
	// ListSagaInFlight возвращает заказы с незавершённой сагой —
	// их триггеры переигрываются при старте сервиса.
	ListSagaInFlight(limit int) ([]Order, error)
	// Save применяет обновления с учётом optimistic locking и атомарно
	// дописывает переданные события журнала.
	Save(order Order, events ...OrderEvent) error
}
