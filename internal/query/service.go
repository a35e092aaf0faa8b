package query

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// OrderDetails — заказ вместе с saga-логом и журналом событий.
type OrderDetails struct {
	Order   domain.Order
	SagaLog []domain.SagaTransaction
	Events  []domain.OrderEvent
}

// OrderPage — страница списка заказов.
type OrderPage struct {
	Orders []domain.Order
	Total  int
	Offset int
	Limit  int
}

// Service — read-сторона CQRS: выборки без мутаций состояния.
// Все запросы скоупятся правами актора.
type Service struct {
	orders  domain.OrderRepository
	sagalog domain.SagaLogRepository
	events  domain.OrderEventRepository
	logger  *log.Entry
}

// NewService создаёт query-сервис заказов.
func NewService(
	orders domain.OrderRepository,
	sagalog domain.SagaLogRepository,
	events domain.OrderEventRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "query-service")
	}
	return &Service{
		orders:  orders,
		sagalog: sagalog,
		events:  events,
		logger:  logger,
	}
}

// GetOrder возвращает детали заказа: агрегат, saga-лог и журнал событий.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (OrderDetails, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	if !actor.CanViewOrder(order) {
		return OrderDetails{}, domain.ErrNotAuthorized
	}

	sagaRows, err := s.sagalog.ListByOrder(orderID)
	if err != nil {
		return OrderDetails{}, fmt.Errorf("list saga log: %w", err)
	}
	events, err := s.events.List(orderID)
	if err != nil {
		return OrderDetails{}, fmt.Errorf("list order events: %w", err)
	}

	return OrderDetails{
		Order:   order,
		SagaLog: sagaRows,
		Events:  events,
	}, nil
}

// OrderEvents возвращает журнал событий заказа в порядке записи.
func (s *Service) OrderEvents(ctx context.Context, actor domain.Actor, orderID string) ([]domain.OrderEvent, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanViewOrder(order) {
		return nil, domain.ErrNotAuthorized
	}

	events, err := s.events.List(orderID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	return events, nil
}

// ListOrders возвращает страницу заказов. Клиент видит только свои
// заказы, ресторан — свои, администратор и система — любые по фильтру.
func (s *Service) ListOrders(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) (OrderPage, error) {
	switch actor.Role {
	case domain.RoleCustomer:
		filter.UserID = actor.ID
	case domain.RoleRestaurant:
		filter.RestaurantID = actor.ID
	case domain.RoleAdmin, domain.RoleSystem:
		// Без принудительного скоупа.
	default:
		return OrderPage{}, domain.ErrNotAuthorized
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, total, err := s.orders.List(filter)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{
		Orders: orders,
		Total:  total,
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}, nil
}
