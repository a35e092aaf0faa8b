package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Order
	events domain.OrderEventRepository
}

// NewOrderRepository возвращает in-memory репозиторий для локальной
// разработки и тестов. События журнала дописываются в переданный репозиторий
// в рамках той же критической секции, имитируя атомарность записи.
func NewOrderRepository(events domain.OrderEventRepository) domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:  make(map[string]domain.Order),
		events: events,
	}
}

// Create сохраняет новый заказ вместе с начальным событием, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order, created domain.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(order)

	if r.events != nil {
		if err := r.events.Append(created); err != nil {
			delete(r.items, order.ID)
			return err
		}
	}
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// List возвращает страницу заказов по фильтру и общее число совпадений.
func (r *orderRepositoryInMemory) List(filter domain.OrderFilter) ([]domain.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !matchesFilter(order, filter) {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return []domain.Order{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, total, nil
}

// ListSagaInFlight возвращает заказы с незавершённой сагой.
func (r *orderRepositoryInMemory) ListSagaInFlight(limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		switch order.SagaStatus {
		case domain.SagaStatusInProgress, domain.SagaStatusCompensating:
			result = append(result, cloneOrder(order))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking),
// и дописывает переданные события журнала.
func (r *orderRepositoryInMemory) Save(order domain.Order, events ...domain.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)

	if r.events != nil {
		for _, event := range events {
			if err := r.events.Append(event); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesFilter(order domain.Order, filter domain.OrderFilter) bool {
	if filter.UserID != "" && order.UserID != filter.UserID {
		return false
	}
	if filter.RestaurantID != "" && order.RestaurantID != filter.RestaurantID {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if order.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.CreatedFrom.IsZero() && order.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && order.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
