package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// eventRepositoryInMemory хранит журнал заказов в памяти (для разработки/тестов).
type eventRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.OrderEvent
}

// NewEventRepository создаёт in-memory реализацию OrderEventRepository.
func NewEventRepository() domain.OrderEventRepository {
	return &eventRepositoryInMemory{events: make(map[string][]domain.OrderEvent)}
}

// Append добавляет событие в журнал заказа.
func (r *eventRepositoryInMemory) Append(event domain.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	r.events[event.OrderID] = append(r.events[event.OrderID], event)

	sort.SliceStable(r.events[event.OrderID], func(i, j int) bool {
		return r.events[event.OrderID][i].Occurred.Before(r.events[event.OrderID][j].Occurred)
	})

	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *eventRepositoryInMemory) List(orderID string) ([]domain.OrderEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	result := make([]domain.OrderEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.OrderEventRepository = (*eventRepositoryInMemory)(nil)
