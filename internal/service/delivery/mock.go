package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// MockService — конфигурируемая заглушка DeliveryService для тестов.
type MockService struct {
	mu sync.Mutex

	AssignErr error
	CancelErr error

	AssignCalls int
	CancelCalls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{}
}

// AssignDelivery возвращает настроенный результат и считает вызовы.
func (m *MockService) AssignDelivery(_ context.Context, orderID, restaurantID string, address domain.DeliveryAddress) (domain.DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AssignCalls++

	if m.AssignErr != nil {
		return domain.DeliveryResult{}, m.AssignErr
	}
	return domain.DeliveryResult{DeliveryID: uuid.NewString()}, nil
}

// CancelDelivery считает компенсирующие уведомления.
func (m *MockService) CancelDelivery(_ context.Context, deliveryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	return m.CancelErr
}

var _ domain.DeliveryService = (*MockService)(nil)
