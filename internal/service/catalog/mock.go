package catalog

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// MockService — конфигурируемая заглушка CatalogService для тестов и
// локальной разработки без реального каталога.
type MockService struct {
	mu sync.Mutex

	ValidateErr error
	NotifyErr   error
	CancelErr   error
	PrepMinutes int32

	ValidateCalls int
	NotifyCalls   int
	CancelCalls   int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{PrepMinutes: 25}
}

// ValidateItems возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockService) ValidateItems(_ context.Context, restaurantID string, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidateCalls++
	return m.ValidateErr
}

// NotifyRestaurant возвращает настроенную оценку приготовления и считает вызовы.
func (m *MockService) NotifyRestaurant(_ context.Context, orderID string, items []domain.OrderItem, totalAmount decimal.Decimal) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyCalls++
	if m.NotifyErr != nil {
		return 0, m.NotifyErr
	}
	return m.PrepMinutes, nil
}

// CancelRestaurantOrder считает компенсирующие уведомления.
func (m *MockService) CancelRestaurantOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	return m.CancelErr
}

var _ domain.CatalogService = (*MockService)(nil)
