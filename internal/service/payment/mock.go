package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// MockService — конфигурируемая заглушка PaymentService для тестов.
// Повторное списание с тем же idempotency-key возвращает прежний платёж,
// как это делает реальный провайдер.
type MockService struct {
	mu sync.Mutex

	CaptureErr    error
	CaptureStatus string
	RefundErr     error
	RefundStatus  string

	CaptureCalls int
	RefundCalls  int

	captured map[string]domain.PaymentResult
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		CaptureStatus: "captured",
		RefundStatus:  "refunded",
		captured:      make(map[string]domain.PaymentResult),
	}
}

// CapturePayment возвращает настроенный результат и считает вызовы.
func (m *MockService) CapturePayment(_ context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (domain.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CaptureCalls++

	if m.CaptureErr != nil {
		return domain.PaymentResult{}, m.CaptureErr
	}
	if prior, ok := m.captured[idempotencyKey]; ok && idempotencyKey != "" {
		return prior, nil
	}

	result := domain.PaymentResult{
		PaymentID: uuid.NewString(),
		Status:    m.CaptureStatus,
	}
	if idempotencyKey != "" {
		m.captured[idempotencyKey] = result
	}
	return result, nil
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockService) Refund(_ context.Context, paymentID string, amount decimal.Decimal, reason string) (domain.RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundCalls++

	if m.RefundErr != nil {
		return domain.RefundResult{}, m.RefundErr
	}
	return domain.RefundResult{
		RefundID: uuid.NewString(),
		Status:   m.RefundStatus,
	}, nil
}

var _ domain.PaymentService = (*MockService)(nil)
