package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// sagaLogRepositoryInMemory хранит записи saga-лога, ключ (order_id, step).
type sagaLogRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]map[domain.SagaStep]domain.SagaTransaction
}

// NewSagaLogRepository создаёт in-memory реализацию SagaLogRepository.
func NewSagaLogRepository() domain.SagaLogRepository {
	return &sagaLogRepositoryInMemory{
		records: make(map[string]map[domain.SagaStep]domain.SagaTransaction),
	}
}

// Record вставляет или перезаписывает запись по ключу (order_id, step).
// Существующая запись сохраняет идентификатор и время создания.
func (r *sagaLogRepositoryInMemory) Record(tx domain.SagaTransaction) (domain.SagaTransaction, error) {
	if tx.OrderID == "" {
		return domain.SagaTransaction{}, domain.ErrOrderNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	byStep, ok := r.records[tx.OrderID]
	if !ok {
		byStep = make(map[domain.SagaStep]domain.SagaTransaction)
		r.records[tx.OrderID] = byStep
	}

	if existing, ok := byStep[tx.Step]; ok {
		tx.ID = existing.ID
		tx.CreatedAt = existing.CreatedAt
	} else {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	byStep[tx.Step] = tx
	return tx, nil
}

// Get возвращает запись шага или ErrSagaStepNotFound.
func (r *sagaLogRepositoryInMemory) Get(orderID string, step domain.SagaStep) (domain.SagaTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.records[orderID][step]
	if !ok {
		return domain.SagaTransaction{}, domain.ErrSagaStepNotFound
	}
	return tx, nil
}

// ListByOrder возвращает записи заказа в порядке последовательности шагов.
func (r *sagaLogRepositoryInMemory) ListByOrder(orderID string) ([]domain.SagaTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStep := r.records[orderID]
	result := make([]domain.SagaTransaction, 0, len(byStep))
	for _, tx := range byStep {
		result = append(result, tx)
	}

	order := stepOrder()
	sort.Slice(result, func(i, j int) bool {
		return order[result[i].Step] < order[result[j].Step]
	})
	return result, nil
}

func stepOrder() map[domain.SagaStep]int {
	order := make(map[domain.SagaStep]int, 5)
	for idx, step := range domain.SagaSteps() {
		order[step] = idx
	}
	return order
}

var _ domain.SagaLogRepository = (*sagaLogRepositoryInMemory)(nil)
