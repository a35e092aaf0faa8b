package domain

import "time"

// SagaStatus описывает положение саги заказа.
type SagaStatus string

const (
	// SagaStatusNotStarted — заказ создан, триггер саги ещё не обработан.
	SagaStatusNotStarted SagaStatus = "not_started"
	// SagaStatusInProgress — оркестратор выполняет прямые шаги.
	SagaStatusInProgress SagaStatus = "in_progress"
	// SagaStatusCompensating — выполняются компенсации ранее завершённых шагов.
	SagaStatusCompensating SagaStatus = "compensating"
	// SagaStatusCompleted — все шаги выполнены успешно (терминальный).
	SagaStatusCompleted SagaStatus = "completed"
	// SagaStatusCompensated — компенсации отработали чисто (терминальный).
	SagaStatusCompensated SagaStatus = "compensated"
	// SagaStatusFailed — компенсация не завершилась чисто, нужен оператор (терминальный).
	SagaStatusFailed SagaStatus = "failed"
)

// IsTerminalSagaStatus сообщает, завершена ли сага.
func IsTerminalSagaStatus(status SagaStatus) bool {
	switch status {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusFailed:
		return true
	default:
		return false
	}
}

// SagaStep — имя шага фиксированной последовательности саги.
type SagaStep string

const (
	SagaStepValidateOrder    SagaStep = "validate_order"
	SagaStepProcessPayment   SagaStep = "process_payment"
	SagaStepNotifyRestaurant SagaStep = "notify_restaurant"
	SagaStepAssignDelivery   SagaStep = "assign_delivery"
	SagaStepCompleteOrder    SagaStep = "complete_order"
)

// SagaSteps возвращает шаги в порядке выполнения.
func SagaSteps() []SagaStep {
	return []SagaStep{
		SagaStepValidateOrder,
		SagaStepProcessPayment,
		SagaStepNotifyRestaurant,
		SagaStepAssignDelivery,
		SagaStepCompleteOrder,
	}
}

// StepStatus описывает состояние одной записи saga-лога.
type StepStatus string

const (
	// StepStatusPending — шаг начат, удалённый вызов ещё не завершился.
	StepStatusPending StepStatus = "pending"
	// StepStatusCompleted — шаг выполнен, сторонний эффект зафиксирован.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed — шаг провалился, сага ушла в компенсацию.
	StepStatusFailed StepStatus = "failed"
	// StepStatusCompensated — эффект шага откатан компенсирующим действием.
	StepStatusCompensated StepStatus = "compensated"
)

// SagaTransaction — одна запись saga-лога: попытка шага по заказу.
// Ключ (order_id, step) уникален; запись никогда не удаляется — компенсация
// переводит completed в compensated. Это durable-источник истины о том,
// какие сторонние эффекты у заказа уже есть, и защита от повторного
// списания оплаты или повторного назначения курьера после рестарта.
type SagaTransaction struct {
	ID         string
	OrderID    string
	Step       SagaStep
	Status     StepStatus
	Request    StepPayload
	Response   StepPayload
	Error      string
	RetryCount int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SagaLogRepository хранит записи saga-лога.
type SagaLogRepository interface {
	// Record вставляет или перезаписывает запись по ключу (order_id, step).
	Record(tx SagaTransaction) (SagaTransaction, error)
	// Get возвращает запись шага или ErrSagaStepNotFound.
	Get(orderID string, step SagaStep) (SagaTransaction, error)
	// ListByOrder возвращает записи заказа в порядке последовательности шагов.
	ListByOrder(orderID string) ([]SagaTransaction, error)
}
