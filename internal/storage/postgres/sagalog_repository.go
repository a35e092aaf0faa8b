package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

type sagaLogRepository struct {
	db *sql.DB
}

// NewSagaLogRepository создаёт PostgreSQL-реализацию SagaLogRepository.
func NewSagaLogRepository(store *Store) domain.SagaLogRepository {
	return &sagaLogRepository{db: store.DB()}
}

// Record вставляет или перезаписывает запись шага по ключу (order_id, step).
// ID и created_at исходной записи сохраняются при upsert.
func (r *sagaLogRepository) Record(tx domain.SagaTransaction) (domain.SagaTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order := stepOrder(tx.Step)
	if order < 0 {
		return domain.SagaTransaction{}, fmt.Errorf("%w: %q", domain.ErrUnknownSagaStep, tx.Step)
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	request, err := marshalPayload(tx.Request)
	if err != nil {
		return domain.SagaTransaction{}, fmt.Errorf("marshal step request: %w", err)
	}
	response, err := marshalPayload(tx.Response)
	if err != nil {
		return domain.SagaTransaction{}, fmt.Errorf("marshal step response: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO saga_transactions (
			id, order_id, step, step_order, status, request, response,
			error, retry_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (order_id, step) DO UPDATE SET
			status = EXCLUDED.status,
			request = COALESCE(EXCLUDED.request, saga_transactions.request),
			response = COALESCE(EXCLUDED.response, saga_transactions.response),
			error = EXCLUDED.error,
			retry_count = EXCLUDED.retry_count,
			updated_at = EXCLUDED.updated_at
	`,
		tx.ID, tx.OrderID, string(tx.Step), order, string(tx.Status),
		request, response, tx.Error, tx.RetryCount, tx.CreatedAt, tx.UpdatedAt,
	); err != nil {
		return domain.SagaTransaction{}, fmt.Errorf("record saga transaction: %w", err)
	}

	return r.Get(tx.OrderID, tx.Step)
}

func (r *sagaLogRepository) Get(orderID string, step domain.SagaStep) (domain.SagaTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := scanSagaRow(r.db.QueryRowContext(ctx, `
		SELECT id, order_id, step, status, request, response, error, retry_count, created_at, updated_at
		FROM saga_transactions
		WHERE order_id = $1 AND step = $2
	`, orderID, string(step)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SagaTransaction{}, domain.ErrSagaStepNotFound
		}
		return domain.SagaTransaction{}, fmt.Errorf("select saga transaction: %w", err)
	}
	return tx, nil
}

func (r *sagaLogRepository) ListByOrder(orderID string) ([]domain.SagaTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, step, status, request, response, error, retry_count, created_at, updated_at
		FROM saga_transactions
		WHERE order_id = $1
		ORDER BY step_order
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list saga transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SagaTransaction, 0)
	for rows.Next() {
		tx, err := scanSagaRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga transactions: %w", err)
	}

	return result, nil
}

func scanSagaRow(row rowScanner) (domain.SagaTransaction, error) {
	var (
		tx       domain.SagaTransaction
		step     string
		status   string
		request  []byte
		response []byte
	)

	if err := row.Scan(
		&tx.ID, &tx.OrderID, &step, &status,
		&request, &response, &tx.Error, &tx.RetryCount,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return domain.SagaTransaction{}, err
	}

	tx.Step = domain.SagaStep(step)
	tx.Status = domain.StepStatus(status)

	if len(request) > 0 {
		if err := json.Unmarshal(request, &tx.Request); err != nil {
			return domain.SagaTransaction{}, fmt.Errorf("unmarshal step request: %w", err)
		}
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &tx.Response); err != nil {
			return domain.SagaTransaction{}, fmt.Errorf("unmarshal step response: %w", err)
		}
	}
	return tx, nil
}

func marshalPayload(payload domain.StepPayload) ([]byte, error) {
	if payload.IsZero() {
		return nil, nil
	}
	return json.Marshal(payload)
}

func stepOrder(step domain.SagaStep) int {
	for i, s := range domain.SagaSteps() {
		if s == step {
			return i
		}
	}
	return -1
}

var _ domain.SagaLogRepository = (*sagaLogRepository)(nil)
