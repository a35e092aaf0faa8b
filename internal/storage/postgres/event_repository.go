package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository создаёт PostgreSQL-реализацию OrderEventRepository.
func NewEventRepository(store *Store) domain.OrderEventRepository {
	return &eventRepository{db: store.DB()}
}

func (r *eventRepository) Append(event domain.OrderEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO order_events (id, order_id, event_type, description, metadata, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		event.ID, event.OrderID, string(event.Type), event.Description, metadata, event.Occurred,
	); err != nil {
		return fmt.Errorf("append order event: %w", err)
	}
	return nil
}

func (r *eventRepository) List(orderID string) ([]domain.OrderEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, event_type, description, metadata, occurred_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY occurred_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.OrderEvent, 0)
	for rows.Next() {
		var (
			event     domain.OrderEvent
			eventType string
			metadata  []byte
		)
		if err := rows.Scan(
			&event.ID, &event.OrderID, &eventType, &event.Description, &metadata, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		event.Type = domain.OrderEventType(eventType)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order events: %w", err)
	}

	return events, nil
}

var _ domain.OrderEventRepository = (*eventRepository)(nil)
