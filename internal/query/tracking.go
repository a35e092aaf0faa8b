package query

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// TrackingStage — одна веха трекинга заказа для клиента.
type TrackingStage struct {
	Name    string
	Label   string
	Reached bool
	At      *time.Time
}

// Tracking — клиентский взгляд на продвижение заказа.
type Tracking struct {
	OrderID             string
	Status              domain.OrderStatus
	SagaStatus          domain.SagaStatus
	Stages              []TrackingStage
	CurrentStage        int
	EstimatedDeliveryAt *time.Time
	ActualDeliveryAt    *time.Time
	CancelReason        string
}

// trackingStages — вехи в порядке жизненного цикла. Статус заказа
// отображается на индекс последней достигнутой вехи.
var trackingStages = []struct {
	name   string
	label  string
	status domain.OrderStatus
}{
	{"placed", "Order placed", domain.OrderStatusPending},
	{"confirmed", "Order confirmed", domain.OrderStatusConfirmed},
	{"preparing", "Restaurant is preparing your order", domain.OrderStatusPreparing},
	{"ready_for_pickup", "Courier is picking up your order", domain.OrderStatusReadyForPickup},
	{"out_for_delivery", "Order is on the way", domain.OrderStatusOutForDelivery},
	{"delivered", "Order delivered", domain.OrderStatusDelivered},
}

// TrackOrder возвращает таймлайн продвижения заказа. Времена вех берутся
// из журнала событий: первое событие, переведшее заказ в статус вехи.
func (s *Service) TrackOrder(ctx context.Context, actor domain.Actor, orderID string) (Tracking, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return Tracking{}, err
	}
	if !actor.CanViewOrder(order) {
		return Tracking{}, domain.ErrNotAuthorized
	}

	events, err := s.events.List(orderID)
	if err != nil {
		return Tracking{}, err
	}

	reachedAt := stageTimes(order, events)
	current := currentStageIndex(order.Status, reachedAt)

	stages := make([]TrackingStage, 0, len(trackingStages))
	for i, stage := range trackingStages {
		reached := i <= current
		var at *time.Time
		if t, ok := reachedAt[stage.status]; ok && reached {
			ts := t
			at = &ts
		}
		stages = append(stages, TrackingStage{
			Name:    stage.name,
			Label:   stage.label,
			Reached: reached,
			At:      at,
		})
	}

	return Tracking{
		OrderID:             order.ID,
		Status:              order.Status,
		SagaStatus:          order.SagaStatus,
		Stages:              stages,
		CurrentStage:        current,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		ActualDeliveryAt:    order.ActualDeliveryAt,
		CancelReason:        order.CancelReason,
	}, nil
}

// currentStageIndex возвращает индекс последней достигнутой вехи.
// Для отменённых и провалившихся заказов таймлайн замирает на вехе,
// достигнутой до отмены: её восстанавливаем по журналу событий,
// фронтенд показывает причину отдельно.
func currentStageIndex(status domain.OrderStatus, reachedAt map[domain.OrderStatus]time.Time) int {
	for i, stage := range trackingStages {
		if stage.status == status {
			return i
		}
	}

	last := 0
	for i, stage := range trackingStages {
		if _, ok := reachedAt[stage.status]; ok {
			last = i
		}
	}
	return last
}

func stageTimes(order domain.Order, events []domain.OrderEvent) map[domain.OrderStatus]time.Time {
	times := map[domain.OrderStatus]time.Time{
		domain.OrderStatusPending: order.CreatedAt,
	}
	for _, event := range events {
		var to domain.OrderStatus
		switch event.Type {
		case domain.OrderEventStatusChanged, domain.OrderEventDelivered:
			to = domain.OrderStatus(event.Metadata["to"])
		case domain.OrderEventSagaMilestone:
			// Вехи саги двигают статус заказа и несут его в метаданных.
			to = domain.OrderStatus(event.Metadata["status"])
		default:
			continue
		}
		if to == "" {
			continue
		}
		if _, seen := times[to]; !seen {
			times[to] = event.Occurred
		}
	}
	return times
}
