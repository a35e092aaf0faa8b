package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

func TestTrackOrder_StagesFromEvents(t *testing.T) {
	f := newQueryFixture()
	created := time.Now().UTC().Add(-30 * time.Minute)
	f.seedOrder(t, "order-1", "user-1", "rest-1", domain.OrderStatusPreparing, created)

	// Вехи саги и ручные смены статуса перемешаны в журнале.
	appendEvent := func(id string, eventType domain.OrderEventType, meta map[string]string, occurred time.Time) {
		t.Helper()
		if err := f.events.Append(domain.OrderEvent{
			ID:       id,
			OrderID:  "order-1",
			Type:     eventType,
			Metadata: meta,
			Occurred: occurred,
		}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	appendEvent("evt-2", domain.OrderEventSagaMilestone, map[string]string{"status": "confirmed"}, created.Add(time.Minute))
	appendEvent("evt-3", domain.OrderEventStatusChanged, map[string]string{"from": "confirmed", "to": "preparing"}, created.Add(5*time.Minute))

	tracking, err := f.svc.TrackOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, "order-1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}

	if tracking.CurrentStage != 2 {
		t.Fatalf("expected current stage 2 (preparing), got %d", tracking.CurrentStage)
	}
	if len(tracking.Stages) != 6 {
		t.Fatalf("expected 6 stages, got %d", len(tracking.Stages))
	}

	// Достигнутые вехи несут время, будущие — нет.
	for i, stage := range tracking.Stages {
		if i <= 2 && !stage.Reached {
			t.Fatalf("stage %s must be reached", stage.Name)
		}
		if i > 2 && stage.Reached {
			t.Fatalf("stage %s must not be reached yet", stage.Name)
		}
	}
	if tracking.Stages[0].At == nil || !tracking.Stages[0].At.Equal(created) {
		t.Fatalf("placed stage must carry creation time, got %v", tracking.Stages[0].At)
	}
	if tracking.Stages[1].At == nil || !tracking.Stages[1].At.Equal(created.Add(time.Minute)) {
		t.Fatalf("confirmed stage must carry milestone time, got %v", tracking.Stages[1].At)
	}
	if tracking.Stages[3].At != nil {
		t.Fatal("future stage must not carry a time")
	}
}

func TestTrackOrder_CancelledOrderFreezesAtLastMilestone(t *testing.T) {
	f := newQueryFixture()
	created := time.Now().UTC().Add(-time.Hour)
	f.seedOrder(t, "order-1", "user-1", "rest-1", domain.OrderStatusCancelled, created)

	order, err := f.orders.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	order.CancelReason = "customer cancelled"
	if err := f.orders.Save(order); err != nil {
		t.Fatalf("save: %v", err)
	}

	// До отмены заказ успел дойти до preparing.
	for _, seed := range []struct {
		id       string
		status   string
		occurred time.Time
	}{
		{"evt-confirmed", "confirmed", created.Add(time.Minute)},
		{"evt-preparing", "preparing", created.Add(5 * time.Minute)},
	} {
		if err := f.events.Append(domain.OrderEvent{
			ID:       seed.id,
			OrderID:  "order-1",
			Type:     domain.OrderEventSagaMilestone,
			Metadata: map[string]string{"status": seed.status},
			Occurred: seed.occurred,
		}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	tracking, err := f.svc.TrackOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, "order-1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}

	// Таймлайн замирает на последней достигнутой вехе, а не схлопывается.
	if tracking.CurrentStage != 2 {
		t.Fatalf("expected frozen stage 2 (preparing), got %d", tracking.CurrentStage)
	}
	for i, stage := range tracking.Stages {
		if i <= 2 && !stage.Reached {
			t.Fatalf("stage %s must stay reached after cancel", stage.Name)
		}
		if i > 2 && stage.Reached {
			t.Fatalf("stage %s must not be reached", stage.Name)
		}
	}
	if tracking.Stages[2].At == nil || !tracking.Stages[2].At.Equal(created.Add(5*time.Minute)) {
		t.Fatalf("preparing stage must keep its milestone time, got %v", tracking.Stages[2].At)
	}
	if tracking.CancelReason != "customer cancelled" {
		t.Fatalf("expected cancel reason, got %q", tracking.CancelReason)
	}
}

func TestTrackOrder_CancelledBeforeProgress(t *testing.T) {
	f := newQueryFixture()
	f.seedOrder(t, "order-1", "user-1", "rest-1", domain.OrderStatusCancelled, time.Now().UTC())

	tracking, err := f.svc.TrackOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, "order-1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tracking.CurrentStage != 0 {
		t.Fatalf("order cancelled before any milestone must stay at stage 0, got %d", tracking.CurrentStage)
	}
}
