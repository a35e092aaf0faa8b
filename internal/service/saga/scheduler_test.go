package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/memory"
)

// recordingOrchestrator фиксирует обработанные триггеры.
type recordingOrchestrator struct {
	mu      sync.Mutex
	started []string
	calls   chan struct{}
}

func newRecordingOrchestrator() *recordingOrchestrator {
	return &recordingOrchestrator{calls: make(chan struct{}, 16)}
}

func (r *recordingOrchestrator) Start(_ context.Context, orderID string) {
	r.mu.Lock()
	r.started = append(r.started, orderID)
	r.mu.Unlock()
	r.calls <- struct{}{}
}

func (r *recordingOrchestrator) Cancel(_ context.Context, orderID, reason string) {
	r.mu.Lock()
	r.started = append(r.started, "cancel:"+orderID)
	r.mu.Unlock()
	r.calls <- struct{}{}
}

func (r *recordingOrchestrator) Abort(_ context.Context, orderID, reason string) {
	r.mu.Lock()
	r.started = append(r.started, "abort:"+orderID)
	r.mu.Unlock()
	r.calls <- struct{}{}
}

func (r *recordingOrchestrator) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for trigger %d of %d", i+1, n)
		}
	}
}

func (r *recordingOrchestrator) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func TestScheduler_DeliversTriggers(t *testing.T) {
	orch := newRecordingOrchestrator()
	orders := memory.NewOrderRepository(memory.NewEventRepository())

	scheduler := NewScheduler(orch, orders, 2, log.New().WithField("test", t.Name()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)

	scheduler.StartSaga("order-1")
	scheduler.CancelSaga("order-2", "customer cancelled")
	scheduler.AbortSaga("order-3", "payment failed: card declined")
	orch.waitCalls(t, 3)

	seen := make(map[string]bool)
	for _, call := range orch.snapshot() {
		seen[call] = true
	}
	if !seen["order-1"] {
		t.Fatal("expected start trigger for order-1")
	}
	if !seen["cancel:order-2"] {
		t.Fatal("expected cancel trigger for order-2")
	}
	if !seen["abort:order-3"] {
		t.Fatal("expected abort trigger for order-3")
	}

	cancel()
	if err := scheduler.Wait(); err != nil {
		t.Fatalf("scheduler wait: %v", err)
	}
}

func TestScheduler_RecoverResumesInFlightSagas(t *testing.T) {
	orch := newRecordingOrchestrator()
	events := memory.NewEventRepository()
	orders := memory.NewOrderRepository(events)

	// Два заказа с оборванной сагой и один завершённый.
	seedSchedulerOrder(t, orders, "order-1", domain.SagaStatusInProgress)
	seedSchedulerOrder(t, orders, "order-2", domain.SagaStatusCompensating)
	seedSchedulerOrder(t, orders, "order-3", domain.SagaStatusCompleted)

	scheduler := NewScheduler(orch, orders, 1, log.New().WithField("test", t.Name()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)

	if err := scheduler.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	orch.waitCalls(t, 2)

	seen := make(map[string]bool)
	for _, call := range orch.snapshot() {
		seen[call] = true
	}
	if !seen["order-1"] || !seen["order-2"] {
		t.Fatalf("expected in-flight sagas resumed, got %v", orch.snapshot())
	}
	if seen["order-3"] {
		t.Fatal("completed saga must not be resumed")
	}
}

func TestScheduler_OverflowSendStopsOnShutdown(t *testing.T) {
	orch := newRecordingOrchestrator()
	orders := memory.NewOrderRepository(memory.NewEventRepository())

	scheduler := NewScheduler(orch, orders, 1, log.New().WithField("test", t.Name()))
	// Небуферизованная очередь без воркеров: доставка возможна только
	// через остановку планировщика.
	scheduler.queue = make(chan Trigger)
	close(scheduler.done)

	finished := make(chan struct{})
	go func() {
		scheduler.sendBlocking(Trigger{Kind: TriggerStart, OrderID: "order-1"})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked trigger send must return after scheduler shutdown")
	}
}

func seedSchedulerOrder(t *testing.T, repo domain.OrderRepository, id string, sagaStatus domain.SagaStatus) {
	t.Helper()
	order := domain.Order{
		ID:           id,
		UserID:       "user-1",
		RestaurantID: "rest-1",
		Status:       domain.OrderStatusPending,
		SagaStatus:   sagaStatus,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(order, domain.OrderEvent{ID: "evt-" + id, OrderID: id, Type: domain.OrderEventCreated}); err != nil {
		t.Fatalf("create order %s: %v", id, err)
	}
}
