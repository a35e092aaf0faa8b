package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/query"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/memory"
)

type queryFixture struct {
	orders  domain.OrderRepository
	sagalog domain.SagaLogRepository
	events  domain.OrderEventRepository
	svc     *query.Service
}

func newQueryFixture() *queryFixture {
	events := memory.NewEventRepository()
	f := &queryFixture{
		orders:  memory.NewOrderRepository(events),
		sagalog: memory.NewSagaLogRepository(),
		events:  events,
	}
	f.svc = query.NewService(f.orders, f.sagalog, f.events, log.New().WithField("component", "query-test"))
	return f
}

func (f *queryFixture) seedOrder(t *testing.T, id, userID, restaurantID string, status domain.OrderStatus, createdAt time.Time) {
	t.Helper()
	order := domain.Order{
		ID:           id,
		UserID:       userID,
		RestaurantID: restaurantID,
		Status:       status,
		SagaStatus:   domain.SagaStatusNotStarted,
		Items: []domain.OrderItem{{
			ID:            "item-" + id,
			CatalogItemID: "dish-1",
			Name:          "Pad Thai",
			UnitPrice:     decimal.NewFromFloat(12.50),
			Qty:           2,
		}},
		TotalAmount: decimal.NewFromFloat(25.00),
		DeliveryFee: decimal.NewFromFloat(2.99),
		TaxAmount:   decimal.NewFromFloat(2.00),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	event := domain.OrderEvent{
		ID:       "evt-" + id,
		OrderID:  id,
		Type:     domain.OrderEventCreated,
		Occurred: createdAt,
	}
	if err := f.orders.Create(order, event); err != nil {
		t.Fatalf("seed order %s: %v", id, err)
	}
}

func TestGetOrder(t *testing.T) {
	f := newQueryFixture()
	now := time.Now().UTC()
	f.seedOrder(t, "order-1", "user-1", "rest-1", domain.OrderStatusConfirmed, now)

	if _, err := f.sagalog.Record(domain.SagaTransaction{
		OrderID: "order-1",
		Step:    domain.SagaStepValidateOrder,
		Status:  domain.StepStatusCompleted,
	}); err != nil {
		t.Fatalf("seed saga log: %v", err)
	}

	owner := domain.Actor{ID: "user-1", Role: domain.RoleCustomer}
	details, err := f.svc.GetOrder(context.Background(), owner, "order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if details.Order.ID != "order-1" {
		t.Fatalf("unexpected order: %+v", details.Order)
	}
	if len(details.SagaLog) != 1 {
		t.Fatalf("expected 1 saga row, got %d", len(details.SagaLog))
	}
	if len(details.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(details.Events))
	}

	stranger := domain.Actor{ID: "user-2", Role: domain.RoleCustomer}
	if _, err := f.svc.GetOrder(context.Background(), stranger, "order-1"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}

	if _, err := f.svc.GetOrder(context.Background(), owner, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrders_RoleScoping(t *testing.T) {
	f := newQueryFixture()
	now := time.Now().UTC()
	f.seedOrder(t, "order-1", "user-1", "rest-1", domain.OrderStatusPending, now)
	f.seedOrder(t, "order-2", "user-2", "rest-1", domain.OrderStatusPending, now.Add(time.Minute))
	f.seedOrder(t, "order-3", "user-1", "rest-2", domain.OrderStatusPending, now.Add(2*time.Minute))

	ctx := context.Background()

	// Клиент видит только свои заказы, даже если фильтр просит чужие.
	page, err := f.svc.ListOrders(ctx, domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, domain.OrderFilter{UserID: "user-2"})
	if err != nil {
		t.Fatalf("list as customer: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 orders for user-1, got %d", page.Total)
	}
	for _, order := range page.Orders {
		if order.UserID != "user-1" {
			t.Fatalf("foreign order leaked: %s", order.ID)
		}
	}

	page, err = f.svc.ListOrders(ctx, domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant}, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list as restaurant: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 orders for rest-1, got %d", page.Total)
	}

	page, err = f.svc.ListOrders(ctx, domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list as admin: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected all 3 orders for admin, got %d", page.Total)
	}

	if _, err := f.svc.ListOrders(ctx, domain.Actor{ID: "drv-1", Role: domain.RoleDriver}, domain.OrderFilter{}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected not authorized for driver, got %v", err)
	}
}

func TestListOrders_LimitClamp(t *testing.T) {
	f := newQueryFixture()
	f.seedOrder(t, "order-1", "user-1", "rest-1", domain.OrderStatusPending, time.Now().UTC())

	admin := domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}

	page, err := f.svc.ListOrders(context.Background(), admin, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Limit != 20 {
		t.Fatalf("expected default limit 20, got %d", page.Limit)
	}

	page, err = f.svc.ListOrders(context.Background(), admin, domain.OrderFilter{Limit: 500, Offset: -5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Limit != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", page.Limit)
	}
	if page.Offset != 0 {
		t.Fatalf("expected offset clamped to 0, got %d", page.Offset)
	}
}
