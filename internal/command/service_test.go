package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodorder/internal/command"
	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/service/payment"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/memory"
)

// triggerRecorder собирает поставленные триггеры саги.
type triggerRecorder struct {
	mu      sync.Mutex
	starts  []string
	cancels []string
}

func (r *triggerRecorder) StartSaga(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, orderID)
}

func (r *triggerRecorder) CancelSaga(orderID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, orderID)
}

type commandFixture struct {
	orders   domain.OrderRepository
	sagalog  domain.SagaLogRepository
	outbox   domain.OutboxRepository
	payments *payment.MockService
	trigger  *triggerRecorder
	svc      *command.Service
}

func newCommandFixture() *commandFixture {
	events := memory.NewEventRepository()
	f := &commandFixture{
		orders:   memory.NewOrderRepository(events),
		sagalog:  memory.NewSagaLogRepository(),
		outbox:   memory.NewOutboxRepository(),
		payments: payment.NewMockService(),
		trigger:  &triggerRecorder{},
	}
	f.svc = command.NewService(
		f.orders, f.sagalog, f.outbox, f.payments, f.trigger,
		command.DefaultConfig(),
		log.New().WithField("component", "command-test"),
	)
	return f
}

func createCmd() command.CreateOrderCommand {
	return command.CreateOrderCommand{
		UserID:       "user-1",
		RestaurantID: "rest-1",
		Items: []command.CreateOrderItem{
			{CatalogItemID: "dish-1", Name: "Pad Thai", UnitPrice: decimal.NewFromFloat(12.50), Qty: 2},
		},
		DeliveryAddress: domain.DeliveryAddress{
			Street:  "1 Main St",
			City:    "Springfield",
			State:   "IL",
			ZipCode: "62701",
			Country: "US",
		},
	}
}

func TestCreateOrder_ComputesTotalsAndTriggersSaga(t *testing.T) {
	f := newCommandFixture()
	actor := domain.Actor{ID: "user-1", Role: domain.RoleCustomer}

	order, err := f.svc.CreateOrder(context.Background(), actor, createCmd())
	require.NoError(t, err)

	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, domain.SagaStatusNotStarted, order.SagaStatus)
	// Сумма считается на сервере из снапшотов цен, клиенту не доверяем.
	require.True(t, order.TotalAmount.Equal(decimal.NewFromFloat(25.00)), "items total: %s", order.TotalAmount)
	require.True(t, order.DeliveryFee.Equal(decimal.NewFromFloat(2.99)), "fee: %s", order.DeliveryFee)
	require.True(t, order.TaxAmount.Equal(decimal.NewFromFloat(2.00)), "tax: %s", order.TaxAmount)

	stored, err := f.orders.Get(order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Version)

	require.Equal(t, []string{order.ID}, f.trigger.starts)
}

func TestCreateOrder_CustomerCannotOrderForOthers(t *testing.T) {
	f := newCommandFixture()
	actor := domain.Actor{ID: "user-2", Role: domain.RoleCustomer}

	_, err := f.svc.CreateOrder(context.Background(), actor, createCmd())
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	require.Empty(t, f.trigger.starts)
}

func TestCreateOrder_RejectsEmptyItems(t *testing.T) {
	f := newCommandFixture()
	cmd := createCmd()
	cmd.Items = nil

	_, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, cmd)
	require.ErrorIs(t, err, domain.ErrItemsRequired)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newCommandFixture()
	order, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, createCmd())
	require.NoError(t, err)

	system := domain.Actor{ID: "saga", Role: domain.RoleSystem}

	updated, err := f.svc.UpdateOrderStatus(context.Background(), system, command.UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusConfirmed,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, updated.Status)

	// Повтор той же команды — идемпотентный no-op.
	again, err := f.svc.UpdateOrderStatus(context.Background(), system, command.UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusConfirmed,
	})
	require.NoError(t, err)
	require.Equal(t, updated.Version, again.Version)

	_, err = f.svc.UpdateOrderStatus(context.Background(), system, command.UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusDelivered,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateOrderStatus(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, command.UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusPreparing,
	})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestUpdateOrderStatus_DeliveredStampsActualDelivery(t *testing.T) {
	f := newCommandFixture()
	order, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, createCmd())
	require.NoError(t, err)

	system := domain.Actor{ID: "saga", Role: domain.RoleSystem}
	chain := []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusReadyForPickup,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	}
	var last domain.Order
	for _, status := range chain {
		last, err = f.svc.UpdateOrderStatus(context.Background(), system, command.UpdateStatusCommand{
			OrderID: order.ID,
			Status:  status,
		})
		require.NoError(t, err, "transition to %s", status)
	}

	require.NotNil(t, last.ActualDeliveryAt)
	require.WithinDuration(t, time.Now().UTC(), *last.ActualDeliveryAt, time.Minute)
}

func TestCancelOrder(t *testing.T) {
	f := newCommandFixture()
	order, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, createCmd())
	require.NoError(t, err)

	owner := domain.Actor{ID: "user-1", Role: domain.RoleCustomer}
	cancelled, err := f.svc.CancelOrder(context.Background(), owner, command.CancelOrderCommand{
		OrderID: order.ID,
		Reason:  "changed my mind",
	})
	require.NoError(t, err)
	require.True(t, cancelled.CancelRequested)
	require.Equal(t, "changed my mind", cancelled.CancelReason)
	require.Equal(t, []string{order.ID}, f.trigger.cancels)

	// Повторная отмена триггер не дублирует.
	_, err = f.svc.CancelOrder(context.Background(), owner, command.CancelOrderCommand{OrderID: order.ID, Reason: "again"})
	require.NoError(t, err)
	require.Len(t, f.trigger.cancels, 1)
}

func TestCancelOrder_TooLate(t *testing.T) {
	f := newCommandFixture()
	order, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, createCmd())
	require.NoError(t, err)

	stored, err := f.orders.Get(order.ID)
	require.NoError(t, err)
	stored.Status = domain.OrderStatusOutForDelivery
	require.NoError(t, f.orders.Save(stored))

	_, err = f.svc.CancelOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, command.CancelOrderCommand{
		OrderID: order.ID,
		Reason:  "too late",
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Empty(t, f.trigger.cancels)
}

func TestProcessRefund(t *testing.T) {
	f := newCommandFixture()
	order, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, createCmd())
	require.NoError(t, err)

	// Сага уже списала оплату, заказ отменён.
	_, err = f.sagalog.Record(domain.SagaTransaction{
		OrderID: order.ID,
		Step:    domain.SagaStepProcessPayment,
		Status:  domain.StepStatusCompleted,
		Response: domain.NewPaymentPayload(domain.PaymentPayload{
			PaymentID: "pay-1",
			Amount:    order.GrandTotal(),
			Status:    "captured",
		}),
	})
	require.NoError(t, err)

	stored, err := f.orders.Get(order.ID)
	require.NoError(t, err)
	stored.Status = domain.OrderStatusCancelled
	require.NoError(t, f.orders.Save(stored))

	admin := domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}
	outcome, err := f.svc.ProcessRefund(context.Background(), admin, command.RefundCommand{
		OrderID: order.ID,
		Reason:  "customer complaint",
	})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyRefunded)
	require.NotEmpty(t, outcome.RefundID)
	require.Equal(t, 1, f.payments.RefundCalls)

	refunded, err := f.orders.Get(order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, refunded.Status)

	// Повторный возврат не дёргает провайдера второй раз.
	repeat, err := f.svc.ProcessRefund(context.Background(), admin, command.RefundCommand{
		OrderID: order.ID,
		Reason:  "duplicate click",
	})
	require.NoError(t, err)
	require.True(t, repeat.AlreadyRefunded)
	require.Equal(t, outcome.RefundID, repeat.RefundID)
	require.Equal(t, 1, f.payments.RefundCalls)
}

func TestProcessRefund_RequiresAdmin(t *testing.T) {
	f := newCommandFixture()
	_, err := f.svc.ProcessRefund(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, command.RefundCommand{
		OrderID: "order-1",
	})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestProcessRefund_NoCapturedPayment(t *testing.T) {
	f := newCommandFixture()
	order, err := f.svc.CreateOrder(context.Background(), domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, createCmd())
	require.NoError(t, err)

	stored, err := f.orders.Get(order.ID)
	require.NoError(t, err)
	stored.Status = domain.OrderStatusCancelled
	require.NoError(t, f.orders.Save(stored))

	_, err = f.svc.ProcessRefund(context.Background(), domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}, command.RefundCommand{
		OrderID: order.ID,
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Zero(t, f.payments.RefundCalls)
}
