package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:           "order-1",
		UserID:       "user-1",
		RestaurantID: "rest-1",
		Status:       domain.OrderStatusPending,
		SagaStatus:   domain.SagaStatusNotStarted,
		Items: []domain.OrderItem{
			{
				ID:            "item-1",
				CatalogItemID: "dish-1",
				Name:          "Margherita",
				UnitPrice:     decimal.NewFromFloat(9.50),
				Qty:           2,
				CreatedAt:     now,
			},
		},
		TotalAmount: decimal.NewFromFloat(19.00),
		DeliveryFee: decimal.NewFromFloat(2.99),
		TaxAmount:   decimal.NewFromFloat(1.52),
		DeliveryAddress: domain.DeliveryAddress{
			Street:  "1 Main St",
			City:    "Springfield",
			State:   "IL",
			ZipCode: "62701",
			Country: "US",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no user",
			mut: func(o *domain.Order) {
				o.UserID = ""
			},
			want: domain.ErrUserRequired,
		},
		{
			name: "no restaurant",
			mut: func(o *domain.Order) {
				o.RestaurantID = ""
			},
			want: domain.ErrRestaurantRequired,
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
				o.TotalAmount = decimal.Zero
			},
			want: domain.ErrItemsRequired,
		},
		{
			name: "no address",
			mut: func(o *domain.Order) {
				o.DeliveryAddress = domain.DeliveryAddress{}
			},
			want: domain.ErrAddressRequired,
		},
		{
			name: "zero qty",
			mut: func(o *domain.Order) {
				o.Items[0].Qty = 0
				o.TotalAmount = decimal.Zero
			},
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "negative price",
			mut: func(o *domain.Order) {
				o.Items[0].UnitPrice = decimal.NewFromInt(-1)
				o.TotalAmount = decimal.NewFromInt(-2)
			},
			want: domain.ErrItemPriceInvalid,
		},
		{
			name: "amount mismatch",
			mut: func(o *domain.Order) {
				o.TotalAmount = decimal.NewFromInt(999)
			},
			want: domain.ErrAmountMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			found := false
			for _, err := range errs {
				if err == tc.want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusPreparing, true},
		{domain.OrderStatusPreparing, domain.OrderStatusReadyForPickup, true},
		{domain.OrderStatusReadyForPickup, domain.OrderStatusOutForDelivery, true},
		{domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, true},
		{domain.OrderStatusCancelled, domain.OrderStatusRefunded, true},
		{domain.OrderStatusFailed, domain.OrderStatusRefunded, true},

		// Перескоки и движение назад запрещены.
		{domain.OrderStatusPending, domain.OrderStatusPreparing, false},
		{domain.OrderStatusConfirmed, domain.OrderStatusPending, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled, false},
		{domain.OrderStatusRefunded, domain.OrderStatusPending, false},
	}

	for _, tc := range cases {
		if got := domain.CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestIsTerminalStatus(t *testing.T) {
	terminal := []domain.OrderStatus{
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
		domain.OrderStatusFailed,
	}
	for _, status := range terminal {
		if !domain.IsTerminalStatus(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
	}

	active := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusReadyForPickup,
		domain.OrderStatusOutForDelivery,
	}
	for _, status := range active {
		if domain.IsTerminalStatus(status) {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestOrderTotals(t *testing.T) {
	order := makeOrder()

	if got := order.ItemsTotal(); !got.Equal(decimal.NewFromFloat(19.00)) {
		t.Fatalf("expected items total 19.00, got %s", got)
	}
	if got := order.GrandTotal(); !got.Equal(decimal.NewFromFloat(23.51)) {
		t.Fatalf("expected grand total 23.51, got %s", got)
	}
}

func TestCanBeCancelled(t *testing.T) {
	order := makeOrder()
	if !order.CanBeCancelled() {
		t.Fatal("pending order must be cancellable")
	}

	order.Status = domain.OrderStatusPreparing
	if !order.CanBeCancelled() {
		t.Fatal("preparing order must be cancellable")
	}

	order.Status = domain.OrderStatusOutForDelivery
	if order.CanBeCancelled() {
		t.Fatal("order out for delivery must not be cancellable")
	}

	order.Status = domain.OrderStatusReadyForPickup
	order.SagaStatus = domain.SagaStatusCompleted
	if order.CanBeCancelled() {
		t.Fatal("order with completed saga must not be cancellable")
	}
}
