package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

func TestActorCanViewOrder(t *testing.T) {
	order := makeOrder()

	cases := []struct {
		name  string
		actor domain.Actor
		want  bool
	}{
		{"owner", domain.Actor{ID: "user-1", Role: domain.RoleCustomer}, true},
		{"other customer", domain.Actor{ID: "user-2", Role: domain.RoleCustomer}, false},
		{"own restaurant", domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant}, true},
		{"other restaurant", domain.Actor{ID: "rest-2", Role: domain.RoleRestaurant}, false},
		{"admin", domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}, true},
		{"system", domain.Actor{ID: "sys", Role: domain.RoleSystem}, true},
		{"unknown role", domain.Actor{ID: "x", Role: "auditor"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.actor.CanViewOrder(order); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestActorCanUpdateStatus(t *testing.T) {
	order := makeOrder()

	if (domain.Actor{ID: "user-1", Role: domain.RoleCustomer}).CanUpdateStatus(order) {
		t.Fatal("customer must not update status directly")
	}
	if !(domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant}).CanUpdateStatus(order) {
		t.Fatal("restaurant must update status of its own order")
	}
	if (domain.Actor{ID: "rest-2", Role: domain.RoleRestaurant}).CanUpdateStatus(order) {
		t.Fatal("foreign restaurant must not update status")
	}
	if !(domain.Actor{ID: "sys", Role: domain.RoleSystem}).CanUpdateStatus(order) {
		t.Fatal("system must update status")
	}

	// Курьеру статус доверяется только после назначения доставки.
	driver := domain.Actor{ID: "drv-1", Role: domain.RoleDriver}
	if driver.CanUpdateStatus(order) {
		t.Fatal("driver must not update pending order")
	}
	order.Status = domain.OrderStatusReadyForPickup
	if !driver.CanUpdateStatus(order) {
		t.Fatal("driver must update order ready for pickup")
	}
}

func TestActorCanCancelOrder(t *testing.T) {
	order := makeOrder()

	if !(domain.Actor{ID: "user-1", Role: domain.RoleCustomer}).CanCancelOrder(order) {
		t.Fatal("owner must cancel own order")
	}
	if (domain.Actor{ID: "user-2", Role: domain.RoleCustomer}).CanCancelOrder(order) {
		t.Fatal("foreign customer must not cancel order")
	}
	if (domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant}).CanCancelOrder(order) {
		t.Fatal("restaurant must not cancel customer order")
	}
	if !(domain.Actor{ID: "adm-1", Role: domain.RoleAdmin}).CanCancelOrder(order) {
		t.Fatal("admin must cancel any order")
	}
}
