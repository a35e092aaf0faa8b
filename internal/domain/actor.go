package domain

// Role описывает роль актора, выполняющего команду или запрос.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleDriver     Role = "driver"
	RoleAdmin      Role = "admin"
	// RoleSystem используется внутренними подписчиками на события брокера.
	RoleSystem Role = "system"
)

// Actor — аутентифицированный инициатор операции. Проверку токена делает
// гейтвей, сюда приходит уже извлечённая личность.
type Actor struct {
	ID   string
	Role Role
}

// CanUpdateStatus проверяет, может ли актор двигать статус этого заказа:
// ресторан заказа, назначенный курьер, администратор или система.
func (a Actor) CanUpdateStatus(order Order) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleRestaurant:
		return a.ID == order.RestaurantID
	case RoleDriver:
		// Идентификатор курьера сервис не хранит, назначение делает
		// delivery-сервис: курьеру доверяем на этапах после назначения.
		return order.Status == OrderStatusReadyForPickup || order.Status == OrderStatusOutForDelivery
	default:
		return false
	}
}

// CanViewOrder проверяет право на чтение деталей заказа.
func (a Actor) CanViewOrder(order Order) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleCustomer:
		return a.ID == order.UserID
	case RoleRestaurant:
		return a.ID == order.RestaurantID
	case RoleDriver:
		return true
	default:
		return false
	}
}

// CanCancelOrder проверяет право на отмену: владелец заказа или администратор.
func (a Actor) CanCancelOrder(order Order) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleCustomer:
		return a.ID == order.UserID
	default:
		return false
	}
}
