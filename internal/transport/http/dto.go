package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/command"
	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/query"
)

// CreateOrderRequest — тело POST /orders.
type CreateOrderRequest struct {
	UserID              string                 `json:"user_id"`
	RestaurantID        string                 `json:"restaurant_id"`
	Items               []CreateOrderItem      `json:"items"`
	DeliveryAddress     DeliveryAddressPayload `json:"delivery_address"`
	SpecialInstructions string                 `json:"special_instructions,omitempty"`
}

// CreateOrderItem — позиция заказа в запросе.
type CreateOrderItem struct {
	CatalogItemID string          `json:"catalog_item_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Qty           int32           `json:"qty"`
	Instructions  string          `json:"instructions,omitempty"`
}

// DeliveryAddressPayload — адрес доставки в запросе и ответе.
type DeliveryAddressPayload struct {
	Street    string   `json:"street"`
	City      string   `json:"city"`
	State     string   `json:"state,omitempty"`
	ZipCode   string   `json:"zip_code,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// UpdateStatusRequest — тело PATCH /orders/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// CancelOrderRequest — тело POST /orders/{id}/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RefundRequest — тело POST /orders/{id}/refund.
type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

// OrderItemResponse — позиция заказа в ответе.
type OrderItemResponse struct {
	ID            string          `json:"id"`
	CatalogItemID string          `json:"catalog_item_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Qty           int32           `json:"qty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Instructions  string          `json:"instructions,omitempty"`
}

// OrderResponse — заказ в ответе API.
type OrderResponse struct {
	ID                  string                 `json:"id"`
	UserID              string                 `json:"user_id"`
	RestaurantID        string                 `json:"restaurant_id"`
	Status              string                 `json:"status"`
	SagaStatus          string                 `json:"saga_status"`
	Items               []OrderItemResponse    `json:"items"`
	TotalAmount         decimal.Decimal        `json:"total_amount"`
	DeliveryFee         decimal.Decimal        `json:"delivery_fee"`
	TaxAmount           decimal.Decimal        `json:"tax_amount"`
	GrandTotal          decimal.Decimal        `json:"grand_total"`
	DeliveryAddress     DeliveryAddressPayload `json:"delivery_address"`
	SpecialInstructions string                 `json:"special_instructions,omitempty"`
	CancelReason        string                 `json:"cancel_reason,omitempty"`
	EstimatedDeliveryAt *time.Time             `json:"estimated_delivery_at,omitempty"`
	ActualDeliveryAt    *time.Time             `json:"actual_delivery_at,omitempty"`
	Version             int64                  `json:"version"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// SagaStepResponse — запись saga-лога в деталях заказа.
type SagaStepResponse struct {
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RetryCount int32     `json:"retry_count,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OrderEventResponse — запись журнала событий заказа.
type OrderEventResponse struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Occurred    time.Time         `json:"occurred"`
}

// OrderDetailsResponse — заказ с saga-логом и журналом событий.
type OrderDetailsResponse struct {
	Order   OrderResponse        `json:"order"`
	SagaLog []SagaStepResponse   `json:"saga_log"`
	Events  []OrderEventResponse `json:"events"`
}

// OrderEventListResponse — журнал событий заказа.
type OrderEventListResponse struct {
	OrderID string               `json:"order_id"`
	Events  []OrderEventResponse `json:"events"`
}

// OrderListResponse — страница списка заказов.
type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// TrackingStageResponse — веха трекинга.
type TrackingStageResponse struct {
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Reached bool       `json:"reached"`
	At      *time.Time `json:"at,omitempty"`
}

// TrackingResponse — трекинг заказа для клиента.
type TrackingResponse struct {
	OrderID             string                  `json:"order_id"`
	Status              string                  `json:"status"`
	SagaStatus          string                  `json:"saga_status"`
	Stages              []TrackingStageResponse `json:"stages"`
	CurrentStage        int                     `json:"current_stage"`
	EstimatedDeliveryAt *time.Time              `json:"estimated_delivery_at,omitempty"`
	ActualDeliveryAt    *time.Time              `json:"actual_delivery_at,omitempty"`
	CancelReason        string                  `json:"cancel_reason,omitempty"`
}

// RefundResponse — результат POST /orders/{id}/refund.
type RefundResponse struct {
	OrderID         string          `json:"order_id"`
	RefundID        string          `json:"refund_id"`
	Amount          decimal.Decimal `json:"amount"`
	AlreadyRefunded bool            `json:"already_refunded"`
}

// AnalyticsResponse — отчёт GET /analytics/orders.
type AnalyticsResponse struct {
	TotalOrders       int                  `json:"total_orders"`
	DeliveredOrders   int                  `json:"delivered_orders"`
	CancelledOrders   int                  `json:"cancelled_orders"`
	TotalRevenue      decimal.Decimal      `json:"total_revenue"`
	AverageOrderValue decimal.Decimal      `json:"average_order_value"`
	StatusCounts      map[string]int       `json:"status_counts"`
	Daily             []DailyStatResponse  `json:"daily"`
}

// DailyStatResponse — агрегаты за день в отчёте.
type DailyStatResponse struct {
	Day     string          `json:"day"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ErrorResponse — единый формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toAddressPayload(a domain.DeliveryAddress) DeliveryAddressPayload {
	return DeliveryAddressPayload{
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
	}
}

func toDomainAddress(a DeliveryAddressPayload) domain.DeliveryAddress {
	return domain.DeliveryAddress{
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
	}
}

func toOrderResponse(order domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ID:            item.ID,
			CatalogItemID: item.CatalogItemID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Qty:           item.Qty,
			Subtotal:      item.Subtotal(),
			Instructions:  item.Instructions,
		})
	}

	return OrderResponse{
		ID:                  order.ID,
		UserID:              order.UserID,
		RestaurantID:        order.RestaurantID,
		Status:              string(order.Status),
		SagaStatus:          string(order.SagaStatus),
		Items:               items,
		TotalAmount:         order.TotalAmount,
		DeliveryFee:         order.DeliveryFee,
		TaxAmount:           order.TaxAmount,
		GrandTotal:          order.GrandTotal(),
		DeliveryAddress:     toAddressPayload(order.DeliveryAddress),
		SpecialInstructions: order.SpecialInstructions,
		CancelReason:        order.CancelReason,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		ActualDeliveryAt:    order.ActualDeliveryAt,
		Version:             order.Version,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
}

func toOrderDetailsResponse(details query.OrderDetails) OrderDetailsResponse {
	sagaLog := make([]SagaStepResponse, 0, len(details.SagaLog))
	for _, row := range details.SagaLog {
		sagaLog = append(sagaLog, SagaStepResponse{
			Step:       string(row.Step),
			Status:     string(row.Status),
			Error:      row.Error,
			RetryCount: row.RetryCount,
			UpdatedAt:  row.UpdatedAt,
		})
	}

	events := make([]OrderEventResponse, 0, len(details.Events))
	for _, event := range details.Events {
		events = append(events, OrderEventResponse{
			Type:        string(event.Type),
			Description: event.Description,
			Metadata:    event.Metadata,
			Occurred:    event.Occurred,
		})
	}

	return OrderDetailsResponse{
		Order:   toOrderResponse(details.Order),
		SagaLog: sagaLog,
		Events:  events,
	}
}

func toTrackingResponse(tracking query.Tracking) TrackingResponse {
	stages := make([]TrackingStageResponse, 0, len(tracking.Stages))
	for _, stage := range tracking.Stages {
		stages = append(stages, TrackingStageResponse{
			Name:    stage.Name,
			Label:   stage.Label,
			Reached: stage.Reached,
			At:      stage.At,
		})
	}

	return TrackingResponse{
		OrderID:             tracking.OrderID,
		Status:              string(tracking.Status),
		SagaStatus:          string(tracking.SagaStatus),
		Stages:              stages,
		CurrentStage:        tracking.CurrentStage,
		EstimatedDeliveryAt: tracking.EstimatedDeliveryAt,
		ActualDeliveryAt:    tracking.ActualDeliveryAt,
		CancelReason:        tracking.CancelReason,
	}
}

func toAnalyticsResponse(report query.Analytics) AnalyticsResponse {
	statusCounts := make(map[string]int, len(report.StatusCounts))
	for status, count := range report.StatusCounts {
		statusCounts[string(status)] = count
	}

	daily := make([]DailyStatResponse, 0, len(report.Daily))
	for _, stat := range report.Daily {
		daily = append(daily, DailyStatResponse{
			Day:     stat.Day,
			Orders:  stat.Orders,
			Revenue: stat.Revenue,
		})
	}

	return AnalyticsResponse{
		TotalOrders:       report.TotalOrders,
		DeliveredOrders:   report.DeliveredOrders,
		CancelledOrders:   report.CancelledOrders,
		TotalRevenue:      report.TotalRevenue,
		AverageOrderValue: report.AverageOrderValue,
		StatusCounts:      statusCounts,
		Daily:             daily,
	}
}

func toCreateCommand(req CreateOrderRequest) command.CreateOrderCommand {
	items := make([]command.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, command.CreateOrderItem{
			CatalogItemID: item.CatalogItemID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Qty:           item.Qty,
			Instructions:  item.Instructions,
		})
	}

	return command.CreateOrderCommand{
		UserID:              req.UserID,
		RestaurantID:        req.RestaurantID,
		Items:               items,
		DeliveryAddress:     toDomainAddress(req.DeliveryAddress),
		SpecialInstructions: req.SpecialInstructions,
	}
}
