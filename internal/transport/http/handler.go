package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/command"
	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/query"
)

// Handler обслуживает REST API заказов: команды уходят в command.Service,
// чтение — в query.Service.
type Handler struct {
	commands *command.Service
	queries  *query.Service
	logger   *log.Entry
}

// NewHandler создаёт HTTP-обработчик заказов.
func NewHandler(commands *command.Service, queries *query.Service, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &Handler{
		commands: commands,
		queries:  queries,
		logger:   logger,
	}
}

// CreateOrder — POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	actor := actorFrom(r.Context())
	if req.UserID == "" && actor.Role == domain.RoleCustomer {
		req.UserID = actor.ID
	}

	order, err := h.commands.CreateOrder(r.Context(), actor, toCreateCommand(req))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder — GET /api/v1/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	details, err := h.queries.GetOrder(r.Context(), actorFrom(r.Context()), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailsResponse(details))
}

// ListOrders — GET /api/v1/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	page, err := h.queries.ListOrders(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	orders := make([]OrderResponse, 0, len(page.Orders))
	for _, order := range page.Orders {
		orders = append(orders, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, OrderListResponse{
		Orders: orders,
		Total:  page.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	})
}

// UpdateStatus — PATCH /api/v1/orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}

	order, err := h.commands.UpdateOrderStatus(r.Context(), actorFrom(r.Context()), command.UpdateStatusCommand{
		OrderID: chi.URLParam(r, "id"),
		Status:  domain.OrderStatus(req.Status),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// CancelOrder — POST /api/v1/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	order, err := h.commands.CancelOrder(r.Context(), actorFrom(r.Context()), command.CancelOrderCommand{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toOrderResponse(order))
}

// Refund — POST /api/v1/orders/{id}/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "refund requested"
	}

	orderID := chi.URLParam(r, "id")
	outcome, err := h.commands.ProcessRefund(r.Context(), actorFrom(r.Context()), command.RefundCommand{
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefundResponse{
		OrderID:         orderID,
		RefundID:        outcome.RefundID,
		Amount:          outcome.Amount,
		AlreadyRefunded: outcome.AlreadyRefunded,
	})
}

// OrderEvents — GET /api/v1/orders/{id}/events.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	events, err := h.queries.OrderEvents(r.Context(), actorFrom(r.Context()), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := make([]OrderEventResponse, 0, len(events))
	for _, event := range events {
		payload = append(payload, OrderEventResponse{
			Type:        string(event.Type),
			Description: event.Description,
			Metadata:    event.Metadata,
			Occurred:    event.Occurred,
		})
	}
	writeJSON(w, http.StatusOK, OrderEventListResponse{OrderID: orderID, Events: payload})
}

// TrackOrder — GET /api/v1/orders/{id}/tracking.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	tracking, err := h.queries.TrackOrder(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackingResponse(tracking))
}

// Analytics — GET /api/v1/analytics/orders.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	q := query.AnalyticsQuery{
		RestaurantID: r.URL.Query().Get("restaurant_id"),
	}
	var err error
	if q.From, err = parseTimeParam(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if q.To, err = parseTimeParam(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	report, err := h.queries.GetAnalytics(r.Context(), actorFrom(r.Context()), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsResponse(report))
}

func parseListFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		UserID:       q.Get("user_id"),
		RestaurantID: q.Get("restaurant_id"),
	}

	if statuses := q.Get("status"); statuses != "" {
		for _, status := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, domain.OrderStatus(strings.TrimSpace(status)))
		}
	}

	var err error
	if filter.CreatedFrom, err = parseTimeParam(r, "from"); err != nil {
		return domain.OrderFilter{}, err
	}
	if filter.CreatedTo, err = parseTimeParam(r, "to"); err != nil {
		return domain.OrderFilter{}, err
	}

	if offset := q.Get("offset"); offset != "" {
		if filter.Offset, err = strconv.Atoi(offset); err != nil {
			return domain.OrderFilter{}, err
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if filter.Limit, err = strconv.Atoi(limit); err != nil {
			return domain.OrderFilter{}, err
		}
	}
	return filter, nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
