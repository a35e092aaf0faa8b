package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodorder/internal/command"
	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/query"
	"github.com/vladislavdragonenkov/foodorder/internal/service/payment"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/memory"
)

// noopTrigger — заглушка триггера саги для HTTP-тестов.
type noopTrigger struct {
	starts  int
	cancels int
}

func (n *noopTrigger) StartSaga(string)          { n.starts++ }
func (n *noopTrigger) CancelSaga(string, string) { n.cancels++ }

type apiFixture struct {
	router  http.Handler
	trigger *noopTrigger
	orders  domain.OrderRepository
}

func newAPIFixture() *apiFixture {
	logger := log.New().WithField("component", "http-test")
	events := memory.NewEventRepository()
	orders := memory.NewOrderRepository(events)
	sagalog := memory.NewSagaLogRepository()
	outbox := memory.NewOutboxRepository()
	trigger := &noopTrigger{}

	commands := command.NewService(orders, sagalog, outbox, payment.NewMockService(), trigger, command.DefaultConfig(), logger)
	queries := query.NewService(orders, sagalog, events, logger)
	handler := NewHandler(commands, queries, logger)

	return &apiFixture{
		router:  NewRouter(handler, memory.NewIdempotencyRepository(), logger),
		trigger: trigger,
		orders:  orders,
	}
}

func (f *apiFixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func customerHeaders(id string) map[string]string {
	return map[string]string{
		HeaderUserID:   id,
		HeaderUserRole: string(domain.RoleCustomer),
	}
}

const createOrderBody = `{
	"restaurant_id": "rest-1",
	"items": [{"catalog_item_id": "dish-1", "name": "Pad Thai", "unit_price": "12.50", "qty": 2}],
	"delivery_address": {"street": "1 Main St", "city": "Springfield", "state": "IL", "zip_code": "62701", "country": "US"}
}`

func TestAPI_RequiresIdentityHeaders(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodGet, "/api/v1/orders", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/orders", "", map[string]string{
		HeaderUserID:   "user-1",
		HeaderUserRole: "superhero",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_CreateOrder(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", createOrderBody, customerHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	// user_id подставляется из заголовка гейтвея.
	require.Equal(t, "user-1", resp.UserID)
	require.Equal(t, "pending", resp.Status)
	require.Equal(t, "29.99", resp.GrandTotal.StringFixed(2))
	require.Equal(t, 1, f.trigger.starts)
}

func TestAPI_CreateOrder_InvalidJSON(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", `{"restaurant_id":`, customerHeaders("user-1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "invalid_json", resp.Error)
}

func TestAPI_GetOrder(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", createOrderBody, customerHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodGet, "/api/v1/orders/"+created.ID, "", customerHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var details OrderDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.Equal(t, created.ID, details.Order.ID)
	require.NotEmpty(t, details.Events)

	// Чужой клиент заказ не видит.
	rec = f.do(http.MethodGet, "/api/v1/orders/"+created.ID, "", customerHeaders("user-2"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/orders/missing", "", customerHeaders("user-1"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelOrder(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", createOrderBody, customerHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodPost, "/api/v1/orders/"+created.ID+"/cancel", `{"reason":"changed my mind"}`, customerHeaders("user-1"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, 1, f.trigger.cancels)

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "changed my mind", resp.CancelReason)
}

func TestAPI_UpdateStatus(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", createOrderBody, customerHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	headers := map[string]string{
		HeaderUserID:   "saga",
		HeaderUserRole: string(domain.RoleSystem),
	}
	rec = f.do(http.MethodPatch, "/api/v1/orders/"+created.ID+"/status", `{"status":"confirmed"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Перескок через статус отклоняется.
	rec = f.do(http.MethodPatch, "/api/v1/orders/"+created.ID+"/status", `{"status":"delivered"}`, headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPatch, "/api/v1/orders/"+created.ID+"/status", `{}`, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_OrderEvents(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", createOrderBody, customerHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodGet, "/api/v1/orders/"+created.ID+"/events", "", customerHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var events OrderEventListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Equal(t, created.ID, events.OrderID)
	require.NotEmpty(t, events.Events)
	require.Equal(t, string(domain.OrderEventCreated), events.Events[0].Type)

	// Чужой клиент журнал не видит.
	rec = f.do(http.MethodGet, "/api/v1/orders/"+created.ID+"/events", "", customerHeaders("user-2"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_Tracking(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/orders", createOrderBody, customerHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodGet, "/api/v1/orders/"+created.ID+"/tracking", "", customerHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var tracking TrackingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tracking))
	require.Len(t, tracking.Stages, 6)
	require.Equal(t, 0, tracking.CurrentStage)
	require.True(t, tracking.Stages[0].Reached)
}

func TestAPI_AnalyticsForbiddenForCustomer(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodGet, "/api/v1/analytics/orders", "", customerHeaders("user-1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
