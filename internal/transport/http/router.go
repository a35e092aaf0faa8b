package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// NewRouter собирает роутер REST API заказов.
// Health и metrics живут на отдельном admin-порту, не здесь.
func NewRouter(handler *Handler, idempotency domain.IdempotencyRepository, logger *log.Entry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(WithActor)

		r.Route("/orders", func(r chi.Router) {
			r.With(WithIdempotency(idempotency, logger)).Post("/", handler.CreateOrder)
			r.Get("/", handler.ListOrders)
			r.Get("/{id}", handler.GetOrder)
			r.Patch("/{id}/status", handler.UpdateStatus)
			r.With(WithIdempotency(idempotency, logger)).Post("/{id}/cancel", handler.CancelOrder)
			r.With(WithIdempotency(idempotency, logger)).Post("/{id}/refund", handler.Refund)
			r.Get("/{id}/events", handler.OrderEvents)
			r.Get("/{id}/tracking", handler.TrackOrder)
		})

		r.Get("/analytics/orders", handler.Analytics)
	})

	return r
}
