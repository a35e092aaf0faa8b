package http

import (
	"context"
	"net/http"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// Заголовки, которые проставляет гейтвей после проверки токена.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor извлекает актора из заголовков гейтвея и кладёт его в контекст.
// Запросы без личности отклоняются: анонимного доступа к заказам нет.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.Actor{
			ID:   r.Header.Get(HeaderUserID),
			Role: domain.Role(r.Header.Get(HeaderUserRole)),
		}
		if actor.ID == "" || actor.Role == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "identity headers are required")
			return
		}
		switch actor.Role {
		case domain.RoleCustomer, domain.RoleRestaurant, domain.RoleDriver, domain.RoleAdmin, domain.RoleSystem:
		default:
			writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown role")
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom достаёт актора из контекста запроса.
func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorContextKey).(domain.Actor)
	return actor
}
