// Package httpapi exposes the presence hub to the rest of the system: the
// websocket upgrade path plus the small request/response surface the web
// layer calls directly.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campuslink/presence/internal/logging"
	"github.com/campuslink/presence/pkg/domain"
)

// NewRouter builds the HTTP router around the hub and the websocket upgrade
// handler.
func NewRouter(hub domain.Hub, ws http.Handler, logger *logging.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	h := &handlers{hub: hub, logger: logger}

	r.Get("/ws", ws.ServeHTTP)
	r.Get("/healthz", h.health)
	r.Route("/presence", func(r chi.Router) {
		r.Post("/offline", h.offline)
		r.Get("/stats", h.stats)
	})

	return r
}

// requestLogger makes a request-scoped logger, tagged with the request id,
// available through the context.
func requestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.WithFields(map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
			})
			next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), reqLogger)))
		})
	}
}
