package http

import (
	"net/http"

	"github.com/atinyakov/keeperbridge/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Channel paths.
const (
	PathMessage = "/api/message"
	PathEvents  = "/api/events"
	PathMetrics = "/metrics"
	PathHealth  = "/healthz"
)

// NewRouter constructs and returns an HTTP handler that serves the
// privileged channel.
//
// Parameters:
//
//	messages - handler for envelope requests
//	events   - session change stream; nil disables the route
//	metrics  - prometheus handler; nil disables the route
//	allowed  - certificate Common Names accepted on the channel
//	logger   - structured logger for request logging middleware
//
// Routes:
//
//	POST /api/message → messages (JSON only)
//	GET  /api/events  → events (websocket)
//	GET  /metrics     → metrics
//	GET  /healthz     → 200, no certificate required
//
// Middleware chain (applied in order):
//  1. RequestID and Recoverer
//  2. WithRequestLogging(logger)
//  3. CertAuth(allowed)
func NewRouter(
	messages *MessageHandler,
	events *EventsHandler,
	metrics http.Handler,
	allowed []string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.CertAuth(allowed, PathHealth))

	r.Get(PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.With(chiMiddleware.AllowContentType("application/json")).
		Post(PathMessage, messages.ServeHTTP)

	if events != nil {
		r.Get(PathEvents, events.ServeHTTP)
	}
	if metrics != nil {
		r.Method(http.MethodGet, PathMetrics, metrics)
	}

	return r
}
