// Package routing assembles the HTTP surface of the chat relay: the global
// middleware stack, the chat route with its admission controls, and the
// health and metrics endpoints.
package routing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/errors"
	"github.com/teilomillet/assure/server/handlers"
	"github.com/teilomillet/assure/server/metrics"
	"github.com/teilomillet/assure/server/middleware"
	"github.com/teilomillet/assure/server/validation"
	"go.uber.org/zap"
)

// Router handles HTTP routing.
// It provides:
// - The global middleware stack (request id, timing, logging, recovery, metrics, CORS)
// - POST /chat behind the optional rate limiter and admission queue
// - GET /, GET /health and the metrics endpoint
type Router struct {
	router  chi.Router
	limiter *middleware.RateLimiter     // nil when rate limiting is disabled
	queue   *middleware.QueueMiddleware // nil when the queue is disabled
	logger  *zap.Logger
}

// Dependencies are the handlers and shared components the router mounts.
type Dependencies struct {
	Chat    http.Handler
	Health  handlers.HealthReporter
	Metrics *metrics.Metrics // optional
}

// NewRouter creates a router for cfg.
func NewRouter(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Router {
	r := &Router{
		router: chi.NewRouter(),
		logger: logger,
	}
	if cfg.RateLimit.Enabled {
		r.limiter = middleware.NewRateLimiter(cfg.RateLimit, logger, deps.Metrics)
	}
	if cfg.Queue.Enabled {
		r.queue = middleware.NewQueueMiddleware(cfg.Queue, logger, deps.Metrics)
	}

	r.router.Use(middleware.RequestID)
	if cfg.Server.TrustProxyHeaders {
		r.router.Use(chimiddleware.RealIP)
	}
	r.router.Use(middleware.RequestTimer)
	r.router.Use(middleware.Logging(logger))
	r.router.Use(errors.ErrorHandler(logger))
	if deps.Metrics != nil {
		r.router.Use(middleware.PrometheusMetrics(deps.Metrics))
	}
	r.router.Use(middleware.CORS(cfg.CORS))

	r.router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errors.ErrorWithType(w, "Not found", errors.NotFoundError, http.StatusNotFound)
	})
	r.router.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errors.ErrorWithType(w, "Method not allowed", errors.ValidationError, http.StatusMethodNotAllowed)
	})

	r.setupRoutes(cfg, deps)
	return r
}

func (r *Router) setupRoutes(cfg *config.Config, deps Dependencies) {
	r.router.Get("/", handlers.Root)
	if deps.Health != nil {
		r.router.Get("/health", handlers.Health(deps.Health))
	}

	r.router.Group(func(chat chi.Router) {
		chat.Use(middleware.Deadline(middleware.WriteBudget(cfg.Server.WriteTimeout)))
		if r.limiter != nil {
			chat.Use(r.limiter.Handler)
		}
		if r.queue != nil {
			chat.Use(r.queue.Handler)
		}
		chat.Use(validation.NewChatFormValidator(cfg.Uploads, r.logger).Middleware)
		chat.Method(http.MethodPost, "/chat", deps.Chat)
	})

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		RegisterMetricsRoutes(r.router, cfg.Metrics.Path, deps.Metrics)
	}
}

// Queue returns the admission queue, or nil when it is disabled.
func (r *Router) Queue() *middleware.QueueMiddleware {
	return r.queue
}

// ServeHTTP implements the http.Handler interface.
// Delegates request handling to the underlying Chi router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
