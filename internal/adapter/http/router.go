package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/agentledger/internal/middleware"
)

// RouterConfig assembles the full middleware chain around the API routes.
// Nil optional fields leave that layer out.
type RouterConfig struct {
	Handlers       *Handlers
	CORSOrigin     string
	RequestTimeout time.Duration

	AdminOnly func(http.Handler) http.Handler

	// Optional layers.
	RateLimiter *middleware.RateLimiter
	Idempotency func(http.Handler) http.Handler
	Tracing     func(http.Handler) http.Handler
	WebSocket   http.Handler // mounted at /ws
}

// NewRouter builds the chi router serving the ledger API.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	if cfg.Tracing != nil {
		r.Use(cfg.Tracing)
	}
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Caller)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigin))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handler)
	}

	// The WebSocket route sits outside the request timeout.
	if cfg.WebSocket != nil {
		r.Get("/ws", cfg.WebSocket.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
		}
		if cfg.Idempotency != nil {
			r.Use(cfg.Idempotency)
		}
		adminOnly := cfg.AdminOnly
		if adminOnly == nil {
			adminOnly = middleware.AdminKey("", "")
		}
		MountRoutes(r, cfg.Handlers, adminOnly)
	})

	return r
}
