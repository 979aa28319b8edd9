package api

import (
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Config wires the handlers.
type Config struct {
	Engine *goGuard.Engine
	// Identity verifies login assertions. /auth/login is not mounted when nil.
	Identity *identity.Verifier
	Logger   zerolog.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
	// TrustProxy takes the client IP from X-Forwarded-For and X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers; otherwise
	// clients pick their own rate limit keys.
	TrustProxy bool
}

// Handler holds the endpoint dependencies.
type Handler struct {
	engine   *goGuard.Engine
	identity *identity.Verifier
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewRouter returns the full route tree.
//
//	Docs: docs/http.md
func NewRouter(cfg Config) chi.Router {
	h := &Handler{
		engine:   cfg.Engine,
		identity: cfg.Identity,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.WithRequestContext)

		// Limiters always run ahead of CSRF and Guard.
		csrf := middleware.CSRF(h.engine)
		limitIP := func(class goGuard.RouteClass) func(http.Handler) http.Handler {
			return middleware.RateLimit(h.engine, class, middleware.KeyByIP)
		}

		if h.identity != nil {
			r.With(limitIP(goGuard.RouteLogin), csrf).Post("/login", h.login)
		}
		r.With(csrf).Get("/csrf", h.issueCSRF)
		r.With(limitIP(goGuard.RouteSession), csrf, middleware.Guard(h.engine, goGuard.ModeJWTOnly)).
			Post("/logout", h.logout)

		r.Route("/token/refresh", func(r chi.Router) {
			r.Use(limitIP(goGuard.RouteRefresh))
			r.Use(csrf)

			r.Post("/", h.refresh)
			r.Get("/", h.refreshStatus)
			r.Delete("/", h.revokeRefresh)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(limitIP(goGuard.RouteSession))
			r.Use(csrf)
			r.Use(middleware.Guard(h.engine, goGuard.ModeInherit))
			r.Use(middleware.RateLimit(h.engine, goGuard.RouteSession, middleware.KeyByUser))

			r.Get("/", h.listSessions)
			r.Post("/", h.createSession)
			r.Put("/", h.heartbeat)
			r.Delete("/", h.invalidateSessions)
			r.Post("/invalidate", h.invalidateSelected)
			r.Get("/devices", h.listDevices)
			r.Put("/devices", h.updateDevice)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.CodeStoreUnavailable)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
