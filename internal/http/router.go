package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/riftapp/rift/internal/config"
	"github.com/riftapp/rift/internal/http/ratelimit"
	"github.com/riftapp/rift/internal/metrics"
	"github.com/riftapp/rift/internal/store"
)

// NewRouter wires all HTTP routes for the API and auth endpoints.
func NewRouter(cfg *config.Config, st *store.Store, h *Handler) http.Handler {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// API endpoints: 20 requests per second, burst of 50
	apiRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(20), 50, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Get("/login", h.Login)
		r.Get("/callback", h.Callback)
		r.Post("/logout", h.Logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apiRateLimiter.Middleware())

		r.Get("/books", h.ListBooks)
		r.Post("/books", h.SaveBook)
		r.Post("/books/{id}/favorite", h.ToggleFavorite)
		r.Delete("/books/{id}", h.DeleteBook)

		r.Get("/filter", h.GetFilter)
		r.Put("/filter", h.SetFilter)

		r.Get("/export", h.Export)
		r.Post("/import", h.Import)

		r.Get("/session", h.Session)
		r.Get("/sync/status", h.SyncStatus)
		r.Post("/sync/resolve", h.SyncResolve)

		r.Get("/capabilities", h.Capabilities)
	})

	return r
}
