package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natalyineu/db-sub000/internal/auth"
	"github.com/natalyineu/db-sub000/internal/config"
)

// RouterOptions carries the optional collaborators the router can wire.
type RouterOptions struct {
	// OAuth is nil when Google sign-in is not configured.
	OAuth *OAuthHandler
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, service *auth.Service, logger *slog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	handler := NewAuthHandler(service, logger)
	limiter := newAuthRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", handler.Snapshot)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter.middleware)
				r.Post("/signin", handler.SignIn)
				r.Post("/signup", handler.SignUp)
			})
			r.Post("/signout", handler.SignOut)

			if opts.OAuth != nil {
				r.Get("/google", opts.OAuth.InitiateGoogle)
				r.Get("/google/callback", opts.OAuth.CallbackGoogle)
			}
		})

		r.Route("/profile", func(r chi.Router) {
			r.Post("/refresh", handler.RefreshProfile)
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
