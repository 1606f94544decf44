package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riteshshukladev/wrapper/internal/service"
	"github.com/riteshshukladev/wrapper/pkg/health"
	"github.com/riteshshukladev/wrapper/pkg/middleware"
)

// Banner is served on GET / as a plain-text liveness hint.
const Banner = "Authentication Backend is Running"

// RouterDeps holds what the router mounts besides the session service.
type RouterDeps struct {
	ServiceName string
	Health      *health.Handler
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(sessions *service.SessionService, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Tracing(deps.ServiceName))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(deps.CORS))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(Banner))
	})

	// Health check endpoints
	if deps.Health != nil {
		r.Get("/health/live", deps.Health.LivenessHandler())
		r.Get("/health/ready", deps.Health.ReadinessHandler())
	}
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	authHandler := NewAuthHandler(sessions, deps.Logger)
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.LimitBody)
		r.Use(middleware.RequireJSON)

		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh-token", authHandler.RefreshToken)
		r.Post("/logout", authHandler.Logout)

		r.With(middleware.Auth(tokenValidator(sessions))).Get("/user/data", authHandler.UserData)
	})

	return r
}
