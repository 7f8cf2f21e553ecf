package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"permitflow/internal/domain/auth"
	"permitflow/internal/platform/config"
	"permitflow/internal/platform/metrics"
	"permitflow/internal/transport/http/api"
	"permitflow/internal/transport/http/middleware"
)

// RouteRegistrar mounts one handler's routes under /api/v1.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Config   config.Config
	Metrics  *metrics.Collector
	Perms    middleware.PermissionStore
	DB       Pinger
	Handlers []RouteRegistrar
}

func NewRouter(d RouterDeps) http.Handler {
	cfg := d.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	var recorder middleware.Recorder
	if d.Metrics != nil {
		recorder = d.Metrics
	}
	router.Use(middleware.Logger(recorder))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes, cfg.MaxUploadBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.DecisionRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		if cfg.MetricsEnabled && d.Metrics != nil {
			r.With(middleware.RequirePermission(auth.PermMetricsRead, d.Perms)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
				api.Success(w, d.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
			})
		}
		for _, h := range d.Handlers {
			h.RegisterRoutes(r)
		}
	})
	return router
}
