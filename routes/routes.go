package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/upb/action-gate/app"
	"github.com/upb/action-gate/auth"
	"github.com/upb/action-gate/handlers"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var health *handlers.HealthHandler
	if deps.DB != nil {
		health = handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	} else {
		health = handlers.NewHealthHandler(nil, deps.Logger)
	}
	if deps.Redis != nil {
		health.AddCheck("redis", redisPinger{deps.Redis})
	}

	invocations := handlers.NewInvocationHandler(deps.Invocations, deps.Logger)
	modes := handlers.NewModeHandler(deps.Modes, deps.Logger).WithHistoryLimit(deps.Config.Modes.HistoryLimit)
	auditLog := handlers.NewAuditHandler(deps.Audit, deps.Logger)
	catalog := handlers.NewCatalogHandler(deps.Catalog, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	authn := deps.AuthMiddleware

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.RequireAuth)

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", catalog.HandleList)
			r.Get("/{id}", catalog.HandleGet)
		})

		r.Route("/invocations", func(r chi.Router) {
			r.Post("/", invocations.HandleSubmit)
			r.Get("/{id}", invocations.HandleGet)
			r.With(authn.RequireRole(auth.RoleApprover, auth.RoleAdmin)).
				Post("/{id}/decision", invocations.HandleDecision)
		})

		r.Route("/modes", func(r chi.Router) {
			r.Get("/", modes.HandleList)
			r.Get("/{channel}", modes.HandleGet)
			r.Get("/{channel}/history", modes.HandleHistory)
			r.With(authn.RequireRole(auth.RoleAdmin)).
				Put("/{channel}", modes.HandleSwitch)
		})

		r.Get("/audit", auditLog.HandleQuery)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
