package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pagodirecto/crm/internal/auth"
	"github.com/pagodirecto/crm/internal/customers"
	"github.com/pagodirecto/crm/internal/observability"
	"github.com/pagodirecto/crm/internal/rbac"
	"github.com/pagodirecto/crm/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	AuthMiddleware   auth.Middleware
	RBACMiddleware   rbac.Middleware
	UsersHandler     *users.Handler
	RBACHandler      *rbac.Handler
	CustomersHandler *customers.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router. Routes split into a public group,
// which only ever sees credentials, and a protected group that requires a
// valid access token and runs with the tenant session applied.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(LoginRateLimiter(params.Config))
			params.AuthHandler.MountPublicRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)
			params.AuthHandler.MountProtectedRoutes(r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)
		r.Use(params.AuthMiddleware.PropagateTenant)
		params.UsersHandler.MountRoutes(r, params.RBACMiddleware)
		params.UsersHandler.MountProfileRoutes(r)
		params.RBACHandler.MountRoutes(r, params.RBACMiddleware)
		params.CustomersHandler.MountRoutes(r, params.RBACMiddleware)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
