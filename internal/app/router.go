package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/warden-authz/warden/internal/audit"
	"github.com/warden-authz/warden/internal/groups"
	"github.com/warden-authz/warden/internal/observability"
	"github.com/warden-authz/warden/internal/permissions"
	"github.com/warden-authz/warden/internal/registry"
	"github.com/warden-authz/warden/internal/users"
	"github.com/warden-authz/warden/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	UsersHandler       *users.Handler
	GroupsHandler      *groups.Handler
	PermissionsHandler *permissions.Handler
	RegistryHandler    *registry.Handler
	AuditHandler       *audit.Handler
	JobsHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with Warden defaults.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.UsersHandler != nil {
			api.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.GroupsHandler != nil {
			api.Route("/groups", params.GroupsHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			api.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.RegistryHandler != nil {
			api.Route("/registry", params.RegistryHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			api.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			api.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
