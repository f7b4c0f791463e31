package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/ovr-admin/ovr-admin/internal/audit/http"
	"github.com/ovr-admin/ovr-admin/internal/authz"
	"github.com/ovr-admin/ovr-admin/internal/observability"
	permissionshttp "github.com/ovr-admin/ovr-admin/internal/permissions/http"
	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	policieshttp "github.com/ovr-admin/ovr-admin/internal/policies/http"
	roleshttp "github.com/ovr-admin/ovr-admin/internal/roles/http"
	"github.com/ovr-admin/ovr-admin/jobs"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping() error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func() error

// Ping calls f.
func (f HealthFunc) Ping() error { return f() }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	// Authenticate attaches the actor to protected requests.
	Authenticate func(http.Handler) http.Handler
	Guard        *authz.Middleware

	AuthzHandler       *authz.Handler
	PermissionsHandler *permissionshttp.Handler
	RolesHandler       *roleshttp.Handler
	PoliciesHandler    *policieshttp.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler

	Health map[string]HealthChecker
}

var opJobsHealth = authz.Operation("jobs.health").Require("read:setting").Build()

// NewRouter constructs the chi.Router.
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

	r.Get("/healthz", healthHandler(params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.Authenticate != nil {
			r.Use(params.Authenticate)
		}
		if params.AuthzHandler != nil {
			r.Route("/authz", params.AuthzHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PoliciesHandler != nil {
			r.Route("/policies", params.PoliciesHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil && params.Guard != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.Guard.Require(opJobsHealth))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "")
	})
	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(); err != nil {
				status[name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
