package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Handler exposes dry-run evaluation for the calling actor.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	roles     RoleLookup
	guard     *Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, roles RoleLookup) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine, roles: roles, guard: NewMiddleware(engine), validator: validator.New()}
}

var (
	opCheck = Operation("authz.check").Build()
	opMe    = Operation("authz.me").Build()
)

// MountRoutes registers authz routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(opMe)).Get("/me", h.me)
	r.With(h.guard.Require(opCheck)).Post("/check", h.check)
}

type checkRequest struct {
	Operation           string            `json:"operation" validate:"max=100"`
	RequiredPermissions []string          `json:"requiredPermissions" validate:"max=20,dive,max=100"`
	ResourceType        string            `json:"resourceType" validate:"omitempty,oneof=user profile role permission setting report log"`
	ResourceID          string            `json:"resourceId" validate:"max=255"`
	Attributes          map[string]string `json:"attributes"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	name := req.Operation
	if name == "" {
		name = "dry-run"
	}
	b := Operation(name).Require(req.RequiredPermissions...)
	if req.ResourceType != "" {
		b = b.OnResource(permissions.ResourceType(req.ResourceType)).
			ResourceIDFrom(Static(req.ResourceID)).
			AttributesFrom(StaticAttributes(req.Attributes))
	}
	op := b.Build()

	d := h.engine.decide(r.Context(), shared.ActorFromContext(r.Context()), op, r)
	if d.Reason == ReasonStoreUnavailable {
		h.logger.Error("authz dry run", slog.String("detail", d.Detail))
		httpx.JSON(w, http.StatusServiceUnavailable, d)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

type meResponse struct {
	ActorID     string   `json:"actorId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	role, err := h.roles.GetByName(r.Context(), actor.RoleName)
	if err != nil {
		h.logger.Error("authz me", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		ActorID:     actor.ID,
		Role:        role.Name,
		Permissions: role.PermissionSet().Names(),
	})
}
