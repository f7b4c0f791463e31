package permissionshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Service is the registry contract used by the handler.
type Service interface {
	Register(ctx context.Context, action permissions.Action, resourceType permissions.ResourceType, description string) (permissions.Permission, error)
	Get(ctx context.Context, id string) (permissions.Permission, error)
	List(ctx context.Context) ([]permissions.Permission, error)
	ListByResourceType(ctx context.Context, resourceType permissions.ResourceType) ([]permissions.Permission, error)
	FindByActionAndResource(ctx context.Context, action permissions.Action, resourceType permissions.ResourceType) (permissions.Permission, error)
	UpdateDescription(ctx context.Context, id, description string) (permissions.Permission, error)
	Delete(ctx context.Context, id string) error
	Bootstrap(ctx context.Context) ([]permissions.Permission, error)
}

// RoleSeeder creates the default system roles after the catalog exists.
type RoleSeeder interface {
	Bootstrap(ctx context.Context, logger *slog.Logger) ([]roles.Role, error)
}

// Handler serves the permission registry API.
type Handler struct {
	logger    *slog.Logger
	service   Service
	seeder    RoleSeeder
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds Handler. seeder may be nil, in which case bootstrap only
// registers the catalog.
func NewHandler(logger *slog.Logger, service Service, seeder RoleSeeder, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, seeder: seeder, guard: guard, validator: validator.New()}
}

type createRequest struct {
	Action       string `json:"action" validate:"required,oneof=create read update delete manage approve reject export import"`
	ResourceType string `json:"resourceType" validate:"required,oneof=user profile role permission setting report log"`
	Description  string `json:"description" validate:"max=255"`
}

type updateRequest struct {
	Description string `json:"description" validate:"max=255"`
}

type bootstrapResponse struct {
	Permissions int      `json:"permissions"`
	Roles       []string `json:"roles"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	action := permissions.Action(strings.ToLower(strings.TrimSpace(query.Get("action"))))
	rt := permissions.ResourceType(strings.ToLower(strings.TrimSpace(query.Get("resourceType"))))

	var (
		list []permissions.Permission
		err  error
	)
	switch {
	case action != "" && rt != "":
		var p permissions.Permission
		p, err = h.service.FindByActionAndResource(r.Context(), action, rt)
		list = []permissions.Permission{p}
		if shared.IsNotFound(err) {
			list, err = []permissions.Permission{}, nil
		}
	case rt != "":
		list, err = h.service.ListByResourceType(r.Context(), rt)
	case action != "":
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Fields: map[string]string{"action": "requires resourceType"},
		})
		return
	default:
		list, err = h.service.List(r.Context())
	}
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p, err := h.service.Register(r.Context(), permissions.Action(req.Action), permissions.ResourceType(req.ResourceType), req.Description)
	if err != nil {
		h.fail(w, "register permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), idParam(r))
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p, err := h.service.UpdateDescription(r.Context(), idParam(r), req.Description)
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), idParam(r)); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.service.Bootstrap(r.Context())
	if err != nil {
		h.fail(w, "bootstrap permissions", err)
		return
	}
	resp := bootstrapResponse{Permissions: len(catalog), Roles: []string{}}
	if h.seeder != nil {
		seeded, err := h.seeder.Bootstrap(r.Context(), h.logger)
		if err != nil {
			h.fail(w, "bootstrap roles", err)
			return
		}
		for _, role := range seeded {
			resp.Roles = append(resp.Roles, role.Name)
		}
	}
	h.logger.Info("rbac bootstrap", slog.Int("permissions", resp.Permissions), slog.Int("roles", len(resp.Roles)), slog.String("actor", shared.ActorID(r.Context())))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !shared.IsNotFound(err) {
		h.logger.Warn(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
