package roleshttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Service is the role store contract used by the handler.
type Service interface {
	Create(ctx context.Context, in roles.CreateInput) (roles.Role, error)
	Get(ctx context.Context, id string) (roles.Role, error)
	List(ctx context.Context) ([]roles.Role, error)
	Update(ctx context.Context, id string, in roles.UpdateInput) (roles.Role, error)
	Remove(ctx context.Context, id string) error
	AssignPermissions(ctx context.Context, roleID string, ids []string) (roles.Role, error)
	RemovePermissions(ctx context.Context, roleID string, ids []string) (roles.Role, error)
}

// Handler serves the role API.
type Handler struct {
	logger    *slog.Logger
	service   Service
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

type createRequest struct {
	Name          string   `json:"name" validate:"required,max=50"`
	Description   string   `json:"description" validate:"max=255"`
	IsDefault     bool     `json:"isDefault"`
	PermissionIDs []string `json:"permissionIds" validate:"omitempty,dive,uuid"`
}

type updateRequest struct {
	Name          *string   `json:"name" validate:"omitempty,max=50"`
	Description   *string   `json:"description" validate:"omitempty,max=255"`
	IsDefault     *bool     `json:"isDefault"`
	PermissionIDs *[]string `json:"permissionIds" validate:"omitempty,dive,uuid"`
}

type permissionsRequest struct {
	PermissionIDs []string `json:"permissionIds" validate:"required,dive,uuid"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.Create(r.Context(), roles.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		IsDefault:     req.IsDefault,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), idParam(r))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.Update(r.Context(), idParam(r), roles.UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		IsDefault:     req.IsDefault,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Remove(r.Context(), idParam(r)); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.AssignPermissions(r.Context(), idParam(r), req.PermissionIDs)
	if err != nil {
		h.fail(w, "assign role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) removePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.RemovePermissions(r.Context(), idParam(r), req.PermissionIDs)
	if err != nil {
		h.fail(w, "remove role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !shared.IsNotFound(err) {
		h.logger.Warn(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
