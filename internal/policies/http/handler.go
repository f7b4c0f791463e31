package policieshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/policies"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Service is the policy store contract used by the handler.
type Service interface {
	Create(ctx context.Context, in policies.CreateInput) (policies.Policy, error)
	Get(ctx context.Context, id string) (policies.Policy, error)
	List(ctx context.Context, filter policies.ListFilter) ([]policies.Policy, error)
	Update(ctx context.Context, id string, in policies.UpdateInput) (policies.Policy, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the resource policy API.
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
	RoleID         string `json:"roleId" validate:"required,uuid"`
	ResourceType   string `json:"resourceType" validate:"required,oneof=user profile role permission setting report log"`
	ResourceID     string `json:"resourceId" validate:"max=255"`
	AttributeName  string `json:"attributeName" validate:"max=100,required_with=AttributeValue"`
	AttributeValue string `json:"attributeValue" validate:"max=255,required_with=AttributeName"`
	Condition      *bool  `json:"condition"`
}

type updateRequest struct {
	RoleID         *string `json:"roleId" validate:"omitempty,uuid"`
	ResourceType   *string `json:"resourceType" validate:"omitempty,oneof=user profile role permission setting report log"`
	ResourceID     *string `json:"resourceId" validate:"omitempty,max=255"`
	AttributeName  *string `json:"attributeName" validate:"omitempty,max=100"`
	AttributeValue *string `json:"attributeValue" validate:"omitempty,max=255"`
	Condition      *bool   `json:"condition"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := policies.ListFilter{
		RoleID:       strings.TrimSpace(query.Get("roleId")),
		ResourceType: permissions.ResourceType(strings.ToLower(strings.TrimSpace(query.Get("resourceType")))),
	}
	if filter.ResourceType != "" && !filter.ResourceType.Valid() {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Fields: map[string]string{"resourcetype": "oneof"},
		})
		return
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list policies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.Create(r.Context(), policies.CreateInput{
		RoleID:         req.RoleID,
		ResourceType:   permissions.ResourceType(req.ResourceType),
		ResourceID:     req.ResourceID,
		AttributeName:  req.AttributeName,
		AttributeValue: req.AttributeValue,
		Condition:      req.Condition,
	})
	if err != nil {
		h.fail(w, "create policy", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), idParam(r))
	if err != nil {
		h.fail(w, "get policy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := policies.UpdateInput{
		RoleID:         req.RoleID,
		ResourceID:     req.ResourceID,
		AttributeName:  req.AttributeName,
		AttributeValue: req.AttributeValue,
		Condition:      req.Condition,
	}
	if req.ResourceType != nil {
		rt := permissions.ResourceType(*req.ResourceType)
		in.ResourceType = &rt
	}
	p, err := h.service.Update(r.Context(), idParam(r), in)
	if err != nil {
		h.fail(w, "update policy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), idParam(r)); err != nil {
		h.fail(w, "delete policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
