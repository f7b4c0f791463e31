package policieshttp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ovr-admin/ovr-admin/internal/authz"
)

// Guard wraps a route with an authorization check.
type Guard interface {
	Require(op authz.OperationDescriptor) func(http.Handler) http.Handler
}

// Policies are administered under the role permissions; there is no separate
// policy resource type.
var (
	opList   = authz.Operation("policies.list").Require("read:role").Build()
	opGet    = authz.Operation("policies.get").Require("read:role").Build()
	opCreate = authz.Operation("policies.create").Require("update:role").Build()
	opUpdate = authz.Operation("policies.update").Require("update:role").Build()
	opDelete = authz.Operation("policies.delete").Require("update:role").Build()
)

// MountRoutes registers policy endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require(opList)).Get("/", h.list)
	r.With(h.guard.Require(opCreate)).Post("/", h.create)
	r.With(h.guard.Require(opGet)).Get("/{id}", h.get)
	r.With(h.guard.Require(opUpdate)).Patch("/{id}", h.update)
	r.With(h.guard.Require(opDelete)).Delete("/{id}", h.remove)
}

func idParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
