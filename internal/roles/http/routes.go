package roleshttp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ovr-admin/ovr-admin/internal/authz"
	"github.com/ovr-admin/ovr-admin/internal/permissions"
)

// Guard wraps a route with an authorization check.
type Guard interface {
	Require(op authz.OperationDescriptor) func(http.Handler) http.Handler
}

func onRole(name string, perms ...string) authz.OperationDescriptor {
	return authz.Operation(name).
		Require(perms...).
		OnResource(permissions.ResourceRole).
		ResourceIDFrom(authz.URLParam("id")).
		Build()
}

var (
	opList              = authz.Operation("roles.list").Require("read:role").Build()
	opCreate            = authz.Operation("roles.create").Require("create:role").Build()
	opGet               = onRole("roles.get", "read:role")
	opUpdate            = onRole("roles.update", "update:role")
	opDelete            = onRole("roles.delete", "delete:role")
	opReplacePermission = onRole("roles.permissions.replace", "update:role")
	opRemovePermission  = onRole("roles.permissions.remove", "update:role")
)

// MountRoutes registers role endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require(opList)).Get("/", h.list)
	r.With(h.guard.Require(opCreate)).Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.With(h.guard.Require(opGet)).Get("/", h.get)
		r.With(h.guard.Require(opUpdate)).Patch("/", h.update)
		r.With(h.guard.Require(opDelete)).Delete("/", h.remove)
		r.With(h.guard.Require(opReplacePermission)).Put("/permissions", h.replacePermissions)
		r.With(h.guard.Require(opRemovePermission)).Delete("/permissions", h.removePermissions)
	})
}

func idParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
