package permissionshttp

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

var opList = authz.Operation("permissions.list").Require("read:permission").Build()

var opGet = authz.Operation("permissions.get").
	Require("read:permission").
	OnResource(permissions.ResourcePermission).
	ResourceIDFrom(authz.URLParam("id")).
	Build()

var opCreate = authz.Operation("permissions.create").Require("create:permission").Build()

var opUpdate = authz.Operation("permissions.update").
	Require("update:permission").
	OnResource(permissions.ResourcePermission).
	ResourceIDFrom(authz.URLParam("id")).
	Build()

var opDelete = authz.Operation("permissions.delete").
	Require("delete:permission").
	OnResource(permissions.ResourcePermission).
	ResourceIDFrom(authz.URLParam("id")).
	Build()

var opBootstrap = authz.Operation("permissions.bootstrap").Require("manage:permission", "manage:role").Build()

// MountRoutes registers the permission registry endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require(opList)).Get("/", h.list)
	r.With(h.guard.Require(opCreate)).Post("/", h.create)
	r.With(h.guard.Require(opBootstrap)).Post("/bootstrap", h.bootstrap)
	r.With(h.guard.Require(opGet)).Get("/{id}", h.get)
	r.With(h.guard.Require(opUpdate)).Patch("/{id}", h.update)
	r.With(h.guard.Require(opDelete)).Delete("/{id}", h.remove)
}

func idParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
