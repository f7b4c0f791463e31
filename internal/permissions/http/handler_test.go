package permissionshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovr-admin/ovr-admin/internal/authz"
	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

type passthrough struct {
	ops []string
}

func (p *passthrough) Require(op authz.OperationDescriptor) func(http.Handler) http.Handler {
	p.ops = append(p.ops, op.Name)
	return func(next http.Handler) http.Handler { return next }
}

type stubService struct {
	items      map[string]permissions.Permission
	registered []string
	bootstraps int
}

func newStubService() *stubService {
	return &stubService{items: map[string]permissions.Permission{
		"p1": {ID: "p1", Action: permissions.ActionRead, ResourceType: permissions.ResourceUser, Name: "read:user"},
		"p2": {ID: "p2", Action: permissions.ActionUpdate, ResourceType: permissions.ResourceRole, Name: "update:role"},
	}}
}

func (s *stubService) Register(ctx context.Context, action permissions.Action, rt permissions.ResourceType, description string) (permissions.Permission, error) {
	name := permissions.Name(action, rt)
	s.registered = append(s.registered, name)
	return permissions.Permission{ID: "new", Action: action, ResourceType: rt, Name: name, Description: description}, nil
}

func (s *stubService) Get(ctx context.Context, id string) (permissions.Permission, error) {
	p, ok := s.items[id]
	if !ok {
		return permissions.Permission{}, fmt.Errorf("permissions: %w", shared.ErrNotFound)
	}
	return p, nil
}

func (s *stubService) List(ctx context.Context) ([]permissions.Permission, error) {
	return []permissions.Permission{s.items["p1"], s.items["p2"]}, nil
}

func (s *stubService) ListByResourceType(ctx context.Context, rt permissions.ResourceType) ([]permissions.Permission, error) {
	var out []permissions.Permission
	for _, p := range s.items {
		if p.ResourceType == rt {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubService) FindByActionAndResource(ctx context.Context, action permissions.Action, rt permissions.ResourceType) (permissions.Permission, error) {
	for _, p := range s.items {
		if p.Action == action && p.ResourceType == rt {
			return p, nil
		}
	}
	return permissions.Permission{}, fmt.Errorf("permissions: %w", shared.ErrNotFound)
}

func (s *stubService) UpdateDescription(ctx context.Context, id, description string) (permissions.Permission, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return p, err
	}
	p.Description = description
	s.items[id] = p
	return p, nil
}

func (s *stubService) Delete(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("permissions: %w", shared.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func (s *stubService) Bootstrap(ctx context.Context) ([]permissions.Permission, error) {
	s.bootstraps++
	return make([]permissions.Permission, 3), nil
}

type stubSeeder struct{}

func (stubSeeder) Bootstrap(ctx context.Context, logger *slog.Logger) ([]roles.Role, error) {
	return []roles.Role{{Name: "ADMIN"}, {Name: "USER"}}, nil
}

func newRouter(service Service, guard Guard) http.Handler {
	r := chi.NewRouter()
	r.Route("/permissions", NewHandler(nil, service, stubSeeder{}, guard).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func TestEveryRouteIsGuarded(t *testing.T) {
	guard := &passthrough{}
	newRouter(newStubService(), guard)
	assert.ElementsMatch(t, []string{
		"permissions.list", "permissions.create", "permissions.bootstrap",
		"permissions.get", "permissions.update", "permissions.delete",
	}, guard.ops)
}

func TestCreateValidatesEnums(t *testing.T) {
	service := newStubService()
	h := newRouter(service, &passthrough{})

	rr := do(t, h, http.MethodPost, "/permissions", map[string]string{"action": "fly", "resourceType": "user"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"action"`)
	assert.Empty(t, service.registered)

	rr = do(t, h, http.MethodPost, "/permissions", map[string]string{"action": "export", "resourceType": "report", "description": "Export reports"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var p permissions.Permission
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "export:report", p.Name)
}

func TestListFilters(t *testing.T) {
	h := newRouter(newStubService(), &passthrough{})

	var list []permissions.Permission
	rr := do(t, h, http.MethodGet, "/permissions?resourceType=role", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "update:role", list[0].Name)

	rr = do(t, h, http.MethodGet, "/permissions?resourceType=role&action=delete", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/permissions?action=read", nil).Code)
}

func TestGetUpdateDelete(t *testing.T) {
	h := newRouter(newStubService(), &passthrough{})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/permissions/p1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/permissions/missing", nil).Code)

	rr := do(t, h, http.MethodPatch, "/permissions/p1", map[string]string{"description": "Read users"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Read users")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPatch, "/permissions/p1", map[string]string{"name": "x"}).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/permissions/p1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/permissions/p1", nil).Code)
}

func TestBootstrapSeedsCatalogAndRoles(t *testing.T) {
	service := newStubService()
	h := newRouter(service, &passthrough{})

	rr := do(t, h, http.MethodPost, "/permissions/bootstrap", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"permissions":3,"roles":["ADMIN","USER"]}`, rr.Body.String())
	assert.Equal(t, 1, service.bootstraps)
}
