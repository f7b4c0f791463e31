package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/policies"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

type stubRoles struct {
	roles map[string]roles.Role
	err   error
	calls int
}

func (s *stubRoles) GetByName(ctx context.Context, name string) (roles.Role, error) {
	s.calls++
	if s.err != nil {
		return roles.Role{}, s.err
	}
	role, ok := s.roles[name]
	if !ok {
		return roles.Role{}, fmt.Errorf("stub: %w", shared.ErrNotFound)
	}
	return role, nil
}

type stubDecider struct {
	outcome policies.Outcome
	err     error
	calls   int
	last    policies.Request
}

func (s *stubDecider) Decide(ctx context.Context, req policies.Request) (policies.Outcome, error) {
	s.calls++
	s.last = req
	return s.outcome, s.err
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

type countingObserver struct {
	allowed, denied int
	reasons         []string
}

func (c *countingObserver) ObserveDecision(allowed bool, reason string) {
	if allowed {
		c.allowed++
		return
	}
	c.denied++
	c.reasons = append(c.reasons, reason)
}

func roleWith(id, name string, perms ...string) roles.Role {
	role := roles.Role{ID: id, Name: name}
	for _, p := range perms {
		role.Permissions = append(role.Permissions, permissions.Permission{Name: p})
	}
	return role
}

type fixture struct {
	roles    *stubRoles
	policies *stubDecider
	audit    *recordingAudit
	observer *countingObserver
	engine   *Engine
}

func newFixture() *fixture {
	f := &fixture{
		roles: &stubRoles{roles: map[string]roles.Role{
			"ADMIN":  roleWith("r-admin", "ADMIN", "manage:user", "read:report"),
			"READER": roleWith("r-reader", "READER", "read:user"),
		}},
		policies: &stubDecider{outcome: policies.Outcome{Allowed: true, Rule: policies.RuleNoPolicy}},
		audit:    &recordingAudit{},
		observer: &countingObserver{},
	}
	f.engine = NewEngine(EngineConfig{
		Roles:    f.roles,
		Policies: f.policies,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: f.observer,
		Audit:    f.audit,
	})
	return f
}

var deleteUser = Operation("users.delete").Require("delete:user").Build()

func TestManageWildcardPassesRBAC(t *testing.T) {
	f := newFixture()
	d := f.engine.Authorize(context.Background(), &shared.Actor{ID: "u1", RoleName: "ADMIN"}, deleteUser, nil)
	assert.True(t, d.Allowed)
	assert.Zero(t, f.policies.calls)
	assert.Equal(t, 1, f.observer.allowed)
}

func TestExactPermissionDoesNotSatisfyOtherAction(t *testing.T) {
	f := newFixture()
	d := f.engine.Authorize(context.Background(), &shared.Actor{ID: "u2", RoleName: "READER"}, deleteUser, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPermissionDenied, d.Reason)
	assert.Equal(t, []string{"delete:user"}, d.Required)
	assert.Equal(t, http.StatusForbidden, d.Status())
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "authz.deny", f.audit.logs[0].Action)
	assert.Equal(t, "users.delete", f.audit.logs[0].EntityID)
}

func TestAnyRequiredPermissionSuffices(t *testing.T) {
	f := newFixture()
	op := Operation("reports.view").Require("manage:report", "read:report").Build()
	d := f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "ADMIN"}, op, nil)
	assert.True(t, d.Allowed)
}

func TestEmptyRequirementStillNeedsRole(t *testing.T) {
	f := newFixture()
	op := Operation("self").Build()
	assert.True(t, f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "READER"}, op, nil).Allowed)

	d := f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "GHOST"}, op, nil)
	assert.Equal(t, ReasonMissingRoleAssignment, d.Reason)
}

func TestPublicOperationSkipsEverything(t *testing.T) {
	f := newFixture()
	d := f.engine.Authorize(context.Background(), nil, Public("health"), nil)
	assert.True(t, d.Allowed)
	assert.Zero(t, f.roles.calls)
}

func TestMissingActorIsUnauthenticated(t *testing.T) {
	f := newFixture()
	d := f.engine.Authorize(context.Background(), nil, deleteUser, nil)
	assert.Equal(t, ReasonUnauthenticated, d.Reason)
	assert.Equal(t, http.StatusUnauthorized, d.Status())
	assert.Empty(t, f.audit.logs)
}

func TestActorWithoutRole(t *testing.T) {
	f := newFixture()
	d := f.engine.Authorize(context.Background(), &shared.Actor{ID: "u3"}, deleteUser, nil)
	assert.Equal(t, ReasonMissingRoleAssignment, d.Reason)
	assert.Zero(t, f.roles.calls)
}

func TestRoleStoreFailureFailsClosed(t *testing.T) {
	f := newFixture()
	f.roles.err = errors.New("dial tcp: connection refused")
	d := f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "ADMIN"}, deleteUser, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonStoreUnavailable, d.Reason)
	assert.Equal(t, http.StatusServiceUnavailable, d.Status())
	assert.NotContains(t, d.Message, "connection refused")
}

func TestPolicyStoreFailureFailsClosed(t *testing.T) {
	f := newFixture()
	f.policies.err = errors.New("timeout")
	op := Operation("users.update").Require("update:user").OnResource(permissions.ResourceUser).Build()
	d := f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "ADMIN"}, op, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonStoreUnavailable, d.Reason)
}

func TestPolicyDenialIsGeneric(t *testing.T) {
	f := newFixture()
	f.policies.outcome = policies.Outcome{Allowed: false, Rule: policies.RuleGeneralDeny, PolicyID: "pol-secret"}
	op := Operation("users.update").Require("update:user").OnResource(permissions.ResourceUser).Build()
	d := f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "ADMIN"}, op, nil)
	assert.Equal(t, ReasonPolicyDenied, d.Reason)
	assert.Empty(t, d.Required)
	assert.NotContains(t, d.Message, "pol-secret")
	assert.Contains(t, d.Detail, "pol-secret")
}

func TestStageBReceivesResourceIDAndAttributes(t *testing.T) {
	f := newFixture()
	op := Operation("profiles.update").
		Require("update:user").
		OnResource(permissions.ResourceProfile).
		ResourceIDFrom(URLParam("id")).
		AttributesFrom(ActorAttribute("userId"), QueryAttribute("departmentId")).
		Build()

	var got Decision
	r := chi.NewRouter()
	r.Put("/profiles/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = f.engine.Authorize(req.Context(), shared.ActorFromContext(req.Context()), op, req)
	})
	req := httptest.NewRequest(http.MethodPut, "/profiles/p-42?departmentId=IT", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), &shared.Actor{ID: "u1", RoleName: "ADMIN"}))
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, got.Allowed)
	require.Equal(t, 1, f.policies.calls)
	assert.Equal(t, []string{"r-admin"}, f.policies.last.RoleIDs)
	assert.Equal(t, permissions.ResourceProfile, f.policies.last.ResourceType)
	assert.Equal(t, "p-42", f.policies.last.ResourceID)
	assert.Equal(t, map[string]string{"userId": "u1", "departmentId": "IT"}, f.policies.last.Attributes)
}

func TestNoResourceTypeSkipsStageB(t *testing.T) {
	f := newFixture()
	f.policies.outcome = policies.Outcome{Allowed: false}
	d := f.engine.Authorize(context.Background(), &shared.Actor{RoleName: "ADMIN"}, deleteUser, nil)
	assert.True(t, d.Allowed)
	assert.Zero(t, f.policies.calls)
}

func TestEngineWithRealEvaluator(t *testing.T) {
	source := policySource{
		{ID: "own", RoleID: "r-admin", ResourceType: permissions.ResourceProfile, AttributeName: "userId", AttributeValue: "u1", Condition: true},
		{ID: "rest", RoleID: "r-admin", ResourceType: permissions.ResourceProfile, Condition: false},
	}
	f := newFixture()
	engine := NewEngine(EngineConfig{Roles: f.roles, Policies: policies.NewEvaluator(source)})
	op := Operation("profiles.read").Require("read:report").OnResource(permissions.ResourceProfile).
		AttributesFrom(ActorAttribute("userId")).Build()

	own := httptest.NewRequest(http.MethodGet, "/", nil)
	own = own.WithContext(shared.ContextWithActor(own.Context(), &shared.Actor{ID: "u1", RoleName: "ADMIN"}))
	assert.True(t, engine.Authorize(own.Context(), shared.ActorFromContext(own.Context()), op, own).Allowed)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other = other.WithContext(shared.ContextWithActor(other.Context(), &shared.Actor{ID: "u2", RoleName: "ADMIN"}))
	d := engine.Authorize(other.Context(), shared.ActorFromContext(other.Context()), op, other)
	assert.Equal(t, ReasonPolicyDenied, d.Reason)
}

type policySource []policies.Policy

func (p policySource) ListForRoles(ctx context.Context, roleIDs []string, rt permissions.ResourceType) ([]policies.Policy, error) {
	return p, nil
}
