package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
)

func TestBuilderNormalizesAndFreezes(t *testing.T) {
	b := Operation("roles.update").Require(" Update:Role ", "update:role", "manage:role").OnResource(permissions.ResourceRole)
	op := b.Build()
	b.Require("delete:role")

	assert.Equal(t, []string{"update:role", "manage:role"}, op.RequiredPermissions)
	assert.True(t, op.HasResourceCheck())
	assert.False(t, op.IsPublic)
}

func TestAccessorsTolerateNilRequest(t *testing.T) {
	op := Operation("x").OnResource(permissions.ResourceUser).Build()
	assert.Equal(t, "", op.resourceID(nil))
	assert.Equal(t, map[string]string{}, op.attributes(nil))
}

func TestMergeAttributesLaterWins(t *testing.T) {
	merged := MergeAttributes(
		StaticAttributes(map[string]string{"departmentId": "HR", "site": "A"}),
		HeaderAttribute("departmentId", "X-Department"),
		nil,
	)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Department", "IT")
	assert.Equal(t, map[string]string{"departmentId": "IT", "site": "A"}, merged(req))
}

func TestEmptyValuesAreOmitted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?departmentId=", nil)
	assert.Nil(t, QueryAttribute("departmentId")(req))
	assert.Empty(t, ActorAttribute("userId")(req))
}

func TestDefaultAttributes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users?departmentId=IT", nil)
	assert.Equal(t, map[string]string{"departmentId": "IT"}, DefaultAttributes(permissions.ResourceUser)(req))
	assert.Nil(t, DefaultAttributes(permissions.ResourceRole))
}
