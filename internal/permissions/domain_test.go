package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManageImpliesEveryActionOnSameResource(t *testing.T) {
	set := Canonicalize([]string{"manage:user"})
	for _, a := range Actions {
		assert.True(t, set.Has(Name(a, ResourceUser)), "expected %s", Name(a, ResourceUser))
	}
	assert.False(t, set.Has("delete:role"))
}

func TestExactPermissionDoesNotImplyOthers(t *testing.T) {
	set := Canonicalize([]string{"read:user"})
	assert.True(t, set.Has("read:user"))
	assert.False(t, set.Has("delete:user"))
	assert.False(t, set.Has("manage:user"))
}

func TestHasAnyUsesLogicalOr(t *testing.T) {
	set := Canonicalize([]string{"update:profile"})
	assert.True(t, set.HasAny([]string{"read:profile", "update:profile"}))
	assert.False(t, set.HasAny([]string{"read:profile", "delete:profile"}))
	assert.False(t, set.HasAny(nil))
}

func TestCanonicalizeNormalizesCase(t *testing.T) {
	set := Canonicalize([]string{"  Read:Report ", ""})
	assert.True(t, set.Has("read:report"))
	assert.Len(t, set, 1)
}

func TestParseName(t *testing.T) {
	a, rt, ok := ParseName("export:report")
	assert.True(t, ok)
	assert.Equal(t, ActionExport, a)
	assert.Equal(t, ResourceReport, rt)

	_, _, ok = ParseName("fly:report")
	assert.False(t, ok)
	_, _, ok = ParseName("report")
	assert.False(t, ok)
}

func TestNormalizeDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"read:user", "update:user"}, Normalize([]string{"READ:user", "update:user", "read:user ", ""}))
}
