package roles

import (
	"time"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
)

// Role groups permissions. System roles are seeded by Bootstrap and cannot be
// renamed or removed.
type Role struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	IsSystem    bool                     `json:"isSystem"`
	IsDefault   bool                     `json:"isDefault"`
	Permissions []permissions.Permission `json:"permissions"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

// PermissionNames lists the names of the directly assigned permissions.
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// PermissionSet returns the canonical set with manage wildcards expanded.
func (r Role) PermissionSet() permissions.Set {
	return permissions.Canonicalize(r.PermissionNames())
}

// CreateInput carries the fields accepted when creating a role.
type CreateInput struct {
	Name          string
	Description   string
	IsDefault     bool
	PermissionIDs []string
}

// UpdateInput is a patch: nil fields are left unchanged. A non-nil
// PermissionIDs replaces the whole assignment.
type UpdateInput struct {
	Name          *string
	Description   *string
	IsDefault     *bool
	PermissionIDs *[]string
}
