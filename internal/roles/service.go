package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const maxNameLength = 50

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error
	Insert(ctx context.Context, role Role) (Role, error)
	GetByID(ctx context.Context, id string) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	GetDefault(ctx context.Context) (Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	Delete(ctx context.Context, id string) error
	ReplacePermissions(ctx context.Context, roleID string, ids []string) error
	RemovePermissions(ctx context.Context, roleID string, ids []string) error
}

// PermissionLookup resolves permission names during bootstrap.
type PermissionLookup interface {
	FindByName(ctx context.Context, name string) (permissions.Permission, error)
}

// Service handles role business logic.
type Service struct {
	repo        RepositoryPort
	perms       PermissionLookup
	invalidator shared.Invalidator
	audit       shared.AuditRecorder
}

// NewService builds Service instance. invalidator and audit may be nil.
func NewService(repo RepositoryPort, perms PermissionLookup, invalidator shared.Invalidator, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, perms: perms, invalidator: invalidator, audit: audit}
}

// Create persists a non-system role and assigns PermissionIDs when present.
func (s *Service) Create(ctx context.Context, in CreateInput) (Role, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return Role{}, err
	}
	var created Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		if _, err := repo.GetByName(ctx, name); err == nil {
			return fmt.Errorf("roles: name %q taken: %w", name, shared.ErrConflict)
		} else if !shared.IsNotFound(err) {
			return err
		}
		role, err := repo.Insert(ctx, Role{
			ID:          uuid.NewString(),
			Name:        name,
			Description: strings.TrimSpace(in.Description),
			IsDefault:   in.IsDefault,
		})
		if err != nil {
			return err
		}
		if len(in.PermissionIDs) > 0 {
			if err := repo.ReplacePermissions(ctx, role.ID, validIDs(in.PermissionIDs)); err != nil {
				return err
			}
		}
		created, err = repo.GetByID(ctx, role.ID)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return created, s.changed(ctx, "role.create", created.ID, map[string]any{"name": created.Name})
}

// Get fetches a role with its permissions.
func (s *Service) Get(ctx context.Context, id string) (Role, error) {
	if !isUUID(id) {
		return Role{}, fmt.Errorf("roles: %w", shared.ErrNotFound)
	}
	return s.repo.GetByID(ctx, id)
}

// GetByName fetches a role by exact name.
func (s *Service) GetByName(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: %w", shared.ErrNotFound)
	}
	return s.repo.GetByName(ctx, name)
}

// DefaultRole returns the role new actors should be provisioned with.
func (s *Service) DefaultRole(ctx context.Context) (Role, error) {
	return s.repo.GetDefault(ctx)
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Update applies a patch. Renaming a system role is a conflict.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Role, error) {
	if !isUUID(id) {
		return Role{}, fmt.Errorf("roles: %w", shared.ErrNotFound)
	}
	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next := current
		if in.Name != nil {
			name, err := cleanName(*in.Name)
			if err != nil {
				return err
			}
			if name != current.Name {
				if current.IsSystem {
					return fmt.Errorf("roles: system role %q cannot be renamed: %w", current.Name, shared.ErrConflict)
				}
				if _, err := repo.GetByName(ctx, name); err == nil {
					return fmt.Errorf("roles: name %q taken: %w", name, shared.ErrConflict)
				} else if !shared.IsNotFound(err) {
					return err
				}
			}
			next.Name = name
		}
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
		}
		if in.IsDefault != nil {
			next.IsDefault = *in.IsDefault
		}
		if _, err := repo.Update(ctx, next); err != nil {
			return err
		}
		if in.PermissionIDs != nil {
			if err := repo.ReplacePermissions(ctx, id, validIDs(*in.PermissionIDs)); err != nil {
				return err
			}
		}
		updated, err = repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return updated, s.changed(ctx, "role.update", id, map[string]any{"name": updated.Name})
}

// Remove deletes a non-system role. Its policies go with it.
func (s *Service) Remove(ctx context.Context, id string) error {
	if !isUUID(id) {
		return fmt.Errorf("roles: %w", shared.ErrNotFound)
	}
	var name string
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("roles: system role %q cannot be removed: %w", current.Name, shared.ErrConflict)
		}
		name = current.Name
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	return s.changed(ctx, "role.delete", id, map[string]any{"name": name})
}

// AssignPermissions replaces the role's permissions with exactly the existing ones among ids.
func (s *Service) AssignPermissions(ctx context.Context, roleID string, ids []string) (Role, error) {
	return s.mutatePermissions(ctx, "role.assign_permissions", roleID, ids, func(ctx context.Context, repo RepositoryPort) error {
		return repo.ReplacePermissions(ctx, roleID, validIDs(ids))
	})
}

// RemovePermissions detaches ids from this role. Other roles are untouched.
func (s *Service) RemovePermissions(ctx context.Context, roleID string, ids []string) (Role, error) {
	return s.mutatePermissions(ctx, "role.remove_permissions", roleID, ids, func(ctx context.Context, repo RepositoryPort) error {
		return repo.RemovePermissions(ctx, roleID, validIDs(ids))
	})
}

func (s *Service) mutatePermissions(ctx context.Context, action, roleID string, ids []string, fn func(context.Context, RepositoryPort) error) (Role, error) {
	if !isUUID(roleID) {
		return Role{}, fmt.Errorf("roles: %w", shared.ErrNotFound)
	}
	var result Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		if _, err := repo.GetByID(ctx, roleID); err != nil {
			return err
		}
		if err := fn(ctx, repo); err != nil {
			return err
		}
		var err error
		result, err = repo.GetByID(ctx, roleID)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return result, s.changed(ctx, action, roleID, map[string]any{"permissionIds": ids})
}

// HasPermission reports whether the role grants name, honouring manage wildcards.
func (s *Service) HasPermission(ctx context.Context, roleID, name string) (bool, error) {
	role, err := s.Get(ctx, roleID)
	if err != nil {
		return false, err
	}
	return role.PermissionSet().Has(name), nil
}

func (s *Service) changed(ctx context.Context, action, entityID string, meta map[string]any) error {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{ActorID: shared.ActorID(ctx), Action: action, Entity: "role", EntityID: entityID, Meta: meta})
	}
	if s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		return fmt.Errorf("roles: %v: %w", err, shared.ErrInvalidation)
	}
	return nil
}

func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("roles: name required: %w", shared.ErrValidation)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("roles: name longer than %d: %w", maxNameLength, shared.ErrValidation)
	}
	return name, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validIDs drops ids that cannot name any permission and de-duplicates the rest.
func validIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !isUUID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
