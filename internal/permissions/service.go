package permissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const maxDescriptionLength = 255

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	Insert(ctx context.Context, p Permission) (Permission, bool, error)
	GetByID(ctx context.Context, id string) (Permission, error)
	GetByName(ctx context.Context, name string) (Permission, error)
	List(ctx context.Context, filter ListFilter) ([]Permission, error)
	UpdateDescription(ctx context.Context, id, description string) (Permission, error)
	Delete(ctx context.Context, id string) error
}

// Service is the permission registry.
type Service struct {
	repo        RepositoryPort
	invalidator shared.Invalidator
	audit       shared.AuditRecorder
}

// NewService builds Service instance. invalidator and audit may be nil.
func NewService(repo RepositoryPort, invalidator shared.Invalidator, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, invalidator: invalidator, audit: audit}
}

// Register returns the permission named action:resourceType, creating it when
// missing. An existing permission is returned unchanged, including its description.
func (s *Service) Register(ctx context.Context, action Action, resourceType ResourceType, description string) (Permission, error) {
	if !action.Valid() {
		return Permission{}, fmt.Errorf("permissions: unknown action %q: %w", action, shared.ErrValidation)
	}
	if !resourceType.Valid() {
		return Permission{}, fmt.Errorf("permissions: unknown resource type %q: %w", resourceType, shared.ErrValidation)
	}
	description = strings.TrimSpace(description)
	if len(description) > maxDescriptionLength {
		return Permission{}, fmt.Errorf("permissions: description too long: %w", shared.ErrValidation)
	}
	name := Name(action, resourceType)
	existing, err := s.repo.GetByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !shared.IsNotFound(err) {
		return Permission{}, err
	}
	stored, created, err := s.repo.Insert(ctx, Permission{
		ID:           uuid.NewString(),
		Action:       action,
		ResourceType: resourceType,
		Name:         name,
		Description:  description,
	})
	if err != nil {
		return Permission{}, err
	}
	if created {
		if err := s.changed(ctx, "permission.register", stored.ID, map[string]any{"name": stored.Name}); err != nil {
			return stored, err
		}
	}
	return stored, nil
}

// FindByName returns shared.ErrNotFound when no permission has that name.
func (s *Service) FindByName(ctx context.Context, name string) (Permission, error) {
	return s.repo.GetByName(ctx, normalize(name))
}

// FindByActionAndResource looks up action:resourceType.
func (s *Service) FindByActionAndResource(ctx context.Context, action Action, resourceType ResourceType) (Permission, error) {
	return s.repo.GetByName(ctx, Name(action, resourceType))
}

// ListByResourceType returns every permission on resourceType.
func (s *Service) ListByResourceType(ctx context.Context, resourceType ResourceType) ([]Permission, error) {
	if !resourceType.Valid() {
		return nil, fmt.Errorf("permissions: unknown resource type %q: %w", resourceType, shared.ErrValidation)
	}
	return s.repo.List(ctx, ListFilter{ResourceType: resourceType})
}

// List returns all permissions ordered by name.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx, ListFilter{})
}

// Get fetches a permission by id.
func (s *Service) Get(ctx context.Context, id string) (Permission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Permission{}, fmt.Errorf("permissions: %w", shared.ErrNotFound)
	}
	return s.repo.GetByID(ctx, id)
}

// UpdateDescription is the only mutation allowed on an existing permission.
func (s *Service) UpdateDescription(ctx context.Context, id, description string) (Permission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Permission{}, fmt.Errorf("permissions: %w", shared.ErrNotFound)
	}
	description = strings.TrimSpace(description)
	if len(description) > maxDescriptionLength {
		return Permission{}, fmt.Errorf("permissions: description too long: %w", shared.ErrValidation)
	}
	p, err := s.repo.UpdateDescription(ctx, id, description)
	if err != nil {
		return Permission{}, err
	}
	return p, s.changed(ctx, "permission.update", p.ID, map[string]any{"name": p.Name})
}

// Delete removes a permission and, through the schema, every role assignment of it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("permissions: %w", shared.ErrNotFound)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.changed(ctx, "permission.delete", id, nil)
}

func (s *Service) changed(ctx context.Context, action, entityID string, meta map[string]any) error {
	if s.audit != nil {
		// Audit is best effort; the write already happened.
		_ = s.audit.Record(ctx, shared.AuditLog{ActorID: shared.ActorID(ctx), Action: action, Entity: "permission", EntityID: entityID, Meta: meta})
	}
	if s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		return fmt.Errorf("permissions: %v: %w", err, shared.ErrInvalidation)
	}
	return nil
}
