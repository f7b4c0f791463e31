package policies

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// RepositoryPort defines data access methods for policies.
type RepositoryPort interface {
	Source
	Insert(ctx context.Context, p Policy) (Policy, error)
	GetByID(ctx context.Context, id string) (Policy, error)
	List(ctx context.Context, filter ListFilter) ([]Policy, error)
	Update(ctx context.Context, p Policy) (Policy, error)
	Delete(ctx context.Context, id string) error
}

// RoleGetter confirms a role exists before a policy references it.
type RoleGetter interface {
	Get(ctx context.Context, id string) (roles.Role, error)
}

// Service administers policies and evaluates them against the store.
type Service struct {
	repo        RepositoryPort
	roles       RoleGetter
	evaluator   *Evaluator
	invalidator shared.Invalidator
	audit       shared.AuditRecorder
}

// NewService builds Service instance. roles, invalidator and audit may be nil.
func NewService(repo RepositoryPort, roles RoleGetter, invalidator shared.Invalidator, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, roles: roles, evaluator: NewEvaluator(repo), invalidator: invalidator, audit: audit}
}

// CheckAccess evaluates the policies of roleIDs against the store directly.
func (s *Service) CheckAccess(ctx context.Context, roleIDs []string, resourceType permissions.ResourceType, resourceID string, attributes map[string]string) (bool, error) {
	return s.evaluator.CheckAccess(ctx, roleIDs, resourceType, resourceID, attributes)
}

// Decide is CheckAccess with the rule that produced the verdict.
func (s *Service) Decide(ctx context.Context, req Request) (Outcome, error) {
	return s.evaluator.Decide(ctx, req)
}

// Create stores a policy for an existing role.
func (s *Service) Create(ctx context.Context, in CreateInput) (Policy, error) {
	p := Policy{
		ID:             uuid.NewString(),
		RoleID:         strings.TrimSpace(in.RoleID),
		ResourceType:   in.ResourceType,
		ResourceID:     strings.TrimSpace(in.ResourceID),
		AttributeName:  strings.TrimSpace(in.AttributeName),
		AttributeValue: strings.TrimSpace(in.AttributeValue),
		Condition:      true,
	}
	if in.Condition != nil {
		p.Condition = *in.Condition
	}
	if err := s.validate(ctx, p); err != nil {
		return Policy{}, err
	}
	stored, err := s.repo.Insert(ctx, p)
	if err != nil {
		return Policy{}, err
	}
	return stored, s.changed(ctx, "policy.create", stored)
}

// Get fetches a policy by id.
func (s *Service) Get(ctx context.Context, id string) (Policy, error) {
	if !isUUID(id) {
		return Policy{}, fmt.Errorf("policies: %w", shared.ErrNotFound)
	}
	return s.repo.GetByID(ctx, id)
}

// List returns policies, optionally filtered by role and resource type.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Policy, error) {
	if filter.RoleID != "" && !isUUID(filter.RoleID) {
		return []Policy{}, nil
	}
	if filter.ResourceType != "" && !filter.ResourceType.Valid() {
		return nil, fmt.Errorf("policies: unknown resource type %q: %w", filter.ResourceType, shared.ErrValidation)
	}
	return s.repo.List(ctx, filter)
}

// Update applies a patch.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Policy, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	next := current
	if in.RoleID != nil {
		next.RoleID = strings.TrimSpace(*in.RoleID)
	}
	if in.ResourceType != nil {
		next.ResourceType = *in.ResourceType
	}
	if in.ResourceID != nil {
		next.ResourceID = strings.TrimSpace(*in.ResourceID)
	}
	if in.AttributeName != nil {
		next.AttributeName = strings.TrimSpace(*in.AttributeName)
	}
	if in.AttributeValue != nil {
		next.AttributeValue = strings.TrimSpace(*in.AttributeValue)
	}
	if in.Condition != nil {
		next.Condition = *in.Condition
	}
	if err := s.validate(ctx, next); err != nil {
		return Policy{}, err
	}
	stored, err := s.repo.Update(ctx, next)
	if err != nil {
		return Policy{}, err
	}
	return stored, s.changed(ctx, "policy.update", stored)
}

// Delete removes a policy.
func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.changed(ctx, "policy.delete", current)
}

func (s *Service) validate(ctx context.Context, p Policy) error {
	if !p.ResourceType.Valid() {
		return fmt.Errorf("policies: unknown resource type %q: %w", p.ResourceType, shared.ErrValidation)
	}
	if !p.General() && !p.AttributeScoped() {
		return fmt.Errorf("policies: attribute name and value must be set together: %w", shared.ErrValidation)
	}
	if !isUUID(p.RoleID) {
		return fmt.Errorf("policies: role %q: %w", p.RoleID, shared.ErrNotFound)
	}
	if s.roles != nil {
		if _, err := s.roles.Get(ctx, p.RoleID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) changed(ctx context.Context, action string, p Policy) error {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorID(ctx),
			Action:   action,
			Entity:   "policy",
			EntityID: p.ID,
			Meta:     map[string]any{"roleId": p.RoleID, "resourceType": string(p.ResourceType), "condition": p.Condition},
		})
	}
	if s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		return fmt.Errorf("policies: %v: %w", err, shared.ErrInvalidation)
	}
	return nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
