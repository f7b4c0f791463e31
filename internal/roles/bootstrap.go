package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Seed describes a built-in role.
type Seed struct {
	Name        string
	Description string
	IsDefault   bool
	Permissions []string
}

// DefaultSeeds returns the built-in system roles.
func DefaultSeeds() []Seed {
	return []Seed{
		{
			Name:        "ADMIN",
			Description: "Full administrative access",
			Permissions: []string{"manage:user", "manage:role", "manage:setting", "read:report", "export:report", "read:log"},
		},
		{
			Name:        "MODERATOR",
			Description: "Manages users and reviews reports",
			Permissions: []string{"read:user", "update:user", "read:profile", "update:profile", "read:report"},
		},
		{
			Name:        "USER",
			Description: "Regular user",
			IsDefault:   true,
			Permissions: []string{"read:profile", "update:profile"},
		},
	}
}

// Bootstrap creates any missing system role. Existing roles keep whatever
// permissions administrators gave them. Seed permissions that are not
// registered are skipped with a warning.
func (s *Service) Bootstrap(ctx context.Context, logger *slog.Logger) ([]Role, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seeds := DefaultSeeds()
	out := make([]Role, 0, len(seeds))
	created := false
	for _, seed := range seeds {
		role, isNew, err := s.ensureSeed(ctx, seed, logger)
		if err != nil {
			return nil, fmt.Errorf("roles: bootstrap %s: %w", seed.Name, err)
		}
		created = created || isNew
		out = append(out, role)
	}
	if created {
		if err := s.changed(ctx, "role.bootstrap", "system", nil); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Service) ensureSeed(ctx context.Context, seed Seed, logger *slog.Logger) (Role, bool, error) {
	existing, err := s.repo.GetByName(ctx, seed.Name)
	if err == nil {
		return existing, false, nil
	}
	if !shared.IsNotFound(err) {
		return Role{}, false, err
	}

	ids := make([]string, 0, len(seed.Permissions))
	for _, name := range seed.Permissions {
		if s.perms == nil {
			break
		}
		p, err := s.perms.FindByName(ctx, name)
		if err != nil {
			if shared.IsNotFound(err) {
				logger.Warn("bootstrap role permission missing", slog.String("role", seed.Name), slog.String("permission", name))
				continue
			}
			return Role{}, false, err
		}
		ids = append(ids, p.ID)
	}

	var role Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		inserted, err := repo.Insert(ctx, Role{
			ID:          uuid.NewString(),
			Name:        seed.Name,
			Description: seed.Description,
			IsSystem:    true,
			IsDefault:   seed.IsDefault,
		})
		if err != nil {
			return err
		}
		if err := repo.ReplacePermissions(ctx, inserted.ID, ids); err != nil {
			return err
		}
		role, err = repo.GetByID(ctx, inserted.ID)
		return err
	})
	if errors.Is(err, shared.ErrConflict) {
		// Another node seeded it first.
		existing, getErr := s.repo.GetByName(ctx, seed.Name)
		return existing, false, getErr
	}
	if err != nil {
		return Role{}, false, err
	}
	logger.Info("bootstrap role created", slog.String("role", role.Name), slog.Int("permissions", len(role.Permissions)))
	return role, true, nil
}
