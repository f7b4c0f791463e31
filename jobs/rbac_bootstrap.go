package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ovr-admin/ovr-admin/internal/jobs"
	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/roles"
)

// CatalogBootstrapper registers the default permission catalog.
type CatalogBootstrapper interface {
	Bootstrap(ctx context.Context) ([]permissions.Permission, error)
}

// RoleBootstrapper creates missing system roles.
type RoleBootstrapper interface {
	Bootstrap(ctx context.Context, logger *slog.Logger) ([]roles.Role, error)
}

// RBACBootstrapJob re-applies the default catalog and roles. Both steps are
// idempotent, so the task is safe to schedule.
type RBACBootstrapJob struct {
	Permissions CatalogBootstrapper
	Roles       RoleBootstrapper
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewRBACBootstrapJob wires the bootstrap handler.
func NewRBACBootstrapJob(perms CatalogBootstrapper, roleSvc RoleBootstrapper, logger *slog.Logger, metrics *jobmetrics.Metrics) *RBACBootstrapJob {
	return &RBACBootstrapJob{Permissions: perms, Roles: roleSvc, Logger: logger, Metrics: metrics}
}

// Handle processes rbac:bootstrap tasks.
func (j *RBACBootstrapJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Permissions == nil {
		return errors.New("rbac bootstrap: handler not configured")
	}
	var payload RBACBootstrapPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskRBACBootstrap)
	defer func() { err = tracker.End(err) }()

	log := logger(j.Logger)
	catalog, err := j.Permissions.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("rbac bootstrap: permissions: %w", err)
	}
	created := 0
	if !payload.SkipRoles && j.Roles != nil {
		seeded, err := j.Roles.Bootstrap(ctx, log)
		if err != nil {
			return fmt.Errorf("rbac bootstrap: roles: %w", err)
		}
		created = len(seeded)
	}
	log.Info("rbac bootstrap done", slog.Int("permissions", len(catalog)), slog.Int("roles", created))
	return nil
}
