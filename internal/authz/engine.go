package authz

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ovr-admin/ovr-admin/internal/policies"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// RoleLookup resolves the actor's role.
type RoleLookup interface {
	GetByName(ctx context.Context, name string) (roles.Role, error)
}

// PolicyDecider evaluates attribute policies.
type PolicyDecider interface {
	Decide(ctx context.Context, req policies.Request) (policies.Outcome, error)
}

// DecisionObserver counts decisions.
type DecisionObserver interface {
	ObserveDecision(allowed bool, reason string)
}

// EngineConfig collects the engine dependencies. Logger, Observer and Audit are optional.
type EngineConfig struct {
	Roles    RoleLookup
	Policies PolicyDecider
	Logger   *slog.Logger
	Observer DecisionObserver
	Audit    shared.AuditRecorder
}

// Engine decides whether an actor may perform an operation. It keeps no
// per-request state and is safe for concurrent use.
type Engine struct {
	roles    RoleLookup
	policies PolicyDecider
	logger   *slog.Logger
	observer DecisionObserver
	audit    shared.AuditRecorder
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{roles: cfg.Roles, policies: cfg.Policies, logger: logger, observer: cfg.Observer, audit: cfg.Audit}
}

// Authorize runs the RBAC stage and, when the operation names a resource type,
// the attribute policy stage. r feeds the descriptor's accessors and may be nil.
func (e *Engine) Authorize(ctx context.Context, actor *shared.Actor, op OperationDescriptor, r *http.Request) Decision {
	d := e.decide(ctx, actor, op, r)
	e.record(ctx, actor, op, r, d)
	return d
}

func (e *Engine) decide(ctx context.Context, actor *shared.Actor, op OperationDescriptor, r *http.Request) Decision {
	if op.IsPublic {
		return allow(op.Name)
	}
	if actor == nil {
		return deny(op.Name, ReasonUnauthenticated, "no actor")
	}
	roleName := strings.TrimSpace(actor.RoleName)
	if roleName == "" {
		return deny(op.Name, ReasonMissingRoleAssignment, "actor carries no role")
	}
	role, err := e.roles.GetByName(ctx, roleName)
	if err != nil {
		if shared.IsNotFound(err) {
			return deny(op.Name, ReasonMissingRoleAssignment, fmt.Sprintf("role %q does not exist", roleName))
		}
		return deny(op.Name, ReasonStoreUnavailable, "role lookup: "+err.Error())
	}

	if len(op.RequiredPermissions) > 0 && !role.PermissionSet().HasAny(op.RequiredPermissions) {
		d := deny(op.Name, ReasonPermissionDenied, fmt.Sprintf("role %q lacks all of %v", role.Name, op.RequiredPermissions))
		d.Required = append([]string(nil), op.RequiredPermissions...)
		return d
	}

	if !op.HasResourceCheck() {
		return allow(op.Name)
	}
	req := policies.Request{
		RoleIDs:      []string{role.ID},
		ResourceType: op.ResourceType,
		ResourceID:   op.resourceID(r),
		Attributes:   op.attributes(r),
	}
	outcome, err := e.policies.Decide(ctx, req)
	if err != nil {
		return deny(op.Name, ReasonStoreUnavailable, "policy lookup: "+err.Error())
	}
	if !outcome.Allowed {
		return deny(op.Name, ReasonPolicyDenied, fmt.Sprintf("rule=%s policy=%s resource=%s/%s", outcome.Rule, outcome.PolicyID, req.ResourceType, req.ResourceID))
	}
	return allow(op.Name)
}

func (e *Engine) record(ctx context.Context, actor *shared.Actor, op OperationDescriptor, r *http.Request, d Decision) {
	if e.observer != nil {
		e.observer.ObserveDecision(d.Allowed, string(d.Reason))
	}
	if d.Allowed {
		return
	}
	actorID, roleName := "", ""
	if actor != nil {
		actorID, roleName = actor.ID, actor.RoleName
	}
	attrs := []any{
		slog.String("operation", op.Name),
		slog.String("actor", actorID),
		slog.String("role", roleName),
		slog.String("reason", string(d.Reason)),
		slog.String("detail", d.Detail),
	}
	if d.Reason == ReasonStoreUnavailable {
		e.logger.Error("authorization failed closed", attrs...)
	} else {
		e.logger.Warn("authorization denied", attrs...)
	}
	if e.audit == nil || d.Reason == ReasonUnauthenticated {
		return
	}
	meta := map[string]any{"reason": string(d.Reason), "role": roleName, "detail": d.Detail}
	if op.HasResourceCheck() {
		meta["resourceType"] = string(op.ResourceType)
		meta["resourceId"] = op.resourceID(r)
	}
	if err := e.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: "authz.deny", Entity: "operation", EntityID: op.Name, Meta: meta}); err != nil {
		e.logger.Warn("authorization audit", slog.Any("error", err))
	}
}
