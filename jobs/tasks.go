package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const (
	// QueueAudit carries audit deliveries.
	QueueAudit = "audit"
	// QueueDefault carries maintenance tasks.
	QueueDefault = "default"
	// TaskAuditRecord persists one audit entry.
	TaskAuditRecord = "audit:record"
	// TaskRBACBootstrap registers the default catalog and system roles.
	TaskRBACBootstrap = "rbac:bootstrap"
)

// AuditRecordPayload is the wire form of an audit entry.
type AuditRecordPayload struct {
	Log shared.AuditLog `json:"log"`
}

// NewAuditRecordTask constructs an audit:record task.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(AuditRecordPayload{Log: log})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.MaxRetry(5)), nil
}

// RBACBootstrapPayload selects the bootstrap steps. Both run by default.
type RBACBootstrapPayload struct {
	SkipRoles bool `json:"skip_roles,omitempty"`
}

// NewRBACBootstrapTask constructs an rbac:bootstrap task.
func NewRBACBootstrapTask(payload RBACBootstrapPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACBootstrap, data), nil
}
