package policies

import (
	"time"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
)

// Policy narrows or widens a role's access to a resource type. Empty strings
// mean the optional field is unset.
type Policy struct {
	ID             string                   `json:"id"`
	RoleID         string                   `json:"roleId"`
	ResourceType   permissions.ResourceType `json:"resourceType"`
	ResourceID     string                   `json:"resourceId,omitempty"`
	AttributeName  string                   `json:"attributeName,omitempty"`
	AttributeValue string                   `json:"attributeValue,omitempty"`
	Condition      bool                     `json:"condition"`
	CreatedAt      time.Time                `json:"createdAt"`
}

// InstanceScoped reports whether the policy targets a single resource id.
func (p Policy) InstanceScoped() bool {
	return p.ResourceID != ""
}

// AttributeScoped reports whether both attribute fields are set.
func (p Policy) AttributeScoped() bool {
	return p.AttributeName != "" && p.AttributeValue != ""
}

// General reports whether neither attribute field is set. A policy with only
// one of the two is neither general nor attribute-scoped.
func (p Policy) General() bool {
	return p.AttributeName == "" && p.AttributeValue == ""
}

// ListFilter narrows admin listings.
type ListFilter struct {
	RoleID       string
	ResourceType permissions.ResourceType
}

// CreateInput carries a new policy. Condition defaults to true.
type CreateInput struct {
	RoleID         string
	ResourceType   permissions.ResourceType
	ResourceID     string
	AttributeName  string
	AttributeValue string
	Condition      *bool
}

// UpdateInput is a patch; nil fields are left unchanged. Setting a string
// field to "" clears it.
type UpdateInput struct {
	RoleID         *string
	ResourceType   *permissions.ResourceType
	ResourceID     *string
	AttributeName  *string
	AttributeValue *string
	Condition      *bool
}
