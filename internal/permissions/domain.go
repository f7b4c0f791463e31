package permissions

import (
	"sort"
	"strings"
	"time"
)

// Action is the verb half of a permission.
type Action string

// Supported actions. ActionManage implies every other action on the same resource type.
const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage,
	ActionApprove, ActionReject, ActionExport, ActionImport,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// ResourceType names a protected kind of entity.
type ResourceType string

// Supported resource types.
const (
	ResourceUser       ResourceType = "user"
	ResourceProfile    ResourceType = "profile"
	ResourceRole       ResourceType = "role"
	ResourcePermission ResourceType = "permission"
	ResourceSetting    ResourceType = "setting"
	ResourceReport     ResourceType = "report"
	ResourceLog        ResourceType = "log"
)

// ResourceTypes lists every supported resource type.
var ResourceTypes = []ResourceType{
	ResourceUser, ResourceProfile, ResourceRole, ResourcePermission,
	ResourceSetting, ResourceReport, ResourceLog,
}

// Valid reports whether rt is a known resource type.
func (rt ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if rt == known {
			return true
		}
	}
	return false
}

// Permission is an atomic capability identified by "{action}:{resourceType}".
type Permission struct {
	ID           string       `json:"id"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resourceType"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Name builds the canonical permission name.
func Name(action Action, resourceType ResourceType) string {
	return string(action) + ":" + string(resourceType)
}

// ParseName splits a permission name. ok is false when either half is unknown.
func ParseName(name string) (Action, ResourceType, bool) {
	action, resource, found := strings.Cut(normalize(name), ":")
	if !found {
		return "", "", false
	}
	a, rt := Action(action), ResourceType(resource)
	if !a.Valid() || !rt.Valid() {
		return "", "", false
	}
	return a, rt, true
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Set is a canonical permission set: manage:X has been expanded to every action on X.
type Set map[string]struct{}

// Canonicalize normalizes names and expands manage wildcards.
func Canonicalize(names []string) Set {
	set := make(Set, len(names))
	for _, raw := range names {
		name := normalize(raw)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
		action, rt, ok := ParseName(name)
		if !ok || action != ActionManage {
			continue
		}
		for _, a := range Actions {
			set[Name(a, rt)] = struct{}{}
		}
	}
	return set
}

// Has reports whether name is granted, either directly or through manage on its resource type.
func (s Set) Has(name string) bool {
	name = normalize(name)
	if _, ok := s[name]; ok {
		return true
	}
	if _, resource, found := strings.Cut(name, ":"); found {
		_, ok := s[string(ActionManage)+":"+resource]
		return ok
	}
	return false
}

// HasAny reports whether at least one of names is granted.
func (s Set) HasAny(names []string) bool {
	for _, name := range names {
		if s.Has(name) {
			return true
		}
	}
	return false
}

// Names returns the set sorted.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Normalize lowercases, trims and de-duplicates permission names, preserving first-seen order.
func Normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := normalize(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
