package authz

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// ValueFunc extracts a single value from the request, "" when absent.
type ValueFunc func(r *http.Request) string

// AttributeFunc contributes attributes for policy evaluation.
type AttributeFunc func(r *http.Request) map[string]string

// OperationDescriptor is the authorization metadata of one route. Build it once
// when the route is registered; it is read-only afterwards.
type OperationDescriptor struct {
	Name                string
	IsPublic            bool
	RequiredPermissions []string
	ResourceType        permissions.ResourceType
	ResourceID          ValueFunc
	Attributes          AttributeFunc
}

// HasResourceCheck reports whether attribute policies apply to the operation.
func (d OperationDescriptor) HasResourceCheck() bool {
	return d.ResourceType != ""
}

func (d OperationDescriptor) resourceID(r *http.Request) string {
	if d.ResourceID == nil || r == nil {
		return ""
	}
	return d.ResourceID(r)
}

func (d OperationDescriptor) attributes(r *http.Request) map[string]string {
	if d.Attributes == nil || r == nil {
		return map[string]string{}
	}
	attrs := d.Attributes(r)
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}

// Builder assembles an OperationDescriptor.
type Builder struct {
	desc  OperationDescriptor
	attrs []AttributeFunc
}

// Operation starts a descriptor for a protected route.
func Operation(name string) *Builder {
	return &Builder{desc: OperationDescriptor{Name: name}}
}

// Public returns a descriptor that skips both stages.
func Public(name string) OperationDescriptor {
	return OperationDescriptor{Name: name, IsPublic: true}
}

// Require adds permissions; holding any one of them passes the RBAC stage.
func (b *Builder) Require(perms ...string) *Builder {
	b.desc.RequiredPermissions = append(b.desc.RequiredPermissions, perms...)
	return b
}

// OnResource enables the attribute policy stage for rt.
func (b *Builder) OnResource(rt permissions.ResourceType) *Builder {
	b.desc.ResourceType = rt
	return b
}

// ResourceIDFrom sets where the resource instance id comes from.
func (b *Builder) ResourceIDFrom(fn ValueFunc) *Builder {
	b.desc.ResourceID = fn
	return b
}

// AttributesFrom adds attribute sources. Later sources win on key collisions.
func (b *Builder) AttributesFrom(fns ...AttributeFunc) *Builder {
	b.attrs = append(b.attrs, fns...)
	return b
}

// Build returns an immutable descriptor.
func (b *Builder) Build() OperationDescriptor {
	desc := b.desc
	desc.RequiredPermissions = permissions.Normalize(desc.RequiredPermissions)
	if len(b.attrs) > 0 {
		desc.Attributes = MergeAttributes(append([]AttributeFunc(nil), b.attrs...)...)
	}
	return desc
}

// URLParam reads a chi route parameter.
func URLParam(name string) ValueFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(chi.URLParam(r, name))
	}
}

// QueryParam reads a query string value.
func QueryParam(name string) ValueFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.URL.Query().Get(name))
	}
}

// Static always yields value.
func Static(value string) ValueFunc {
	return func(*http.Request) string { return value }
}

// Attribute exposes a ValueFunc result under key, omitting it when empty.
func Attribute(key string, fn ValueFunc) AttributeFunc {
	return func(r *http.Request) map[string]string {
		value := fn(r)
		if value == "" {
			return nil
		}
		return map[string]string{key: value}
	}
}

// QueryAttribute exposes a query string value under the same key.
func QueryAttribute(name string) AttributeFunc {
	return Attribute(name, QueryParam(name))
}

// HeaderAttribute exposes a request header under key. Intended for services
// mounting their own descriptors behind a gateway that forwards attributes.
func HeaderAttribute(key, header string) AttributeFunc {
	return Attribute(key, func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(header))
	})
}

// ActorAttribute exposes the authenticated actor's id under key.
func ActorAttribute(key string) AttributeFunc {
	return Attribute(key, func(r *http.Request) string {
		return shared.ActorID(r.Context())
	})
}

// StaticAttributes always yields a copy of attrs.
func StaticAttributes(attrs map[string]string) AttributeFunc {
	frozen := make(map[string]string, len(attrs))
	for k, v := range attrs {
		frozen[k] = v
	}
	return func(*http.Request) map[string]string {
		out := make(map[string]string, len(frozen))
		for k, v := range frozen {
			out[k] = v
		}
		return out
	}
}

// MergeAttributes combines sources left to right.
func MergeAttributes(fns ...AttributeFunc) AttributeFunc {
	return func(r *http.Request) map[string]string {
		out := map[string]string{}
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			for k, v := range fn(r) {
				out[k] = v
			}
		}
		return out
	}
}

// DefaultAttributes returns the attribute sources conventionally used for rt:
// the actor id as userId for profiles and the departmentId query value for users.
// User and profile routes live in the services that own those entities; they
// call this when building their descriptors.
func DefaultAttributes(rt permissions.ResourceType) AttributeFunc {
	switch rt {
	case permissions.ResourceProfile:
		return ActorAttribute("userId")
	case permissions.ResourceUser:
		return QueryAttribute("departmentId")
	default:
		return nil
	}
}
