package policies

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
)

// Source returns the candidate policies for a set of roles on a resource type.
type Source interface {
	ListForRoles(ctx context.Context, roleIDs []string, resourceType permissions.ResourceType) ([]Policy, error)
}

// Evaluator runs Evaluate over policies read from a Source. It holds no
// mutable state and is safe for concurrent use.
type Evaluator struct {
	source Source
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(source Source) *Evaluator {
	return &Evaluator{source: source}
}

// CheckAccess reports whether the attribute policies of roleIDs allow access.
// Store failures are returned as errors and never folded into a verdict.
func (e *Evaluator) CheckAccess(ctx context.Context, roleIDs []string, resourceType permissions.ResourceType, resourceID string, attributes map[string]string) (bool, error) {
	out, err := e.Decide(ctx, Request{RoleIDs: roleIDs, ResourceType: resourceType, ResourceID: resourceID, Attributes: attributes})
	if err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// Decide evaluates req and reports the rule that decided.
func (e *Evaluator) Decide(ctx context.Context, req Request) (Outcome, error) {
	if len(req.RoleIDs) == 0 {
		return Outcome{Allowed: false, Rule: RuleNoRole}, nil
	}
	candidates, err := e.source.ListForRoles(ctx, req.RoleIDs, req.ResourceType)
	if err != nil {
		return Outcome{}, fmt.Errorf("policies: load: %w", err)
	}
	return Evaluate(candidates, req), nil
}

// JSONCache is the read-through cache used by CachedSource.
type JSONCache interface {
	FetchJSON(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error
}

// CachedSource caches candidate policy lists per role set and resource type.
type CachedSource struct {
	source Source
	cache  JSONCache
}

// NewCachedSource wraps source. A nil cache reads straight through.
func NewCachedSource(source Source, cache JSONCache) *CachedSource {
	return &CachedSource{source: source, cache: cache}
}

// ListForRoles implements Source.
func (c *CachedSource) ListForRoles(ctx context.Context, roleIDs []string, resourceType permissions.ResourceType) ([]Policy, error) {
	if c.cache == nil {
		return c.source.ListForRoles(ctx, roleIDs, resourceType)
	}
	ids := append([]string(nil), roleIDs...)
	sort.Strings(ids)
	var out []Policy
	err := c.cache.FetchJSON(ctx, &out, func(ctx context.Context) (any, error) {
		list, err := c.source.ListForRoles(ctx, ids, resourceType)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []Policy{}
		}
		return list, nil
	}, "policies", strings.Join(ids, ","), string(resourceType))
	if err != nil {
		return nil, err
	}
	return out, nil
}
