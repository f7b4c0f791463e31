package roles

import "context"

// Lookup resolves a role by name.
type Lookup interface {
	GetByName(ctx context.Context, name string) (Role, error)
}

// JSONCache is the read-through cache used by CachedLookup.
type JSONCache interface {
	FetchJSON(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error
}

// CachedLookup serves role reads for the authorization path from cache.
// Misses and lookup errors are not cached.
type CachedLookup struct {
	source Lookup
	cache  JSONCache
}

// NewCachedLookup wraps source. A nil cache reads straight through.
func NewCachedLookup(source Lookup, cache JSONCache) *CachedLookup {
	return &CachedLookup{source: source, cache: cache}
}

// GetByName returns the role, consulting the cache first.
func (l *CachedLookup) GetByName(ctx context.Context, name string) (Role, error) {
	if l.cache == nil {
		return l.source.GetByName(ctx, name)
	}
	var role Role
	err := l.cache.FetchJSON(ctx, &role, func(ctx context.Context) (any, error) {
		return l.source.GetByName(ctx, name)
	}, "role", name)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}
