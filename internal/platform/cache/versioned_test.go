package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string   `json:"name"`
	Perms []string `json:"perms"`
}

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "authz", time.Minute, nil), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "ADMIN", Perms: []string{"manage:user"}}, nil
	}

	var first payload
	require.NoError(t, c.FetchJSON(ctx, &first, loader, "role", "ADMIN"))
	var second payload
	require.NoError(t, c.FetchJSON(ctx, &second, loader, "role", "ADMIN"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	require.NoError(t, c.Bump(ctx))

	var third payload
	require.NoError(t, c.FetchJSON(ctx, &third, loader, "role", "ADMIN"))
	assert.Equal(t, 2, calls)
}

func TestVersionInitialisesAndBumpIncrements(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ver, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	require.NoError(t, c.Bump(ctx))
	got, err := mr.Get("authz:version")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	key, err := c.BuildKey(ctx, "policies", "r1", "user")
	require.NoError(t, err)
	assert.Equal(t, "authz:policies:r1:user:2", key)
}

func TestFetchJSONDoesNotCacheLoaderErrors(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return nil, boom
	}

	var dest payload
	require.ErrorIs(t, c.FetchJSON(ctx, &dest, loader, "role", "USER"), boom)
	require.ErrorIs(t, c.FetchJSON(ctx, &dest, loader, "role", "USER"), boom)
	assert.Equal(t, 2, calls)
}

func TestFetchJSONFallsBackWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var dest payload
	err := c.FetchJSON(context.Background(), &dest, func(context.Context) (any, error) {
		return payload{Name: "USER"}, nil
	}, "role", "USER")
	require.NoError(t, err)
	assert.Equal(t, "USER", dest.Name)
}

func TestBumpFailsWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	require.Error(t, c.Bump(context.Background()))
}

func TestDisabledCachePassesThrough(t *testing.T) {
	c := NewVersioned(nil, "authz", time.Minute, nil)
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "X"}, nil
	}
	var dest payload
	require.NoError(t, c.FetchJSON(context.Background(), &dest, loader, "k"))
	require.NoError(t, c.FetchJSON(context.Background(), &dest, loader, "k"))
	assert.Equal(t, 2, calls)
	assert.NoError(t, c.Bump(context.Background()))
	assert.False(t, c.Enabled())
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), addr)
	assert.Error(t, err)
}

func TestFailedBumpStopsServingCachedEntries(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	name := "ADMIN"
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: name}, nil
	}

	var dest payload
	require.NoError(t, c.FetchJSON(ctx, &dest, loader, "role", "ADMIN"))
	require.Equal(t, 1, calls)

	mr.SetError("READONLY You can't write against a read only replica.")
	name = "ADMIN-v2"
	require.Error(t, c.Bump(ctx))

	require.NoError(t, c.FetchJSON(ctx, &dest, loader, "role", "ADMIN"))
	assert.Equal(t, "ADMIN-v2", dest.Name)
	assert.Equal(t, 2, calls)

	mr.SetError("")
	require.NoError(t, c.FetchJSON(ctx, &dest, loader, "role", "ADMIN"))
	assert.Equal(t, "ADMIN-v2", dest.Name)
	assert.Equal(t, 3, calls)
	ver, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	require.NoError(t, c.FetchJSON(ctx, &dest, loader, "role", "ADMIN"))
	assert.Equal(t, 3, calls)
}
