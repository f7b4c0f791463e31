package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const bumpChannelSuffix = "bump"

// Versioned is a read-through JSON cache whose entries are all keyed under one
// generation counter. Bump increments the counter so every older entry becomes
// unreachable at once; stale keys simply age out through the TTL.
type Versioned struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
	group     singleflight.Group
	// stale is set when a bump could not be written. Reads bypass Redis
	// until a later bump succeeds.
	stale atomic.Bool
}

// NewVersioned instantiates the cache helper. A nil client disables caching and
// every fetch goes straight to the loader.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration, logger *slog.Logger) *Versioned {
	if logger == nil {
		logger = slog.Default()
	}
	return &Versioned{client: client, namespace: namespace, ttl: ttl, logger: logger}
}

func (c *Versioned) versionKey() string {
	return c.namespace + ":version"
}

func (c *Versioned) channel() string {
	return c.namespace + ":" + bumpChannelSuffix
}

// Enabled reports whether a Redis client backs the cache.
func (c *Versioned) Enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so two nodes initialising concurrently agree on the same value.
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey(), ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Versioned) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := c.namespace + ":" + strings.Join(parts, ":")
	if !c.Enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. Redis
// failures never fail the read: the loader result is returned and the error is
// logged. Loader errors are returned untouched and nothing is cached.
func (c *Versioned) FetchJSON(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if !c.Enabled() {
		return loadInto(ctx, dest, loader)
	}
	if c.stale.Load() {
		if err := c.incr(ctx); err != nil {
			return loadInto(ctx, dest, loader)
		}
		c.stale.Store(false)
		c.logger.Info("cache invalidation recovered", slog.String("namespace", c.namespace))
	}
	key, err := c.BuildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("cache version unavailable", slog.String("namespace", c.namespace), slog.Any("error", err))
		return loadInto(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(payload, dest); jsonErr == nil {
			return nil
		}
		c.logger.Warn("cache entry corrupt", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		return loadInto(ctx, dest, loader)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Bump invalidates the cache by incrementing the global version and publishing
// an event. A failed increment is retried once; if that also fails this
// process stops reading cached entries until a later increment succeeds.
func (c *Versioned) Bump(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	err := c.incr(ctx)
	if err != nil {
		err = c.incr(ctx)
	}
	if err != nil {
		c.stale.Store(true)
		return fmt.Errorf("platform/cache: bump: %w", err)
	}
	c.stale.Store(false)
	return nil
}

func (c *Versioned) incr(ctx context.Context) error {
	ver, err := c.client.Incr(ctx, c.versionKey()).Result()
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.channel(), strconv.FormatInt(ver, 10)).Err(); err != nil {
		c.logger.Warn("cache bump publish", slog.Any("error", err))
	}
	return nil
}

// Subscribe invokes fn with each new version announced by Bump until ctx is done.
func (c *Versioned) Subscribe(ctx context.Context, fn func(version int64)) error {
	if !c.Enabled() || fn == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, c.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("platform/cache: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				fn(ver)
			}
		}
	}()
	return nil
}

func loadInto(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
