// Package cache memoizes expensive provider calls behind a shared backing store.
//
// Identical (operation, arguments) pairs issued concurrently share one in-flight
// computation. Completed values are kept in the Store for the configured TTL.
// A failing Store never fails the caller: the value is computed directly instead.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL    = 6 * time.Hour
	defaultPrefix = "deepsearch:"

	// maxLeaderRetries bounds how often a caller re-joins a flight whose
	// leader was cancelled while the caller itself is still live.
	maxLeaderRetries = 2
)

// Store is the shared backing store for completed values.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache de-duplicates and memoizes computations. A nil *Cache computes directly.
type Cache struct {
	store  Store
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the retention period for stored values.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace used in the backing store.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithLogger sets the logger used for degraded-store warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cache over store. A nil store keeps single-flight de-duplication
// but retains nothing between calls.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the backing-store key for an operation and argument fingerprint.
func (c *Cache) Key(op, fingerprint string) string {
	return c.prefix + op + ":" + fingerprint
}

// Do returns the memoized result of compute for (op, args).
//
// Values round-trip through JSON so that a fresh computation and a stored hit
// yield identical values. Errors are shared with concurrent callers of the same
// flight but are never stored.
func Do[T any](ctx context.Context, c *Cache, op string, args any, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return compute(ctx)
	}

	fingerprint, err := Fingerprint(args)
	if err != nil {
		return zero, fmt.Errorf("cache: fingerprint %s: %w", op, err)
	}
	key := c.Key(op, fingerprint)

	for attempt := 0; ; attempt++ {
		ch := c.group.DoChan(key, func() (any, error) {
			return c.load(ctx, key, func(ctx context.Context) ([]byte, error) {
				v, err := compute(ctx)
				if err != nil {
					return nil, err
				}
				return json.Marshal(v)
			})
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res = <-ch:
		}

		if res.Err != nil {
			if isContextErr(res.Err) && ctx.Err() == nil && attempt < maxLeaderRetries {
				// The flight belonged to a caller that has since gone away.
				continue
			}
			return zero, res.Err
		}

		var out T
		if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
			return zero, fmt.Errorf("cache: decode %s: %w", op, err)
		}
		return out, nil
	}
}

func (c *Cache) load(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if c.store != nil {
		data, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("Cache store read failed, computing directly", "key", key, "error", err)
		case ok:
			c.logger.Debug("Cache hit", "key", key)
			return data, nil
		}
	}

	data, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("Cache store write failed", "key", key, "error", err)
		}
	}
	return data, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
