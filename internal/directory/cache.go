package directory

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "schooladmin/pkg/domain"
)

const (
	nameKeyPrefix   = "directory:name:"
	DefaultCacheTTL = 10 * time.Minute
)

// CachedResolver fronts another Resolver with a Redis read-through cache.
// Redis failures fall through to the inner resolver. When the inner resolver
// fails, the names already found are returned alongside its error.
type CachedResolver struct {
	inner  Resolver
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*CachedResolver)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedResolver) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedResolver) { c.logger = logger }
}

func NewCachedResolver(inner Resolver, client redis.UniversalClient, opts ...CacheOption) *CachedResolver {
	c := &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    DefaultCacheTTL,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedResolver) ResolveNames(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	out := make(map[id.UserID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, u := range ids {
		keys[i] = nameKeyPrefix + u.String()
	}

	var missing []id.UserID
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "directory cache read failed", "error", err)
		missing = ids
	} else {
		for i, v := range vals {
			if name, ok := v.(string); ok && name != "" {
				out[ids[i]] = name
				continue
			}
			missing = append(missing, ids[i])
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.inner.ResolveNames(ctx, missing)
	if err != nil {
		// Cached names still go back with the error; nothing is written to
		// the cache from a failed lookup.
		for u, name := range fetched {
			out[u] = name
		}
		return out, err
	}

	pipe := c.client.Pipeline()
	for u, name := range fetched {
		out[u] = name
		pipe.Set(ctx, nameKeyPrefix+u.String(), name, c.ttl)
	}
	if len(fetched) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.WarnContext(ctx, "directory cache write failed", "error", err)
		}
	}
	return out, nil
}
