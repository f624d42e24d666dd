// Package rediscache provides a Redis-backed cache that wraps a
// dataflow.LookupFunc, avoiding repeat calls to a slow or rate-limited
// resolver (a database, an LLM, a third-party API) for keys seen recently.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coriolis-labs/dataflow"
	"github.com/redis/go-redis/v9"
)

// Options configures a Cache.
type Options struct {
	// Prefix namespaces every key this cache writes, default "dataflow:lookup:".
	Prefix string
	// TTL is the expiration set on each cached value; zero means no expiration.
	TTL time.Duration
}

// Cache wraps a Redis client to memoize a LookupFunc's results, keyed by a
// string derived from the lookup key.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New builds a Cache over an existing Redis client.
func New(client *redis.Client, opts Options) *Cache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dataflow:lookup:"
	}
	return &Cache{client: client, prefix: prefix, ttl: opts.TTL}
}

func (c *Cache) key(keyStr string) string {
	return c.prefix + keyStr
}

// Wrap returns a LookupFunc that checks Redis before calling inner, and
// stores inner's result back in Redis on a cache miss. keyStr renders the
// lookup key K to the string used as the Redis key; a value is round-tripped
// through JSON, so V must be JSON-serializable.
func Wrap[K, V any](c *Cache, keyStr func(K) string, inner dataflow.LookupFunc[K, V]) dataflow.LookupFunc[K, V] {
	return func(ctx context.Context, key K) (V, error) {
		var zero V
		redisKey := c.key(keyStr(key))

		cached, err := c.client.Get(ctx, redisKey).Bytes()
		if err == nil {
			var val V
			if unmarshalErr := json.Unmarshal(cached, &val); unmarshalErr == nil {
				return val, nil
			}
			// Corrupt cache entry: fall through and re-resolve.
		} else if err != redis.Nil {
			return zero, fmt.Errorf("rediscache: get %s: %w", redisKey, err)
		}

		val, err := inner(ctx, key)
		if err != nil {
			return zero, err
		}

		encoded, err := json.Marshal(val)
		if err != nil {
			return val, fmt.Errorf("rediscache: marshal value for %s: %w", redisKey, err)
		}
		if setErr := c.client.Set(ctx, redisKey, encoded, c.ttl).Err(); setErr != nil {
			return val, fmt.Errorf("rediscache: set %s: %w", redisKey, setErr)
		}
		return val, nil
	}
}
