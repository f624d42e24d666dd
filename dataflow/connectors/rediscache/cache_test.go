package rediscache

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, opts)
}

func TestWrapCachesLookupResult(t *testing.T) {
	c := newTestCache(t, Options{})

	var calls int32
	inner := func(ctx context.Context, key int) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "value-" + strconv.Itoa(key), nil
	}
	wrapped := Wrap(c, func(k int) string { return strconv.Itoa(k) }, inner)

	ctx := context.Background()
	v1, err := wrapped(ctx, 7)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if v1 != "value-7" {
		t.Fatalf("expected value-7, got %q", v1)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 inner call after miss, got %d", got)
	}

	v2, err := wrapped(ctx, 7)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if v2 != "value-7" {
		t.Fatalf("expected value-7 from cache, got %q", v2)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected inner not called again on cache hit, got %d calls", got)
	}
}

func TestWrapDistinguishesKeys(t *testing.T) {
	c := newTestCache(t, Options{})

	inner := func(ctx context.Context, key int) (int, error) {
		return key * 10, nil
	}
	wrapped := Wrap(c, func(k int) string { return strconv.Itoa(k) }, inner)

	ctx := context.Background()
	a, err := wrapped(ctx, 1)
	if err != nil {
		t.Fatalf("key 1: %v", err)
	}
	b, err := wrapped(ctx, 2)
	if err != nil {
		t.Fatalf("key 2: %v", err)
	}
	if a != 10 || b != 20 {
		t.Fatalf("expected 10 and 20, got %d and %d", a, b)
	}
}

func TestWrapFallsThroughOnCorruptCacheEntry(t *testing.T) {
	c := newTestCache(t, Options{Prefix: "test:"})

	var calls int32
	inner := func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "resolved", nil
	}
	wrapped := Wrap(c, func(k string) string { return k }, inner)

	ctx := context.Background()
	if err := c.client.Set(ctx, "test:k1", "not-json-{{{", 0).Err(); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	v, err := wrapped(ctx, "k1")
	if err != nil {
		t.Fatalf("wrapped call: %v", err)
	}
	if v != "resolved" {
		t.Fatalf("expected fallthrough to resolve value, got %q", v)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected inner called once on corrupt entry, got %d", got)
	}
}

func TestWrapPropagatesInnerError(t *testing.T) {
	c := newTestCache(t, Options{})

	boom := context.DeadlineExceeded
	inner := func(ctx context.Context, key string) (string, error) {
		return "", boom
	}
	wrapped := Wrap(c, func(k string) string { return k }, inner)

	_, err := wrapped(context.Background(), "k")
	if err != boom {
		t.Fatalf("expected inner error propagated, got %v", err)
	}

	// A failed lookup must not poison the cache with a value.
	exists, err := c.client.Exists(context.Background(), c.key("k")).Result()
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists != 0 {
		t.Fatal("expected no cache entry written after an inner error")
	}
}

func TestWrapUsesDefaultPrefix(t *testing.T) {
	c := newTestCache(t, Options{})
	if c.prefix != "dataflow:lookup:" {
		t.Fatalf("expected default prefix, got %q", c.prefix)
	}
}
