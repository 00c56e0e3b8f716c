// Package cache is a TTL read cache backed by Redis. The job registry runs
// as several scheduler/api processes across hosts, so a per-process
// in-memory map (the teacher's original Cache) would give every process
// its own view; Redis gives the cluster one shared one.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/geocoder89/eventhub/internal/queue/redisclient"
)

type Cache struct {
	client *redisclient.Client
	ttl    time.Duration
	prefix string
}

func New(client *redisclient.Client, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

// Get returns the raw JSON previously stored under key. A Redis error or a
// miss are both reported as (nil, false) — this is a best effort cache,
// callers always fall back to the backing store and decode the bytes into
// their own concrete type (json.Unmarshal into `any` would otherwise
// collapse structs down to map[string]interface{}).
func (c *Cache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Raw().Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Set JSON-encodes val and stores it under key with the cache's TTL.
func (c *Cache) Set(key string, val any) {
	raw, err := json.Marshal(val)
	if err != nil {
		slog.Default().Warn("cache: encode failed", "key", key, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := c.client.Raw().Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		slog.Default().Warn("cache: set failed", "key", key, "err", err)
	}
}

func (c *Cache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := c.client.Raw().Del(ctx, c.prefix+key).Err(); err != nil {
		slog.Default().Warn("cache: delete failed", "key", key, "err", err)
	}
}

// Clear drops every key under this cache's prefix. Used by admin tooling
// and tests; not on any hot path.
func (c *Cache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	iter := c.client.Raw().Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Raw().Del(ctx, iter.Val()).Err(); err != nil {
			slog.Default().Warn("cache: clear failed", "key", iter.Val(), "err", err)
		}
	}
}
