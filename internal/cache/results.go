package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/flood-monitor/internal/monitor"
)

// DefaultKey is where the latest run is published
const DefaultKey = "flood:predict_all"

// KV is the subset of the redis client the caches need.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Payload is the cached form of a run
type Payload struct {
	Data []monitor.CameraResult `json:"data"`
	TS   int64                  `json:"ts"`
}

// ResultCache bridges finished runs to the read path
type ResultCache struct {
	kv  KV
	key string
	ttl time.Duration
	now func() time.Time
}

// NewResultCache creates a result cache; an empty key uses DefaultKey
func NewResultCache(kv KV, key string, ttl time.Duration) *ResultCache {
	if key == "" {
		key = DefaultKey
	}
	return &ResultCache{kv: kv, key: key, ttl: ttl, now: time.Now}
}

// Publish replaces the cached run with results
func (c *ResultCache) Publish(ctx context.Context, results []monitor.CameraResult) error {
	if results == nil {
		results = []monitor.CameraResult{}
	}
	data, err := json.Marshal(Payload{Data: results, TS: c.now().Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := c.kv.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set results in Redis: %w", err)
	}
	return nil
}

// Latest returns the cached run, or nil when nothing usable is cached
func (c *ResultCache) Latest(ctx context.Context) (*Payload, error) {
	data, err := c.kv.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get results from Redis: %w", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("discarding corrupt cached results", "key", c.key, "error", err)
		return nil, nil
	}
	return &p, nil
}

// Age reports how old a payload is
func (c *ResultCache) Age(p *Payload) time.Duration {
	return c.now().Sub(time.Unix(p.TS, 0))
}

// Invalidate drops the cached run
func (c *ResultCache) Invalidate(ctx context.Context) error {
	return c.kv.Del(ctx, c.key).Err()
}
