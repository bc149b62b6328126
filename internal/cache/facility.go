// Package cache keeps read-mostly lookups in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"labreserve/internal/metrics"
	"labreserve/internal/model"
)

// FacilitySource loads facilities on a cache miss.
type FacilitySource interface {
	GetFacility(ctx context.Context, id int64) (*model.Facility, error)
}

// FacilityCache is a read-through cache in front of a FacilitySource. With a
// nil redis client or a non-positive TTL it passes every call through.
type FacilityCache struct {
	source FacilitySource
	redis  *redis.Client
	ttl    time.Duration
}

func NewFacilityCache(source FacilitySource, redisClient *redis.Client, ttl time.Duration) *FacilityCache {
	return &FacilityCache{source: source, redis: redisClient, ttl: ttl}
}

func facilityKey(id int64) string {
	return fmt.Sprintf("labreserve:facility:%d", id)
}

// GetFacility returns the cached facility or loads and caches it. Source
// errors, not-found included, are returned unchanged and never cached.
func (c *FacilityCache) GetFacility(ctx context.Context, id int64) (*model.Facility, error) {
	var facility model.Facility
	if c.readCache(ctx, facilityKey(id), &facility) {
		metrics.IncCacheLookup(true)
		return &facility, nil
	}
	metrics.IncCacheLookup(false)

	loaded, err := c.source.GetFacility(ctx, id)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, facilityKey(id), loaded)
	return loaded, nil
}

// Invalidate drops a facility after it changed or was removed.
func (c *FacilityCache) Invalidate(ctx context.Context, id int64) {
	if !c.enabled() {
		return
	}
	_ = c.redis.Del(ctx, facilityKey(id)).Err()
}

func (c *FacilityCache) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

func (c *FacilityCache) readCache(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *FacilityCache) writeCache(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}
