package plan

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/hrctl/pkg/tenant"
)

const cacheTTL = 5 * time.Minute

// snapshot is the cached {status, plan} pair for a tenant's active
// subscription, refreshed on read-miss and invalidated on any write through
// Catalog.
type snapshot struct {
	Status SubscriptionStatus `json:"status"`
	Plan   Plan               `json:"plan"`
}

// Cache fronts subscription lookups with Redis, falling back to an
// in-process map when Redis is unreachable so lookups degrade gracefully
// instead of failing outright.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu    sync.RWMutex
	local map[tenant.ID]snapshot
}

func NewCache(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger, local: make(map[tenant.ID]snapshot)}
}

func cacheKey(id tenant.ID) string { return "plan:tenant:" + string(id) }

func (c *Cache) Get(ctx context.Context, id tenant.ID) (snapshot, bool) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, cacheKey(id)).Result()
		if err == nil {
			var snap snapshot
			if jsonErr := json.Unmarshal([]byte(val), &snap); jsonErr == nil {
				return snap, true
			}
		} else if err != redis.Nil {
			c.logger.Warn("plan cache redis lookup failed, falling back to local map", "error", err)
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.local[id]
	return snap, ok
}

func (c *Cache) Set(ctx context.Context, id tenant.ID, status SubscriptionStatus, p Plan) {
	snap := snapshot{Status: status, Plan: p}
	c.mu.Lock()
	c.local[id] = snap
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(id), b, cacheTTL).Err(); err != nil {
		c.logger.Warn("plan cache redis write failed", "error", err, "tenant_id", id)
	}
}

// InvalidateTenant drops a tenant's cached snapshot. Catalog calls it on plan
// switches and free-plan assignment; lifecycle status changes do not call it.
func (c *Cache) InvalidateTenant(ctx context.Context, id tenant.ID) {
	c.mu.Lock()
	delete(c.local, id)
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("plan cache redis invalidate failed", "error", err, "tenant_id", id)
	}
}
