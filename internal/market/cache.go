package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
)

// SnapshotCache caches indicator snapshots for the cache TTL so the
// engine and the status API never trigger duplicate upstream fetches
// within one tick. Redis is used when available with an in-memory
// fallback, so a Redis outage only costs cache sharing, not uptime.
type SnapshotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu    sync.RWMutex
	local map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snap      *IndicatorSnapshot
	expiresAt time.Time
}

// NewSnapshotCache creates a snapshot cache. redisClient may be nil.
func NewSnapshotCache(redisClient *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logging.Component("SnapshotCache"),
		local:  make(map[string]cachedSnapshot),
	}
}

func (c *SnapshotCache) key(symbol string) string {
	return fmt.Sprintf("snapshot:%s", symbol)
}

// Get returns a cached snapshot or nil on miss.
func (c *SnapshotCache) Get(ctx context.Context, symbol string) *IndicatorSnapshot {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, c.key(symbol)).Bytes()
		if err == nil {
			var snap IndicatorSnapshot
			if jsonErr := json.Unmarshal(data, &snap); jsonErr == nil {
				return &snap
			}
		} else if err != redis.Nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("redis get failed, using local cache")
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.local[symbol]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.snap
}

// Put stores a snapshot under the configured TTL.
func (c *SnapshotCache) Put(ctx context.Context, snap *IndicatorSnapshot) {
	if snap == nil {
		return
	}

	if c.redis != nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := c.redis.Set(ctx, c.key(snap.Symbol), data, c.ttl).Err(); err != nil {
				c.logger.Warn().Err(err).Str("symbol", snap.Symbol).Msg("redis set failed, using local cache")
			}
		}
	}

	c.mu.Lock()
	c.local[snap.Symbol] = cachedSnapshot{snap: snap, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops a symbol from both cache layers.
func (c *SnapshotCache) Invalidate(ctx context.Context, symbol string) {
	if c.redis != nil {
		c.redis.Del(ctx, c.key(symbol))
	}
	c.mu.Lock()
	delete(c.local, symbol)
	c.mu.Unlock()
}
