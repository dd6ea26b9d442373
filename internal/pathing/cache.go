package pathing

import (
	"math"
	"time"

	"rallypoint/server/internal/telemetry"
	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
)

// DefaultCacheTTL bounds how long a cached path may be reused.
const DefaultCacheTTL = 2 * time.Second

const (
	cacheSizeMetricKey     = "path_cache_size"
	cacheEvictionMetricKey = "path_cache_evictions_total"
)

// CacheKey is the quantized (start, target) pair used for cache indexing.
// Coordinates are truncated to integer units so nearby queries land in the
// same coarse cell. Y is ignored: it does not influence planar navigation.
type CacheKey struct {
	StartX  int
	StartZ  int
	TargetX int
	TargetZ int
}

// QuantizeKey derives the cache key for a start/target pair.
func QuantizeKey(start, target world.Vec3) CacheKey {
	return CacheKey{
		StartX:  int(math.Trunc(start.X)),
		StartZ:  int(math.Trunc(start.Z)),
		TargetX: int(math.Trunc(target.X)),
		TargetZ: int(math.Trunc(target.Z)),
	}
}

type cacheEntry struct {
	path      []world.Vec3
	createdAt time.Time
	hits      uint64
}

// Cache memoizes raw navigation query results keyed by quantized start and
// target coordinates. Entries expire after the TTL; the periodic sweep runs
// at tick cadence. Owned by the tick goroutine, so no locking.
type Cache struct {
	ttl     time.Duration
	clock   logging.Clock
	metrics telemetry.Metrics
	entries map[CacheKey]*cacheEntry

	hitCount  uint64
	missCount uint64
}

// NewCache constructs a path cache. A zero or negative TTL falls back to
// DefaultCacheTTL.
func NewCache(ttl time.Duration, clock logging.Clock, metrics telemetry.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		entries: make(map[CacheKey]*cacheEntry),
	}
}

// Get returns the cached raw path for the quantized key when the entry is
// younger than the TTL. The stored slice is returned as-is; callers must not
// mutate it. Stale entries are evicted, never returned.
func (c *Cache) Get(start, target world.Vec3) ([]world.Vec3, bool) {
	if c == nil {
		return nil, false
	}
	key := QuantizeKey(start, target)
	entry, ok := c.entries[key]
	if !ok {
		c.missCount++
		return nil, false
	}
	if c.clock.Now().Sub(entry.createdAt) >= c.ttl {
		delete(c.entries, key)
		c.metrics.Add(cacheEvictionMetricKey, 1)
		c.metrics.Store(cacheSizeMetricKey, uint64(len(c.entries)))
		c.missCount++
		return nil, false
	}
	entry.hits++
	c.hitCount++
	return entry.path, true
}

// Put stores or overwrites the raw path for the quantized key, stamping it
// with the current time.
func (c *Cache) Put(start, target world.Vec3, path []world.Vec3) {
	if c == nil || len(path) == 0 {
		return
	}
	key := QuantizeKey(start, target)
	c.entries[key] = &cacheEntry{
		path:      append([]world.Vec3(nil), path...),
		createdAt: c.clock.Now(),
	}
	c.metrics.Store(cacheSizeMetricKey, uint64(len(c.entries)))
}

// Sweep removes every entry whose age has reached the TTL, independent of
// access, and reports how many were evicted.
func (c *Cache) Sweep() int {
	if c == nil {
		return 0
	}
	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.metrics.Add(cacheEvictionMetricKey, uint64(evicted))
		c.metrics.Store(cacheSizeMetricKey, uint64(len(c.entries)))
	}
	return evicted
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// HitRate reports the fraction of lookups served from the cache since
// construction.
func (c *Cache) HitRate() float64 {
	if c == nil {
		return 0
	}
	total := c.hitCount + c.missCount
	if total == 0 {
		return 0
	}
	return float64(c.hitCount) / float64(total)
}
