package pathing

import (
	"testing"
	"time"

	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache, *manualClock) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	return NewCache(ttl, clock, nil), clock
}

func samplePath() []world.Vec3 {
	return []world.Vec3{{X: 2}, {X: 2, Z: 5}}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(DefaultCacheTTL)
	start := world.Vec3{X: 0.2, Z: 0.7}
	target := world.Vec3{X: 9.9, Z: 9.1}

	if _, hit := cache.Get(start, target); hit {
		t.Fatal("empty cache must miss")
	}
	cache.Put(start, target, samplePath())

	// Nearby coordinates quantize to the same key.
	got, hit := cache.Get(world.Vec3{X: 0.9, Z: 0.1}, world.Vec3{X: 9.4, Z: 9.8})
	if !hit {
		t.Fatal("expected quantized hit")
	}
	if len(got) != 2 || got[1] != (world.Vec3{X: 2, Z: 5}) {
		t.Fatalf("unexpected cached path %v", got)
	}
}

func TestCachePutClonesInput(t *testing.T) {
	cache, _ := newTestCache(DefaultCacheTTL)
	input := samplePath()
	cache.Put(world.Vec3{}, world.Vec3{X: 5}, input)
	input[0] = world.Vec3{X: 99}

	got, hit := cache.Get(world.Vec3{}, world.Vec3{X: 5})
	if !hit || got[0] != (world.Vec3{X: 2}) {
		t.Fatalf("caller mutation leaked into cache: %v", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache, clock := newTestCache(2 * time.Second)
	cache.Put(world.Vec3{}, world.Vec3{X: 5}, samplePath())

	clock.advance(1900 * time.Millisecond)
	if _, hit := cache.Get(world.Vec3{}, world.Vec3{X: 5}); !hit {
		t.Fatal("entry inside the TTL must hit")
	}

	clock.advance(200 * time.Millisecond)
	if _, hit := cache.Get(world.Vec3{}, world.Vec3{X: 5}); hit {
		t.Fatal("stale entry must not be served")
	}
	if cache.Len() != 0 {
		t.Fatalf("stale entry should be evicted on access, len=%d", cache.Len())
	}
}

func TestCacheExpiryAtExactTTL(t *testing.T) {
	cache, clock := newTestCache(2 * time.Second)
	cache.Put(world.Vec3{}, world.Vec3{X: 5}, samplePath())

	clock.advance(2 * time.Second)
	if _, hit := cache.Get(world.Vec3{}, world.Vec3{X: 5}); hit {
		t.Fatal("entry aged exactly the TTL must miss")
	}

	cache.Put(world.Vec3{}, world.Vec3{X: 5}, samplePath())
	clock.advance(2 * time.Second)
	if evicted := cache.Sweep(); evicted != 1 {
		t.Fatalf("sweep must evict at the TTL boundary, got %d", evicted)
	}
}

func TestCacheSweep(t *testing.T) {
	cache, clock := newTestCache(2 * time.Second)
	cache.Put(world.Vec3{}, world.Vec3{X: 5}, samplePath())
	clock.advance(1 * time.Second)
	cache.Put(world.Vec3{X: 20}, world.Vec3{X: 30}, samplePath())

	clock.advance(1500 * time.Millisecond)
	if evicted := cache.Sweep(); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", cache.Len())
	}
}

func TestCacheHitRate(t *testing.T) {
	cache, _ := newTestCache(DefaultCacheTTL)
	if cache.HitRate() != 0 {
		t.Fatal("empty cache hit rate should be zero")
	}
	cache.Put(world.Vec3{}, world.Vec3{X: 5}, samplePath())
	cache.Get(world.Vec3{}, world.Vec3{X: 5})
	cache.Get(world.Vec3{X: 50}, world.Vec3{X: 60})
	if rate := cache.HitRate(); rate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %f", rate)
	}
}

func TestQuantizeKeyIgnoresHeight(t *testing.T) {
	a := QuantizeKey(world.Vec3{X: 1.9, Y: 0, Z: 2.1}, world.Vec3{X: 7.5, Z: 8.5})
	b := QuantizeKey(world.Vec3{X: 1.1, Y: 42, Z: 2.9}, world.Vec3{X: 7.2, Y: -3, Z: 8.9})
	if a != b {
		t.Fatalf("keys should match regardless of height: %+v vs %+v", a, b)
	}
	if a.StartX != 1 || a.StartZ != 2 || a.TargetX != 7 || a.TargetZ != 8 {
		t.Fatalf("unexpected quantization %+v", a)
	}
}

var _ logging.Clock = (*manualClock)(nil)
