package mosaic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// FootprintKey identifies a cache entry. It folds in the grid's defining
// parameters, so a footprint computed for one grid is never served for another.
func FootprintKey(site Site, b GridBounds) string {
	sum := xxhash.Sum64String(fmt.Sprintf("%s|%g,%g,%g,%g,%g,%g",
		site.Name, b.LatMin, b.LatMax, b.LatStep, b.LonMin, b.LonMax, b.LonStep))
	return fmt.Sprintf("%s:%016x", site.Name, sum)
}

// A FootprintStore persists footprints across runs. Load returns (nil, nil) on a miss.
type FootprintStore interface {
	LoadFootprint(key string) (*FootprintMap, error)
	SaveFootprint(key string, bounds GridBounds, fm *FootprintMap) error
}

// DefaultCacheEntries bounds how many footprints are held in memory.
const DefaultCacheEntries = 64

// The FootprintCache computes each site's footprint once, and then
// serves it from memory or from the durable store. Concurrent callers
// asking for the same uncached site wait for a single computation.
// Geometry failures are remembered, so a site that can't form a field
// of view isn't retried for every frame.
type FootprintCache struct {
	store FootprintStore // may be nil, for memory-only
	mem   *lru.Cache[string, *FootprintMap]
	group singleflight.Group

	mu     sync.Mutex
	failed map[string]error
}

func NewFootprintCache(store FootprintStore, entries int) *FootprintCache {
	if entries <= 0 {
		entries = DefaultCacheEntries
	}
	mem, err := lru.New[string, *FootprintMap](entries)
	if err != nil {
		panic(err) // only fails for size <= 0
	}
	return &FootprintCache{
		store:  store,
		mem:    mem,
		failed: map[string]error{},
	}
}

// Get returns the footprint of site on grid g. img supplies the site's
// per-pixel geodetic arrays, and is only read on a cache miss.
func (fc *FootprintCache) Get(ctx context.Context, site Site, g *GeoGrid, img SiteImage) (*FootprintMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := FootprintKey(site, g.Bounds)

	fc.mu.Lock()
	err, failed := fc.failed[key]
	fc.mu.Unlock()
	if failed {
		return nil, err
	}

	if fm, ok := fc.mem.Get(key); ok && fm.FitsImage(img) {
		return fm, nil
	}

	// Frames of different shapes need different answers, so don't share a flight
	flight := fmt.Sprintf("%s/%dx%d", key, img.Pixels.Dx(), img.Pixels.Dy())
	v, err, _ := fc.group.Do(flight, func() (interface{}, error) {
		return fc.loadOrCompute(key, site, g, img)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FootprintMap), nil
}

func (fc *FootprintCache) loadOrCompute(key string, site Site, g *GeoGrid, img SiteImage) (*FootprintMap, error) {
	// Someone may have finished while we queued
	if fm, ok := fc.mem.Get(key); ok && fm.FitsImage(img) {
		return fm, nil
	}

	if fc.store != nil {
		fm, err := fc.store.LoadFootprint(key)
		switch {
		case err != nil:
			Logf("[FootprintCache] load %s failed, recomputing: %v", key, err)
		case fm == nil:
			// miss
		case !fm.FitsGrid(g) || !fm.FitsImage(img) || !fm.indicesInRange():
			Logf("[FootprintCache] %s is stale (%s), recomputing", key, fm)
		default:
			fc.mem.Add(key, fm)
			return fm, nil
		}
	}

	fm, err := MapFootprint(site, g, img)
	if err != nil {
		if errors.Is(err, ErrGeometry) {
			fc.mu.Lock()
			fc.failed[key] = err
			fc.mu.Unlock()
			Logf("[FootprintCache] %v; site contributes nothing to this session", err)
		}
		return nil, err
	}
	fc.mem.Add(key, fm)

	if fc.store != nil {
		if err := fc.store.SaveFootprint(key, g.Bounds, fm); err != nil {
			Logf("[FootprintCache] WARNING: could not persist %s, it will be recomputed next run: %v", key, err)
		}
	}

	return fm, nil
}

// Forget drops any memory of a site's footprint, including a remembered failure.
func (fc *FootprintCache) Forget(site Site, b GridBounds) {
	key := FootprintKey(site, b)
	fc.mem.Remove(key)
	fc.mu.Lock()
	delete(fc.failed, key)
	fc.mu.Unlock()
}
