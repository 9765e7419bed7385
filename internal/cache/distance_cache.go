package cache

import (
	"fmt"
	"sync"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// DistanceEntry is mode → destination → (nearest_access_point,
// walk_length_m) (spec.md §3's Distance cache).
type DistanceEntry struct {
	NearestAccessPoint geo.Point
	WalkLengthM        float64
}

const distanceCacheVersion = 1

type distanceCacheFile struct {
	Version int
	Data    map[types.Mode]map[geo.Point]DistanceEntry
}

// DistanceCache caches the nearest access point (rental station or parking
// spot) per (mode, destination), flushed to disk every flushEvery
// mutations and on shutdown (spec.md §3, §4.4).
//
// Grounded on original_source/backend/app/data/distance_storage.py's
// DistanceCache (its own mutex, its own flush counter, pickle
// persistence — here encoding/gob per SPEC_FULL.md §2).
type DistanceCache struct {
	mu         sync.Mutex
	path       string
	flushEvery int
	counter    int

	data map[types.Mode]map[geo.Point]DistanceEntry
}

// NewDistanceCache loads path if present.
func NewDistanceCache(path string, flushEvery int) (*DistanceCache, error) {
	c := &DistanceCache{
		path:       path,
		flushEvery: flushEvery,
		data:       map[types.Mode]map[geo.Point]DistanceEntry{},
	}
	err := c.load()
	if err != nil {
		c.data = map[types.Mode]map[geo.Point]DistanceEntry{}
	}
	return c, err
}

// Get returns the cached nearest access point for (mode, destination).
func (c *DistanceCache) Get(mode types.Mode, destination geo.Point) (DistanceEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[mode][destination]
	return e, ok
}

// Set stores the computed nearest access point, bumping the flush counter
// and flushing to disk every flushEvery mutations (spec.md §4.4).
func (c *DistanceCache) Set(mode types.Mode, destination geo.Point, entry DistanceEntry) error {
	c.mu.Lock()
	if c.data[mode] == nil {
		c.data[mode] = map[geo.Point]DistanceEntry{}
	}
	c.data[mode][destination] = entry
	c.counter++
	shouldFlush := c.flushEvery > 0 && c.counter%c.flushEvery == 0
	c.mu.Unlock()

	if shouldFlush {
		return c.Flush()
	}
	return nil
}

// Flush persists the cache immediately; callers also call this on
// shutdown (spec.md §4.4: "flushed every 50 mutations and on shutdown").
//
// Set triggers Flush from inside a live write path, so a concurrent Set
// from another goroutine can race an encode of the still-referenced maps
// once the lock is released. Deep-copying every nested map while still
// holding c.mu avoids handing gob.Encode a map another goroutine can
// mutate underneath it.
func (c *DistanceCache) Flush() error {
	c.mu.Lock()
	data := make(map[types.Mode]map[geo.Point]DistanceEntry, len(c.data))
	for mode, byDest := range c.data {
		copied := make(map[geo.Point]DistanceEntry, len(byDest))
		for dest, entry := range byDest {
			copied[dest] = entry
		}
		data[mode] = copied
	}
	c.mu.Unlock()

	snapshot := distanceCacheFile{Version: distanceCacheVersion, Data: data}
	return saveGob(c.path, snapshot)
}

func (c *DistanceCache) load() error {
	var snapshot distanceCacheFile
	ok, err := loadGob(c.path, &snapshot)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCacheCorrupt, err)
	}
	if !ok {
		return nil
	}
	if snapshot.Version != distanceCacheVersion {
		return fmt.Errorf("%w: version %d != %d", types.ErrCacheCorrupt, snapshot.Version, distanceCacheVersion)
	}
	c.data = snapshot.Data
	if c.data == nil {
		c.data = map[types.Mode]map[geo.Point]DistanceEntry{}
	}
	return nil
}
