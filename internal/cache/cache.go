// Package cache implements the Cache Hierarchy (C4): five travel sub-caches
// plus a distance cache, each protected by its own mutex, persisted to disk
// in a self-describing binary format carrying a version tag (spec.md §3,
// §4.4, §9).
//
// Grounded on original_source/backend/app/core/data_types.py's TypedDict
// shapes (IsochroneEntry, PointIsochroneEntry, RentalRidingEntry,
// RentalAccessEntry, ParkingEntry, StationRentalData, TravelData) and
// app/data/distance_storage.py's DistanceCache (pickle persistence, 50-
// mutation flush counter), transliterated from Python pickle to
// encoding/gob since no self-describing serialization library is actually
// imported by application code anywhere in the example pack (SPEC_FULL.md
// §2).
package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// Scope distinguishes the network-mode and point-mode views of a per-
// destination cache (spec.md §3: "station_rental[mode][scope]").
type Scope string

const (
	ScopeNetwork Scope = "network"
	ScopePoint   Scope = "point"
)

// NetworkEntry is network_times[mode][origin] (spec.md §3).
type NetworkEntry struct {
	Destination geo.Point
	TimeMin     float64
}

// PointEntry is one (destination, time) pair inside a point_times
// aggregate.
type PointEntry struct {
	Destination geo.Point
	TimeMin     float64
}

// RentalRideEntry is rental_ride[mode][origin station] (spec.md §3).
type RentalRideEntry struct {
	Destination geo.Point
	RideTimeMin float64
}

// RentalAccessEntry is station_rental[mode][scope][destination] (spec.md
// §3).
type RentalAccessEntry struct {
	NearestRental geo.Point
	WalkTimeMin   float64
}

// ParkingEntry is parking[class][scope][station] (spec.md §3).
type ParkingEntry struct {
	ParkingPoint geo.Point
	WalkTimeMin  float64
}

// modeCache holds the five sub-caches for one transport mode.
type modeCache struct {
	NetworkTimes         map[geo.Point]NetworkEntry
	PointTimes           map[geo.Point][]PointEntry
	RentalRide           map[geo.Point]RentalRideEntry
	StationRentalNetwork map[geo.Point]RentalAccessEntry
	StationRentalPoint   map[geo.Point]RentalAccessEntry
}

func newModeCache() *modeCache {
	return &modeCache{
		NetworkTimes:         map[geo.Point]NetworkEntry{},
		PointTimes:           map[geo.Point][]PointEntry{},
		RentalRide:           map[geo.Point]RentalRideEntry{},
		StationRentalNetwork: map[geo.Point]RentalAccessEntry{},
		StationRentalPoint:   map[geo.Point]RentalAccessEntry{},
	}
}

// travelCacheVersion is bumped whenever the on-disk shape changes; a
// mismatch on load discards the file and starts fresh (spec.md §9).
const travelCacheVersion = 1

// travelCacheFile is the gob-serializable snapshot of a TravelCache.
type travelCacheFile struct {
	Version     int
	ByMode      map[types.Mode]*modeCache
	ParkingBike map[Scope]map[geo.Point]ParkingEntry
	ParkingCar  map[Scope]map[geo.Point]ParkingEntry
}

// TravelCache is the process-wide, mode-partitioned travel cache (spec.md
// §3). All five sub-caches per mode plus the two parking caches live under
// one mutex (spec.md §4.4: "All five sub-caches live in a single struct
// protected by one mutex").
type TravelCache struct {
	mu   sync.Mutex
	path string

	byMode      map[types.Mode]*modeCache
	parkingBike map[Scope]map[geo.Point]ParkingEntry
	parkingCar  map[Scope]map[geo.Point]ParkingEntry
}

// NewTravelCache loads path if present; a corrupt or version-mismatched
// file is logged by the caller (the returned error) and replaced with an
// empty structure, per spec.md §7's CacheCorrupt handling.
func NewTravelCache(path string) (*TravelCache, error) {
	c := &TravelCache{
		path:        path,
		byMode:      map[types.Mode]*modeCache{},
		parkingBike: map[Scope]map[geo.Point]ParkingEntry{ScopeNetwork: {}, ScopePoint: {}},
		parkingCar:  map[Scope]map[geo.Point]ParkingEntry{ScopeNetwork: {}, ScopePoint: {}},
	}
	err := c.load()
	if err != nil {
		// Start fresh regardless of the reason; caller decides whether to
		// surface types.ErrCacheCorrupt as a log line.
		c.byMode = map[types.Mode]*modeCache{}
		c.parkingBike = map[Scope]map[geo.Point]ParkingEntry{ScopeNetwork: {}, ScopePoint: {}}
		c.parkingCar = map[Scope]map[geo.Point]ParkingEntry{ScopeNetwork: {}, ScopePoint: {}}
	}
	return c, err
}

func (c *TravelCache) modeCacheLocked(mode types.Mode) *modeCache {
	mc, ok := c.byMode[mode]
	if !ok {
		mc = newModeCache()
		c.byMode[mode] = mc
	}
	return mc
}

// GetNetworkTime returns the cached entry for origin under mode, and
// whether it was present (spec.md I3: "present ⇔ p has been considered
// complete").
func (c *TravelCache) GetNetworkTime(mode types.Mode, origin geo.Point) (NetworkEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modeCacheLocked(mode)
	e, ok := mc.NetworkTimes[origin]
	return e, ok
}

// PutNetworkTime stores the resolved entry for origin under mode.
func (c *TravelCache) PutNetworkTime(mode types.Mode, origin geo.Point, entry NetworkEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modeCacheLocked(mode).NetworkTimes[origin] = entry
}

// GetPointEntries returns the current aggregate for center under mode — a
// copy, so callers may range over it without holding the lock.
func (c *TravelCache) GetPointEntries(mode types.Mode, center geo.Point) []PointEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modeCacheLocked(mode)
	existing := mc.PointTimes[center]
	out := make([]PointEntry, len(existing))
	copy(out, existing)
	return out
}

// HasPointEntry reports whether destination is already present in center's
// aggregate (spec.md §4.6: "If already present in point_times[mode][center],
// skip").
func (c *TravelCache) HasPointEntry(mode types.Mode, center, destination geo.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modeCacheLocked(mode)
	for _, e := range mc.PointTimes[center] {
		if e.Destination == destination {
			return true
		}
	}
	return false
}

// AppendPointEntry appends one (destination, time) pair to center's
// aggregate if destination is not already present (spec.md I4: "re-running
// a center appends only previously-absent destinations"). Returns false if
// it was already present.
func (c *TravelCache) AppendPointEntry(mode types.Mode, center geo.Point, entry PointEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modeCacheLocked(mode)
	for _, e := range mc.PointTimes[center] {
		if e.Destination == entry.Destination {
			return false
		}
	}
	mc.PointTimes[center] = append(mc.PointTimes[center], entry)
	return true
}

func (c *TravelCache) GetRentalRide(mode types.Mode, origin geo.Point) (RentalRideEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.modeCacheLocked(mode).RentalRide[origin]
	return e, ok
}

func (c *TravelCache) PutRentalRide(mode types.Mode, origin geo.Point, entry RentalRideEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modeCacheLocked(mode).RentalRide[origin] = entry
}

func (c *TravelCache) GetStationRental(mode types.Mode, scope Scope, destination geo.Point) (RentalAccessEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modeCacheLocked(mode)
	if scope == ScopeNetwork {
		e, ok := mc.StationRentalNetwork[destination]
		return e, ok
	}
	e, ok := mc.StationRentalPoint[destination]
	return e, ok
}

func (c *TravelCache) PutStationRental(mode types.Mode, scope Scope, destination geo.Point, entry RentalAccessEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.modeCacheLocked(mode)
	if scope == ScopeNetwork {
		mc.StationRentalNetwork[destination] = entry
	} else {
		mc.StationRentalPoint[destination] = entry
	}
}

func (c *TravelCache) parkingMapLocked(class types.FacilityClass) map[Scope]map[geo.Point]ParkingEntry {
	if class == types.FacilityBikeParking {
		return c.parkingBike
	}
	return c.parkingCar
}

func (c *TravelCache) GetParking(class types.FacilityClass, scope Scope, station geo.Point) (ParkingEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.parkingMapLocked(class)[scope][station]
	return e, ok
}

func (c *TravelCache) PutParking(class types.FacilityClass, scope Scope, station geo.Point, entry ParkingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parkingMapLocked(class)[scope][station] = entry
}

// Save serializes the whole travel cache to c.path. Callers run this as a
// background task after each request completes (spec.md §4.4).
//
// gob.Encode ranges every nested map after the lock is released; handing
// it the live maps lets a concurrent mutation race the encode into a
// "concurrent map read and map write" panic. Deep-copying everything
// while still holding c.mu avoids that.
func (c *TravelCache) Save() error {
	c.mu.Lock()
	byMode := make(map[types.Mode]*modeCache, len(c.byMode))
	for mode, mc := range c.byMode {
		byMode[mode] = cloneModeCache(mc)
	}
	snapshot := travelCacheFile{
		Version:     travelCacheVersion,
		ByMode:      byMode,
		ParkingBike: cloneParkingMap(c.parkingBike),
		ParkingCar:  cloneParkingMap(c.parkingCar),
	}
	c.mu.Unlock()
	return saveGob(c.path, snapshot)
}

func cloneModeCache(mc *modeCache) *modeCache {
	out := newModeCache()
	for k, v := range mc.NetworkTimes {
		out.NetworkTimes[k] = v
	}
	for k, v := range mc.PointTimes {
		entries := make([]PointEntry, len(v))
		copy(entries, v)
		out.PointTimes[k] = entries
	}
	for k, v := range mc.RentalRide {
		out.RentalRide[k] = v
	}
	for k, v := range mc.StationRentalNetwork {
		out.StationRentalNetwork[k] = v
	}
	for k, v := range mc.StationRentalPoint {
		out.StationRentalPoint[k] = v
	}
	return out
}

func cloneParkingMap(m map[Scope]map[geo.Point]ParkingEntry) map[Scope]map[geo.Point]ParkingEntry {
	out := make(map[Scope]map[geo.Point]ParkingEntry, len(m))
	for scope, byStation := range m {
		copied := make(map[geo.Point]ParkingEntry, len(byStation))
		for station, entry := range byStation {
			copied[station] = entry
		}
		out[scope] = copied
	}
	return out
}

func (c *TravelCache) load() error {
	var snapshot travelCacheFile
	ok, err := loadGob(c.path, &snapshot)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCacheCorrupt, err)
	}
	if !ok {
		return nil // no file yet, not an error
	}
	if snapshot.Version != travelCacheVersion {
		return fmt.Errorf("%w: version %d != %d", types.ErrCacheCorrupt, snapshot.Version, travelCacheVersion)
	}
	c.byMode = snapshot.ByMode
	if c.byMode == nil {
		c.byMode = map[types.Mode]*modeCache{}
	}
	c.parkingBike = snapshot.ParkingBike
	c.parkingCar = snapshot.ParkingCar
	return nil
}

// Validate reports malformed entries without repairing them (spec.md §4.4:
// "The check is advisory; the caller may refuse to proceed"). It checks
// network_times for a negative time_min and point_times for a destination
// listed twice under one center; the rental and parking sub-caches are not
// checked.
func (c *TravelCache) Validate() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var problems []string
	for mode, mc := range c.byMode {
		for origin, e := range mc.NetworkTimes {
			if e.TimeMin < 0 {
				problems = append(problems, fmt.Sprintf("mode=%s network_times[%v] has negative time_min=%v", mode, origin, e.TimeMin))
			}
		}
		for center, entries := range mc.PointTimes {
			seen := map[geo.Point]bool{}
			for _, e := range entries {
				if seen[e.Destination] {
					problems = append(problems, fmt.Sprintf("mode=%s point_times[%v] has duplicate destination %v", mode, center, e.Destination))
				}
				seen[e.Destination] = true
			}
		}
	}
	return problems
}

// saveGob atomically writes v to path in gob form (write-temp-then-rename,
// matching the teacher's preference for not leaving partial files behind).
func saveGob(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadGob reads path into v. Returns (false, nil) if the file does not
// exist yet.
func loadGob(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return true, err
	}
	return true, nil
}
