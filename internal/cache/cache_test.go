package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

func TestNetworkTimeGetPutRoundTrip(t *testing.T) {
	c, err := NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	origin := geo.Point{1, 2}
	_, ok := c.GetNetworkTime(types.ModeWalk, origin)
	assert.False(t, ok)

	c.PutNetworkTime(types.ModeWalk, origin, NetworkEntry{Destination: geo.Point{3, 4}, TimeMin: 12.5})
	got, ok := c.GetNetworkTime(types.ModeWalk, origin)
	require.True(t, ok)
	assert.Equal(t, 12.5, got.TimeMin)
}

func TestAppendPointEntryDedupsByDestination(t *testing.T) {
	c, err := NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	center := geo.Point{0, 0}
	dest := geo.Point{5, 5}

	added := c.AppendPointEntry(types.ModeCycle, center, PointEntry{Destination: dest, TimeMin: 3})
	assert.True(t, added)

	addedAgain := c.AppendPointEntry(types.ModeCycle, center, PointEntry{Destination: dest, TimeMin: 999})
	assert.False(t, addedAgain)

	entries := c.GetPointEntries(types.ModeCycle, center)
	require.Len(t, entries, 1)
	assert.Equal(t, 3.0, entries[0].TimeMin)
}

func TestHasPointEntryReflectsAppends(t *testing.T) {
	c, err := NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	center, dest := geo.Point{0, 0}, geo.Point{1, 1}
	assert.False(t, c.HasPointEntry(types.ModeWalk, center, dest))
	c.AppendPointEntry(types.ModeWalk, center, PointEntry{Destination: dest, TimeMin: 1})
	assert.True(t, c.HasPointEntry(types.ModeWalk, center, dest))
}

func TestRentalRideAndStationRentalGetPut(t *testing.T) {
	c, err := NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	origin := geo.Point{0, 0}
	c.PutRentalRide(types.ModeBicycleRental, origin, RentalRideEntry{Destination: geo.Point{1, 1}, RideTimeMin: 7})
	got, ok := c.GetRentalRide(types.ModeBicycleRental, origin)
	require.True(t, ok)
	assert.Equal(t, 7.0, got.RideTimeMin)

	dest := geo.Point{9, 9}
	c.PutStationRental(types.ModeBicycleRental, ScopeNetwork, dest, RentalAccessEntry{NearestRental: geo.Point{8, 8}, WalkTimeMin: 2})
	entry, ok := c.GetStationRental(types.ModeBicycleRental, ScopeNetwork, dest)
	require.True(t, ok)
	assert.Equal(t, 2.0, entry.WalkTimeMin)

	_, ok = c.GetStationRental(types.ModeBicycleRental, ScopePoint, dest)
	assert.False(t, ok, "network and point scopes must not leak into each other")
}

func TestParkingGetPutByClass(t *testing.T) {
	c, err := NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	station := geo.Point{0, 0}
	c.PutParking(types.FacilityBikeParking, ScopeNetwork, station, ParkingEntry{ParkingPoint: geo.Point{1, 0}, WalkTimeMin: 4})

	_, ok := c.GetParking(types.FacilityCarParking, ScopeNetwork, station)
	assert.False(t, ok, "bike and car parking caches are independent")

	entry, ok := c.GetParking(types.FacilityBikeParking, ScopeNetwork, station)
	require.True(t, ok)
	assert.Equal(t, 4.0, entry.WalkTimeMin)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "travel.gob")
	c, err := NewTravelCache(path)
	require.NoError(t, err)

	c.PutNetworkTime(types.ModeWalk, geo.Point{1, 1}, NetworkEntry{Destination: geo.Point{2, 2}, TimeMin: 9})
	require.NoError(t, c.Save())

	reloaded, err := NewTravelCache(path)
	require.NoError(t, err)
	got, ok := reloaded.GetNetworkTime(types.ModeWalk, geo.Point{1, 1})
	require.True(t, ok)
	assert.Equal(t, 9.0, got.TimeMin)
}

func TestLoadVersionMismatchDiscardsAndReportsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "travel.gob")
	require.NoError(t, saveGob(path, travelCacheFile{Version: travelCacheVersion + 1}))

	c, err := NewTravelCache(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCacheCorrupt)
	_, ok := c.GetNetworkTime(types.ModeWalk, geo.Point{0, 0})
	assert.False(t, ok)
}

func TestValidateDetectsNegativeTimeAndDuplicateDestination(t *testing.T) {
	c, err := NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	c.PutNetworkTime(types.ModeWalk, geo.Point{0, 0}, NetworkEntry{Destination: geo.Point{1, 1}, TimeMin: -3})

	center := geo.Point{5, 5}
	mc := c.modeCacheLocked(types.ModeCycle)
	mc.PointTimes[center] = append(mc.PointTimes[center],
		PointEntry{Destination: geo.Point{6, 6}, TimeMin: 1},
		PointEntry{Destination: geo.Point{6, 6}, TimeMin: 2},
	)

	problems := c.Validate()
	assert.Len(t, problems, 2)
}

func TestDistanceCacheGetSetRoundTrip(t *testing.T) {
	dc, err := NewDistanceCache(filepath.Join(t.TempDir(), "distance.gob"), 50)
	require.NoError(t, err)

	dest := geo.Point{10, 10}
	_, ok := dc.Get(types.ModeBicycleRental, dest)
	assert.False(t, ok)

	require.NoError(t, dc.Set(types.ModeBicycleRental, dest, DistanceEntry{NearestAccessPoint: geo.Point{9, 9}, WalkLengthM: 40}))
	entry, ok := dc.Get(types.ModeBicycleRental, dest)
	require.True(t, ok)
	assert.Equal(t, 40.0, entry.WalkLengthM)
}

func TestDistanceCacheFlushesEveryNMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distance.gob")
	dc, err := NewDistanceCache(path, 3)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, dc.Set(types.ModeEscooterRental, geo.Point{float64(i), 0}, DistanceEntry{WalkLengthM: 1}))
	}
	assert.NoFileExists(t, path, "no flush should have happened yet, so no file exists")

	require.NoError(t, dc.Set(types.ModeEscooterRental, geo.Point{2, 0}, DistanceEntry{WalkLengthM: 1}))
	reloaded, err := NewDistanceCache(path, 3)
	require.NoError(t, err, "third mutation should have triggered an automatic flush")
	_, ok := reloaded.Get(types.ModeEscooterRental, geo.Point{0, 0})
	assert.True(t, ok)
}

func TestDistanceCacheVersionMismatchReportsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distance.gob")
	require.NoError(t, saveGob(path, distanceCacheFile{Version: distanceCacheVersion + 1}))

	_, err := NewDistanceCache(path, 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCacheCorrupt)
}
