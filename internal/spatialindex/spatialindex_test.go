package spatialindex

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

func sampleFacilities() []Facility {
	return []Facility{
		{ID: "pt-1", Pt: geo.Point{0, 0}, Class: types.FacilityPublicTransport, ModeTags: []string{"tram"}},
		{ID: "pt-2", Pt: geo.Point{10, 0}, Class: types.FacilityPublicTransport, ModeTags: []string{"bus"}},
		{ID: "pt-3", Pt: geo.Point{100, 100}, Class: types.FacilityPublicTransport, ModeTags: []string{"rail"}},
		{ID: "bp-1", Pt: geo.Point{1, 1}, Class: types.FacilityBikeParking},
	}
}

func testBound() geo.Bound {
	return geo.Bound(orb.Bound{Min: orb.Point{-1000, -1000}, Max: orb.Point{1000, 1000}})
}

func TestNearestReturnsClosestFacilitiesOfClass(t *testing.T) {
	idx := Build(testBound(), sampleFacilities())

	got := idx.Nearest(types.FacilityPublicTransport, geo.Point{0, 0}, 2)
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"pt-1", "pt-2"}, ids)
}

func TestNearestUnknownClassReturnsEmpty(t *testing.T) {
	idx := Build(testBound(), sampleFacilities())
	got := idx.Nearest(types.FacilityCarRental, geo.Point{0, 0}, 5)
	assert.Empty(t, got)
}

func TestNearestFilteredExcludesOutsidePolygon(t *testing.T) {
	idx := Build(testBound(), sampleFacilities())

	square := geo.Polygon{{
		{-5, -5}, {5, -5}, {5, 5}, {-5, 5}, {-5, -5},
	}}

	got := idx.NearestFiltered(types.FacilityPublicTransport, geo.Point{0, 0}, 5, square)
	for _, f := range got {
		assert.True(t, geo.PolygonContains(square, f.Pt))
	}
	ids := make([]string, 0, len(got))
	for _, f := range got {
		ids = append(ids, f.ID)
	}
	assert.Contains(t, ids, "pt-1")
	assert.NotContains(t, ids, "pt-3")
}

func TestLenCountsIndexedFacilities(t *testing.T) {
	idx := Build(testBound(), sampleFacilities())
	assert.Equal(t, 3, idx.Len(types.FacilityPublicTransport))
	assert.Equal(t, 1, idx.Len(types.FacilityBikeParking))
	assert.Equal(t, 0, idx.Len(types.FacilityCarRental))
}
