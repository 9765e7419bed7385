package isochrone

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/raster"
)

const testMinSepM = 150

func TestRefineFindsUnsampledAreaOutsideCoveredBand(t *testing.T) {
	bound := geo.Bound{Min: geo.Point{-1000, -1000}, Max: geo.Point{1000, 1000}}
	grid := raster.NewGrid(bound, 30)
	proj := geo.NewProjection(geo.Point{8.5, 47.4})
	region := squarePolygon(1000)

	// A small covering ring near the center, leaving most of the region
	// unsampled.
	smallRing := geo.Ring{{-100, -100}, {100, -100}, {100, 100}, {-100, 100}, {-100, -100}}
	records := []Record{{Level: 1, Geometry: geo.MultiPolygon{proj.InversePolygon(geo.Polygon{smallRing})}}}

	cfg := config.RefinementConfig{UnsampledPoints: 10, LargePoints: 0}
	rng := rand.New(rand.NewSource(82))

	points := Refine(cfg, 0.05, testMinSepM, rng, RefinementInput{
		Grid:    grid,
		Region:  region,
		Records: records,
		Proj:    proj,
	})
	assert.NotEmpty(t, points, "most of the region is uncovered, so unsampled-area sampling should produce points")
}

func TestRefineReturnsNoPointsWhenBothBudgetsZero(t *testing.T) {
	bound := geo.Bound{Min: geo.Point{-1000, -1000}, Max: geo.Point{1000, 1000}}
	grid := raster.NewGrid(bound, 10)
	proj := geo.NewProjection(geo.Point{8.5, 47.4})
	region := squarePolygon(1000)

	cfg := config.RefinementConfig{UnsampledPoints: 0, LargePoints: 0}
	rng := rand.New(rand.NewSource(82))

	points := Refine(cfg, 0.05, testMinSepM, rng, RefinementInput{Grid: grid, Region: region, Proj: proj})
	assert.Empty(t, points)
}

func TestSampleInPolygonsStaysWithinPolygon(t *testing.T) {
	proj := geo.NewProjection(geo.Point{8.5, 47.4})
	poly := squarePolygon(50)
	rng := rand.New(rand.NewSource(82))

	points := sampleInPolygons(rng, []geo.Polygon{poly}, 5, proj)
	require.NotEmpty(t, points)
	for _, p := range points {
		back := proj.Forward(p)
		assert.True(t, geo.PolygonContains(poly, back))
	}
}

func TestFilterMinSeparationDropsCloseDuplicates(t *testing.T) {
	proj := geo.NewProjection(geo.Point{8.5, 47.4})
	rng := rand.New(rand.NewSource(82))

	close1 := proj.Inverse(geo.Point{0, 0})
	close2 := proj.Inverse(geo.Point{10, 0}) // 10m apart, under the 150m floor
	far := proj.Inverse(geo.Point{1000, 0})

	kept := filterMinSeparation([]geo.Point{close1, close2, far}, proj, testMinSepM, rng)
	assert.Len(t, kept, 2, "one of the two close points should be dropped, the far one always kept")
}

func TestFilterMinSeparationEmptyInput(t *testing.T) {
	proj := geo.NewProjection(geo.Point{8.5, 47.4})
	rng := rand.New(rand.NewSource(82))
	assert.Empty(t, filterMinSeparation(nil, proj, testMinSepM, rng))
}
