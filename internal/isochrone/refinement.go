package isochrone

import (
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/raster"
)

// RefinementInput is what Refine needs to find under-sampled territory and
// synthesize a second round of sample points (spec.md §4.11).
type RefinementInput struct {
	Grid    *raster.Grid // the same grid Generate consumed
	Region  geo.Polygon  // planar
	IsWater WaterCheck
	Records []Record // first-pass bands, geographic (Refine forward-projects them)
	Proj    *geo.Projection
}

// Refine computes the unsampled-area and large-isochrone regions from a
// finished first pass and samples additional points inside them, ready to
// feed back through the Scheduler for a second pass (spec.md §4.11).
//
// Grounded on original_source/backend/app/sampling/polygon_sampling.py
// (extract_unsampled_area, identify_large_isochrones) and
// filtering_points.py (random_points_in_polygon, filter_close_points).
// Both polygon_sampling.py functions operate via shapely's
// difference/union_all, unavailable here (no polygon boolean-ops library
// in the pack); "unsampled area" is instead derived as a raster mask
// (region AND NOT water AND NOT covered-by-any-band), consistent with
// Generate's own raster-space clipping.
//
// minSepM is the minimum inter-point spacing enforced on the synthesized
// points (config.SamplingConfig.RefinementMinSepM), supplied by the caller
// rather than hardcoded here since internal/sampling already owns that
// tunable.
func Refine(cfg config.RefinementConfig, largeShare, minSepM float64, rng *rand.Rand, in RefinementInput) []geo.Point {
	covered := raster.NewMask(in.Grid.NX, in.Grid.NY)
	for iy := 0; iy < in.Grid.NY; iy++ {
		for ix := 0; ix < in.Grid.NX; ix++ {
			p := in.Grid.XY(ix, iy)
			if !geo.PolygonContains(in.Region, p) {
				continue
			}
			if in.IsWater != nil && in.IsWater(p) {
				continue
			}
			covered.Set(ix, iy, true)
		}
	}
	for _, r := range in.Records {
		for _, poly := range r.Geometry {
			planarPoly := in.Proj.ForwardPolygon(poly)
			for iy := 0; iy < in.Grid.NY; iy++ {
				for ix := 0; ix < in.Grid.NX; ix++ {
					if !covered.Get(ix, iy) {
						continue
					}
					p := in.Grid.XY(ix, iy)
					if geo.PolygonContains(planarPoly, p) {
						covered.Set(ix, iy, false)
					}
				}
			}
		}
	}

	unsampledRings := raster.TraceContours(covered.ToGrid(in.Grid), 0.5)
	unsampledPolys := ringsToValidPolygons(unsampledRings)

	totalArea := 0.0
	bandArea := make([]float64, len(in.Records))
	for i, r := range in.Records {
		a := 0.0
		for _, poly := range r.Geometry {
			a += geo.PolygonArea(in.Proj.ForwardPolygon(poly))
		}
		bandArea[i] = a
		totalArea += a
	}

	var points []geo.Point
	if cfg.UnsampledPoints > 0 && len(unsampledPolys) > 0 {
		points = append(points, sampleInPolygons(rng, unsampledPolys, cfg.UnsampledPoints, in.Proj)...)
	}

	if cfg.LargePoints > 0 && totalArea > 0 {
		for i, r := range in.Records {
			share := bandArea[i] / totalArea
			if share <= largeShare {
				continue
			}
			n := int(float64(cfg.LargePoints) * share)
			if n == 0 {
				continue
			}
			planarPolys := make([]geo.Polygon, len(r.Geometry))
			for j, poly := range r.Geometry {
				planarPolys[j] = in.Proj.ForwardPolygon(poly)
			}
			points = append(points, sampleInPolygons(rng, planarPolys, n, in.Proj)...)
		}
	}

	return filterMinSeparation(points, in.Proj, minSepM, rng)
}

// sampleInPolygons performs rejection sampling within the combined bound
// of polys (already in planar coordinates), reprojecting accepted points
// back to geographic coordinates, matching random_points_in_polygon's
// bounding-box rejection loop with a bounded attempt budget.
func sampleInPolygons(rng *rand.Rand, polys []geo.Polygon, n int, proj *geo.Projection) []geo.Point {
	if len(polys) == 0 || n <= 0 {
		return nil
	}
	bound := polys[0].Bound()
	for _, p := range polys[1:] {
		bound = bound.Union(p.Bound())
	}

	var out []geo.Point
	maxAttempts := n * 20
	for attempts := 0; len(out) < n && attempts < maxAttempts; attempts++ {
		x := bound.Min[0] + rng.Float64()*(bound.Max[0]-bound.Min[0])
		y := bound.Min[1] + rng.Float64()*(bound.Max[1]-bound.Min[1])
		candidate := geo.Point{x, y}
		for _, poly := range polys {
			if geo.PolygonContains(poly, candidate) {
				out = append(out, proj.Inverse(candidate))
				break
			}
		}
	}
	return out
}

type refPoint struct {
	idx int
	pt  geo.Point
}

func (r refPoint) Point() orb.Point { return orb.Point(r.pt) }

// filterMinSeparation drops points closer than minDist to an
// already-accepted point, grounded on filter_close_points's KDTree
// query-ball sweep but implemented as a single quadtree range-query pass
// (the same simplification internal/sampling's clusterDedup makes) rather
// than the original's index-ordered "drop all later neighbors" pass.
func filterMinSeparation(points []geo.Point, proj *geo.Projection, minDist float64, rng *rand.Rand) []geo.Point {
	if len(points) == 0 {
		return nil
	}
	planar := make([]geo.Point, len(points))
	for i, p := range points {
		planar[i] = proj.Forward(p)
	}
	bound := geo.Bounds(planar)
	qt := quadtree.New(orb.Bound{
		Min: orb.Point{bound.Min[0] - minDist, bound.Min[1] - minDist},
		Max: orb.Point{bound.Max[0] + minDist, bound.Max[1] + minDist},
	})
	for i, p := range planar {
		qt.Add(refPoint{idx: i, pt: p})
	}

	removed := make([]bool, len(planar))
	kept := make([]geo.Point, 0, len(points))
	order := rng.Perm(len(planar))
	for _, i := range order {
		if removed[i] {
			continue
		}
		kept = append(kept, points[i])
		p := planar[i]
		matches := qt.InBound(nil, orb.Bound{
			Min: orb.Point{p[0] - minDist, p[1] - minDist},
			Max: orb.Point{p[0] + minDist, p[1] + minDist},
		})
		for _, m := range matches {
			rp := m.(refPoint)
			if rp.idx == i || removed[rp.idx] {
				continue
			}
			if geo.PlanarDistance(p, rp.pt) <= minDist {
				removed[rp.idx] = true
			}
		}
	}

	return kept
}
