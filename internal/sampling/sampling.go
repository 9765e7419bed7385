// Package sampling implements the Sample Generator (C8): the network grid
// sampler that seeds network-mode isochrone origins, and the radial ring
// sampler that seeds point-mode destinations around a center (spec.md
// §4.8). Both operate in the region's planar projection and hand back
// geographic points.
//
// Grounded on original_source/backend/app/sampling/point_sampling.py's
// generate_adaptive_sample_points (grid + jitter + intersection-density
// extra points + KDTree cluster-dedup) and radial_sampling.py's
// generate_radial_grid (close directional points + concentric rings +
// polygon/water rejection + KMeans down-sample).
package sampling

import (
	"math"
	"math/rand"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// WaterCheck reports whether a planar-projected point falls inside an
// excluded water body.
type WaterCheck func(pt geo.Point) bool

// DensityFunc returns the precomputed road-network intersection count for
// the network grid cell at (col, row); a zero count excludes the cell from
// extra-point sampling (spec.md §4.8 step 2).
type DensityFunc func(col, row int) int

// NetworkGrid generates the network-mode sample points: a jittered grid
// over polygon (planar CRS) with optional intersection-density-weighted
// extra points, deduplicated by a minimum separation, then unprojected to
// geographic coordinates (spec.md §4.8 "Network sampling").
//
// polygon and isWater operate in the planar CRS of proj; density, if
// non-nil and extraPoints > 0, supplies per-cell intersection counts for
// step 2. rng drives every random choice (jitter, extra-cell selection,
// dedup representative); callers seed it for the reproducibility spec.md
// §7's test scenarios rely on (e.g. "seed=82").
func NetworkGrid(cfg config.SamplingConfig, proj *geo.Projection, polygon geo.Polygon, isWater WaterCheck, density DensityFunc, extraPoints int, rng *rand.Rand) []geo.Point {
	g := cfg.NetworkGridSizeM
	bound := polygon.Bound()
	minX, minY := bound.Min[0], bound.Min[1]
	maxX, maxY := bound.Max[0], bound.Max[1]

	nCols := int(math.Ceil((maxX - minX) / g))
	nRows := int(math.Ceil((maxY - minY) / g))
	if nCols < 1 {
		nCols = 1
	}
	if nRows < 1 {
		nRows = 1
	}

	type cell struct {
		col, row int
		center   geo.Point
	}
	cells := make([]cell, 0, nCols*nRows)
	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			cx := minX + float64(col)*g + g/2
			cy := minY + float64(row)*g + g/2
			cells = append(cells, cell{col: col, row: row, center: geo.Point{cx, cy}})
		}
	}

	isValid := func(pt geo.Point) bool {
		return geo.PolygonContains(polygon, pt) && (isWater == nil || !isWater(pt))
	}

	valid := make([]geo.Point, 0, len(cells))
	for _, c := range cells {
		jx := c.center[0] + uniform(rng, -g/3, g/3)
		jy := c.center[1] + uniform(rng, -g/3, g/3)
		pt := geo.Point{jx, jy}
		if isValid(pt) {
			valid = append(valid, pt)
		}
	}

	if extraPoints > 0 && density != nil {
		type weightedCell struct {
			center geo.Point
			weight float64
		}
		var candidates []weightedCell
		total := 0.0
		for _, c := range cells {
			if count := density(c.col, c.row); count > 0 {
				w := math.Log(float64(count))
				candidates = append(candidates, weightedCell{center: c.center, weight: w})
				total += w
			}
		}
		if total > 0 {
			for i := 0; i < extraPoints; i++ {
				target := rng.Float64() * total
				cum := 0.0
				chosen := candidates[len(candidates)-1].center
				for _, wc := range candidates {
					cum += wc.weight
					if target <= cum {
						chosen = wc.center
						break
					}
				}
				ox := uniform(rng, -g/2, g/2)
				oy := uniform(rng, -g/2, g/2)
				pt := geo.Point{chosen[0] + ox, chosen[1] + oy}
				if isValid(pt) {
					valid = append(valid, pt)
				}
			}
		}
	}

	deduped := clusterDedup(valid, cfg.ClusterDedupRadiusM, rng)

	out := make([]geo.Point, len(deduped))
	for i, p := range deduped {
		out[i] = proj.Inverse(p)
	}
	return out
}

// RadialGrid generates the point-mode sample points around center: four
// close directional points, num_rings concentric rings of increasing
// radius and density, rejected against polygon/water, then k-means
// down-sampled to max_points if needed, with center appended last
// (spec.md §4.8 "Point sampling (radial rings)").
//
// polygon is the planar-CRS region boundary, only consulted when
// performance is false (performance mode skips the polygon containment
// check entirely, matching the original's faster/leaner path). center is
// geographic; it is projected internally and the original geographic
// value is the one appended to the result, avoiding a lossy
// project/unproject round trip on the one point callers already know
// exactly.
func RadialGrid(cfg config.SamplingConfig, family types.ModeFamily, performance bool, proj *geo.Projection, center geo.Point, polygon geo.Polygon, isWater WaterCheck, rng *rand.Rand) []geo.Point {
	perf := "full"
	if performance {
		perf = "perf"
	}
	params := cfg.Params[string(family)][perf]

	centerProj := proj.Forward(center)

	isValid := func(pt geo.Point) bool {
		if isWater != nil && isWater(pt) {
			return false
		}
		if !performance && !geo.PolygonContains(polygon, pt) {
			return false
		}
		return true
	}

	var selected []geo.Point

	smallRadius := params.MaxRadiusM / cfg.CloseDirectionalDivisor
	for _, a := range []float64{math.Pi / 4, 3 * math.Pi / 4, 5 * math.Pi / 4, 7 * math.Pi / 4} {
		pt := geo.Point{centerProj[0] + smallRadius*math.Cos(a), centerProj[1] + smallRadius*math.Sin(a)}
		if isValid(pt) {
			selected = append(selected, pt)
		}
	}

	for i := 1; i <= params.NumRings; i++ {
		radius := (float64(i) / float64(params.NumRings)) * params.MaxRadiusM
		nPoints := params.Base * (1 + i/2)
		randomShift := uniform(rng, -math.Pi/5, math.Pi/5)

		for j := 0; j < nPoints; j++ {
			baseAngle := 2 * math.Pi * float64(j) / float64(nPoints)
			angle := math.Mod(baseAngle+randomShift, 2*math.Pi)
			if angle < 0 {
				angle += 2 * math.Pi
			}
			dx := radius*math.Cos(angle) + uniform(rng, -params.OffsetM, params.OffsetM)
			dy := radius*math.Sin(angle) + uniform(rng, -params.OffsetM, params.OffsetM)
			pt := geo.Point{centerProj[0] + dx, centerProj[1] + dy}
			if isValid(pt) {
				selected = append(selected, pt)
			}
		}
	}

	if len(selected) > params.MaxPoints {
		selected = kmeansDownsample(selected, params.MaxPoints)
	}

	out := make([]geo.Point, 0, len(selected)+1)
	for _, p := range selected {
		out = append(out, proj.Inverse(p))
	}
	if !performance {
		out = append(out, center)
	}
	return out
}

// uniform draws a uniform float64 in [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// kmeansDownsample reduces points to k representatives via k-means cluster
// centers (spec.md §4.8 point-sampling step 4). If partitioning fails
// (k <= 0 or degenerate input) the unreduced set is returned; exceeding
// max_points by a little is tolerated elsewhere in the pipeline, unlike a
// silently emptied sample set.
func kmeansDownsample(points []geo.Point, k int) []geo.Point {
	if k <= 0 || k >= len(points) {
		return points
	}

	obs := make(clusters.Observations, len(points))
	for i, p := range points {
		obs[i] = clusters.Coordinates{p[0], p[1]}
	}

	km := kmeans.New()
	cs, err := km.Partition(obs, k)
	if err != nil {
		return points
	}

	out := make([]geo.Point, 0, len(cs))
	for _, c := range cs {
		out = append(out, geo.Point{c.Center[0], c.Center[1]})
	}
	return out
}

// indexedPoint wraps a candidate point with its source index so
// clusterDedup can mark duplicates without a second point-to-index map.
type indexedPoint struct {
	idx int
	pt  geo.Point
}

func (p indexedPoint) Point() orb.Point { return orb.Point(p.pt) }

// clusterDedup keeps one representative per group of mutually-close points
// (spec.md §4.8 network-sampling step 3: "for any pair within 100 m, keep
// only one"). It visits points in a random order (rng-driven, so
// reproducible per seed) and, for each point still standing, discards
// every other not-yet-discarded point within radius — a single greedy pass
// over a quadtree range query rather than the original's pairwise
// KDTree.query_pairs adjacency, since a greedy sweep gives the same
// "one survivor per cluster" guarantee without needing a transitive
// closure step.
func clusterDedup(points []geo.Point, radius float64, rng *rand.Rand) []geo.Point {
	if len(points) == 0 {
		return nil
	}

	bound := geo.Bounds(points)
	qt := quadtree.New(orb.Bound{
		Min: orb.Point{bound.Min[0] - radius, bound.Min[1] - radius},
		Max: orb.Point{bound.Max[0] + radius, bound.Max[1] + radius},
	})
	for i, p := range points {
		qt.Add(indexedPoint{idx: i, pt: p})
	}

	removed := make([]bool, len(points))
	kept := make([]geo.Point, 0, len(points))

	for _, i := range rng.Perm(len(points)) {
		if removed[i] {
			continue
		}
		p := points[i]
		kept = append(kept, p)

		matches := qt.InBound(nil, orb.Bound{
			Min: orb.Point{p[0] - radius, p[1] - radius},
			Max: orb.Point{p[0] + radius, p[1] + radius},
		})
		for _, m := range matches {
			ip := m.(indexedPoint)
			if ip.idx == i || removed[ip.idx] {
				continue
			}
			if geo.PlanarDistance(p, ip.pt) <= radius {
				removed[ip.idx] = true
			}
		}
	}

	return kept
}
