package raster

import (
	"math"

	"github.com/antigravity/isochrone-engine/internal/geo"
)

// segment is one marching-squares line piece, both endpoints already
// interpolated to world coordinates.
type segment struct {
	a, b geo.Point
}

// edgeRef locates one endpoint of a segment by index, for the stitching
// adjacency map.
type edgeRef struct {
	seg  int
	atA  bool
}

// TraceContours extracts every closed contour at the given level from g,
// equivalent to skimage.measure.find_contours(mask, level) followed by
// shapely.ops.polygonize (spec.md §4.10 step 3). Cells touching a NaN
// corner are skipped, matching the original's reliance on a fully-defined
// mask.
func TraceContours(g *Grid, level float64) []geo.Ring {
	var segments []segment
	for j := 0; j < g.NY-1; j++ {
		for i := 0; i < g.NX-1; i++ {
			segments = append(segments, cellSegments(g, i, j, level)...)
		}
	}
	return stitchSegments(segments)
}

// cellSegments returns the 0, 1, or 2 line segments marching squares
// produces for one grid cell, using the standard 16-case table with
// average-value disambiguation of the two saddle cases (5 and 10).
func cellSegments(g *Grid, i, j int, level float64) []segment {
	c00, c10, c11, c01 := g.At(i, j), g.At(i+1, j), g.At(i+1, j+1), g.At(i, j+1)
	if math.IsNaN(c00) || math.IsNaN(c10) || math.IsNaN(c11) || math.IsNaN(c01) {
		return nil
	}

	p00, p10, p11, p01 := g.XY(i, j), g.XY(i+1, j), g.XY(i+1, j+1), g.XY(i, j+1)

	eBottom := func() geo.Point { return interpEdge(p00, c00, p10, c10, level) }
	eRight := func() geo.Point { return interpEdge(p10, c10, p11, c11, level) }
	eTop := func() geo.Point { return interpEdge(p01, c01, p11, c11, level) }
	eLeft := func() geo.Point { return interpEdge(p00, c00, p01, c01, level) }

	bit := func(v float64) int {
		if v > level {
			return 1
		}
		return 0
	}
	code := bit(c00) | bit(c10)<<1 | bit(c11)<<2 | bit(c01)<<3
	avg := (c00 + c10 + c11 + c01) / 4

	switch code {
	case 1, 14:
		return []segment{{eLeft(), eBottom()}}
	case 2, 13:
		return []segment{{eBottom(), eRight()}}
	case 3, 12:
		return []segment{{eLeft(), eRight()}}
	case 4, 11:
		return []segment{{eRight(), eTop()}}
	case 6, 9:
		return []segment{{eBottom(), eTop()}}
	case 7, 8:
		return []segment{{eLeft(), eTop()}}
	case 5:
		if avg > level {
			return []segment{{eLeft(), eTop()}, {eBottom(), eRight()}}
		}
		return []segment{{eLeft(), eBottom()}, {eRight(), eTop()}}
	case 10:
		if avg > level {
			return []segment{{eLeft(), eBottom()}, {eRight(), eTop()}}
		}
		return []segment{{eLeft(), eTop()}, {eBottom(), eRight()}}
	default:
		return nil
	}
}

// interpEdge linearly interpolates the point along (pA, pB) where the
// field, valued vA at pA and vB at pB, crosses level.
func interpEdge(pA geo.Point, vA float64, pB geo.Point, vB float64, level float64) geo.Point {
	if vA == vB {
		return geo.Point{(pA[0] + pB[0]) / 2, (pA[1] + pB[1]) / 2}
	}
	t := (level - vA) / (vB - vA)
	return geo.Point{pA[0] + t*(pB[0]-pA[0]), pA[1] + t*(pB[1]-pA[1])}
}

// stitchSegments walks each chain of connected segments into a closed
// ring. Shared cell edges produce bit-identical interpolated endpoints
// (same two corner values, same formula), so adjacency keys on the raw
// geo.Point value rather than a rounded/tolerance-based key.
func stitchSegments(segments []segment) []geo.Ring {
	adjacency := map[geo.Point][]edgeRef{}
	for idx, s := range segments {
		adjacency[s.a] = append(adjacency[s.a], edgeRef{seg: idx, atA: true})
		adjacency[s.b] = append(adjacency[s.b], edgeRef{seg: idx, atA: false})
	}

	used := make([]bool, len(segments))
	var rings []geo.Ring

	for start := range segments {
		if used[start] {
			continue
		}
		used[start] = true
		ring := geo.Ring{segments[start].a, segments[start].b}
		current := segments[start].b

		for {
			next := firstUnused(adjacency[current], used)
			if next < 0 {
				break
			}
			used[next] = true
			s := segments[next]
			nextPoint := s.a
			if s.a == current {
				nextPoint = s.b
			}
			current = nextPoint
			if current == ring[0] {
				break
			}
			ring = append(ring, current)
		}

		if len(ring) >= 3 {
			if ring[len(ring)-1] != ring[0] {
				ring = append(ring, ring[0])
			}
			rings = append(rings, ring)
		}
	}
	return rings
}

func firstUnused(refs []edgeRef, used []bool) int {
	for _, r := range refs {
		if !used[r.seg] {
			return r.seg
		}
	}
	return -1
}
