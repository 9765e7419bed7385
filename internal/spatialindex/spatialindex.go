// Package spatialindex implements the Spatial Index & Nearest Lookup (C3):
// one nearest-neighbor index per facility class, built once at startup from
// static datasets and read-only thereafter (spec.md §4.3, §5: "Spatial
// indices: immutable after build; lock-free reads.").
//
// Grounded on original_source/backend/app/utils/rtree_structure.py's
// build_rtree/find_nearest (one index per mode, k-nearest bounding-box
// query), substituting github.com/paulmach/orb/quadtree for the Python
// `rtree` package: no R-tree library appears anywhere in the example pack,
// and orb/quadtree is the pack's own geometry ecosystem's nearest-neighbor
// structure (SPEC_FULL.md §2).
package spatialindex

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// Facility is one indexed point-of-interest: a parking spot, a rental
// station/free-float snapshot, or a public-transport stop.
type Facility struct {
	ID    string
	Name  string
	Pt    geo.Point
	Class types.FacilityClass
	// ModeTags carries the PT submode tags (rail/tram/bus/funicular) the
	// Candidate Evaluator (C5) needs for priority scoring; empty for
	// non-PT facility classes.
	ModeTags []string
}

// Point implements quadtree.Pointer.
func (f Facility) Point() orb.Point { return orb.Point(f.Pt) }

// Index holds one quadtree per facility class.
type Index struct {
	trees  map[types.FacilityClass]*quadtree.Quadtree
	counts map[types.FacilityClass]int
}

// Build constructs one quadtree per facility class present in facilities,
// bounded by bound (the region's planar bounding box, with slack for
// queries near its edge). This runs once at startup; the result is never
// mutated afterward.
func Build(bound geo.Bound, facilities []Facility) *Index {
	byClass := map[types.FacilityClass][]Facility{}
	for _, f := range facilities {
		byClass[f.Class] = append(byClass[f.Class], f)
	}

	trees := make(map[types.FacilityClass]*quadtree.Quadtree, len(byClass))
	counts := make(map[types.FacilityClass]int, len(byClass))
	for class, fs := range byClass {
		qt := quadtree.New(orb.Bound(bound))
		n := 0
		for _, f := range fs {
			if qt.Add(f) == nil {
				n++
			}
		}
		trees[class] = qt
		counts[class] = n
	}
	return &Index{trees: trees, counts: counts}
}

// Nearest returns the k nearest facilities of the given class to pt
// (spec.md §4.3: "nearest(class, point, k) → [point…]").
func (idx *Index) Nearest(class types.FacilityClass, pt geo.Point, k int) []Facility {
	qt, ok := idx.trees[class]
	if !ok {
		return nil
	}
	matches := qt.KNearest(nil, orb.Point(pt), k)
	out := make([]Facility, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.(Facility))
	}
	return out
}

// NearestFiltered returns up to k nearest facilities of the given class to
// pt that additionally lie within polygon (spec.md §4.3:
// "nearest_filtered(class, point, k, polygon)"). It over-fetches candidates
// from the tree and filters, widening the search until either k matches are
// found or the tree is exhausted.
func (idx *Index) NearestFiltered(class types.FacilityClass, pt geo.Point, k int, polygon geo.Polygon) []Facility {
	qt, ok := idx.trees[class]
	if !ok {
		return nil
	}

	var out []Facility
	fetch := k * 4
	if fetch < k+8 {
		fetch = k + 8
	}
	for {
		matches := qt.KNearest(nil, orb.Point(pt), fetch)
		out = out[:0]
		for _, m := range matches {
			f := m.(Facility)
			if geo.PolygonContains(polygon, f.Pt) {
				out = append(out, f)
				if len(out) == k {
					return out
				}
			}
		}
		if len(matches) < fetch {
			// Tree exhausted; return whatever passed the filter.
			return out
		}
		fetch *= 2
	}
}

// Len reports the number of facilities indexed for a class, 0 if unknown.
func (idx *Index) Len(class types.FacilityClass) int {
	return idx.counts[class]
}
