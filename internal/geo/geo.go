// Package geo provides the geometric primitives spec.md §9 asks the core to
// depend on as an abstract interface: point/polygon containment, projection
// between CRSs, union/difference/intersection (see internal/raster for how
// this module actually performs overlap removal — in raster space, see
// SPEC_FULL.md §4), buffer/validity repair, and nearest-neighbor indexing
// (internal/spatialindex). Built on github.com/paulmach/orb, the geometry
// library used throughout the reference pack (fortelex-hiveline et al.).
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a geographic (lon, lat) pair in the source CRS, or a projected
// (x, y) pair in meters once Projection.Forward has been applied — callers track which
// space a value lives in, matching spec.md §3's "single transformer
// converts between them."
type Point = orb.Point

// Ring, Polygon, MultiPolygon re-export orb's geometry types directly; this
// module adds projection and the region-specific helpers the core needs on
// top of them.
type Ring = orb.Ring
type Polygon = orb.Polygon
type MultiPolygon = orb.MultiPolygon
type Bound = orb.Bound

// Projection is a single reusable transformer between the source geographic
// CRS (longitude/latitude) and a local planar CRS centered on the region,
// mirroring spec.md §3's "A projected CRS is used for all distance math; a
// single transformer converts between them."
//
// original_source/backend/app/core/cache.py builds this with pyproj against
// a fixed regional CRS (EPSG:2056, Swiss LV95). No CRS/projection library
// appears anywhere in the example pack, so this implements a single
// equirectangular projection around a configured origin (longitude offsets
// scaled by the cosine of the origin latitude) directly with math — sufficient accuracy for a single configured city-scale region
// (spec.md's Non-goals explicitly exclude cross-city generalization, so a
// globally-accurate general-purpose projection is not required).
type Projection struct {
	originLon, originLat float64
	originLatRad         float64
	cosOriginLat         float64
}

const earthRadiusM = 6371008.8

// NewProjection builds a transformer centered on the given WGS84 origin,
// typically the configured region's centroid.
func NewProjection(origin Point) *Projection {
	latRad := origin[1] * math.Pi / 180
	return &Projection{
		originLon:    origin[0],
		originLat:    origin[1],
		originLatRad: latRad,
		cosOriginLat: math.Cos(latRad),
	}
}

// Forward projects a geographic point to local planar meters.
func (p *Projection) Forward(pt Point) Point {
	lonRad := (pt[0] - p.originLon) * math.Pi / 180
	latRad := (pt[1] - p.originLat) * math.Pi / 180
	x := earthRadiusM * lonRad * p.cosOriginLat
	y := earthRadiusM * latRad
	return Point{x, y}
}

// Inverse projects a planar point in meters back to geographic coordinates.
func (p *Projection) Inverse(pt Point) Point {
	lonRad := pt[0] / (earthRadiusM * p.cosOriginLat)
	latRad := pt[1] / earthRadiusM
	lon := p.originLon + lonRad*180/math.Pi
	lat := p.originLat + latRad*180/math.Pi
	return Point{lon, lat}
}

// ForwardRing/ForwardPolygon project every vertex of a ring/polygon.
func (p *Projection) ForwardRing(r Ring) Ring {
	out := make(Ring, len(r))
	for i, pt := range r {
		out[i] = p.Forward(pt)
	}
	return out
}

func (p *Projection) ForwardPolygon(poly Polygon) Polygon {
	out := make(Polygon, len(poly))
	for i, r := range poly {
		out[i] = p.ForwardRing(r)
	}
	return out
}

func (p *Projection) InverseRing(r Ring) Ring {
	out := make(Ring, len(r))
	for i, pt := range r {
		out[i] = p.Inverse(pt)
	}
	return out
}

func (p *Projection) InversePolygon(poly Polygon) Polygon {
	out := make(Polygon, len(poly))
	for i, r := range poly {
		out[i] = p.InverseRing(r)
	}
	return out
}

// PlanarDistance is straight-line distance in a projected CRS, meters.
func PlanarDistance(a, b Point) float64 {
	return planar.Distance(a, b)
}

// PolygonContains reports whether pt lies within poly, both in the same CRS.
func PolygonContains(poly Polygon, pt Point) bool {
	return planar.PolygonContains(poly, pt)
}

// RingArea is the unsigned planar area of a ring in its CRS's units squared.
func RingArea(r Ring) float64 {
	a := planar.Area(r)
	if a < 0 {
		return -a
	}
	return a
}

// PolygonArea is the unsigned planar area of a polygon (outer ring minus
// holes), in its CRS's units squared.
func PolygonArea(poly Polygon) float64 {
	a := planar.Area(poly)
	if a < 0 {
		return -a
	}
	return a
}

// MultiPolygonArea sums PolygonArea across every member polygon.
func MultiPolygonArea(mp MultiPolygon) float64 {
	total := 0.0
	for _, poly := range mp {
		total += PolygonArea(poly)
	}
	return total
}

// Bounds computes the bounding box of a set of points.
func Bounds(points []Point) Bound {
	b := orb.Bound{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b
}
