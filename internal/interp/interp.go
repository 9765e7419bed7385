// Package interp implements the Interpolator (C9): inverse-distance-
// weighted interpolation of known travel-time samples over a raster grid,
// followed by gap-filling and Gaussian smoothing (spec.md §4.9).
//
// Grounded on original_source/backend/app/processing/isochrones/
// interpolation.py's inverse_distance_weighting (adaptive power from
// std/mean of neighbor distances, k nearest via cKDTree, normalized
// weights) and fill_gaps (3x3 median, 5x5 grey dilation for remaining
// NaNs, Gaussian blur).
package interp

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/raster"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// Sample is one known (location, travel-time) pair the interpolator draws
// from.
type Sample struct {
	Point   geo.Point
	TimeMin float64
}

// samplePoint is the kdtree.Comparable wrapper carrying the originating
// sample's index, so a NearestSet match can be traced back to its
// TimeMin without a coordinate-keyed lookup.
type samplePoint struct {
	x, y float64
	idx  int
}

func (p samplePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(samplePoint)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p samplePoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance, matching kdtree's
// convention (spec.md §4.9 then takes its square root for the IDW weight).
func (p samplePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(samplePoint)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

// pointList implements kdtree.Interface over a slice of samplePoint.
type pointList []samplePoint

func (p pointList) Index(i int) kdtree.Comparable { return p[i] }
func (p pointList) Len() int                      { return len(p) }
func (p pointList) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(planeSort{pts: p, dim: d}, len(p)/2)
}
func (p pointList) Slice(start, end int) kdtree.Interface { return p[start:end] }

// planeSort sorts a pointList along one dimension, the SortSlicer
// kdtree.Partition needs to find the median for Pivot.
type planeSort struct {
	pts pointList
	dim kdtree.Dim
}

func (s planeSort) Len() int { return len(s.pts) }
func (s planeSort) Less(i, j int) bool {
	if s.dim == 0 {
		return s.pts[i].x < s.pts[j].x
	}
	return s.pts[i].y < s.pts[j].y
}
func (s planeSort) Swap(i, j int) { s.pts[i], s.pts[j] = s.pts[j], s.pts[i] }
func (s planeSort) Slice(start, end int) kdtree.SortSlicer {
	return planeSort{pts: s.pts[start:end], dim: s.dim}
}

// IDW fills grid in place with inverse-distance-weighted interpolation of
// samples, normalized to [0,1] internally and denormalized back to
// minutes before returning (spec.md §4.9 steps 2-3 combined with the
// normalize/denormalize bracketing the original's IDW call).
func IDW(cfg config.InterpConfig, samples []Sample, grid *raster.Grid) error {
	if len(samples) == 0 {
		return types.ErrInsufficientData
	}

	timesMin, timesMax := samples[0].TimeMin, samples[0].TimeMin
	for _, s := range samples {
		if s.TimeMin < timesMin {
			timesMin = s.TimeMin
		}
		if s.TimeMin > timesMax {
			timesMax = s.TimeMin
		}
	}
	spanRange := timesMax - timesMin

	normalized := make([]float64, len(samples))
	pts := make(pointList, len(samples))
	for i, s := range samples {
		if spanRange > 0 {
			normalized[i] = (s.TimeMin - timesMin) / spanRange
		}
		pts[i] = samplePoint{x: s.Point[0], y: s.Point[1], idx: i}
	}

	tree := kdtree.New(pts, false)
	k := cfg.MaxNeighbors
	if k <= 0 || k > len(samples) {
		k = len(samples)
	}

	// The original queries the whole grid against the tree in one cKDTree.query
	// call and derives a single adjusted_power from np.std/np.mean over that
	// entire (M, k) distances array, not one power per grid cell. Mirroring
	// that means querying every cell first, keeping each cell's neighbor
	// distances around, and only then computing one mean/std pair to use for
	// every cell's weights.
	nCells := grid.NX * grid.NY
	cellDists := make([][]float64, nCells)
	cellHeaps := make([]kdtree.Heap, nCells)
	var allDists []float64
	for iy := 0; iy < grid.NY; iy++ {
		for ix := 0; ix < grid.NX; ix++ {
			p := grid.XY(ix, iy)
			keeper := kdtree.NewNKeeper(k)
			tree.NearestSet(keeper, samplePoint{x: p[0], y: p[1], idx: -1})

			n := keeper.Heap.Len()
			dists := make([]float64, n)
			for i, cd := range keeper.Heap {
				dists[i] = math.Sqrt(cd.Dist)
			}
			cell := iy*grid.NX + ix
			cellDists[cell] = dists
			cellHeaps[cell] = keeper.Heap
			allDists = append(allDists, dists...)
		}
	}

	mean, std := stat.MeanStdDev(allDists, nil)
	power := cfg.BasePower + std/(mean+1e-10)

	for iy := 0; iy < grid.NY; iy++ {
		for ix := 0; ix < grid.NX; ix++ {
			cell := iy*grid.NX + ix
			dists := cellDists[cell]
			heap := cellHeaps[cell]

			weights := make([]float64, len(dists))
			weightSum := 0.0
			for i, d := range dists {
				w := 1e10
				if d != 0 {
					w = 1 / math.Pow(d, power)
				}
				weights[i] = w
				weightSum += w
			}

			value := 0.0
			for i, cd := range heap {
				sp := cd.Comparable.(samplePoint)
				value += (weights[i] / weightSum) * normalized[sp.idx]
			}
			grid.Set(ix, iy, value)
		}
	}

	for i, v := range grid.Values {
		grid.Values[i] = v*spanRange + timesMin
	}
	return nil
}

// FillGaps smooths grid and fills any remaining NaN cells: a 3x3 NaN-aware
// median pass, then a 5x5 max-of-valid-neighbors pass for cells still NaN,
// then a Gaussian blur of sigma (spec.md §4.9 step 4). A grid with no
// non-NaN value anywhere returns all-zero, matching the original's
// np.all(isnan) short circuit.
func FillGaps(grid *raster.Grid, sigma float64) *raster.Grid {
	if allNaN(grid) {
		out := &raster.Grid{NX: grid.NX, NY: grid.NY, MinX: grid.MinX, MinY: grid.MinY, CellW: grid.CellW, CellH: grid.CellH, Values: make([]float64, len(grid.Values))}
		return out
	}

	median := medianFilter(grid, 1)
	dilated := maxFilter(median, 2)
	for i, v := range median.Values {
		if math.IsNaN(v) {
			median.Values[i] = dilated.Values[i]
		}
	}
	return gaussianBlur(median, sigma)
}

func allNaN(g *raster.Grid) bool {
	for _, v := range g.Values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

func cloneGrid(g *raster.Grid) *raster.Grid {
	out := &raster.Grid{NX: g.NX, NY: g.NY, MinX: g.MinX, MinY: g.MinY, CellW: g.CellW, CellH: g.CellH, Values: make([]float64, len(g.Values))}
	copy(out.Values, g.Values)
	return out
}

// medianFilter applies a NaN-aware median over a (2*half+1)-square window,
// clamping at the grid edge ('nearest' mode).
func medianFilter(g *raster.Grid, half int) *raster.Grid {
	out := cloneGrid(g)
	var window []float64
	for iy := 0; iy < g.NY; iy++ {
		for ix := 0; ix < g.NX; ix++ {
			window = window[:0]
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					nx, ny := clamp(ix+dx, g.NX-1), clamp(iy+dy, g.NY-1)
					if v := g.At(nx, ny); !math.IsNaN(v) {
						window = append(window, v)
					}
				}
			}
			if len(window) == 0 {
				out.Set(ix, iy, math.NaN())
				continue
			}
			out.Set(ix, iy, median(window))
		}
	}
	return out
}

// maxFilter takes the maximum of the non-NaN values in a
// (2*half+1)-square window, the grey-dilation pass for residual NaNs.
func maxFilter(g *raster.Grid, half int) *raster.Grid {
	out := cloneGrid(g)
	for iy := 0; iy < g.NY; iy++ {
		for ix := 0; ix < g.NX; ix++ {
			best := math.NaN()
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					nx, ny := clamp(ix+dx, g.NX-1), clamp(iy+dy, g.NY-1)
					if v := g.At(nx, ny); !math.IsNaN(v) && (math.IsNaN(best) || v > best) {
						best = v
					}
				}
			}
			out.Set(ix, iy, best)
		}
	}
	return out
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// gaussianBlur convolves grid with a separable Gaussian kernel of standard
// deviation sigma, edge-clamped, matching cv2.GaussianBlur/scipy's
// gaussian_filter. sigma <= 0 returns grid unchanged.
func gaussianBlur(g *raster.Grid, sigma float64) *raster.Grid {
	if sigma <= 0 {
		return g
	}
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	horiz := cloneGrid(g)
	for iy := 0; iy < g.NY; iy++ {
		for ix := 0; ix < g.NX; ix++ {
			acc := 0.0
			for k, w := range kernel {
				nx := clamp(ix+k-radius, g.NX-1)
				acc += w * g.At(nx, iy)
			}
			horiz.Set(ix, iy, acc)
		}
	}

	out := cloneGrid(horiz)
	for iy := 0; iy < g.NY; iy++ {
		for ix := 0; ix < g.NX; ix++ {
			acc := 0.0
			for k, w := range kernel {
				ny := clamp(iy+k-radius, g.NY-1)
				acc += w * horiz.At(ix, ny)
			}
			out.Set(ix, iy, acc)
		}
	}
	return out
}
