// Package engine wires the eleven core components (C1-C11) into the one
// request lifecycle spec.md §6 describes: Compute(request) -> response,
// plus the finished isochrone bands (persisting them is out of scope;
// cmd/isochroned decides what to do with the returned records).
//
// Grounded on the teacher's main.go wiring style (construct every
// collaborator once, inject the rest) and
// original_source/backend/app/api/endpoints/compute.py for the
// request/response field shapes, reimplemented rather than translated:
// the Python endpoint interleaves HTTP concerns this package deliberately
// excludes (spec.md §1).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/antigravity/isochrone-engine/internal/cache"
	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/evaluator"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/interp"
	"github.com/antigravity/isochrone-engine/internal/isochrone"
	"github.com/antigravity/isochrone-engine/internal/logging"
	"github.com/antigravity/isochrone-engine/internal/oracle"
	"github.com/antigravity/isochrone-engine/internal/raster"
	"github.com/antigravity/isochrone-engine/internal/resolver"
	"github.com/antigravity/isochrone-engine/internal/sampling"
	"github.com/antigravity/isochrone-engine/internal/scheduler"
	"github.com/antigravity/isochrone-engine/internal/spatialindex"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// networkExtraPointsCount seeds the intersection-density-weighted extra
// points sampling.NetworkGrid adds on top of its jittered grid (spec.md
// §4.8 step 2). spec.md names the mechanism but not a count; this mirrors
// REFINEMENT_UNSAMPLED_POINTS's order of magnitude rather than introducing
// an unrelated literal.
const networkExtraPointsCount = 100

// Deps bundles every collaborator the engine wires together, built once at
// startup and shared read-only across every request (spec.md §5: "Spatial
// indices: immutable after build"; "Walking/mode graphs: immutable").
//
// Region and the graphs are in the same planar CRS as Proj; Index's
// facilities must already be forward-projected into that CRS before Build
// was called (internal/facilities loads geographic coordinates straight
// from Postgres and does not itself know about projection).
type Deps struct {
	Region  geo.Polygon // planar land boundary
	Proj    *geo.Projection
	IsWater func(pt geo.Point) bool

	Cache         *cache.TravelCache
	DistanceCache *cache.DistanceCache
	Index         *spatialindex.Index
	Evaluator     *evaluator.Evaluator
	Oracle        oracle.JourneyPlanner

	// Stations resolves a point-mode request's input_station name to its
	// geographic coordinate (facilities.StationLookup), matching the
	// original's "public_transport_stations.set_index('name')" lookup.
	Stations map[string]geo.Point

	// WalkGraph is shared by every mode's access-leg routing.
	WalkGraph *graph.Graph
	// RideGraphs maps a ride mode (walk/cycle/self_drive_car) to its street
	// graph; resolver.Deps.RideGraph is selected per-request from this.
	RideGraphs map[types.Mode]*graph.Graph

	// Density supplies the network sampler's intersection-count weighting
	// (spec.md §4.8 step 2); nil disables extra-point sampling entirely,
	// which is a legitimate degraded mode, not an error.
	Density sampling.DensityFunc

	Logger *slog.Logger
}

// Engine runs one request lifecycle end to end, reusing Deps across calls.
type Engine struct {
	cfg  config.Config
	deps Deps
	// seed supplies the per-request RNG seed. Production uses the current
	// time; tests override it for spec.md §8's "seed=82" reproducibility
	// scenarios.
	seed func() int64
}

// New builds an Engine. deps must be fully constructed (spatial index
// built, graphs loaded, caches opened) before the first Compute call.
func New(cfg config.Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = logging.New(slog.LevelInfo)
	}
	return &Engine{cfg: cfg, deps: deps, seed: func() int64 { return time.Now().UnixNano() }}
}

// WithSeed overrides the per-request RNG seed source, for deterministic
// tests.
func (e *Engine) WithSeed(seed func() int64) *Engine {
	e.seed = seed
	return e
}

// Result is Compute's return value: the wire-facing response plus the
// finished isochrone bands. Persisting Records to a database is an
// external collaborator's concern (spec.md §1); cmd/isochroned is free to
// discard them or hand them to one.
type Result struct {
	Response types.ComputeResponse
	Records  []isochrone.Record
}

// Compute runs one full request: network-mode sampling+resolution+
// interpolation+contouring(+refinement), or point-mode sampling+
// resolution+interpolation+contouring, per spec.md §2's data-flow
// paragraph.
func (e *Engine) Compute(ctx context.Context, req types.ComputeRequest) Result {
	start := time.Now()
	req.Defaults(start)

	var result Result
	if req.NetworkIsochrones {
		result = e.computeNetwork(ctx, req)
	} else {
		result = e.computePoint(ctx, req)
	}
	result.Response.RuntimeMinutes = time.Since(start).Minutes()
	return result
}

// gridResolution picks R per spec.md §4.9 step 1 ("R = 250, 500, or 1000
// depending on mode/performance/network"). Performance mode always gets
// the coarsest grid; among non-performance requests, point-mode matches
// spec.md §8 scenario S1's concrete "interpolate over a 500×500 grid",
// leaving the finer 1000×1000 grid for a full network-mode pass, which
// covers a much larger area and needs it most.
func (e *Engine) gridResolution(req types.ComputeRequest) int {
	switch {
	case req.Performance:
		return e.cfg.Interp.GridResolutionPerf
	case !req.NetworkIsochrones:
		return e.cfg.Interp.GridResolutionNetwork
	default:
		return e.cfg.Interp.GridResolutionFull
	}
}

func (e *Engine) resolverDeps(mode types.Mode) resolver.Deps {
	profile := types.Profile(mode)
	return resolver.Deps{
		Cache:            e.deps.Cache,
		DistanceCache:    e.deps.DistanceCache,
		Oracle:           e.deps.Oracle,
		Evaluator:        e.deps.Evaluator,
		Index:            e.deps.Index,
		WalkGraph:        e.deps.WalkGraph,
		RideGraph:        e.deps.RideGraphs[profile.RideMode],
		WalkSpeedMPerMin: e.cfg.Oracle.WalkingSpeedMPerMin,
	}
}

func (e *Engine) taskTimeout(req types.ComputeRequest) time.Duration {
	if req.Performance {
		return e.cfg.Scheduler.PerformanceTaskTimeout
	}
	return e.cfg.Scheduler.NetworkTaskTimeout
}

// forwardAll re-projects a batch of geographic points (the Sample
// Generator's and Iterative Refinement's public output shape) into the
// planar CRS the resolver, oracle, spatial index, and graphs all operate
// in.
func (e *Engine) forwardAll(points []geo.Point) []geo.Point {
	out := make([]geo.Point, len(points))
	for i, p := range points {
		out[i] = e.deps.Proj.Forward(p)
	}
	return out
}

// ---- network mode ----

func (e *Engine) computeNetwork(ctx context.Context, req types.ComputeRequest) Result {
	mode := req.Mode
	rng := rand.New(rand.NewSource(e.seed()))
	log := e.deps.Logger

	geoSamples := sampling.NetworkGrid(e.cfg.Sampling, e.deps.Proj, e.deps.Region, e.deps.IsWater, e.deps.Density, networkExtraPointsCount, rng)
	planarSamples := e.forwardAll(geoSamples)

	samples, summary := e.resolveNetworkPoints(ctx, mode, planarSamples, req)
	resp := e.responseFromSummary(types.RequestTypeNetwork, nil, &mode, summary)
	if resp.Status == types.StatusFailed {
		return Result{Response: resp}
	}

	resolution := e.gridResolution(req)
	grid, err := e.interpolate(resolution, samples)
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypeNetwork, nil, &mode, err)}
	}

	records, meta, err := isochrone.Generate(ctx, e.cfg.Contour, isochrone.Input{
		Grid:        grid,
		Proj:        e.deps.Proj,
		Region:      e.deps.Region,
		IsWater:     e.deps.IsWater,
		Performance: req.Performance,
	})
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypeNetwork, nil, &mode, err)}
	}
	if meta.Warning != "" {
		log.Warn(meta.Warning, "mode", mode)
	}

	if !req.Performance {
		records = e.refinePass(ctx, req, mode, grid, records, samples, resolution, rng, log)
	}

	rt := types.RequestTypeNetwork
	resp.Type = &rt
	return Result{Response: resp, Records: records}
}

// refinePass runs the Iterative Refinement stage (C11) once: synthesize
// extra points from the first pass's under-sampled/large-band regions,
// resolve them through the Scheduler, merge with the first pass's
// samples, and regenerate the grid and contours (spec.md §4.11). Any
// failure here is non-fatal — the first pass's records are kept.
func (e *Engine) refinePass(
	ctx context.Context,
	req types.ComputeRequest,
	mode types.Mode,
	grid *raster.Grid,
	records []isochrone.Record,
	firstPass []interp.Sample,
	resolution int,
	rng *rand.Rand,
	log *slog.Logger,
) []isochrone.Record {
	extraGeo := isochrone.Refine(e.cfg.Refinement, e.cfg.Contour.LargeIsochroneShare, e.cfg.Sampling.RefinementMinSepM, rng, isochrone.RefinementInput{
		Grid:    grid,
		Region:  e.deps.Region,
		IsWater: e.deps.IsWater,
		Records: records,
		Proj:    e.deps.Proj,
	})
	if len(extraGeo) == 0 {
		return records
	}

	extraPlanar := e.forwardAll(extraGeo)
	extraSamples, _ := e.resolveNetworkPoints(ctx, mode, extraPlanar, req)
	if len(extraSamples) == 0 {
		return records
	}

	merged := append(append([]interp.Sample{}, firstPass...), extraSamples...)
	grid2, err := e.interpolate(resolution, merged)
	if err != nil {
		log.Warn("refinement pass: re-interpolation failed, keeping first pass", "mode", mode, "error", err)
		return records
	}

	records2, meta2, err := isochrone.Generate(ctx, e.cfg.Contour, isochrone.Input{
		Grid:        grid2,
		Proj:        e.deps.Proj,
		Region:      e.deps.Region,
		IsWater:     e.deps.IsWater,
		Performance: req.Performance,
	})
	if err != nil {
		log.Warn("refinement pass: regeneration failed, keeping first pass", "mode", mode, "error", err)
		return records
	}
	if meta2.Warning != "" {
		log.Warn(meta2.Warning, "mode", mode)
	}
	return records2
}

// resolveNetworkPoints fans samples out through the Batch Scheduler,
// collecting every successful or already-cached point into interp.Sample
// pairs ready for the Interpolator.
func (e *Engine) resolveNetworkPoints(ctx context.Context, mode types.Mode, samples []geo.Point, req types.ComputeRequest) ([]interp.Sample, scheduler.Summary) {
	deps := e.resolverDeps(mode)

	tasks := make([]scheduler.TaskFunc, len(samples))
	for i, pt := range samples {
		pt := pt
		tasks[i] = func(ctx context.Context) types.Result {
			return resolver.NetworkResolve(ctx, deps, mode, pt, req.ArrivalTime, req.Timestamp)
		}
	}

	summary := scheduler.RunInBatches(ctx, tasks, e.cfg.Scheduler.NetworkBatchSize, e.taskTimeout(req), types.Result.IsAbort, nil)

	out := make([]interp.Sample, 0, len(samples))
	for i, r := range summary.Results {
		switch r.Kind {
		case types.ResultSuccess:
			total, _ := r.Value.(float64)
			out = append(out, interp.Sample{Point: samples[i], TimeMin: total})
		case types.ResultAlreadyProcessed:
			if e2, ok := e.deps.Cache.GetNetworkTime(mode, samples[i]); ok {
				out = append(out, interp.Sample{Point: samples[i], TimeMin: e2.TimeMin})
			}
		}
	}
	return out, summary
}

// ---- point mode ----

func (e *Engine) computePoint(ctx context.Context, req types.ComputeRequest) Result {
	mode := req.Mode
	log := e.deps.Logger

	center, station, err := e.resolveCenter(req)
	if err != nil {
		return Result{Response: types.ComputeResponse{
			Status:  types.StatusFailed,
			Mode:    &mode,
			Station: station,
			Error:   err.Error(),
		}}
	}
	rng := rand.New(rand.NewSource(e.seed()))
	profile := types.Profile(mode)

	if req.Performance {
		return e.computePointPerformance(ctx, req, mode, station, center, rng, log)
	}

	deps := e.resolverDeps(mode)
	centerPlanar := e.deps.Proj.Forward(center)
	origin, err := resolver.ResolveOriginAccess(ctx, deps, mode, centerPlanar, req.ArrivalTime, req.Timestamp)
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypePoint, station, &mode, err)}
	}

	geoSamples := sampling.RadialGrid(e.cfg.Sampling, profile.Family, false, e.deps.Proj, center, e.deps.Region, e.deps.IsWater, rng)
	planarSamples := e.forwardAll(geoSamples)

	samples, summary := e.resolvePointSamples(ctx, mode, centerPlanar, origin, planarSamples, req)
	resp := e.responseFromSummary(types.RequestTypePoint, station, &mode, summary)
	if resp.Status == types.StatusFailed {
		return Result{Response: resp}
	}

	resolution := e.gridResolution(req)
	grid, err := e.interpolate(resolution, samples)
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypePoint, station, &mode, err)}
	}

	maxRadius := e.cfg.Sampling.Params[string(profile.Family)]["full"].MaxRadiusM
	records, meta, err := isochrone.Generate(ctx, e.cfg.Contour, isochrone.Input{
		Grid:        grid,
		Proj:        e.deps.Proj,
		Region:      e.deps.Region,
		IsWater:     e.deps.IsWater,
		Performance: false,
		PointMode:   true,
		Center:      centerPlanar,
		MaxRadiusM:  maxRadius,
	})
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypePoint, station, &mode, err)}
	}
	if meta.Warning != "" {
		log.Warn(meta.Warning, "mode", mode)
	}

	rt := types.RequestTypePoint
	resp.Type = &rt
	return Result{Response: resp, Records: records}
}

// resolveCenter resolves a point-mode request's center from its
// input_station name (spec.md §6's wire shape carries input_station, not
// a coordinate) against Deps.Stations, matching the original's "Station
// '%s' not found" failure. req.Center is honored directly when already
// set, which lets tests build a request without wiring a station table.
func (e *Engine) resolveCenter(req types.ComputeRequest) (geo.Point, *string, error) {
	if req.Center != nil {
		return *req.Center, req.InputStation, nil
	}
	if req.InputStation == nil {
		return geo.Point{}, nil, fmt.Errorf("point-mode request requires input_station or center")
	}
	pt, ok := e.deps.Stations[*req.InputStation]
	if !ok {
		return geo.Point{}, req.InputStation, fmt.Errorf("station %q not found", *req.InputStation)
	}
	return pt, req.InputStation, nil
}

func (e *Engine) resolvePointSamples(ctx context.Context, mode types.Mode, center geo.Point, origin resolver.OriginAccess, radialPoints []geo.Point, req types.ComputeRequest) ([]interp.Sample, scheduler.Summary) {
	deps := e.resolverDeps(mode)

	tasks := make([]scheduler.TaskFunc, len(radialPoints))
	for i, pt := range radialPoints {
		pt := pt
		tasks[i] = func(ctx context.Context) types.Result {
			return resolver.PointResolve(ctx, deps, mode, center, origin, pt, req.ArrivalTime, req.Timestamp)
		}
	}

	summary := scheduler.RunInBatches(ctx, tasks, e.cfg.Scheduler.PointBatchSize, e.taskTimeout(req), types.Result.IsAbort, nil)

	out := make([]interp.Sample, 0, len(radialPoints))
	for i, r := range summary.Results {
		switch r.Kind {
		case types.ResultSuccess:
			total, _ := r.Value.(float64)
			out = append(out, interp.Sample{Point: radialPoints[i], TimeMin: total})
		case types.ResultAlreadyProcessed:
			for _, e2 := range e.deps.Cache.GetPointEntries(mode, center) {
				if e2.Destination == radialPoints[i] {
					out = append(out, interp.Sample{Point: radialPoints[i], TimeMin: e2.TimeMin})
					break
				}
			}
		}
	}
	return out, summary
}

// computePointPerformance bypasses access-station resolution and asks the
// oracle for one full trip per radial point, aggregating the used-mode
// and station-name sets the performance response carries (spec.md §4.6,
// §6).
func (e *Engine) computePointPerformance(ctx context.Context, req types.ComputeRequest, mode types.Mode, station *string, center geo.Point, rng *rand.Rand, log *slog.Logger) Result {
	profile := types.Profile(mode)
	centerPlanar := e.deps.Proj.Forward(center)

	geoSamples := sampling.RadialGrid(e.cfg.Sampling, profile.Family, true, e.deps.Proj, center, e.deps.Region, e.deps.IsWater, rng)
	planarSamples := e.forwardAll(geoSamples)

	tasks := make([]scheduler.TaskFunc, len(planarSamples))
	for i, pt := range planarSamples {
		pt := pt
		tasks[i] = func(ctx context.Context) types.Result {
			return resolver.PointResolvePerformance(ctx, e.resolverDeps(mode), mode, centerPlanar, pt, req.ArrivalTime, req.Timestamp)
		}
	}
	summary := scheduler.RunInBatches(ctx, tasks, e.cfg.Scheduler.PointBatchSize, e.taskTimeout(req), types.Result.IsAbort, nil)

	resp := e.responseFromSummary(types.RequestTypePoint, station, &mode, summary)

	usedModes := map[string]bool{}
	stations := map[string]bool{}
	samples := make([]interp.Sample, 0, len(planarSamples))
	for i, r := range summary.Results {
		if r.Kind != types.ResultSuccess {
			continue
		}
		trip, ok := r.Value.(resolver.FullTrip)
		if !ok {
			continue
		}
		samples = append(samples, interp.Sample{Point: planarSamples[i], TimeMin: trip.TotalMin})
		for _, m := range trip.UsedModes {
			usedModes[m] = true
		}
		for _, s := range trip.Stations {
			stations[s] = true
		}
	}
	resp.UsedModes = setToSlice(usedModes)
	resp.StationNames = setToSlice(stations)
	if resp.Status == types.StatusFailed {
		return Result{Response: resp}
	}

	resolution := e.gridResolution(req)
	grid, err := e.interpolate(resolution, samples)
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypePoint, station, &mode, err)}
	}

	maxRadius := e.cfg.Sampling.Params[string(profile.Family)]["perf"].MaxRadiusM
	records, meta, err := isochrone.Generate(ctx, e.cfg.Contour, isochrone.Input{
		Grid:        grid,
		Proj:        e.deps.Proj,
		Region:      e.deps.Region,
		IsWater:     e.deps.IsWater,
		Performance: true,
		PointMode:   true,
		Center:      centerPlanar,
		MaxRadiusM:  maxRadius,
	})
	if err != nil {
		return Result{Response: e.fatalResponse(types.RequestTypePoint, station, &mode, err)}
	}
	if meta.Warning != "" {
		log.Warn(meta.Warning, "mode", mode)
	}

	rt := types.RequestTypePoint
	resp.Type = &rt
	return Result{Response: resp, Records: records}
}

func setToSlice(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---- interpolation ----

func (e *Engine) interpolate(resolution int, samples []interp.Sample) (*raster.Grid, error) {
	if len(samples) < 4 {
		return nil, types.ErrInsufficientData
	}
	bound := sampleBound(samples, e.cfg.Interp.BufferM)
	grid := raster.NewGrid(bound, resolution)
	if err := interp.IDW(e.cfg.Interp, samples, grid); err != nil {
		return nil, err
	}
	return interp.FillGaps(grid, e.cfg.Interp.GaussianSigma), nil
}

func sampleBound(samples []interp.Sample, bufferM float64) geo.Bound {
	pts := make([]geo.Point, len(samples))
	for i, s := range samples {
		pts[i] = s.Point
	}
	b := geo.Bounds(pts)
	return geo.Bound{
		Min: geo.Point{b.Min[0] - bufferM, b.Min[1] - bufferM},
		Max: geo.Point{b.Max[0] + bufferM, b.Max[1] + bufferM},
	}
}

// ---- response construction ----

// responseFromSummary maps a Batch Scheduler outcome to a response status
// per spec.md §7's RateLimited row: partial_success if any point resolved
// before the abort, failed if none did. Without an abort the status is
// failed if no point resolved and success otherwise (per-point skips for
// NoTrip/NoDestination/NoStation/Timeout are absorbed silently, per
// spec.md §7).
func (e *Engine) responseFromSummary(reqType types.RequestType, station *string, mode *types.Mode, summary scheduler.Summary) types.ComputeResponse {
	successCount := 0
	for _, r := range summary.Results {
		if r.Kind == types.ResultSuccess || r.Kind == types.ResultAlreadyProcessed {
			successCount++
		}
	}

	resp := types.ComputeResponse{Type: &reqType, Station: station, Mode: mode}
	switch {
	case summary.Aborted && successCount == 0:
		resp.Status = types.StatusFailed
		resp.Reason = "rate limit exhausted before any point resolved"
	case summary.Aborted:
		resp.Status = types.StatusPartialSuccess
		resp.Reason = "aborted after rate-limit signal"
	case successCount == 0:
		resp.Status = types.StatusFailed
		resp.Reason = "no point resolved successfully"
	default:
		resp.Status = types.StatusSuccess
	}
	return resp
}

func (e *Engine) fatalResponse(reqType types.RequestType, station *string, mode *types.Mode, err error) types.ComputeResponse {
	return types.ComputeResponse{
		Status:  types.StatusFailed,
		Type:    &reqType,
		Station: station,
		Mode:    mode,
		Error:   err.Error(),
	}
}
