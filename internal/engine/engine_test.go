package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/cache"
	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/evaluator"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/interp"
	"github.com/antigravity/isochrone-engine/internal/logging"
	"github.com/antigravity/isochrone-engine/internal/oracle"
	"github.com/antigravity/isochrone-engine/internal/scheduler"
	"github.com/antigravity/isochrone-engine/internal/spatialindex"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// fakeOracle is a deterministic JourneyPlanner stand-in: duration is
// straight-line distance over a fixed speed, regardless of mode, which is
// all the walk-mode paths this test exercises ever ask of it (spec.md §6:
// "the implementation detail of how this is wire-encoded is irrelevant to
// the core").
type fakeOracle struct{ speedMPerMin float64 }

func (f fakeOracle) TravelTime(_ context.Context, origin, destination geo.Point, _ types.Mode, _, _ time.Time) (float64, error) {
	if origin == destination {
		return 0, nil
	}
	return geo.PlanarDistance(origin, destination) / f.speedMPerMin, nil
}

func (f fakeOracle) TravelTimeFull(ctx context.Context, origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time) (oracle.FullTrip, error) {
	d, _ := f.TravelTime(ctx, origin, destination, mode, arriveBy, timestamp)
	return oracle.FullTrip{DurationMin: d, UsedModes: []string{string(mode)}, StationNames: []string{"stop1"}}, nil
}

func squareRegion(halfSide float64) geo.Polygon {
	ring := geo.Ring{
		{-halfSide, -halfSide}, {halfSide, -halfSide},
		{halfSide, halfSide}, {-halfSide, halfSide}, {-halfSide, -halfSide},
	}
	return geo.Polygon{ring}
}

func testEngine(t *testing.T) (*Engine, *geo.Projection) {
	t.Helper()
	proj := geo.NewProjection(geo.Point{8.5, 47.4})
	region := squareRegion(1000)

	stop := spatialindex.Facility{ID: "stop1", Pt: geo.Point{0, 0}, Class: types.FacilityPublicTransport, ModeTags: []string{"bus"}}
	index := spatialindex.Build(region.Bound(), []spatialindex.Facility{stop})

	travelCache, err := cache.NewTravelCache(filepath.Join(t.TempDir(), "travel.gob"))
	require.NoError(t, err)

	ev := evaluator.New(config.EvaluatorConfig{
		MaxDestinations: 20, BaseMaxWalkM: 600, CarBaseMaxWalkM: 800,
		CountBoost: 0.15, PriorityBoost: 0.25, WeightBase: 0.1,
		ModeWeight: 0.7, CarModeWeight: 0.5,
	}, nil, 83.3)

	cfg := config.Config{
		Oracle: config.OracleConfig{SameStationEpsilonM: 30, WalkingSpeedMPerMin: 83.3},
		Scheduler: config.SchedulerConfig{
			NetworkBatchSize: 10, PointBatchSize: 10,
			NetworkTaskTimeout: time.Minute, PerformanceTaskTimeout: time.Minute,
		},
		Sampling: config.SamplingConfig{
			NetworkGridSizeM: 400, ClusterDedupRadiusM: 50,
			RefinementMinSepM: 150, CloseDirectionalDivisor: 10,
			Params: map[string]map[string]config.ModeSamplingParams{
				"walk": {
					"full": {NumRings: 3, Base: 4, OffsetM: 20, MaxPoints: 50, MaxRadiusM: 500},
					"perf": {NumRings: 2, Base: 4, OffsetM: 20, MaxPoints: 50, MaxRadiusM: 500},
				},
			},
		},
		Interp: config.InterpConfig{
			GridResolutionPerf: 40, GridResolutionNetwork: 40, GridResolutionFull: 40,
			BufferM: 100, BasePower: 2.0, MaxNeighbors: 8, GaussianSigma: 1.0,
		},
		Contour: config.ContourConfig{
			LevelStepMinutes: 1, ClipSoftTimeout: time.Second, LargeIsochroneShare: 0.05,
		},
		Refinement: config.RefinementConfig{UnsampledPoints: 0, LargePoints: 0},
	}

	deps := Deps{
		Region:    region,
		Proj:      proj,
		Cache:     travelCache,
		Index:     index,
		Evaluator: ev,
		Oracle:    fakeOracle{speedMPerMin: 83.3},
		Stations:  map[string]geo.Point{"stop1": proj.Inverse(geo.Point{0, 0})},
		Logger:    logging.New(slog.LevelError),
	}

	eng := New(cfg, deps).WithSeed(func() int64 { return 82 })
	return eng, proj
}

func TestComputeNetworkWalkProducesSuccessWithRecords(t *testing.T) {
	eng, _ := testEngine(t)

	req := types.ComputeRequest{Mode: types.ModeWalk, NetworkIsochrones: true}
	result := eng.Compute(context.Background(), req)

	require.Equal(t, types.StatusSuccess, result.Response.Status)
	assert.NotEmpty(t, result.Records, "a region full of resolvable walk distances should produce at least one band")
}

func TestComputePointWalkProducesSuccessWithRecords(t *testing.T) {
	eng, proj := testEngine(t)
	center := proj.Inverse(geo.Point{0, 0})

	req := types.ComputeRequest{Mode: types.ModeWalk, NetworkIsochrones: false, Center: &center}
	result := eng.Compute(context.Background(), req)

	require.Equal(t, types.StatusSuccess, result.Response.Status)
	assert.NotEmpty(t, result.Records)
}

func TestComputePointRequiresCenter(t *testing.T) {
	eng, _ := testEngine(t)

	req := types.ComputeRequest{Mode: types.ModeWalk, NetworkIsochrones: false}
	result := eng.Compute(context.Background(), req)

	assert.Equal(t, types.StatusFailed, result.Response.Status)
	assert.NotEmpty(t, result.Response.Error)
}

func TestComputePointResolvesCenterFromInputStation(t *testing.T) {
	eng, _ := testEngine(t)
	station := "stop1"

	req := types.ComputeRequest{Mode: types.ModeWalk, NetworkIsochrones: false, InputStation: &station}
	result := eng.Compute(context.Background(), req)

	require.Equal(t, types.StatusSuccess, result.Response.Status)
	require.NotNil(t, result.Response.Station)
	assert.Equal(t, station, *result.Response.Station)
}

func TestComputePointUnknownInputStationFails(t *testing.T) {
	eng, _ := testEngine(t)
	station := "does-not-exist"

	req := types.ComputeRequest{Mode: types.ModeWalk, NetworkIsochrones: false, InputStation: &station}
	result := eng.Compute(context.Background(), req)

	assert.Equal(t, types.StatusFailed, result.Response.Status)
	assert.Contains(t, result.Response.Error, station)
}

func TestSampleBoundAddsBuffer(t *testing.T) {
	samples := []interp.Sample{
		{Point: geo.Point{0, 0}, TimeMin: 1},
		{Point: geo.Point{100, 200}, TimeMin: 2},
	}
	bound := sampleBound(samples, 50)
	assert.Equal(t, geo.Point{-50, -50}, bound.Min)
	assert.Equal(t, geo.Point{150, 250}, bound.Max)
}

func TestGridResolutionPicksTierByPerformanceAndMode(t *testing.T) {
	eng, _ := testEngine(t)
	eng.cfg.Interp = config.InterpConfig{GridResolutionPerf: 250, GridResolutionNetwork: 500, GridResolutionFull: 1000}

	assert.Equal(t, 250, eng.gridResolution(types.ComputeRequest{Performance: true}))
	assert.Equal(t, 500, eng.gridResolution(types.ComputeRequest{Performance: false, NetworkIsochrones: false}))
	assert.Equal(t, 1000, eng.gridResolution(types.ComputeRequest{Performance: false, NetworkIsochrones: true}))
}

func TestResponseFromSummarySuccess(t *testing.T) {
	eng, _ := testEngine(t)
	summary := scheduler.Summary{Results: []types.Result{types.Success(1.0), types.Success(2.0)}}

	resp := eng.responseFromSummary(types.RequestTypeNetwork, nil, modePtr(types.ModeWalk), summary)
	assert.Equal(t, types.StatusSuccess, resp.Status)
}

func TestResponseFromSummaryPartialSuccessOnAbortWithSomeResults(t *testing.T) {
	eng, _ := testEngine(t)
	summary := scheduler.Summary{
		Results: []types.Result{types.Success(1.0), types.Err(types.ErrRateLimited)},
		Aborted: true,
	}

	resp := eng.responseFromSummary(types.RequestTypeNetwork, nil, modePtr(types.ModeWalk), summary)
	assert.Equal(t, types.StatusPartialSuccess, resp.Status)
}

func TestResponseFromSummaryFailedOnAbortWithNoResults(t *testing.T) {
	eng, _ := testEngine(t)
	summary := scheduler.Summary{
		Results: []types.Result{types.Err(types.ErrRateLimited)},
		Aborted: true,
	}

	resp := eng.responseFromSummary(types.RequestTypeNetwork, nil, modePtr(types.ModeWalk), summary)
	assert.Equal(t, types.StatusFailed, resp.Status)
}

func TestFatalResponseSetsFailedStatus(t *testing.T) {
	eng, _ := testEngine(t)
	resp := eng.fatalResponse(types.RequestTypeNetwork, nil, modePtr(types.ModeWalk), types.ErrInsufficientData)

	assert.Equal(t, types.StatusFailed, resp.Status)
	assert.Equal(t, types.ErrInsufficientData.Error(), resp.Error)
}

func modePtr(m types.Mode) *types.Mode { return &m }
