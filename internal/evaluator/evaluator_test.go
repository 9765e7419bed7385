package evaluator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/cache"
	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/types"
)

func testConfig() config.EvaluatorConfig {
	return config.EvaluatorConfig{
		MaxDestinations: 20,
		BaseMaxWalkM:    600,
		CarBaseMaxWalkM: 800,
		CountBoost:      0.05,
		PriorityBoost:   0.10,
		WeightBase:      0.05,
		ModeWeight:      0.7,
		CarModeWeight:   0.5,
	}
}

// line builds a simple two-node graph with a single edge of the given
// length, nodes placed on the X axis so NearestNode resolves predictably.
func line(a, b geo.Point, length float64) *graph.Graph {
	return graph.NewGraph([]graph.Node{
		{ID: 0, Pt: a, Adj: []graph.Edge{{To: 1, Length: length}}},
		{ID: 1, Pt: b, Adj: []graph.Edge{{To: 0, Length: length}}},
	})
}

func TestEvaluatePrefersLowerScoringCandidate(t *testing.T) {
	origin := geo.Point{0, 0}
	near := geo.Point{1000, 0}
	far := geo.Point{5000, 0}

	walkGraph := graph.NewGraph([]graph.Node{
		{ID: 0, Pt: near, Adj: []graph.Edge{{To: 1, Length: 50}}},
		{ID: 1, Pt: geo.Point{1050, 0}, Adj: []graph.Edge{{To: 0, Length: 50}}},
		{ID: 2, Pt: far, Adj: []graph.Edge{{To: 3, Length: 50}}},
		{ID: 3, Pt: geo.Point{5050, 0}, Adj: []graph.Edge{{To: 2, Length: 50}}},
	})
	rideGraph := graph.NewGraph([]graph.Node{
		{ID: 0, Pt: origin, Adj: []graph.Edge{{To: 1, Length: 1000}, {To: 2, Length: 5000}}},
		{ID: 1, Pt: geo.Point{1050, 0}, Adj: []graph.Edge{{To: 0, Length: 1000}}},
		{ID: 2, Pt: geo.Point{5050, 0}, Adj: []graph.Edge{{To: 0, Length: 5000}}},
	})

	e := New(testConfig(), nil, 83.3)
	candidates := []Candidate{
		{Destination: far, ModeTags: []string{"bus"}},
		{Destination: near, ModeTags: []string{"rail"}},
	}

	nearest := func(dest geo.Point) []geo.Point {
		if dest == near {
			return []geo.Point{{1050, 0}}
		}
		return []geo.Point{{5050, 0}}
	}

	best, ok := e.Evaluate(context.Background(), origin, candidates, types.ModeWalk, walkGraph, rideGraph, nearest, nil)
	require.True(t, ok)
	assert.Equal(t, near, best.Destination)
}

func TestEvaluateRejectsCandidateBeyondAdjustedMaxWalk(t *testing.T) {
	origin := geo.Point{0, 0}
	dest := geo.Point{1000, 0}
	access := geo.Point{1000, 2000} // far walk leg

	walkGraph := graph.NewGraph([]graph.Node{
		{ID: 0, Pt: dest, Adj: []graph.Edge{{To: 1, Length: 900}}},
		{ID: 1, Pt: access, Adj: []graph.Edge{{To: 0, Length: 900}}},
	})
	rideGraph := line(origin, access, 1500)

	e := New(testConfig(), nil, 83.3)
	candidates := []Candidate{{Destination: dest, ModeTags: []string{"bus"}}}
	nearest := func(geo.Point) []geo.Point { return []geo.Point{access} }

	best, ok := e.Evaluate(context.Background(), origin, candidates, types.ModeWalk, walkGraph, rideGraph, nearest, nil)
	assert.False(t, ok)
	assert.Nil(t, best)
}

func TestEvaluateUsesDistanceCacheOnSecondCall(t *testing.T) {
	dc, err := cache.NewDistanceCache(filepath.Join(t.TempDir(), "distance.gob"), 50)
	require.NoError(t, err)

	origin := geo.Point{0, 0}
	dest := geo.Point{1000, 0}
	access := geo.Point{1050, 0}

	walkGraph := graph.NewGraph([]graph.Node{
		{ID: 0, Pt: dest, Adj: []graph.Edge{{To: 1, Length: 50}}},
		{ID: 1, Pt: access, Adj: []graph.Edge{{To: 0, Length: 50}}},
	})
	rideGraph := line(origin, access, 1050)

	e := New(testConfig(), dc, 83.3)
	candidates := []Candidate{{Destination: dest, ModeTags: []string{"rail"}}}

	calls := 0
	nearest := func(geo.Point) []geo.Point {
		calls++
		return []geo.Point{access}
	}

	_, ok := e.Evaluate(context.Background(), origin, candidates, types.ModeBicycleRental, walkGraph, rideGraph, nearest, nil)
	require.True(t, ok)
	assert.Equal(t, 1, calls)

	_, ok = e.Evaluate(context.Background(), origin, candidates, types.ModeBicycleRental, walkGraph, rideGraph, nearest, nil)
	require.True(t, ok)
	assert.Equal(t, 1, calls, "second evaluation should hit the distance cache, not call nearest again")
}

func TestEvaluateStopsAtMaxDestinations(t *testing.T) {
	origin := geo.Point{0, 0}
	cfg := testConfig()
	cfg.MaxDestinations = 1

	// Second candidate would score lower but is beyond the max-destinations
	// cutoff, so the first candidate's result must win.
	destA := geo.Point{1000, 0}
	destB := geo.Point{100, 0}
	accessA := geo.Point{1010, 0}
	accessB := geo.Point{110, 0}

	walkGraph := graph.NewGraph([]graph.Node{
		{ID: 0, Pt: destA, Adj: []graph.Edge{{To: 1, Length: 10}}},
		{ID: 1, Pt: accessA, Adj: []graph.Edge{{To: 0, Length: 10}}},
		{ID: 2, Pt: destB, Adj: []graph.Edge{{To: 3, Length: 10}}},
		{ID: 3, Pt: accessB, Adj: []graph.Edge{{To: 2, Length: 10}}},
	})
	rideGraph := graph.NewGraph([]graph.Node{
		{ID: 0, Pt: origin, Adj: []graph.Edge{{To: 1, Length: 1010}, {To: 2, Length: 110}}},
		{ID: 1, Pt: accessA, Adj: []graph.Edge{{To: 0, Length: 1010}}},
		{ID: 2, Pt: accessB, Adj: []graph.Edge{{To: 0, Length: 110}}},
	})

	e := New(cfg, nil, 83.3)
	candidates := []Candidate{
		{Destination: destA, ModeTags: []string{"bus"}},
		{Destination: destB, ModeTags: []string{"rail"}},
	}
	nearest := func(dest geo.Point) []geo.Point {
		if dest == destA {
			return []geo.Point{accessA}
		}
		return []geo.Point{accessB}
	}

	best, ok := e.Evaluate(context.Background(), origin, candidates, types.ModeWalk, walkGraph, rideGraph, nearest, nil)
	require.True(t, ok)
	assert.Equal(t, destA, best.Destination)
}

func TestDistanceWeightRejectsEmptyModeTags(t *testing.T) {
	_, ok := distanceWeight(nil, 10, 600, 0.05, 0.1, 0.05)
	assert.False(t, ok)
}

func TestDistanceWeightBoostsAllowedDistanceForRailPriority(t *testing.T) {
	_, okLowPriority := distanceWeight([]string{"bus"}, 650, 600, 0.05, 0.1, 0.05)
	assert.False(t, okLowPriority, "650m exceeds the unboosted 600m threshold")

	_, okHighPriority := distanceWeight([]string{"rail"}, 650, 600, 0.05, 0.1, 0.05)
	assert.True(t, okHighPriority, "rail's priority boost should raise the threshold above 650m")
}

func TestModePriorityMatchesOriginalTable(t *testing.T) {
	for _, m := range []string{"rail", "TRAIN", "air"} {
		assert.Equal(t, 2, ModePriority(m), m)
	}
	for _, m := range []string{"tram", "TRAM", "suburbanRail", "urbanRail", "metro",
		"underground", "water", "BOAT", "taxi", "selfDrive", "METRO", "RACK_RAILWAY"} {
		assert.Equal(t, 1, ModePriority(m), m)
	}
	for _, m := range []string{"bus", "BUS", "coach", "telecabin", "funicular",
		"unknown", "CABLE_RAILWAY", "CABLE_CAR", "CHAIRLIFT", "ELEVATOR", "UNKNOWN"} {
		assert.Equal(t, 0, ModePriority(m), m)
	}
}

func TestDistanceWeightDoesNotBoostForPriorityOneSubmodes(t *testing.T) {
	// tram is priority 1, which distance_weights() explicitly excludes from
	// the priority boost (only highest_priority > 1 triggers it).
	_, okTram := distanceWeight([]string{"tram"}, 650, 600, 0.05, 0.1, 0.05)
	assert.False(t, okTram, "tram's priority of 1 should not unlock the priority boost")
}
