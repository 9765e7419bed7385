package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/gate"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/types"
)

func testOracle(send func(ctx context.Context, body []byte) ([]byte, int, error), graphs map[types.Mode]*graph.Graph) *HTTPOracle {
	cfg := config.OracleConfig{SameStationEpsilonM: 30, WalkingSpeedMPerMin: 83.3}
	g := gate.New(config.GateConfig{ConcurrencyLimit: 10, RateLimit: 100, RatePeriod: time.Second})
	return NewHTTPOracle(cfg, g, OJPRequestBuilder{}, OJPResponseParser{}, send, graphs)
}

func TestTravelTimeIdenticalPointsReturnsZero(t *testing.T) {
	called := false
	o := testOracle(func(ctx context.Context, body []byte) ([]byte, int, error) {
		called = true
		return nil, 200, nil
	}, nil)

	pt := geo.Point{8.5, 47.3}
	d, err := o.TravelTime(context.Background(), pt, pt, types.ModeWalk, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
	assert.False(t, called, "remote must not be called for identical points")
}

func TestTravelTimeSubEpsilonDistanceReturnsOneMinute(t *testing.T) {
	called := false
	o := testOracle(func(ctx context.Context, body []byte) ([]byte, int, error) {
		called = true
		return nil, 200, nil
	}, nil)

	origin := geo.Point{0, 0}
	destination := geo.Point{12, 0} // projected meters, below the 30m epsilon
	d, err := o.TravelTime(context.Background(), origin, destination, types.ModeWalk, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
	assert.False(t, called)
}

func TestTravelTimeWalkUsesGraphWhenAvailable(t *testing.T) {
	nodes := []graph.Node{
		{ID: 0, Pt: geo.Point{0, 0}, Adj: []graph.Edge{{To: 1, Length: 833}}},
		{ID: 1, Pt: geo.Point{1000, 0}},
	}
	g := graph.NewGraph(nodes)

	called := false
	o := testOracle(func(ctx context.Context, body []byte) ([]byte, int, error) {
		called = true
		return nil, 200, nil
	}, map[types.Mode]*graph.Graph{types.ModeWalk: g})

	d, err := o.TravelTime(context.Background(), geo.Point{0, 0}, geo.Point{1000, 0}, types.ModeWalk, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10.0, d) // 833m / 83.3 m/min = 10min
	assert.False(t, called)
}

func TestTravelTimePropagatesRateLimited(t *testing.T) {
	o := testOracle(func(ctx context.Context, body []byte) ([]byte, int, error) {
		return []byte("quota exceeded"), 429, nil
	}, nil)

	_, err := o.TravelTime(context.Background(), geo.Point{0, 0}, geo.Point{100, 100}, types.ModeSelfDriveCar, time.Now(), time.Now())
	assert.True(t, errors.Is(err, types.ErrRateLimited))
}

func TestTravelTimeNoTripFromRemote(t *testing.T) {
	o := testOracle(func(ctx context.Context, body []byte) ([]byte, int, error) {
		return []byte(`<OJP><ErrorText>TRIP_NOTRIPFOUND</ErrorText></OJP>`), 200, nil
	}, nil)

	_, err := o.TravelTime(context.Background(), geo.Point{0, 0}, geo.Point{100, 100}, types.ModeSelfDriveCar, time.Now(), time.Now())
	assert.True(t, errors.Is(err, types.ErrNoTrip))
}

func TestDecodeDurationRoundTrip(t *testing.T) {
	cases := map[string]float64{
		"PT1H20M":  80,
		"PT45M":    45,
		"PT1H":     60,
		"PT30S":    0.5,
		"PT2H5M30S": 125.5,
	}
	for s, want := range cases {
		got, ok := decodeDuration(s)
		require.True(t, ok, s)
		assert.InDelta(t, want, got, 1e-9, s)
	}
}

func TestDecodeDurationRejectsGarbage(t *testing.T) {
	_, ok := decodeDuration("not-a-duration")
	assert.False(t, ok)
}
