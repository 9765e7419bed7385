// Package oracle implements the Journey Oracle (spec.md §4.2): an abstract
// travel-time contract with two degenerate-case shortcuts (identical points,
// sub-30m distance) and a walking-graph fast path, falling back to a remote
// trip planner behind the Gate for every other mode.
//
// Grounded on original_source/backend/app/utils/request_processing.py's
// process_and_get_travel_time (the equals/projected_distance<30/WALKING_NETWORK
// branch order) and ojp_helpers.py's process_trip_request/location_ojp for
// the remote dispatch and RateLimitExceeded handling.
package oracle

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/gate"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// FullTrip is the performance-variant result: total duration plus the set
// of used modes and boarded-station names (spec.md §4.2, §6).
type FullTrip struct {
	DurationMin  float64
	UsedModes    []string
	StationNames []string
}

// JourneyPlanner is the abstract contract spec.md §6 names: "accepts
// (origin, destination, mode, arrive_by) and returns either a trip
// duration... or an error code." Implementations may wire-encode the
// remote call however they like.
type JourneyPlanner interface {
	// TravelTime returns the duration in minutes, or an error from
	// types.ErrNoTrip, types.ErrTransport, types.ErrRateLimited.
	TravelTime(ctx context.Context, origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time) (float64, error)

	// TravelTimeFull is the performance-mode variant used by point-mode
	// resolution: it additionally reports used-mode and station-name sets.
	TravelTimeFull(ctx context.Context, origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time) (FullTrip, error)
}

// RequestBuilder builds the wire payload for one trip request. Kept
// abstract because the encoding is an external concern (spec.md §1: "the
// implementation detail of how this is wire-encoded is irrelevant to the
// core").
type RequestBuilder interface {
	BuildTripRequest(origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time, fullTrip bool) []byte
}

// ResponseParser extracts a duration (and, for full trips, used modes and
// station names) from the raw response body. Returns types.ErrNoTrip when
// the remote reports no route, a zero duration with no error on
// origin==destination signaled by the remote itself, types.ErrTransport on
// malformed/unexpected payloads.
type ResponseParser interface {
	ParseTripResponse(body []byte, status int, mode types.Mode, fullTrip bool) (FullTrip, error)
}

// Endpoint abstracts "where" a built request is sent; kept separate from
// the Gate so tests can substitute a deterministic Doer.
type Endpoint interface {
	URL() string
}

// HTTPOracle is the production JourneyPlanner: degenerate shortcuts, an
// optional per-mode walking graph, and a Gate-throttled remote fallback.
type HTTPOracle struct {
	cfg     config.OracleConfig
	gate    *gate.Gate
	builder RequestBuilder
	parser  ResponseParser
	send    func(ctx context.Context, body []byte) ([]byte, int, error)

	// graphs maps a ride mode to its street graph, used only for
	// mode == walk (spec.md §4.2: "walking mode may use the local walking
	// graph").
	graphs map[types.Mode]*graph.Graph
}

// NewHTTPOracle wires a Gate-throttled oracle. send performs the actual
// POST (or equivalent) to the configured endpoint; callers typically close
// over an *http.Client here, keeping net/http out of this package's public
// surface per the abstract-contract design (spec.md §9).
func NewHTTPOracle(cfg config.OracleConfig, g *gate.Gate, builder RequestBuilder, parser ResponseParser, send func(ctx context.Context, body []byte) ([]byte, int, error), graphs map[types.Mode]*graph.Graph) *HTTPOracle {
	return &HTTPOracle{cfg: cfg, gate: g, builder: builder, parser: parser, send: send, graphs: graphs}
}

func (o *HTTPOracle) TravelTime(ctx context.Context, origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time) (float64, error) {
	if shortcut, ok := o.degenerateShortcut(origin, destination); ok {
		return shortcut, nil
	}

	if mode == types.ModeWalk {
		if g, ok := o.graphs[mode]; ok {
			if d, err := o.walkingEstimate(g, origin, destination); err == nil {
				return d, nil
			}
		}
	}

	full, err := o.remoteTrip(ctx, origin, destination, mode, arriveBy, timestamp, false)
	if err != nil {
		return 0, err
	}
	return full.DurationMin, nil
}

func (o *HTTPOracle) TravelTimeFull(ctx context.Context, origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time) (FullTrip, error) {
	if shortcut, ok := o.degenerateShortcut(origin, destination); ok {
		return FullTrip{DurationMin: shortcut}, nil
	}
	return o.remoteTrip(ctx, origin, destination, mode, arriveBy, timestamp, true)
}

// degenerateShortcut implements spec.md §4.2/§8 scenario S6: identical
// points return 0.0, projected distance below the configured epsilon (30m
// default) returns 1.0, without calling the remote.
func (o *HTTPOracle) degenerateShortcut(origin, destination geo.Point) (float64, bool) {
	if origin == destination {
		return 0.0, true
	}
	d := geo.PlanarDistance(origin, destination)
	if d < o.cfg.SameStationEpsilonM {
		return 1.0, true
	}
	return 0, false
}

// walkingEstimate uses the local street graph's shortest-path length and
// the configured walking speed, rounded up to whole minutes (spec.md
// §4.2).
func (o *HTTPOracle) walkingEstimate(g *graph.Graph, origin, destination geo.Point) (float64, error) {
	u, ok := g.NearestNode(origin)
	if !ok {
		return 0, types.ErrNoTrip
	}
	v, ok := g.NearestNode(destination)
	if !ok {
		return 0, types.ErrNoTrip
	}
	lengthM, ok := g.ShortestPathLength(u, v)
	if !ok {
		return 0, types.ErrNoTrip
	}
	minutes := lengthM / o.cfg.WalkingSpeedMPerMin
	return math.Ceil(minutes), nil
}

func (o *HTTPOracle) remoteTrip(ctx context.Context, origin, destination geo.Point, mode types.Mode, arriveBy, timestamp time.Time, fullTrip bool) (FullTrip, error) {
	body := o.builder.BuildTripRequest(origin, destination, mode, arriveBy, timestamp, fullTrip)

	respBody, status, err := o.gate.Send(ctx, func(ctx context.Context) ([]byte, int, error) {
		return o.send(ctx, body)
	})
	if err != nil {
		if errors.Is(err, types.ErrRateLimited) {
			return FullTrip{}, types.ErrRateLimited
		}
		return FullTrip{}, errors.Join(types.ErrTransport, err)
	}

	return o.parser.ParseTripResponse(respBody, status, mode, fullTrip)
}
