// Package resolver implements the Trip Resolver (C6): given one origin (or
// one center + radial point) and a mode, walks through rental-chain
// resolution, destination/access-station selection, and leg measurement,
// writing every resolved leg through the Cache Hierarchy (spec.md §4.6).
//
// Grounded on original_source/backend/app/processing/travel_times/
// network_travel_logic.py (resolve_rental_chain, resolve_destination_and_
// nearest, resolve_final_destination, compute_and_cache_total_travel_time)
// and point_travel_logic.py (resolve_origin_station, resolve_destination_
// station, compute_total_point_time), generalized per spec.md §4.6's
// "two variants sharing most logic" framing — unlike the Python original,
// access-station resolution for rental and private (parking) modes is
// unified into one resolveAccessStation, since both reduce to "rental or
// parking cache hit, else distance cache hit, else spatial index + oracle
// walk leg, then store".
package resolver

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/antigravity/isochrone-engine/internal/cache"
	"github.com/antigravity/isochrone-engine/internal/evaluator"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/oracle"
	"github.com/antigravity/isochrone-engine/internal/spatialindex"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// destinationFanout bounds how many destination-facility candidates are
// pulled from the spatial index before handing them to the Candidate
// Evaluator (original's NUM_RESULTS_DESTINATIONS).
const destinationFanout = 8

// Deps bundles the resolver's collaborators. One Deps is built per (mode,
// region) pair at request setup and shared read-only across every
// resolution the Batch Scheduler fans out.
type Deps struct {
	Cache         *cache.TravelCache
	DistanceCache *cache.DistanceCache
	Oracle        oracle.JourneyPlanner
	Evaluator     *evaluator.Evaluator
	Index         *spatialindex.Index
	WalkGraph     *graph.Graph
	RideGraph     *graph.Graph
	// WalkSpeedMPerMin converts a distance-cache walk length (meters) into
	// minutes when the evaluator itself wasn't the one computing it (spec.md
	// §4.2's WALKING_SPEED constant).
	WalkSpeedMPerMin float64
}

// resultFromErr maps a leg failure to the scheduler-facing outcome (spec.md
// §4.6: "any leg returning None skips the point (non-fatal); a
// RateLimitExceeded... causes the Scheduler to abort the entire batch").
func resultFromErr(err error) types.Result {
	if errors.Is(err, types.ErrRateLimited) {
		return types.Err(err)
	}
	return types.Skip(err.Error())
}

// NetworkResolve runs the network-mode per-point variant (spec.md §4.6).
func NetworkResolve(ctx context.Context, deps Deps, mode types.Mode, origin geo.Point, arriveBy, timestamp time.Time) types.Result {
	if _, ok := deps.Cache.GetNetworkTime(mode, origin); ok {
		return types.AlreadyProcessed()
	}

	profile := types.Profile(mode)
	candidateOrigin := origin
	var rentalStation, destination, accessStation geo.Point
	var rideTimeMin, walkEndMin float64
	chainCached := false

	if profile.IsRental {
		stations := deps.Index.Nearest(profile.AccessFacility, origin, 1)
		if len(stations) == 0 {
			return types.Skip("no rental station near origin")
		}
		rentalStation = stations[0].Pt

		if rideEntry, ok := deps.Cache.GetRentalRide(mode, rentalStation); ok {
			if accessEntry, ok2 := deps.Cache.GetStationRental(mode, cache.ScopeNetwork, rideEntry.Destination); ok2 {
				destination = rideEntry.Destination
				rideTimeMin = rideEntry.RideTimeMin
				accessStation = accessEntry.NearestRental
				walkEndMin = accessEntry.WalkTimeMin
				chainCached = true
			}
		}
		if !chainCached {
			candidateOrigin = rentalStation
		}
	}

	if !chainCached {
		facilities := deps.Index.Nearest(profile.DestinationFacility, candidateOrigin, destinationFanout)
		if len(facilities) == 0 {
			return types.Err(types.ErrNoDestination)
		}

		if profile.IsRental || mode == types.ModeWalk {
			// Walk has no access-station concept (spec.md §4.6: "for walk
			// the center is the start"); rental destinations are picked
			// directly rather than weighted, per spec.md §4.6 step 4.
			destination = facilities[0].Pt
			accessStation = destination
		} else {
			best, ok := evaluateDestination(ctx, deps, profile, mode, candidateOrigin, facilities, cache.ScopeNetwork)
			if !ok {
				return types.Err(types.ErrNoDestination)
			}
			destination = best.Destination
			accessStation = best.AccessPoint
			walkEndMin = best.WalkTimeMin
		}
	}

	total := 0.0

	if profile.IsRental && !chainCached {
		startWalk, err := deps.Oracle.TravelTime(ctx, origin, rentalStation, types.ModeWalk, arriveBy, timestamp)
		if err != nil {
			return resultFromErr(err)
		}
		total += startWalk
	}

	if !chainCached {
		t, err := deps.Oracle.TravelTime(ctx, candidateOrigin, accessStation, profile.RideMode, arriveBy, timestamp)
		if err != nil {
			return resultFromErr(err)
		}
		rideTimeMin = t

		if accessStation != destination {
			w, err := deps.Oracle.TravelTime(ctx, accessStation, destination, types.ModeWalk, arriveBy, timestamp)
			if err != nil {
				return resultFromErr(err)
			}
			walkEndMin = w
		} else {
			walkEndMin = 0
		}
	}
	total += rideTimeMin + walkEndMin

	if profile.IsRental {
		deps.Cache.PutRentalRide(mode, rentalStation, cache.RentalRideEntry{Destination: destination, RideTimeMin: rideTimeMin})
		deps.Cache.PutStationRental(mode, cache.ScopeNetwork, destination, cache.RentalAccessEntry{NearestRental: accessStation, WalkTimeMin: walkEndMin})
	} else if accessStation != destination {
		deps.Cache.PutParking(profile.AccessFacility, cache.ScopeNetwork, destination, cache.ParkingEntry{ParkingPoint: accessStation, WalkTimeMin: walkEndMin})
	}

	deps.Cache.PutNetworkTime(mode, origin, cache.NetworkEntry{Destination: destination, TimeMin: total})
	return types.Success(total)
}

// evaluateDestination runs the Candidate Evaluator (C5) over destination
// facilities for private (non-rental) modes, resolving each candidate's
// access station via the spatial index / distance cache / parking cache
// as the Evaluator requests it.
func evaluateDestination(
	ctx context.Context,
	deps Deps,
	profile types.ModeProfile,
	mode types.Mode,
	origin geo.Point,
	facilities []spatialindex.Facility,
	scope cache.Scope,
) (*evaluator.Best, bool) {
	candidates := make([]evaluator.Candidate, len(facilities))
	for i, f := range facilities {
		candidates[i] = evaluator.Candidate{Destination: f.Pt, ModeTags: f.ModeTags}
	}

	nearestAccess := func(dest geo.Point) []geo.Point {
		facs := deps.Index.Nearest(profile.AccessFacility, dest, 3)
		pts := make([]geo.Point, len(facs))
		for i, f := range facs {
			pts[i] = f.Pt
		}
		return pts
	}
	getStored := func(dest geo.Point) (geo.Point, float64, bool) {
		e, ok := deps.Cache.GetParking(profile.AccessFacility, scope, dest)
		return e.ParkingPoint, e.WalkTimeMin, ok
	}

	return deps.Evaluator.Evaluate(ctx, origin, candidates, mode, deps.WalkGraph, deps.RideGraph, nearestAccess, getStored)
}

// OriginAccess is the center's resolved access station for point-mode
// requests, computed once per request before the Scheduler fans out over
// radial points (spec.md §4.6: "Resolve the origin access station once per
// request").
type OriginAccess struct {
	Point       geo.Point
	WalkTimeMin float64
}

// ResolveOriginAccess resolves the point-mode center's access station.
func ResolveOriginAccess(ctx context.Context, deps Deps, mode types.Mode, center geo.Point, arriveBy, timestamp time.Time) (OriginAccess, error) {
	pt, walkMin, err := resolveAccessStation(ctx, deps, mode, types.Profile(mode), center, cache.ScopePoint, arriveBy, timestamp)
	if err != nil {
		return OriginAccess{}, err
	}
	return OriginAccess{Point: pt, WalkTimeMin: walkMin}, nil
}

// PointResolve runs the point-mode per-radial-point variant (spec.md
// §4.6). origin is the request's once-resolved OriginAccess.
func PointResolve(ctx context.Context, deps Deps, mode types.Mode, center geo.Point, origin OriginAccess, radialPoint geo.Point, arriveBy, timestamp time.Time) types.Result {
	if deps.Cache.HasPointEntry(mode, center, radialPoint) {
		return types.AlreadyProcessed()
	}

	profile := types.Profile(mode)
	destAccess, walkEnd, err := resolveAccessStation(ctx, deps, mode, profile, radialPoint, cache.ScopePoint, arriveBy, timestamp)
	if err != nil {
		return resultFromErr(err)
	}

	var rideMin float64
	cached := false
	if profile.IsRental {
		if e, ok := deps.Cache.GetRentalRide(mode, origin.Point); ok {
			rideMin = e.RideTimeMin
			cached = true
		}
	}
	if !cached {
		t, err := deps.Oracle.TravelTime(ctx, origin.Point, destAccess, profile.RideMode, arriveBy, timestamp)
		if err != nil {
			return resultFromErr(err)
		}
		rideMin = t
		if profile.IsRental {
			deps.Cache.PutRentalRide(mode, origin.Point, cache.RentalRideEntry{Destination: destAccess, RideTimeMin: rideMin})
		}
	}

	total := origin.WalkTimeMin + rideMin + walkEnd
	deps.Cache.AppendPointEntry(mode, center, cache.PointEntry{Destination: radialPoint, TimeMin: total})
	return types.Success(total)
}

// FullTrip is the performance submode's per-point payload: total duration
// plus the used-mode/station-name sets the response needs (spec.md §4.6:
// "also extracting used-mode and station-name sets for the response").
type FullTrip struct {
	TotalMin  float64
	UsedModes []string
	Stations  []string
}

// PointResolvePerformance bypasses access-station resolution entirely and
// asks the oracle for one complete trip per radial point (spec.md §4.6:
// "A 'performance' submode bypasses steps 2a-2c and asks the oracle for a
// full trip per radial point").
func PointResolvePerformance(ctx context.Context, deps Deps, mode types.Mode, center, radialPoint geo.Point, arriveBy, timestamp time.Time) types.Result {
	if deps.Cache.HasPointEntry(mode, center, radialPoint) {
		return types.AlreadyProcessed()
	}

	trip, err := deps.Oracle.TravelTimeFull(ctx, center, radialPoint, mode, arriveBy, timestamp)
	if err != nil {
		return resultFromErr(err)
	}

	deps.Cache.AppendPointEntry(mode, center, cache.PointEntry{Destination: radialPoint, TimeMin: trip.DurationMin})
	return types.Success(FullTrip{TotalMin: trip.DurationMin, UsedModes: trip.UsedModes, Stations: trip.StationNames})
}

// resolveAccessStation resolves the rental station or parking spot nearest
// to pt, preferring the rental/parking cache, then the shared distance
// cache, then a live spatial-index lookup + walk leg — storing on a fresh
// resolution either way. Returns (pt, 0, nil) unchanged for walk, which has
// no access-station concept.
func resolveAccessStation(
	ctx context.Context,
	deps Deps,
	mode types.Mode,
	profile types.ModeProfile,
	pt geo.Point,
	scope cache.Scope,
	arriveBy, timestamp time.Time,
) (geo.Point, float64, error) {
	if mode == types.ModeWalk {
		return pt, 0, nil
	}

	if profile.IsRental {
		if e, ok := deps.Cache.GetStationRental(mode, scope, pt); ok {
			return e.NearestRental, e.WalkTimeMin, nil
		}
	} else if e, ok := deps.Cache.GetParking(profile.AccessFacility, scope, pt); ok {
		return e.ParkingPoint, e.WalkTimeMin, nil
	}

	if deps.DistanceCache != nil {
		if e, ok := deps.DistanceCache.Get(mode, pt); ok {
			walkMin := math.Ceil(e.WalkLengthM / deps.WalkSpeedMPerMin)
			storeAccess(deps, mode, profile, scope, pt, e.NearestAccessPoint, walkMin)
			return e.NearestAccessPoint, walkMin, nil
		}
	}

	facilities := deps.Index.Nearest(profile.AccessFacility, pt, 1)
	if len(facilities) == 0 {
		return geo.Point{}, 0, types.ErrNoStation
	}
	access := facilities[0].Pt

	walkMin, err := deps.Oracle.TravelTime(ctx, pt, access, types.ModeWalk, arriveBy, timestamp)
	if err != nil {
		return geo.Point{}, 0, err
	}
	storeAccess(deps, mode, profile, scope, pt, access, walkMin)
	return access, walkMin, nil
}

func storeAccess(deps Deps, mode types.Mode, profile types.ModeProfile, scope cache.Scope, pt, access geo.Point, walkMin float64) {
	if profile.IsRental {
		deps.Cache.PutStationRental(mode, scope, pt, cache.RentalAccessEntry{NearestRental: access, WalkTimeMin: walkMin})
	} else {
		deps.Cache.PutParking(profile.AccessFacility, scope, pt, cache.ParkingEntry{ParkingPoint: access, WalkTimeMin: walkMin})
	}
}
