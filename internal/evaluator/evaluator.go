// Package evaluator implements the Candidate Evaluator (C5): given an
// origin and a list of (destination, mode_tags) candidates, pick the
// (destination, access_station, walk_time) triple with the lowest weighted
// distance score (spec.md §4.5).
//
// Grounded on original_source/backend/app/utils/candidate_selection.py
// (distance_weights, compute_mode_distance, compute_weighted_distance,
// evaluate_best_candidate) and app/utils/mode_utils.py's
// params_distance_calculation (per-mode-family base_max_distance and
// weight_mode split, plus the fixed submode priority table).
package evaluator

import (
	"context"
	"math"

	"github.com/antigravity/isochrone-engine/internal/cache"
	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// Candidate is one destination under consideration, tagged with the
// submodes available there (spec.md §3: "Used for candidate weighting").
type Candidate struct {
	Destination geo.Point
	ModeTags    []string
}

// Best is the winning (destination, access_station, walk_time) triple
// evaluate_best_candidate returns.
type Best struct {
	Destination geo.Point
	AccessPoint geo.Point
	WalkTimeMin float64
}

// NearestAccessFunc returns one or more access-point candidates (parking
// spots or rental stations) near dest, in ranked order — the Spatial
// Index's nearest/nearest_filtered query (C3), called only on a cache
// miss.
type NearestAccessFunc func(dest geo.Point) []geo.Point

// Evaluator scores candidates per spec.md §4.5. It is stateless beyond its
// config and the shared distance cache; callers construct one per request
// (or reuse one across requests — it holds no per-request state).
type Evaluator struct {
	cfg           config.EvaluatorConfig
	distanceCache *cache.DistanceCache
	walkSpeedMPerMin float64
}

// New builds an Evaluator. distanceCache may be nil, in which case every
// walk-distance lookup falls through to walkGraph.
func New(cfg config.EvaluatorConfig, distanceCache *cache.DistanceCache, walkSpeedMPerMin float64) *Evaluator {
	return &Evaluator{cfg: cfg, distanceCache: distanceCache, walkSpeedMPerMin: walkSpeedMPerMin}
}

// Evaluate runs spec.md §4.5's scoring loop: for each of up to
// cfg.MaxDestinations candidates (in input order), compute the walk leg
// (destination → access point) then the ride leg (origin → access point
// on rideGraph), reject candidates whose walk leg exceeds the mode's
// adjusted max, and return the minimum-score survivor. walkGraph resolves
// the walk leg when neither the distance cache nor getStored has an
// answer; rideGraph resolves the mode leg.
//
// getStored mirrors the Python get_stored callback: a caller-supplied
// lookup (e.g. an already-resolved station_rental cache entry) consulted
// before the shared distance cache.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	origin geo.Point,
	candidates []Candidate,
	mode types.Mode,
	walkGraph, rideGraph *graph.Graph,
	nearest NearestAccessFunc,
	getStored func(dest geo.Point) (geo.Point, float64, bool),
) (*Best, bool) {
	originRideNode, haveOriginRide := rideGraph.NearestNode(origin)
	if !haveOriginRide {
		return nil, false
	}

	modeWeight := e.modeWeight(mode)
	baseMax := e.baseMaxWalkM(mode)

	var best *Best
	bestScore := math.Inf(1)

	n := len(candidates)
	if n > e.cfg.MaxDestinations {
		n = e.cfg.MaxDestinations
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return best, best != nil
		default:
		}
		cand := candidates[i]

		access, walkLenM, ok := e.resolveWalkLeg(cand, walkGraph, nearest, mode, getStored)
		if !ok {
			continue
		}

		weightFactor, ok := distanceWeight(cand.ModeTags, walkLenM, baseMax, e.cfg.CountBoost, e.cfg.PriorityBoost, e.cfg.WeightBase)
		if !ok {
			continue
		}

		accessRideNode, ok := rideGraph.NearestNode(access)
		if !ok {
			continue
		}
		modeLenM, ok := rideGraph.ShortestPathLength(originRideNode, accessRideNode)
		if !ok {
			continue
		}

		score := (walkLenM + modeLenM*modeWeight) * weightFactor
		if score < bestScore {
			bestScore = score
			best = &Best{
				Destination: cand.Destination,
				AccessPoint: access,
				WalkTimeMin: math.Ceil(walkLenM / e.walkSpeedMPerMin),
			}
		}
		if bestScore == 0 {
			return best, true
		}
	}

	return best, best != nil
}

// resolveWalkLeg returns the access point and unweighted walk distance
// (meters) for cand, preferring getStored, then the shared distance
// cache, then live routing on walkGraph — populating the distance cache
// on a fresh computation (spec.md §4.5 step 1).
func (e *Evaluator) resolveWalkLeg(
	cand Candidate,
	walkGraph *graph.Graph,
	nearest NearestAccessFunc,
	mode types.Mode,
	getStored func(dest geo.Point) (geo.Point, float64, bool),
) (geo.Point, float64, bool) {
	if getStored != nil {
		if pt, walkTimeMin, ok := getStored(cand.Destination); ok {
			return pt, walkTimeMin * e.walkSpeedMPerMin, true
		}
	}

	if e.distanceCache != nil {
		if entry, ok := e.distanceCache.Get(mode, cand.Destination); ok {
			return entry.NearestAccessPoint, entry.WalkLengthM, true
		}
	}

	candidatesPts := nearest(cand.Destination)
	if len(candidatesPts) == 0 {
		return geo.Point{}, 0, false
	}

	destNode, ok := walkGraph.NearestNode(cand.Destination)
	if !ok {
		return geo.Point{}, 0, false
	}

	bestPt := geo.Point{}
	bestLen := math.Inf(1)
	found := false
	for _, pt := range candidatesPts {
		accessNode, ok := walkGraph.NearestNode(pt)
		if !ok {
			continue
		}
		length, ok := walkGraph.ShortestPathLength(destNode, accessNode)
		if !ok {
			continue
		}
		if length < bestLen {
			bestLen = length
			bestPt = pt
			found = true
		}
	}
	if !found {
		return geo.Point{}, 0, false
	}

	if e.distanceCache != nil {
		_ = e.distanceCache.Set(mode, cand.Destination, cache.DistanceEntry{NearestAccessPoint: bestPt, WalkLengthM: bestLen})
	}
	return bestPt, bestLen, true
}

// modeWeight scales the ride-mode leg of the score; car-family modes use a
// lower weight than walk/cycle since their graphs have much longer edges
// (original's weight_mode: 0.5 for car/car_sharing, 0.7 otherwise).
func (e *Evaluator) modeWeight(mode types.Mode) float64 {
	if types.Profile(mode).Family == types.FamilyCar {
		return e.cfg.CarModeWeight
	}
	return e.cfg.ModeWeight
}

// baseMaxWalkM is the unweighted walk-distance rejection threshold before
// count/priority boosting (original's base_max_distance: 800m for car
// modes, 600m otherwise).
func (e *Evaluator) baseMaxWalkM(mode types.Mode) float64 {
	if types.Profile(mode).Family == types.FamilyCar {
		return e.cfg.CarBaseMaxWalkM
	}
	return e.cfg.BaseMaxWalkM
}

// ModePriority is the fixed submode-priority table spec.md §4.5 refers to
// ("Mode-priority tables are fixed per mode family (rail/tram = high, bus =
// low)"), copied verbatim from the original's mode_priority dict
// (app/utils/mode_utils.py's distance_weights): only rail/TRAIN/air score
// 2, tram/TRAM and the other submodes listed in the second case score 1,
// and everything else (bus, coach, funicular, the cable-lift family,
// unknown, ...) scores 0.
func ModePriority(submode string) int {
	switch submode {
	case "rail", "TRAIN", "air":
		return 2
	case "tram", "TRAM", "suburbanRail", "urbanRail", "metro", "underground",
		"water", "BOAT", "taxi", "selfDrive", "METRO", "RACK_RAILWAY":
		return 1
	default:
		return 0
	}
}

// distanceWeight implements spec.md §4.5 steps 2-3: reject the candidate
// if its walk leg exceeds the count/priority-boosted threshold, otherwise
// return the weight factor applied to the combined score.
func distanceWeight(modeTags []string, walkLenM, baseMax, countBoost, priorityBoost, weightBase float64) (float64, bool) {
	if len(modeTags) == 0 {
		return 0, false
	}

	totalPriority := 0
	highest := 0
	for _, m := range modeTags {
		p := ModePriority(m)
		totalPriority += p
		if p > highest {
			highest = p
		}
	}

	countTerm := countBoost * float64(len(modeTags)-1)
	priorityTerm := 0.0
	if highest > 1 {
		priorityTerm = priorityBoost * float64(highest)
	}
	adjustedMax := baseMax * (1 + countTerm + priorityTerm)

	if walkLenM >= adjustedMax {
		return 0, false
	}

	weight := 1 + weightBase*(float64(totalPriority)+0.5*float64(len(modeTags)-1))
	return weight, true
}
