// Package types holds the closed enumerations and static profile tables the
// isochrone core dispatches on: transport mode, facility class, and the
// request/response shapes of spec.md §6. Mirrors the teacher's
// internal/models package in spirit (plain structs, JSON tags) but the
// domain is travel-time isochrones, not transit lines.
package types

// Mode is the closed set of transport modes spec.md §3 defines.
type Mode string

const (
	ModeWalk           Mode = "walk"
	ModeCycle          Mode = "cycle"
	ModeSelfDriveCar   Mode = "self_drive_car"
	ModeBicycleRental  Mode = "bicycle_rental"
	ModeEscooterRental Mode = "escooter_rental"
	ModeCarSharing     Mode = "car_sharing"
)

// AllModes lists every closed-enumeration value, in the order spec.md §3
// introduces them.
var AllModes = []Mode{
	ModeWalk, ModeCycle, ModeSelfDriveCar,
	ModeBicycleRental, ModeEscooterRental, ModeCarSharing,
}

// FacilityClass tags a spatial index (spec.md §3).
type FacilityClass string

const (
	FacilityPublicTransport FacilityClass = "public_transport"
	FacilityBikeParking     FacilityClass = "bike_parking"
	FacilityCarParking      FacilityClass = "car_parking"
	FacilityBikeRental      FacilityClass = "bike_rental"
	FacilityEscooterRental  FacilityClass = "escooter_rental"
	FacilityCarRental       FacilityClass = "car_rental"
)

// ModeFamily buckets modes for sample-generation constants (spec.md §6).
type ModeFamily string

const (
	FamilyWalk  ModeFamily = "walk"
	FamilyCycle ModeFamily = "cycle_family"
	FamilyCar   ModeFamily = "car_family"
)

// ModeProfile supplies everything the pipeline needs to treat a mode
// polymorphically without a class hierarchy (spec.md §9: "Avoid class
// hierarchies; dispatch on the mode tag").
type ModeProfile struct {
	Mode FacilityClass
	// RideMode is the internal mode used for routing legs; for rental modes
	// this is the underlying vehicle type (spec.md §3).
	RideMode Mode
	// IsRental is true for the three rental variants.
	IsRental bool
	// DestinationFacility is queried for "destination POI" candidates.
	DestinationFacility FacilityClass
	// AccessFacility is queried for the rider's access station (rental pickup
	// or parking spot: bike/car parking for cycle/self_drive_car); empty for
	// walk, which has no access station.
	AccessFacility FacilityClass
	Family         ModeFamily
}

// Profiles is the static mode-profile table (spec.md §3, §9).
var Profiles = map[Mode]ModeProfile{
	ModeWalk: {
		RideMode: ModeWalk, IsRental: false,
		DestinationFacility: FacilityPublicTransport,
		Family:              FamilyWalk,
	},
	ModeCycle: {
		RideMode: ModeCycle, IsRental: false,
		DestinationFacility: FacilityPublicTransport,
		AccessFacility:      FacilityBikeParking,
		Family:              FamilyCycle,
	},
	ModeSelfDriveCar: {
		RideMode: ModeSelfDriveCar, IsRental: false,
		DestinationFacility: FacilityPublicTransport,
		AccessFacility:      FacilityCarParking,
		Family:              FamilyCar,
	},
	ModeBicycleRental: {
		RideMode: ModeCycle, IsRental: true,
		DestinationFacility: FacilityPublicTransport,
		AccessFacility:      FacilityBikeRental,
		Family:              FamilyCycle,
	},
	ModeEscooterRental: {
		RideMode: ModeCycle, IsRental: true,
		DestinationFacility: FacilityPublicTransport,
		AccessFacility:      FacilityEscooterRental,
		Family:              FamilyCycle,
	},
	ModeCarSharing: {
		RideMode: ModeSelfDriveCar, IsRental: true,
		DestinationFacility: FacilityPublicTransport,
		AccessFacility:      FacilityCarRental,
		Family:              FamilyCar,
	},
}

// Profile looks up the static profile for a mode. Panics on an unknown mode
// since Mode is a closed enumeration validated at the request boundary.
func Profile(m Mode) ModeProfile {
	p, ok := Profiles[m]
	if !ok {
		panic("types: unknown mode " + string(m))
	}
	return p
}

// The per-submode priority table (spec.md §4.5) lives in
// internal/evaluator.ModePriority, the package that actually consumes it;
// keeping one copy avoids the two tables drifting apart.
