// Package facilities loads the static points-of-interest datasets (public
// transport stops, parking, rental stations) that feed the Spatial Index &
// Nearest Lookup (C3) at startup (spec.md §4.3, §9: "Static data: load once
// at startup").
//
// Grounded on the teacher's internal/repository/line_repo.go
// (pgxpool-backed repository, raw SQL with ST_X/ST_Y PostGIS extraction,
// rows.Scan loop, IsNoRows helper) and
// original_source/backend/app/data/public_transport.py (station filtering,
// transport-mode tagging, dedup-by-name preferring a known mode over
// "UNKNOWN"). The original loads from a Swiss CSV and GBFS feeds; here the
// same shape is served from Postgres/PostGIS tables populated by a
// separate ingestion step, so the dedup and mode-tag logic that in Python
// runs in pandas is expressed as SQL instead.
package facilities

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/spatialindex"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// Repository loads the static facility tables. Read-only: nothing here
// writes to the database.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// PublicTransportStations loads every stop point, tagging each with the
// submode strings the Candidate Evaluator (C5) priority-scores (spec.md
// §4.5: rail/tram/bus/funicular).
//
// DISTINCT ON (name) with the ORDER BY below reproduces
// public_transport.py's two-stage dedup in one query: drop_duplicates on
// the station identifier keeping the newest edition, then
// resolve_duplicates preferring a row whose transport_modes isn't
// "UNKNOWN".
func (r *Repository) PublicTransportStations(ctx context.Context) ([]spatialindex.Facility, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (name)
			id, name, ST_X(location::geometry), ST_Y(location::geometry), transport_modes
		FROM public_transport_stations
		WHERE country_code = 'CH' AND is_stop_point
		ORDER BY name, (transport_modes <> 'UNKNOWN') DESC, edition_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []spatialindex.Facility
	for rows.Next() {
		var id, name, modes string
		var lon, lat float64
		if err := rows.Scan(&id, &name, &lon, &lat, &modes); err != nil {
			return nil, err
		}
		out = append(out, spatialindex.Facility{
			ID:       id,
			Name:     name,
			Pt:       geo.Point{lon, lat},
			Class:    types.FacilityPublicTransport,
			ModeTags: splitModes(modes),
		})
	}
	return out, rows.Err()
}

// StationLookup builds the name -> coordinate table a point-mode request's
// input_station resolves through (original_source/backend/app/api/
// endpoints/compute.py: "stationary_data.public_transport_stations.
// set_index('name')"). Names collide across editions the same way rows do
// in PublicTransportStations; last one wins, which is fine since that
// query already dedups to one row per name.
func StationLookup(stations []spatialindex.Facility) map[string]geo.Point {
	out := make(map[string]geo.Point, len(stations))
	for _, s := range stations {
		out[s.Name] = s.Pt
	}
	return out
}

// Parking loads parking facilities of one class: FacilityBikeParking or
// FacilityCarParking, from the shared parking_facilities table's
// discriminator column, matching update_parking.py's combined bike/car
// parking dataset.
func (r *Repository) Parking(ctx context.Context, class types.FacilityClass) ([]spatialindex.Facility, error) {
	kind, err := parkingKind(class)
	if err != nil {
		return nil, err
	}
	return r.queryPoints(ctx, class, `
		SELECT id, ST_X(location::geometry), ST_Y(location::geometry)
		FROM parking_facilities WHERE kind = $1
	`, kind)
}

// RentalStations loads docked rental stations of one class:
// FacilityBikeRental, FacilityEscooterRental, or FacilityCarRental,
// matching update_shared.py's per-mode GBFS station/status merge.
func (r *Repository) RentalStations(ctx context.Context, class types.FacilityClass) ([]spatialindex.Facility, error) {
	kind, err := rentalKind(class)
	if err != nil {
		return nil, err
	}
	return r.queryPoints(ctx, class, `
		SELECT id, ST_X(location::geometry), ST_Y(location::geometry)
		FROM rental_stations WHERE kind = $1
	`, kind)
}

// LoadAll loads every facility class, ready to hand to spatialindex.Build
// in one call at startup.
func (r *Repository) LoadAll(ctx context.Context) ([]spatialindex.Facility, error) {
	var all []spatialindex.Facility

	stops, err := r.PublicTransportStations(ctx)
	if err != nil {
		return nil, err
	}
	all = append(all, stops...)

	for _, class := range []types.FacilityClass{types.FacilityBikeParking, types.FacilityCarParking} {
		fs, err := r.Parking(ctx, class)
		if err != nil {
			return nil, err
		}
		all = append(all, fs...)
	}

	for _, class := range []types.FacilityClass{
		types.FacilityBikeRental, types.FacilityEscooterRental, types.FacilityCarRental,
	} {
		fs, err := r.RentalStations(ctx, class)
		if err != nil {
			return nil, err
		}
		all = append(all, fs...)
	}

	return all, nil
}

func (r *Repository) queryPoints(ctx context.Context, class types.FacilityClass, query string, args ...any) ([]spatialindex.Facility, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []spatialindex.Facility
	for rows.Next() {
		var id string
		var lon, lat float64
		if err := rows.Scan(&id, &lon, &lat); err != nil {
			return nil, err
		}
		out = append(out, spatialindex.Facility{ID: id, Pt: geo.Point{lon, lat}, Class: class})
	}
	return out, rows.Err()
}

func parkingKind(class types.FacilityClass) (string, error) {
	switch class {
	case types.FacilityBikeParking:
		return "bike", nil
	case types.FacilityCarParking:
		return "car", nil
	default:
		return "", errors.New("facilities: not a parking class: " + string(class))
	}
}

func rentalKind(class types.FacilityClass) (string, error) {
	switch class {
	case types.FacilityBikeRental:
		return "bike", nil
	case types.FacilityEscooterRental:
		return "escooter", nil
	case types.FacilityCarRental:
		return "car", nil
	default:
		return "", errors.New("facilities: not a rental class: " + string(class))
	}
}

// splitModes turns a raw "RAIL,BUS" transport_modes cell into lowercase
// submode tags, mirroring the priority table ModePriority dispatches on.
func splitModes(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == "unknown" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
