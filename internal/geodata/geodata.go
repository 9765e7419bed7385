// Package geodata loads the static geographic inputs Compute needs at
// startup and never again: the region's land boundary, its water mask,
// and one street graph per mode family (spec.md §3: "Region boundary,
// water mask", "Walking/mode graphs"; §5: "immutable after build").
//
// Grounded on the teacher's internal/routing.Loader (NewLoader(db),
// LoadData(ctx) building an in-memory routing structure from plain SQL
// rows) and internal/facilities's own ST_X/ST_Y row-scan style; the
// region boundary and water bodies are stored the same way the original
// keeps its city/canton/water shapefiles, as ordered-vertex rows rather
// than a PostGIS geometry type pgx has no native scan target for.
//
// This reads already-built graph/boundary tables the same way
// internal/facilities reads its dataset tables; raw OSM ingestion into
// those tables is a separate, out-of-scope pipeline (spec.md §1).
package geodata

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// Loader reads the static geographic tables. Read-only.
type Loader struct {
	db *pgxpool.Pool
}

func NewLoader(db *pgxpool.Pool) *Loader {
	return &Loader{db: db}
}

// Region is the planar land boundary, its projection, and a water-mask
// predicate, all centered on the boundary's own centroid so that Forward
// of any point inside it stays close to the projection's low-distortion
// origin (geo.NewProjection's doc comment).
type Region struct {
	Polygon geo.Polygon
	Proj    *geo.Projection
	IsWater func(pt geo.Point) bool
}

// LoadRegion loads the land boundary ring and every water polygon,
// derives a projection centered on the boundary's centroid, and forward-
// projects both into that CRS (spec.md §4.2's land/water masks are
// evaluated in the same planar CRS as sampling and the graphs).
func (l *Loader) LoadRegion(ctx context.Context) (*Region, error) {
	log.Println("geodata: loading region boundary...")
	start := time.Now()

	boundaryGeo, err := l.loadRing(ctx, `
		SELECT lon, lat FROM region_boundary ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}

	origin := centroid(boundaryGeo)
	proj := geo.NewProjection(origin)

	waterRows, err := l.db.Query(ctx, `
		SELECT polygon_id, lon, lat FROM water_polygons ORDER BY polygon_id, seq
	`)
	if err != nil {
		return nil, err
	}
	defer waterRows.Close()

	waterRings := map[int]geo.Ring{}
	var waterOrder []int
	for waterRows.Next() {
		var polygonID int
		var lon, lat float64
		if err := waterRows.Scan(&polygonID, &lon, &lat); err != nil {
			return nil, err
		}
		if _, ok := waterRings[polygonID]; !ok {
			waterOrder = append(waterOrder, polygonID)
		}
		waterRings[polygonID] = append(waterRings[polygonID], geo.Point{lon, lat})
	}
	if err := waterRows.Err(); err != nil {
		return nil, err
	}

	region := proj.ForwardPolygon(geo.Polygon{boundaryGeo})
	var water []geo.Polygon
	for _, id := range waterOrder {
		water = append(water, proj.ForwardPolygon(geo.Polygon{waterRings[id]}))
	}

	log.Printf("geodata: region boundary (%d vertices) and %d water polygons loaded in %s",
		len(boundaryGeo), len(water), time.Since(start))

	return &Region{
		Polygon: region,
		Proj:    proj,
		IsWater: buildIsWater(water),
	}, nil
}

// LoadGraph loads one mode family's street network (nodes + undirected
// edges) and forward-projects every node into proj's CRS, matching
// internal/graph's "in the graph's projected CRS" contract.
func (l *Loader) LoadGraph(ctx context.Context, proj *geo.Projection, family types.ModeFamily) (*graph.Graph, error) {
	log.Printf("geodata: loading %s graph...", family)
	start := time.Now()

	rows, err := l.db.Query(ctx, `
		SELECT id, lon, lat FROM graph_nodes WHERE family = $1 ORDER BY id
	`, string(family))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	idToIndex := map[int]graph.NodeID{}
	var nodes []graph.Node
	for rows.Next() {
		var dbID int
		var lon, lat float64
		if err := rows.Scan(&dbID, &lon, &lat); err != nil {
			return nil, err
		}
		idx := graph.NodeID(len(nodes))
		idToIndex[dbID] = idx
		nodes = append(nodes, graph.Node{ID: idx, Pt: proj.Forward(geo.Point{lon, lat})})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := l.db.Query(ctx, `
		SELECT from_id, to_id, length_m FROM graph_edges WHERE family = $1
	`, string(family))
	if err != nil {
		return nil, err
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var fromID, toID int
		var lengthM float64
		if err := edgeRows.Scan(&fromID, &toID, &lengthM); err != nil {
			return nil, err
		}
		from, ok1 := idToIndex[fromID]
		to, ok2 := idToIndex[toID]
		if !ok1 || !ok2 {
			continue
		}
		nodes[from].Adj = append(nodes[from].Adj, graph.Edge{To: to, Length: lengthM})
		nodes[to].Adj = append(nodes[to].Adj, graph.Edge{To: from, Length: lengthM})
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	log.Printf("geodata: %s graph loaded (%d nodes) in %s", family, len(nodes), time.Since(start))
	return graph.NewGraph(nodes), nil
}

func (l *Loader) loadRing(ctx context.Context, query string) (geo.Ring, error) {
	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ring geo.Ring
	for rows.Next() {
		var lon, lat float64
		if err := rows.Scan(&lon, &lat); err != nil {
			return nil, err
		}
		ring = append(ring, geo.Point{lon, lat})
	}
	return ring, rows.Err()
}

func centroid(ring geo.Ring) geo.Point {
	if len(ring) == 0 {
		return geo.Point{}
	}
	var sumLon, sumLat float64
	for _, p := range ring {
		sumLon += p[0]
		sumLat += p[1]
	}
	n := float64(len(ring))
	return geo.Point{sumLon / n, sumLat / n}
}

func buildIsWater(water []geo.Polygon) func(geo.Point) bool {
	return func(pt geo.Point) bool {
		for _, w := range water {
			if geo.PolygonContains(w, pt) {
				return true
			}
		}
		return false
	}
}
