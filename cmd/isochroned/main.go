package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"

	"github.com/antigravity/isochrone-engine/internal/cache"
	"github.com/antigravity/isochrone-engine/internal/config"
	"github.com/antigravity/isochrone-engine/internal/engine"
	"github.com/antigravity/isochrone-engine/internal/evaluator"
	"github.com/antigravity/isochrone-engine/internal/facilities"
	"github.com/antigravity/isochrone-engine/internal/gate"
	"github.com/antigravity/isochrone-engine/internal/geo"
	"github.com/antigravity/isochrone-engine/internal/geodata"
	"github.com/antigravity/isochrone-engine/internal/graph"
	"github.com/antigravity/isochrone-engine/internal/logging"
	"github.com/antigravity/isochrone-engine/internal/oracle"
	"github.com/antigravity/isochrone-engine/internal/spatialindex"
	"github.com/antigravity/isochrone-engine/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Unable to load config:", err)
	}
	logger := logging.New(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		log.Fatal("Unable to create connection pool:", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("Unable to connect to database:", err)
	}
	log.Println("Connected to PostGIS database")

	eng, travelCache, distanceCache, err := buildEngine(ctx, cfg, pool, logger)
	if err != nil {
		log.Fatal("Unable to wire engine:", err)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(20 * time.Minute))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"isochrone_engine"}`))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"error","db":"disconnected"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","db":"connected"}`))
	})

	computeHandler := newComputeHandler(eng)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/compute", computeHandler.Compute)
	})

	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: r}
	go func() {
		log.Printf("isochrone engine listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received, draining in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	// spec.md §3/§4.4: flush the in-memory cache hierarchy to disk on
	// graceful shutdown so the next process start resumes from it.
	if err := travelCache.Save(); err != nil {
		log.Printf("travel cache flush error: %v", err)
	}
	if err := distanceCache.Flush(); err != nil {
		log.Printf("distance cache flush error: %v", err)
	}
	log.Println("cache hierarchy flushed, exiting")
}

// buildEngine constructs every long-lived collaborator once at startup
// (spec.md §5: "Spatial indices: immutable after build"; "Walking/mode
// graphs: immutable") and wires them into one engine.Engine. It also
// returns the two disk-backed caches so main can flush them on shutdown.
func buildEngine(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*engine.Engine, *cache.TravelCache, *cache.DistanceCache, error) {
	geoLoader := geodata.NewLoader(pool)
	region, err := geoLoader.LoadRegion(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	rideFamilies := map[types.Mode]types.ModeFamily{
		types.ModeWalk:         types.FamilyWalk,
		types.ModeCycle:        types.FamilyCycle,
		types.ModeSelfDriveCar: types.FamilyCar,
	}
	rideGraphs := make(map[types.Mode]*graph.Graph, len(rideFamilies))
	for mode, family := range rideFamilies {
		g, err := geoLoader.LoadGraph(ctx, region.Proj, family)
		if err != nil {
			return nil, nil, nil, err
		}
		rideGraphs[mode] = g
	}

	facRepo := facilities.NewRepository(pool)
	rawFacilities, err := facRepo.LoadAll(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	stations := make([]spatialindex.Facility, 0, len(rawFacilities))
	planarFacilities := make([]spatialindex.Facility, len(rawFacilities))
	for i, f := range rawFacilities {
		planar := f
		planar.Pt = region.Proj.Forward(f.Pt)
		planarFacilities[i] = planar
		if f.Class == types.FacilityPublicTransport {
			stations = append(stations, f)
		}
	}
	index := spatialindex.Build(geo.Bounds(pointsOf(planarFacilities)), planarFacilities)
	stationLookup := facilities.StationLookup(stations)

	travelCache, err := cache.NewTravelCache(cfg.Cache.TravelCachePath)
	if err != nil {
		return nil, nil, nil, err
	}
	distanceCache, err := cache.NewDistanceCache(cfg.Cache.DistanceCachePath, cfg.Cache.DistanceFlushEvery)
	if err != nil {
		return nil, nil, nil, err
	}

	eval := evaluator.New(cfg.Evaluator, distanceCache, cfg.Oracle.WalkingSpeedMPerMin)

	httpClient := &http.Client{Timeout: cfg.Oracle.OracleRequestTimeout}
	g := gate.New(cfg.Gate)
	send := func(ctx context.Context, body []byte) ([]byte, int, error) {
		return postOracleRequest(ctx, httpClient, cfg.Oracle.OracleBaseURL, body)
	}
	journeyOracle := oracle.NewHTTPOracle(cfg.Oracle, g, oracle.OJPRequestBuilder{}, oracle.OJPResponseParser{}, send, rideGraphs)

	deps := engine.Deps{
		Region:        region.Polygon,
		Proj:          region.Proj,
		IsWater:       region.IsWater,
		Cache:         travelCache,
		DistanceCache: distanceCache,
		Index:         index,
		Evaluator:     eval,
		Oracle:        journeyOracle,
		Stations:      stationLookup,
		WalkGraph:     rideGraphs[types.ModeWalk],
		RideGraphs:    rideGraphs,
		Logger:        logger,
	}
	return engine.New(*cfg, deps), travelCache, distanceCache, nil
}

// requestIDMiddleware stamps every response with a correlation ID a long-
// running compute request's logs can be grepped by; a compute run can take
// minutes, so chi's own incrementing RequestID isn't unique across restarts
// the way this needs to be.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.New().String())
		next.ServeHTTP(w, r)
	})
}

func pointsOf(fs []spatialindex.Facility) []geo.Point {
	out := make([]geo.Point, len(fs))
	for i, f := range fs {
		out[i] = f.Pt
	}
	return out
}

// postOracleRequest performs the actual HTTP round trip oracle.HTTPOracle
// delegates to, keeping net/http out of the oracle package's own surface
// (spec.md §1: "the implementation detail of how this is wire-encoded is
// irrelevant to the core").
func postOracleRequest(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}
