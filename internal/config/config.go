// Package config loads the isochrone engine's tunables from the environment,
// following the teacher pack's viper convention (shivamshaw23-Hintro's
// config/config.go): a typed struct, viper.SetDefault for every field, a
// single Load() that reads env vars (optionally an .env file) and returns
// the struct. Every numeric default below is named in spec.md §4 and §6.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the engine reads at startup. Nothing here is
// mutated after Load returns.
type Config struct {
	Gate        GateConfig
	Oracle      OracleConfig
	Cache       CacheConfig
	Evaluator   EvaluatorConfig
	Scheduler   SchedulerConfig
	Sampling    SamplingConfig
	Interp      InterpConfig
	Contour     ContourConfig
	Refinement  RefinementConfig
	Postgres    PostgresConfig
	Server      ServerConfig
}

// GateConfig is the Rate-limited Request Gate's throttling parameters
// (spec.md §4.1: "no more than K (=100) calls in flight... spaced by at
// least S seconds").
type GateConfig struct {
	ConcurrencyLimit int           `mapstructure:"GATE_CONCURRENCY_LIMIT"`
	RateLimit        int           `mapstructure:"GATE_RATE_LIMIT"`
	RatePeriod       time.Duration `mapstructure:"GATE_RATE_PERIOD"`
	Slack            time.Duration `mapstructure:"GATE_SLACK"`
}

// Spacing is S = period/quota + slack (spec.md §4.1).
func (g GateConfig) Spacing() time.Duration {
	if g.RateLimit <= 0 {
		return g.Slack
	}
	return g.RatePeriod/time.Duration(g.RateLimit) + g.Slack
}

// OracleConfig holds the Journey Oracle's degenerate-case thresholds
// (spec.md §4.2, §8 scenario S6) and walking speed for the local-graph
// shortcut.
type OracleConfig struct {
	SameStationEpsilonM  float64 `mapstructure:"ORACLE_SAME_STATION_EPSILON_M"`
	WalkingSpeedMPerMin  float64 `mapstructure:"ORACLE_WALKING_SPEED_M_PER_MIN"`
	OracleBaseURL        string  `mapstructure:"ORACLE_BASE_URL"`
	OracleRequestTimeout time.Duration `mapstructure:"ORACLE_REQUEST_TIMEOUT"`
}

// CacheConfig controls persistence cadence for the Cache Hierarchy (C4).
type CacheConfig struct {
	TravelCachePath        string `mapstructure:"CACHE_TRAVEL_PATH"`
	DistanceCachePath      string `mapstructure:"CACHE_DISTANCE_PATH"`
	IntersectionIndexPath  string `mapstructure:"CACHE_INTERSECTION_INDEX_PATH"`
	DistanceFlushEvery     int    `mapstructure:"CACHE_DISTANCE_FLUSH_EVERY"`
}

// EvaluatorConfig is the Candidate Evaluator's weighting/rejection knobs
// (spec.md §4.5).
type EvaluatorConfig struct {
	MaxDestinations int     `mapstructure:"EVAL_MAX_DESTINATIONS"`
	BaseMaxWalkM    float64 `mapstructure:"EVAL_BASE_MAX_WALK_M"`
	CarBaseMaxWalkM float64 `mapstructure:"EVAL_CAR_BASE_MAX_WALK_M"`
	CountBoost      float64 `mapstructure:"EVAL_COUNT_BOOST"`
	PriorityBoost   float64 `mapstructure:"EVAL_PRIORITY_BOOST"`
	WeightBase      float64 `mapstructure:"EVAL_WEIGHT_BASE"`
	// ModeWeight/CarModeWeight scale the mode-graph leg of the score
	// differently for car-family modes than for walk/cycle (spec.md §4.5
	// step 4; the car graph's edge lengths dominate if left unscaled).
	ModeWeight    float64 `mapstructure:"EVAL_MODE_WEIGHT"`
	CarModeWeight float64 `mapstructure:"EVAL_CAR_MODE_WEIGHT"`
}

// SchedulerConfig is the Batch Scheduler's batch-size/timeout pairs per
// resolution variant (spec.md §4.7).
type SchedulerConfig struct {
	NetworkBatchSize   int           `mapstructure:"SCHED_NETWORK_BATCH_SIZE"`
	PointBatchSize     int           `mapstructure:"SCHED_POINT_BATCH_SIZE"`
	NetworkTaskTimeout time.Duration `mapstructure:"SCHED_NETWORK_TASK_TIMEOUT"`
	PerformanceTaskTimeout time.Duration `mapstructure:"SCHED_PERFORMANCE_TASK_TIMEOUT"`
}

// ModeSamplingParams is one row of spec.md §6's sample-generation constants
// table, for one mode family at one performance setting.
type ModeSamplingParams struct {
	NumRings  int
	Base      int
	OffsetM   float64
	MaxPoints int
	MaxRadiusM float64
}

// SamplingConfig is the Sample Generator's (C8) per-family, per-performance
// parameter table plus the shared structural constants (grid cell size,
// cluster-dedup radius, minimum refinement separation).
type SamplingConfig struct {
	NetworkGridSizeM      float64 `mapstructure:"SAMPLING_NETWORK_GRID_SIZE_M"`
	ClusterDedupRadiusM   float64 `mapstructure:"SAMPLING_CLUSTER_DEDUP_RADIUS_M"`
	RefinementMinSepM     float64 `mapstructure:"SAMPLING_REFINEMENT_MIN_SEP_M"`
	CloseDirectionalDivisor float64 `mapstructure:"SAMPLING_CLOSE_DIRECTIONAL_DIVISOR"`

	// Params[family][performance] — performance indexed by "perf"/"full".
	Params map[string]map[string]ModeSamplingParams `mapstructure:"-"`
}

// InterpConfig is the Interpolator's (C9) grid resolution and IDW knobs.
type InterpConfig struct {
	GridResolutionPerf    int     `mapstructure:"INTERP_GRID_RESOLUTION_PERF"`
	GridResolutionNetwork int     `mapstructure:"INTERP_GRID_RESOLUTION_NETWORK"`
	GridResolutionFull    int     `mapstructure:"INTERP_GRID_RESOLUTION_FULL"`
	BufferM               float64 `mapstructure:"INTERP_BUFFER_M"`
	BasePower             float64 `mapstructure:"INTERP_BASE_POWER"`
	MaxNeighbors          int     `mapstructure:"INTERP_MAX_NEIGHBORS"`
	GaussianSigma         float64 `mapstructure:"INTERP_GAUSSIAN_SIGMA"`
}

// ContourConfig is the Contour & Clip (C10) level step and performance-mode
// soft-timeout.
type ContourConfig struct {
	LevelStepMinutes    int           `mapstructure:"CONTOUR_LEVEL_STEP_MINUTES"`
	ClipSoftTimeout     time.Duration `mapstructure:"CONTOUR_CLIP_SOFT_TIMEOUT"`
	LargeIsochroneShare float64       `mapstructure:"CONTOUR_LARGE_ISOCHRONE_SHARE"`
}

// RefinementConfig is the Iterative Refinement (C11) point budget.
type RefinementConfig struct {
	UnsampledPoints int `mapstructure:"REFINEMENT_UNSAMPLED_POINTS"`
	LargePoints     int `mapstructure:"REFINEMENT_LARGE_POINTS"`
}

// PostgresConfig, ServerConfig mirror the teacher's own connection settings
// (main.go's hardcoded DSN, generalized to env vars the way
// shivamshaw23-Hintro's PostgresConfig does).
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

type ServerConfig struct {
	Host string `mapstructure:"SERVER_HOST"`
	Port int    `mapstructure:"SERVER_PORT"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables (and an .env file if
// present), applying the defaults named throughout spec.md §4/§6.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("GATE_CONCURRENCY_LIMIT", 100)
	viper.SetDefault("GATE_RATE_LIMIT", 100)
	viper.SetDefault("GATE_RATE_PERIOD", "60s")
	viper.SetDefault("GATE_SLACK", "50ms")

	viper.SetDefault("ORACLE_SAME_STATION_EPSILON_M", 30.0)
	viper.SetDefault("ORACLE_WALKING_SPEED_M_PER_MIN", 83.3)
	viper.SetDefault("ORACLE_BASE_URL", "")
	viper.SetDefault("ORACLE_REQUEST_TIMEOUT", "30s")

	viper.SetDefault("CACHE_TRAVEL_PATH", "data/cache/travel_cache.gob")
	viper.SetDefault("CACHE_DISTANCE_PATH", "data/cache/distance_cache.gob")
	viper.SetDefault("CACHE_INTERSECTION_INDEX_PATH", "data/cache/intersection_index.gob")
	viper.SetDefault("CACHE_DISTANCE_FLUSH_EVERY", 50)

	viper.SetDefault("EVAL_MAX_DESTINATIONS", 20)
	viper.SetDefault("EVAL_BASE_MAX_WALK_M", 600.0)
	viper.SetDefault("EVAL_CAR_BASE_MAX_WALK_M", 800.0)
	viper.SetDefault("EVAL_COUNT_BOOST", 0.15)
	viper.SetDefault("EVAL_PRIORITY_BOOST", 0.25)
	viper.SetDefault("EVAL_WEIGHT_BASE", 0.1)
	viper.SetDefault("EVAL_MODE_WEIGHT", 0.7)
	viper.SetDefault("EVAL_CAR_MODE_WEIGHT", 0.5)

	viper.SetDefault("SCHED_NETWORK_BATCH_SIZE", 20)
	viper.SetDefault("SCHED_POINT_BATCH_SIZE", 50)
	viper.SetDefault("SCHED_NETWORK_TASK_TIMEOUT", "15m")
	viper.SetDefault("SCHED_PERFORMANCE_TASK_TIMEOUT", "2m")

	viper.SetDefault("SAMPLING_NETWORK_GRID_SIZE_M", 500.0)
	viper.SetDefault("SAMPLING_CLUSTER_DEDUP_RADIUS_M", 100.0)
	viper.SetDefault("SAMPLING_REFINEMENT_MIN_SEP_M", 150.0)
	viper.SetDefault("SAMPLING_CLOSE_DIRECTIONAL_DIVISOR", 10.0)

	viper.SetDefault("INTERP_GRID_RESOLUTION_PERF", 250)
	viper.SetDefault("INTERP_GRID_RESOLUTION_NETWORK", 500)
	viper.SetDefault("INTERP_GRID_RESOLUTION_FULL", 1000)
	viper.SetDefault("INTERP_BUFFER_M", 500.0)
	viper.SetDefault("INTERP_BASE_POWER", 2.0)
	viper.SetDefault("INTERP_MAX_NEIGHBORS", 8)
	viper.SetDefault("INTERP_GAUSSIAN_SIGMA", 1.0)

	viper.SetDefault("CONTOUR_LEVEL_STEP_MINUTES", 1)
	viper.SetDefault("CONTOUR_CLIP_SOFT_TIMEOUT", "10s")
	viper.SetDefault("CONTOUR_LARGE_ISOCHRONE_SHARE", 0.05)

	viper.SetDefault("REFINEMENT_UNSAMPLED_POINTS", 100)
	viper.SetDefault("REFINEMENT_LARGE_POINTS", 50)

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5433)
	viper.SetDefault("POSTGRES_USER", "isochrone")
	viper.SetDefault("POSTGRES_PASSWORD", "isochrone_dev_pwd")
	viper.SetDefault("POSTGRES_DB", "isochrone")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)

	// Try to read .env; absent in container deployments where env vars are
	// injected directly, so a missing file is not an error.
	_ = viper.ReadInConfig()

	cfg := &Config{
		Gate: GateConfig{
			ConcurrencyLimit: viper.GetInt("GATE_CONCURRENCY_LIMIT"),
			RateLimit:        viper.GetInt("GATE_RATE_LIMIT"),
			RatePeriod:       viper.GetDuration("GATE_RATE_PERIOD"),
			Slack:            viper.GetDuration("GATE_SLACK"),
		},
		Oracle: OracleConfig{
			SameStationEpsilonM:  viper.GetFloat64("ORACLE_SAME_STATION_EPSILON_M"),
			WalkingSpeedMPerMin:  viper.GetFloat64("ORACLE_WALKING_SPEED_M_PER_MIN"),
			OracleBaseURL:        viper.GetString("ORACLE_BASE_URL"),
			OracleRequestTimeout: viper.GetDuration("ORACLE_REQUEST_TIMEOUT"),
		},
		Cache: CacheConfig{
			TravelCachePath:       viper.GetString("CACHE_TRAVEL_PATH"),
			DistanceCachePath:     viper.GetString("CACHE_DISTANCE_PATH"),
			IntersectionIndexPath: viper.GetString("CACHE_INTERSECTION_INDEX_PATH"),
			DistanceFlushEvery:    viper.GetInt("CACHE_DISTANCE_FLUSH_EVERY"),
		},
		Evaluator: EvaluatorConfig{
			MaxDestinations: viper.GetInt("EVAL_MAX_DESTINATIONS"),
			BaseMaxWalkM:    viper.GetFloat64("EVAL_BASE_MAX_WALK_M"),
			CarBaseMaxWalkM: viper.GetFloat64("EVAL_CAR_BASE_MAX_WALK_M"),
			CountBoost:      viper.GetFloat64("EVAL_COUNT_BOOST"),
			PriorityBoost:   viper.GetFloat64("EVAL_PRIORITY_BOOST"),
			WeightBase:      viper.GetFloat64("EVAL_WEIGHT_BASE"),
			ModeWeight:      viper.GetFloat64("EVAL_MODE_WEIGHT"),
			CarModeWeight:   viper.GetFloat64("EVAL_CAR_MODE_WEIGHT"),
		},
		Scheduler: SchedulerConfig{
			NetworkBatchSize:       viper.GetInt("SCHED_NETWORK_BATCH_SIZE"),
			PointBatchSize:         viper.GetInt("SCHED_POINT_BATCH_SIZE"),
			NetworkTaskTimeout:     viper.GetDuration("SCHED_NETWORK_TASK_TIMEOUT"),
			PerformanceTaskTimeout: viper.GetDuration("SCHED_PERFORMANCE_TASK_TIMEOUT"),
		},
		Sampling: SamplingConfig{
			NetworkGridSizeM:        viper.GetFloat64("SAMPLING_NETWORK_GRID_SIZE_M"),
			ClusterDedupRadiusM:     viper.GetFloat64("SAMPLING_CLUSTER_DEDUP_RADIUS_M"),
			RefinementMinSepM:       viper.GetFloat64("SAMPLING_REFINEMENT_MIN_SEP_M"),
			CloseDirectionalDivisor: viper.GetFloat64("SAMPLING_CLOSE_DIRECTIONAL_DIVISOR"),
			Params:                  defaultSamplingParams(),
		},
		Interp: InterpConfig{
			GridResolutionPerf:    viper.GetInt("INTERP_GRID_RESOLUTION_PERF"),
			GridResolutionNetwork: viper.GetInt("INTERP_GRID_RESOLUTION_NETWORK"),
			GridResolutionFull:    viper.GetInt("INTERP_GRID_RESOLUTION_FULL"),
			BufferM:               viper.GetFloat64("INTERP_BUFFER_M"),
			BasePower:             viper.GetFloat64("INTERP_BASE_POWER"),
			MaxNeighbors:          viper.GetInt("INTERP_MAX_NEIGHBORS"),
			GaussianSigma:         viper.GetFloat64("INTERP_GAUSSIAN_SIGMA"),
		},
		Contour: ContourConfig{
			LevelStepMinutes:    viper.GetInt("CONTOUR_LEVEL_STEP_MINUTES"),
			ClipSoftTimeout:     viper.GetDuration("CONTOUR_CLIP_SOFT_TIMEOUT"),
			LargeIsochroneShare: viper.GetFloat64("CONTOUR_LARGE_ISOCHRONE_SHARE"),
		},
		Refinement: RefinementConfig{
			UnsampledPoints: viper.GetInt("REFINEMENT_UNSAMPLED_POINTS"),
			LargePoints:     viper.GetInt("REFINEMENT_LARGE_POINTS"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetInt("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		},
		Server: ServerConfig{
			Host: viper.GetString("SERVER_HOST"),
			Port: viper.GetInt("SERVER_PORT"),
		},
	}

	return cfg, nil
}

// defaultSamplingParams is spec.md §6's sample-generation constants table,
// verbatim. Not env-overridable: the table shape (family × performance) does
// not map cleanly onto flat env vars, so it is a compiled default like the
// teacher's static mode tables.
func defaultSamplingParams() map[string]map[string]ModeSamplingParams {
	return map[string]map[string]ModeSamplingParams{
		"walk": {
			"perf": {NumRings: 5, Base: 8, OffsetM: 50, MaxPoints: 50, MaxRadiusM: 1500},
			"full": {NumRings: 6, Base: 8, OffsetM: 50, MaxPoints: 99, MaxRadiusM: 2000},
		},
		"cycle_family": {
			"perf": {NumRings: 6, Base: 7, OffsetM: 100, MaxPoints: 50, MaxRadiusM: 2500},
			"full": {NumRings: 10, Base: 7, OffsetM: 100, MaxPoints: 199, MaxRadiusM: 7500},
		},
		"car_family": {
			"perf": {NumRings: 7, Base: 6, OffsetM: 150, MaxPoints: 50, MaxRadiusM: 5000},
			"full": {NumRings: 12, Base: 6, OffsetM: 150, MaxPoints: 249, MaxRadiusM: 10000},
		},
	}
}
