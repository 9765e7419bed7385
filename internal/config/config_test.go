package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Gate.ConcurrencyLimit)
	assert.Equal(t, 100, cfg.Gate.RateLimit)
	assert.Equal(t, 20, cfg.Scheduler.NetworkBatchSize)
	assert.Equal(t, 50, cfg.Scheduler.PointBatchSize)
}

func TestGateSpacingIsPeriodOverQuotaPlusSlack(t *testing.T) {
	g := GateConfig{RateLimit: 100, RatePeriod: 60_000_000_000, Slack: 50_000_000}
	want := g.RatePeriod/100 + g.Slack
	assert.Equal(t, want, g.Spacing())
}

func TestGateSpacingZeroRateLimitFallsBackToSlack(t *testing.T) {
	g := GateConfig{RateLimit: 0, Slack: 50_000_000}
	assert.Equal(t, g.Slack, g.Spacing())
}

func TestDefaultSamplingParamsMatchesSpecTable(t *testing.T) {
	params := defaultSamplingParams()

	walkFull := params["walk"]["full"]
	assert.Equal(t, 6, walkFull.NumRings)
	assert.Equal(t, 99, walkFull.MaxPoints)
	assert.Equal(t, 2000.0, walkFull.MaxRadiusM)

	carPerf := params["car_family"]["perf"]
	assert.Equal(t, 7, carPerf.NumRings)
	assert.Equal(t, 5000.0, carPerf.MaxRadiusM)
}

func TestPostgresDSNFormat(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", p.DSN())
}
