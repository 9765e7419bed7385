package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity/isochrone-engine/internal/geo"
)

func TestForPointAttachesPointAttribute(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	child := ForPoint(base, geo.Point{8.5441, 47.3763})
	child.Info("travel time computed")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "point=8.5441,47.3763")
	assert.Contains(t, out, "travel time computed")
}

func TestForStationAttachesStationAttribute(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	child := ForStation(base, "station-42")
	child.Warn("skip: no trip")

	out := buf.String()
	assert.True(t, strings.Contains(out, "station=station-42"))
}

func TestNewRespectsLevel(t *testing.T) {
	logger := New(slog.LevelWarn)
	assert.False(t, logger.Enabled(nil, slog.LevelInfo))
	assert.True(t, logger.Enabled(nil, slog.LevelWarn))
}
