// Package logging sets up structured logging for the engine and provides a
// per-point child logger for the parallel resolution phase (C6/C7), mirroring
// what original_source/backend/app/core/logger.py does with a contextvars
// filter: every log line emitted while a point is being resolved carries a
// `point` field, without any process-global mutable state (spec.md §9:
// "avoid process-global singletons").
//
// Grounded on log/slog, the one structured-logging idiom the example pack
// actually imports in application code (mrlm-net-simconnect's
// pkg/manager/config.go and instance.go hold a *slog.Logger field and pass it
// through via functional options — the same shape used here).
package logging

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/antigravity/isochrone-engine/internal/geo"
)

// New builds the root logger. level controls the minimum emitted level;
// callers typically pass slog.LevelInfo in production and slog.LevelDebug
// under a verbose flag.
func New(level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// ForPoint returns a child logger carrying a "point" attribute for every
// line logged through it, reproducing the original's `[POINT:x,y]` tag
// without a contextvar: the child is passed down the call stack explicitly
// instead (spec.md §9's "thread explicitly" guidance).
func ForPoint(base *slog.Logger, pt geo.Point) *slog.Logger {
	return base.With(slog.String("point", formatPoint(pt)))
}

// ForStation is the equivalent child logger keyed by station/line identifier
// rather than coordinates, used by network-mode resolution where the unit of
// work is "this origin" rather than "this radial point."
func ForStation(base *slog.Logger, stationID string) *slog.Logger {
	return base.With(slog.String("station", stationID))
}

// formatPoint matches the original's "%.4f,%.4f" point tag precision.
func formatPoint(pt geo.Point) string {
	return strconv.FormatFloat(pt[0], 'f', 4, 64) + "," + strconv.FormatFloat(pt[1], 'f', 4, 64)
}
