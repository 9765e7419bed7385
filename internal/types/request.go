package types

import (
	"time"

	"github.com/antigravity/isochrone-engine/internal/geo"
)

// ComputeRequest is the per-invocation input (spec.md §6).
type ComputeRequest struct {
	Mode               Mode      `json:"mode"`
	NetworkIsochrones  bool      `json:"network_isochrones"`
	InputStation       *string   `json:"input_station,omitempty"`
	Performance        bool      `json:"performance,omitempty"`
	ArrivalTime        time.Time `json:"arrival_time,omitempty"`
	Timestamp          time.Time `json:"timestamp,omitempty"`
	ForceUpdate        bool      `json:"force_update,omitempty"`
	// Center is required for point-mode requests (NetworkIsochrones == false).
	Center *geo.Point `json:"center,omitempty"`
}

// Defaults fills Timestamp/ArrivalTime per spec.md §6
// ("timestamp = now", "arrival_time = timestamp + 1h").
func (r *ComputeRequest) Defaults(now time.Time) {
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.ArrivalTime.IsZero() {
		r.ArrivalTime = r.Timestamp.Add(time.Hour)
	}
}

// Status is the closed response-status enumeration (spec.md §6).
type Status string

const (
	StatusSuccess        Status = "success"
	StatusSkipped        Status = "skipped"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
)

// RequestType distinguishes network vs point isochrone output.
type RequestType string

const (
	RequestTypeNetwork RequestType = "network"
	RequestTypePoint   RequestType = "point"
)

// ComputeResponse is the per-invocation output (spec.md §6).
type ComputeResponse struct {
	Status         Status       `json:"status"`
	Type           *RequestType `json:"type,omitempty"`
	Station        *string      `json:"station,omitempty"`
	Mode           *Mode        `json:"mode,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Error          string       `json:"error,omitempty"`
	RuntimeMinutes float64      `json:"runtime_minutes,omitempty"`
	UsedModes      []string     `json:"used_modes,omitempty"`
	StationNames   []string     `json:"station_names,omitempty"`
}
