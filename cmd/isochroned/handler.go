package main

import (
	"encoding/json"
	"net/http"

	"github.com/antigravity/isochrone-engine/internal/engine"
	"github.com/antigravity/isochrone-engine/internal/types"
)

// computeHandler adapts engine.Compute to the wire contract spec.md §6
// describes, grounded on the teacher's handler.TransportHandler (plain
// struct holding its collaborators, one method per route, json.Encoder
// straight onto the response writer).
type computeHandler struct {
	eng *engine.Engine
}

func newComputeHandler(eng *engine.Engine) *computeHandler {
	return &computeHandler{eng: eng}
}

// computeResult is the response body: ComputeResponse's fields plus the
// finished isochrone bands, which compute.py's endpoint itself never
// returned (it persisted them and handed back status only) but a caller
// with no direct database access needs to actually retrieve the result
// of its own request.
type computeResult struct {
	types.ComputeResponse
	Records []isochroneRecord `json:"records,omitempty"`
}

type isochroneRecord struct {
	LevelMinutes int         `json:"level_minutes"`
	Geometry     interface{} `json:"geometry"`
}

func (h *computeHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req types.ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := h.eng.Compute(r.Context(), req)

	out := computeResult{ComputeResponse: result.Response}
	for _, rec := range result.Records {
		out.Records = append(out.Records, isochroneRecord{LevelMinutes: rec.Level, Geometry: rec.Geometry})
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Response.Status == types.StatusFailed {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(out)
}
