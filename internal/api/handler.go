// Package api exposes the transform orchestrator over HTTP, grounded on the
// teacher's internal/api/handlers package (stdlib net/http + encoding/json,
// no router dependency).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/transform"
)

// Handler serves the transform engine's HTTP surface.
type Handler struct {
	Orchestrator *transform.Orchestrator
}

func NewHandler(orch *transform.Orchestrator) *Handler {
	return &Handler{Orchestrator: orch}
}

func cors(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// HandleTransform runs a single TransformStep through the orchestrator and
// returns the resulting LoadResult as JSON.
func (h *Handler) HandleTransform(w http.ResponseWriter, r *http.Request) {
	cors(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var step model.TransformStep
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.Orchestrator.Execute(r.Context(), step)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleAutoStrategyTransform runs the C8 auto-selection path and returns
// the resulting LoadResult as JSON.
func (h *Handler) HandleAutoStrategyTransform(w http.ResponseWriter, r *http.Request) {
	cors(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req struct {
		Source model.DataSource  `json:"source"`
		Target string            `json:"target"`
		Pattern *model.LoadPattern `json:"pattern,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.Orchestrator.ExecuteWithAutoStrategy(r.Context(), req.Source, req.Target, req.Pattern)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleHealth is a liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
