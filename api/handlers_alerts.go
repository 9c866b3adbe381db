package api

import (
	"encoding/json"
	"net/http"
)

// handleGetAlerts returns alerts newest first, optionally by status
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := getLimitParam(r)

	alerts, err := s.repo.GetAlerts(status, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
		"status": status,
	})
}

// dismissRequest selects which pending alerts to dismiss. A single id, a
// list, or a full sweep are all accepted.
type dismissRequest struct {
	AlertID    int64   `json:"alert_id"`
	AlertIDs   []int64 `json:"alert_ids"`
	DismissAll bool    `json:"dismiss_all"`
}

// targetIDs merges the single and plural forms into one id list
func (req dismissRequest) targetIDs() []int64 {
	ids := req.AlertIDs
	if req.AlertID != 0 {
		ids = append(ids, req.AlertID)
	}
	return ids
}

// handleDismissAlerts transitions pending alerts to dismissed. Already
// dismissed ids are ignored; the response reports how many changed.
func (s *Server) handleDismissAlerts(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ids := req.targetIDs()
	if !req.DismissAll && len(ids) == 0 {
		respondWithError(w, http.StatusBadRequest, "provide alert_id, alert_ids, or dismiss_all=true", nil)
		return
	}

	var dismissed int64
	var err error
	if req.DismissAll {
		dismissed, err = s.repo.DismissAllPendingAlerts()
	} else {
		dismissed, err = s.repo.DismissAlerts(ids)
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to dismiss alerts", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"dismissed": dismissed,
	})
}
