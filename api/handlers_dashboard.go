package api

import (
	"net/http"

	"farmpulse/database"
)

// handleGetDashboard returns the singleton dashboard snapshot
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.repo.GetDashboard()
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "no dashboard snapshot yet; run the nightly job", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load dashboard", err)
		return
	}

	respondJSON(w, snapshot)
}

// handleGetMonthlySummaries returns all monthly rollups, newest first
func (s *Server) handleGetMonthlySummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.repo.ListMonthlySummaries()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list monthly summaries", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"summaries": summaries,
		"count":     len(summaries),
	})
}

// handleGetSystemState returns the job bookkeeping record alongside the raw
// extent of the primary ledger, so operators can see how far behind the
// last backfill is
func (s *Server) handleGetSystemState(w http.ResponseWriter, r *http.Request) {
	state, err := s.repo.GetSystemState()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load system state", err)
		return
	}

	first, last, err := s.repo.GetLedgerBounds()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to read ledger bounds", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"state": state,
		"ledger": map[string]string{
			"first_order_at": first,
			"last_order_at":  last,
		},
	})
}
