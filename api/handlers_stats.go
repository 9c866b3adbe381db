package api

import (
	"net/http"

	"farmpulse/database"
)

// handleListStats returns customer-crop records, optionally filtered by
// activity flag, highest confidence first
func (s *Server) handleListStats(w http.ResponseWriter, r *http.Request) {
	activity := r.URL.Query().Get("activity")
	limit := getLimitParam(r)

	statsList, err := s.repo.ListStats(activity, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list stats", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"stats":    statsList,
		"count":    len(statsList),
		"activity": activity,
	})
}

// handleGetStat returns one customer-crop record by its key
func (s *Server) handleGetStat(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		respondWithError(w, http.StatusBadRequest, "missing stat key", nil)
		return
	}

	stat, err := s.repo.GetStat(key)
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "stat not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load stat", err)
		return
	}

	respondJSON(w, stat)
}

// handleListYieldProfiles returns every crop's yield profile
func (s *Server) handleListYieldProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.repo.ListYieldProfiles()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list yield profiles", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"profiles": profiles,
		"count":    len(profiles),
	})
}
