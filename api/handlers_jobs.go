package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// handleRunNightly triggers one nightly recompute synchronously. The jobs
// guard themselves with the shared advisory lock, so a concurrent trigger
// comes back with skipped=true instead of double-running.
func (s *Server) handleRunNightly(w http.ResponseWriter, r *http.Request) {
	if s.runNightly == nil {
		respondWithError(w, http.StatusServiceUnavailable, "nightly job not available", nil)
		return
	}

	log.Println("🌙 Nightly recompute triggered via API")
	report, err := s.runNightly(r.Context(), time.Now())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "nightly job failed", err)
		return
	}

	respondJSON(w, report)
}

// handleRunBackfill triggers one full destructive rebuild synchronously
func (s *Server) handleRunBackfill(w http.ResponseWriter, r *http.Request) {
	if s.runBackfill == nil {
		respondWithError(w, http.StatusServiceUnavailable, "backfill job not available", nil)
		return
	}

	log.Println("🔄 Backfill triggered via API")
	report, err := s.runBackfill(r.Context(), time.Now())
	if err != nil {
		// The report still describes partial progress; return it with the error
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":  err.Error(),
			"report": report,
		})
		return
	}

	respondJSON(w, report)
}

// injectOrderRequest names an existing order row to process
type injectOrderRequest struct {
	OrderID int64 `json:"order_id"`
}

// handleInjectOrder processes an order as if the feed had delivered it.
// Useful for replaying a missed envelope without waiting for a backfill.
func (s *Server) handleInjectOrder(w http.ResponseWriter, r *http.Request) {
	var req injectOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == 0 {
		respondWithError(w, http.StatusBadRequest, "provide order_id", err)
		return
	}

	result, err := s.orderHandler.ProcessOrderID(req.OrderID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "order processing failed", err)
		return
	}

	respondJSON(w, result)
}

// injectHarvestRequest names an existing harvest row to process
type injectHarvestRequest struct {
	HarvestID int64 `json:"harvest_id"`
}

// handleInjectHarvest processes a harvest as if the feed had delivered it
func (s *Server) handleInjectHarvest(w http.ResponseWriter, r *http.Request) {
	var req injectHarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HarvestID == 0 {
		respondWithError(w, http.StatusBadRequest, "provide harvest_id", err)
		return
	}

	result, err := s.harvestHandler.ProcessHarvestID(req.HarvestID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "harvest processing failed", err)
		return
	}

	respondJSON(w, result)
}
