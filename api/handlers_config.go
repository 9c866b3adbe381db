package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"farmpulse/database"
)

// handleGetWebhooks lists all webhook registrations
func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.repo.ListWebhooks()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list webhooks", err)
		return
	}

	// Never echo stored credentials
	for i := range webhooks {
		webhooks[i].AuthValue = ""
	}

	respondJSON(w, map[string]interface{}{
		"webhooks": webhooks,
		"count":    len(webhooks),
	})
}

// validateWebhook checks the fields a registration cannot work without
func validateWebhook(webhook *database.AlertWebhook) error {
	if webhook.Name == "" {
		return database.NewValidationError("name", "must not be empty")
	}
	if webhook.URL == "" {
		return database.NewValidationError("url", "must not be empty")
	}
	return nil
}

// handleCreateWebhook registers a new webhook
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var webhook database.AlertWebhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validateWebhook(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if webhook.Method == "" {
		webhook.Method = "POST"
	}

	if err := s.repo.CreateWebhook(&webhook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to create webhook", err)
		return
	}
	s.webhookMgr.RefreshCache()

	w.WriteHeader(http.StatusCreated)
	respondJSON(w, webhook)
}

// handleUpdateWebhook replaces a webhook registration
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid webhook id", err)
		return
	}

	var webhook database.AlertWebhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validateWebhook(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	webhook.ID = id

	if err := s.repo.UpdateWebhook(&webhook); err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to update webhook", err)
		return
	}
	s.webhookMgr.RefreshCache()

	respondJSON(w, webhook)
}

// handleDeleteWebhook removes a webhook registration
func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid webhook id", err)
		return
	}

	if err := s.repo.DeleteWebhook(id); err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "webhook not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to delete webhook", err)
		return
	}
	s.webhookMgr.RefreshCache()

	respondJSON(w, map[string]interface{}{"deleted": id})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
