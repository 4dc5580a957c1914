package server

import (
	"encoding/json"
	"net/http"

	"torb/logger"
	"torb/model"
)

type preferencePayload struct {
	Theme          string   `json:"theme"`
	MutedUploaders []string `json:"muted_uploaders"`
}

// GetPreferencesHandler returns the caller's stored preferences, or the
// defaults when none exist yet.
func (h *APIHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	pref, err := h.prefRepo.Get(r.Context(), username)
	if err != nil {
		logger.Error("failed to load preferences", logger.String("username", username), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}

	payload := preferencePayload{Theme: model.DefaultTheme, MutedUploaders: []string{}}
	if pref != nil {
		payload.Theme = pref.Theme
		if pref.MutedUploaders != nil {
			payload.MutedUploaders = pref.MutedUploaders
		}
	}

	respondJSON(w, http.StatusOK, payload)
}

// UpdatePreferencesHandler creates or replaces the caller's preferences.
func (h *APIHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload preferencePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Theme == "" {
		respondError(w, http.StatusBadRequest, "theme is required")
		return
	}

	pref := &model.UserPreference{
		Username:       username,
		Theme:          payload.Theme,
		MutedUploaders: payload.MutedUploaders,
	}
	if err := h.prefRepo.Upsert(r.Context(), pref); err != nil {
		logger.Error("failed to save preferences", logger.String("username", username), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	if pref.MutedUploaders == nil {
		payload.MutedUploaders = []string{}
	}
	respondJSON(w, http.StatusOK, payload)
}
