package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SetPresenceHandler records what the caller is currently playing; the
// hub broadcasts the updated roster to everyone connected.
func (h *APIHandler) SetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload struct {
		TrackID string `json:"track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.hub.SetNowPlaying(username, payload.TrackID)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Presence updated for %s.", username),
	})
}

// WebSocketHandler attaches the caller to the presence/chat hub.
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	h.hub.HandleConnection(w, r, username)
}
