package server

import (
	"net/http"
	"strconv"
	"time"

	"torb/logger"
)

// ChatHistoryHandler returns global chat messages, newest first. The
// `before` query parameter (RFC 3339) pages through older history.
func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := IdentityFromContext(r.Context()); err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		before = &parsed
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	messages, err := h.chatRepo.GetGlobalMessages(r.Context(), before, limit)
	if err != nil {
		logger.Error("failed to load chat history", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to load chat history")
		return
	}

	respondJSON(w, http.StatusOK, messages)
}
