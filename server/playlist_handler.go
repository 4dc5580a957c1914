package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"torb/logger"
	"torb/model"
	"torb/repository"
)

type playlistCreateRequest struct {
	Name     string `json:"name"`
	IsShared bool   `json:"isShared"`
}

type playlistUpdateRequest struct {
	Name     *string `json:"name"`
	IsShared *bool   `json:"isShared"`
}

type playlistTrackRequest struct {
	TrackID  int64 `json:"trackId"`
	Position int   `json:"position"`
}

// CreatePlaylistHandler creates a playlist owned by the caller.
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req playlistCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "Playlist name is required")
		return
	}

	playlist := &model.Playlist{Name: req.Name, IsShared: req.IsShared, Owner: username}
	if err := h.playlistRepo.Create(r.Context(), playlist); err != nil {
		logger.Error("failed to create playlist", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to create playlist")
		return
	}
	playlist.Tracks = []model.PlaylistTrack{}

	respondJSON(w, http.StatusCreated, playlist)
}

// GetPlaylistsHandler lists the caller's playlists plus shared ones.
func (h *APIHandler) GetPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlists, err := h.playlistRepo.ListVisible(r.Context(), username)
	if err != nil {
		logger.Error("failed to list playlists", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list playlists")
		return
	}

	respondJSON(w, http.StatusOK, playlists)
}

// loadPlaylistForRead fetches a playlist through the cache and enforces
// read visibility: owner or shared.
func (h *APIHandler) loadPlaylistForRead(r *http.Request, username string) (*model.Playlist, int, string) {
	playlistID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest, "Invalid playlist id"
	}

	if h.playlistCache != nil {
		if cached, err := h.playlistCache.Get(r.Context(), playlistID); err != nil {
			logger.Debug("playlist cache read failed", logger.Int64("playlistId", playlistID), logger.ErrorField(err))
		} else if cached != nil {
			if cached.Owner != username && !cached.IsShared {
				return nil, http.StatusForbidden, "Not enough permissions"
			}
			return cached, 0, ""
		}
	}

	playlist, err := h.playlistRepo.GetByID(r.Context(), playlistID)
	if errors.Is(err, repository.ErrPlaylistNotFound) {
		return nil, http.StatusNotFound, "Playlist not found"
	}
	if err != nil {
		logger.Error("failed to load playlist", logger.Int64("playlistId", playlistID), logger.ErrorField(err))
		return nil, http.StatusInternalServerError, "Failed to load playlist"
	}
	if playlist.Owner != username && !playlist.IsShared {
		return nil, http.StatusForbidden, "Not enough permissions"
	}

	if h.playlistCache != nil {
		if err := h.playlistCache.Put(r.Context(), playlist); err != nil {
			logger.Debug("playlist cache write failed", logger.Int64("playlistId", playlistID), logger.ErrorField(err))
		}
	}
	return playlist, 0, ""
}

// loadPlaylistForWrite fetches a playlist and enforces owner-only writes.
func (h *APIHandler) loadPlaylistForWrite(r *http.Request, username string) (*model.Playlist, int, string) {
	playlistID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest, "Invalid playlist id"
	}

	playlist, err := h.playlistRepo.GetByID(r.Context(), playlistID)
	if errors.Is(err, repository.ErrPlaylistNotFound) {
		return nil, http.StatusNotFound, "Playlist not found"
	}
	if err != nil {
		logger.Error("failed to load playlist", logger.Int64("playlistId", playlistID), logger.ErrorField(err))
		return nil, http.StatusInternalServerError, "Failed to load playlist"
	}
	if playlist.Owner != username {
		return nil, http.StatusForbidden, "Only the owner can modify the playlist"
	}
	return playlist, 0, ""
}

// GetPlaylistHandler returns one playlist with its ordered entries.
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlist, status, detail := h.loadPlaylistForRead(r, username)
	if playlist == nil {
		respondError(w, status, detail)
		return
	}
	respondJSON(w, http.StatusOK, playlist)
}

// UpdatePlaylistHandler renames or reshapes sharing of a playlist.
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlist, status, detail := h.loadPlaylistForWrite(r, username)
	if playlist == nil {
		respondError(w, status, detail)
		return
	}

	var req playlistUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != nil {
		playlist.Name = *req.Name
	}
	if req.IsShared != nil {
		playlist.IsShared = *req.IsShared
	}

	if err := h.playlistRepo.Update(r.Context(), playlist); err != nil {
		logger.Error("failed to update playlist", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to update playlist")
		return
	}
	h.invalidatePlaylist(r, playlist.ID)

	respondJSON(w, http.StatusOK, playlist)
}

// DeletePlaylistHandler deletes a playlist and its entries.
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlist, status, detail := h.loadPlaylistForWrite(r, username)
	if playlist == nil {
		respondError(w, status, detail)
		return
	}

	if err := h.playlistRepo.Delete(r.Context(), playlist.ID); err != nil {
		logger.Error("failed to delete playlist", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete playlist")
		return
	}
	h.invalidatePlaylist(r, playlist.ID)

	w.WriteHeader(http.StatusNoContent)
}

// AddPlaylistTrackHandler inserts a track at a 1-based position.
func (h *APIHandler) AddPlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlist, status, detail := h.loadPlaylistForWrite(r, username)
	if playlist == nil {
		respondError(w, status, detail)
		return
	}

	var req playlistTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == 0 {
		respondError(w, http.StatusBadRequest, "trackId is required")
		return
	}
	if req.Position < 1 {
		req.Position = len(playlist.Tracks) + 1
	}

	if track, err := h.trackRepo.GetTrackByID(req.TrackID); err != nil || track == nil {
		respondError(w, http.StatusNotFound, "Track not found")
		return
	}

	if err := h.playlistRepo.AddTrack(r.Context(), playlist.ID, req.TrackID, req.Position); err != nil {
		logger.Error("failed to add playlist track", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to add track to playlist")
		return
	}
	h.invalidatePlaylist(r, playlist.ID)

	w.WriteHeader(http.StatusNoContent)
}

// RemovePlaylistTrackHandler removes an entry and closes the gap.
func (h *APIHandler) RemovePlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlist, status, detail := h.loadPlaylistForWrite(r, username)
	if playlist == nil {
		respondError(w, status, detail)
		return
	}

	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	if err := h.playlistRepo.RemoveTrack(r.Context(), playlist.ID, trackID); err != nil {
		if errors.Is(err, repository.ErrPlaylistNotFound) {
			respondError(w, http.StatusNotFound, "Track not in playlist")
			return
		}
		logger.Error("failed to remove playlist track", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to remove track from playlist")
		return
	}
	h.invalidatePlaylist(r, playlist.ID)

	w.WriteHeader(http.StatusNoContent)
}

// MovePlaylistTrackHandler moves an entry to a new 1-based position.
func (h *APIHandler) MovePlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlist, status, detail := h.loadPlaylistForWrite(r, username)
	if playlist == nil {
		respondError(w, status, detail)
		return
	}

	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position < 1 {
		respondError(w, http.StatusBadRequest, "position must be a positive integer")
		return
	}

	if err := h.playlistRepo.MoveTrack(r.Context(), playlist.ID, trackID, req.Position); err != nil {
		if errors.Is(err, repository.ErrPlaylistNotFound) {
			respondError(w, http.StatusNotFound, "Track not in playlist")
			return
		}
		logger.Error("failed to move playlist track", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to reorder playlist")
		return
	}
	h.invalidatePlaylist(r, playlist.ID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) invalidatePlaylist(r *http.Request, playlistID int64) {
	if h.playlistCache == nil {
		return
	}
	if err := h.playlistCache.Invalidate(r.Context(), playlistID); err != nil {
		logger.Debug("playlist cache invalidation failed", logger.Int64("playlistId", playlistID), logger.ErrorField(err))
	}
}
