package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"torb/cache"
	"torb/config"
	"torb/core/presence"
	"torb/core/transcode"
	"torb/logger"
	"torb/model"
	"torb/repository"
)

// maxUploadBytes caps one multipart upload request.
const maxUploadBytes = 100 << 20 // 100MB

// APIHandler wires the HTTP surface to the pipeline and the repositories.
type APIHandler struct {
	cfg *config.Config

	intake        *transcode.Intake
	statusTracker *transcode.StatusTracker
	orchestrator  *transcode.Orchestrator

	trackRepo    repository.TrackRepository
	playlistRepo repository.PlaylistRepository
	chatRepo     repository.ChatRepository
	prefRepo     repository.PreferenceRepository

	playlistCache *cache.PlaylistCache
	hub           *presence.Hub
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	cfg *config.Config,
	intake *transcode.Intake,
	statusTracker *transcode.StatusTracker,
	orchestrator *transcode.Orchestrator,
	trackRepo repository.TrackRepository,
	playlistRepo repository.PlaylistRepository,
	chatRepo repository.ChatRepository,
	prefRepo repository.PreferenceRepository,
	playlistCache *cache.PlaylistCache,
	hub *presence.Hub,
) *APIHandler {
	return &APIHandler{
		cfg:           cfg,
		intake:        intake,
		statusTracker: statusTracker,
		orchestrator:  orchestrator,
		trackRepo:     trackRepo,
		playlistRepo:  playlistRepo,
		chatRepo:      chatRepo,
		prefRepo:      prefRepo,
		playlistCache: playlistCache,
		hub:           hub,
	}
}

// UploadTrackHandler accepts a multipart upload (title, file, cover),
// stages it and schedules transcoding. It answers as soon as the job is
// queued; clients learn the outcome by polling the status endpoint.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse upload form: %v", err))
		return
	}

	title := r.FormValue("title")

	audioFile, audioHeader, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer audioFile.Close()

	coverFile, _, err := r.FormFile("cover")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Cover image is required")
		return
	}
	defer coverFile.Close()

	receipt, err := h.intake.Ingest(transcode.UploadRequest{
		Title:         title,
		Uploader:      username,
		Audio:         audioFile,
		AudioFilename: audioHeader.Filename,
		Cover:         coverFile,
	})
	if err != nil {
		if errors.Is(err, transcode.ErrInvalidUpload) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("upload intake failed",
			logger.String("uploader", username),
			logger.ErrorField(err),
		)
		respondError(w, http.StatusInternalServerError, "Failed to save uploaded files")
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

// UploadStatusHandler answers status polls for one track.
func (h *APIHandler) UploadStatusHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	view, err := h.statusTracker.Status(r.Context(), trackID)
	if err != nil {
		if errors.Is(err, transcode.ErrTrackNotFound) {
			respondError(w, http.StatusNotFound, "Track not found")
			return
		}
		logger.Error("status lookup failed", logger.Int64("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to load track status")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// trackListItem is one entry in the track listing.
type trackListItem struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	CoverURL string  `json:"cover_url,omitempty"`
	Duration float32 `json:"duration,omitempty"`
}

// GetTracksHandler lists ready tracks, filtered by the caller's muted
// uploaders preference.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	username, err := IdentityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	muted := map[string]bool{}
	if pref, err := h.prefRepo.Get(r.Context(), username); err != nil {
		logger.Warn("failed to load preferences", logger.String("username", username), logger.ErrorField(err))
	} else if pref != nil {
		for _, uploader := range pref.MutedUploaders {
			muted[uploader] = true
		}
	}

	tracks, err := h.trackRepo.GetReadyTracks()
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list tracks")
		return
	}

	items := make([]trackListItem, 0, len(tracks))
	for _, track := range tracks {
		if muted[track.Uploader] {
			continue
		}
		item := trackListItem{
			ID:       track.ID,
			Title:    track.Title,
			Uploader: track.Uploader,
			Duration: track.Duration,
		}
		if track.CoverFilename != "" {
			item.CoverURL = fmt.Sprintf("/uploads/%s/%s", track.UUID, track.CoverFilename)
		}
		items = append(items, item)
	}

	respondJSON(w, http.StatusOK, items)
}

// StreamMasterHandler serves a ready track's master playlist.
func (h *APIHandler) StreamMasterHandler(w http.ResponseWriter, r *http.Request) {
	trackUUID := mux.Vars(r)["track_uuid"]

	track, err := h.trackRepo.GetTrackByUUID(trackUUID)
	if err != nil {
		logger.Error("failed to load track", logger.String("uuid", trackUUID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to load track")
		return
	}
	if track == nil || track.Status != model.StatusReady || track.HLSRoot == "" {
		respondError(w, http.StatusNotFound, "Track not found or not ready")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	http.ServeFile(w, r, filepath.Join(track.HLSRoot, transcode.MasterPlaylistName))
}
