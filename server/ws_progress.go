package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"torb/core/transcode"
	"torb/logger"
)

var progressUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressEvent is one message on the transcode progress feed.
type progressEvent struct {
	Type    string                `json:"type"` // "segment" or "status"
	Tier    string                `json:"tier,omitempty"`
	Segment string                `json:"segment,omitempty"`
	Status  *transcode.StatusView `json:"status,omitempty"`
}

// TranscodeProgressHandler streams live transcode progress for one track
// over a websocket: a "segment" event as each segment file appears, and a
// final "status" event once the job reaches a terminal state.
func (h *APIHandler) TranscodeProgressHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil || track == nil {
		respondError(w, http.StatusNotFound, "Track not found")
		return
	}

	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("progress websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// Already finished: one final status event and done.
	if track.Status.Terminal() {
		conn.WriteJSON(progressEvent{Type: "status", Status: transcode.ViewFromTrack(track)})
		return
	}

	hlsRoot := filepath.Join(h.cfg.MediaDir, track.UUID)
	if err := os.MkdirAll(hlsRoot, 0755); err != nil {
		logger.Warn("failed to ensure media directory for progress feed", logger.ErrorField(err))
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create progress watcher", logger.ErrorField(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(hlsRoot); err != nil {
		logger.Error("failed to watch media directory", logger.ErrorField(err))
		return
	}
	// Tier directories may already exist if encoding started before we did.
	if entries, err := os.ReadDir(hlsRoot); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				watcher.Add(filepath.Join(hlsRoot, entry.Name()))
			}
		}
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				// A new tier directory; watch it for segments.
				watcher.Add(event.Name)
				continue
			}
			if !strings.HasSuffix(event.Name, ".ts") || seen[event.Name] {
				continue
			}
			seen[event.Name] = true

			tier := filepath.Base(filepath.Dir(event.Name))
			if err := conn.WriteJSON(progressEvent{
				Type:    "segment",
				Tier:    tier,
				Segment: filepath.Base(event.Name),
			}); err != nil {
				return
			}

		case err := <-watcher.Errors:
			logger.Warn("progress watcher error", logger.ErrorField(err))

		case <-ticker.C:
			current, err := h.trackRepo.GetTrackByID(trackID)
			if err != nil || current == nil {
				return
			}
			if current.Status.Terminal() {
				conn.WriteJSON(progressEvent{Type: "status", Status: transcode.ViewFromTrack(current)})
				return
			}
		}
	}
}
