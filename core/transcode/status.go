package transcode

import (
	"context"
	"fmt"
	"time"

	"torb/logger"
	"torb/model"
)

// TrackReader is the read-side slice of the store the status tracker uses.
type TrackReader interface {
	GetTrackByID(id int64) (*model.Track, error)
}

// StatusCache caches status views for terminal tracks, whose answers can
// never change again. Implementations may fail freely; the store remains
// the source of truth.
type StatusCache interface {
	Get(ctx context.Context, trackID int64) (*StatusView, error)
	Put(ctx context.Context, view *StatusView) error
}

// StatusView is the polling projection of one track's processing state.
// HLSURL is non-nil exactly when the track is ready.
type StatusView struct {
	TrackID    int64             `json:"track_id"`
	UUID       string            `json:"uuid"`
	Title      string            `json:"title"`
	Uploader   string            `json:"uploader"`
	Status     model.TrackStatus `json:"status"`
	HLSURL     *string           `json:"hls_url"`
	UploadedAt time.Time         `json:"uploaded_at"`
}

// StatusTracker answers status polls. It performs no mutation and does
// not depend on the orchestrator running.
type StatusTracker struct {
	store TrackReader
	cache StatusCache // optional
}

// NewStatusTracker creates a StatusTracker. cache may be nil.
func NewStatusTracker(store TrackReader, cache StatusCache) *StatusTracker {
	return &StatusTracker{store: store, cache: cache}
}

// Status returns the current processing view for a track, or
// ErrTrackNotFound when no record exists for the id.
func (t *StatusTracker) Status(ctx context.Context, trackID int64) (*StatusView, error) {
	if t.cache != nil {
		if view, err := t.cache.Get(ctx, trackID); err != nil {
			logger.Debug("status cache read failed", logger.Int64("trackId", trackID), logger.ErrorField(err))
		} else if view != nil {
			return view, nil
		}
	}

	track, err := t.store.GetTrackByID(trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load track %d: %w", trackID, err)
	}
	if track == nil {
		return nil, fmt.Errorf("track %d: %w", trackID, ErrTrackNotFound)
	}

	view := ViewFromTrack(track)

	// Terminal answers are immutable, so they are safe to cache.
	if t.cache != nil && track.Status.Terminal() {
		if err := t.cache.Put(ctx, view); err != nil {
			logger.Debug("status cache write failed", logger.Int64("trackId", trackID), logger.ErrorField(err))
		}
	}
	return view, nil
}

// ViewFromTrack projects a track record into its status view.
func ViewFromTrack(track *model.Track) *StatusView {
	view := &StatusView{
		TrackID:    track.ID,
		UUID:       track.UUID,
		Title:      track.Title,
		Uploader:   track.Uploader,
		Status:     track.Status,
		UploadedAt: track.CreatedAt,
	}
	if track.Status == model.StatusReady && track.HLSRoot != "" {
		root := track.HLSRoot
		view.HLSURL = &root
	}
	return view
}
