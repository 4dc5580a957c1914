package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"torb/core/transcode"
)

// statusKey builds the Redis key for a track's cached status view.
func statusKey(trackID int64) string {
	return fmt.Sprintf("track:status:%d", trackID)
}

// TrackStatusCache stores status views for tracks that reached a terminal
// state, so repeated polls of finished tracks skip the database. Only
// terminal views may be stored; processing answers can still change.
type TrackStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrackStatusCache creates a TrackStatusCache with the given snapshot TTL.
func NewTrackStatusCache(client *redis.Client, ttl time.Duration) *TrackStatusCache {
	return &TrackStatusCache{client: client, ttl: ttl}
}

// Get returns the cached view for a track, or nil on a miss.
func (c *TrackStatusCache) Get(ctx context.Context, trackID int64) (*transcode.StatusView, error) {
	if c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, statusKey(trackID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached status for track %d: %w", trackID, err)
	}

	view := &transcode.StatusView{}
	if err := json.Unmarshal(data, view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached status for track %d: %w", trackID, err)
	}
	return view, nil
}

// Put stores a terminal status view. Non-terminal views are ignored.
func (c *TrackStatusCache) Put(ctx context.Context, view *transcode.StatusView) error {
	if c.client == nil || view == nil {
		return nil
	}
	if !view.Status.Terminal() {
		return nil
	}

	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal status for track %d: %w", view.TrackID, err)
	}

	if err := c.client.Set(ctx, statusKey(view.TrackID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache status for track %d: %w", view.TrackID, err)
	}
	return nil
}
