package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"torb/model"
)

// playlistKey builds the Redis key for a cached playlist.
func playlistKey(playlistID int64) string {
	return fmt.Sprintf("playlist:%d", playlistID)
}

// PlaylistCache is a read-through cache of assembled playlists. Entries
// are invalidated on every mutation; the database stays authoritative.
type PlaylistCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlaylistCache creates a PlaylistCache with the given entry TTL.
func NewPlaylistCache(client *redis.Client, ttl time.Duration) *PlaylistCache {
	return &PlaylistCache{client: client, ttl: ttl}
}

// Get returns the cached playlist, or nil on a miss.
func (c *PlaylistCache) Get(ctx context.Context, playlistID int64) (*model.Playlist, error) {
	if c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, playlistKey(playlistID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached playlist %d: %w", playlistID, err)
	}

	playlist := &model.Playlist{}
	if err := json.Unmarshal(data, playlist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached playlist %d: %w", playlistID, err)
	}
	return playlist, nil
}

// Put stores an assembled playlist.
func (c *PlaylistCache) Put(ctx context.Context, playlist *model.Playlist) error {
	if c.client == nil || playlist == nil {
		return nil
	}

	data, err := json.Marshal(playlist)
	if err != nil {
		return fmt.Errorf("failed to marshal playlist %d: %w", playlist.ID, err)
	}

	if err := c.client.Set(ctx, playlistKey(playlist.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache playlist %d: %w", playlist.ID, err)
	}
	return nil
}

// Invalidate drops the cached entry after a mutation.
func (c *PlaylistCache) Invalidate(ctx context.Context, playlistID int64) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, playlistKey(playlistID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached playlist %d: %w", playlistID, err)
	}
	return nil
}
