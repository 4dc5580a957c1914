package repository

import (
	"context"
	"errors"
	"fmt"

	"torb/model"

	"gorm.io/gorm"
)

// ErrPlaylistNotFound is returned when a playlist id matches no row.
var ErrPlaylistNotFound = errors.New("playlist not found")

// PlaylistRepository defines data access for playlists and their ordered
// track entries. Positions are 1-based and kept contiguous.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist *model.Playlist) error
	GetByID(ctx context.Context, id int64) (*model.Playlist, error)
	ListVisible(ctx context.Context, username string) ([]*model.Playlist, error)
	Update(ctx context.Context, playlist *model.Playlist) error
	Delete(ctx context.Context, id int64) error

	AddTrack(ctx context.Context, playlistID, trackID int64, position int) error
	RemoveTrack(ctx context.Context, playlistID, trackID int64) error
	MoveTrack(ctx context.Context, playlistID, trackID int64, newPosition int) error
}

// gormPlaylistRepository is the GORM implementation.
type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository creates a GORM playlist repository.
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

// Create inserts a new playlist.
func (r *gormPlaylistRepository) Create(ctx context.Context, playlist *model.Playlist) error {
	return r.db.WithContext(ctx).Create(playlist).Error
}

// GetByID loads a playlist with its entries in position order.
func (r *gormPlaylistRepository) GetByID(ctx context.Context, id int64) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&playlist, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist %d: %w", id, err)
	}
	return &playlist, nil
}

// ListVisible returns the user's own playlists plus all shared ones,
// ordered by name.
func (r *gormPlaylistRepository) ListVisible(ctx context.Context, username string) ([]*model.Playlist, error) {
	var playlists []*model.Playlist
	err := r.db.WithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("owner = ? OR is_shared = ?", username, true).
		Order("name ASC").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists for %s: %w", username, err)
	}
	return playlists, nil
}

// Update persists name and sharing changes.
func (r *gormPlaylistRepository) Update(ctx context.Context, playlist *model.Playlist) error {
	res := r.db.WithContext(ctx).Model(&model.Playlist{}).
		Where("id = ?", playlist.ID).
		Updates(map[string]interface{}{
			"name":      playlist.Name,
			"is_shared": playlist.IsShared,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update playlist %d: %w", playlist.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

// Delete removes a playlist and its entries.
func (r *gormPlaylistRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&model.PlaylistTrack{}).Error; err != nil {
			return fmt.Errorf("failed to delete playlist entries: %w", err)
		}
		res := tx.Delete(&model.Playlist{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete playlist %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPlaylistNotFound
		}
		return nil
	})
}

// AddTrack inserts a track at a 1-based position, shifting later entries
// down. A position past the end appends.
func (r *gormPlaylistRepository) AddTrack(ctx context.Context, playlistID, trackID int64, position int) error {
	if position < 1 {
		return fmt.Errorf("position must be 1-based, got %d", position)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.PlaylistTrack{}).Where("playlist_id = ?", playlistID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count playlist entries: %w", err)
		}
		if position > int(count)+1 {
			position = int(count) + 1
		}

		if err := tx.Model(&model.PlaylistTrack{}).
			Where("playlist_id = ? AND position >= ?", playlistID, position).
			UpdateColumn("position", gorm.Expr("position + 1")).Error; err != nil {
			return fmt.Errorf("failed to shift playlist positions: %w", err)
		}

		entry := &model.PlaylistTrack{PlaylistID: playlistID, TrackID: trackID, Position: position}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to add track %d to playlist %d: %w", trackID, playlistID, err)
		}
		return nil
	})
}

// RemoveTrack deletes an entry and closes the position gap it leaves.
func (r *gormPlaylistRepository) RemoveTrack(ctx context.Context, playlistID, trackID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.PlaylistTrack
		err := tx.Where("playlist_id = ? AND track_id = ?", playlistID, trackID).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlaylistNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load playlist entry: %w", err)
		}

		if err := tx.Where("playlist_id = ? AND track_id = ?", playlistID, trackID).
			Delete(&model.PlaylistTrack{}).Error; err != nil {
			return fmt.Errorf("failed to remove track %d from playlist %d: %w", trackID, playlistID, err)
		}

		if err := tx.Model(&model.PlaylistTrack{}).
			Where("playlist_id = ? AND position > ?", playlistID, entry.Position).
			UpdateColumn("position", gorm.Expr("position - 1")).Error; err != nil {
			return fmt.Errorf("failed to close playlist position gap: %w", err)
		}
		return nil
	})
}

// MoveTrack moves an entry to a new 1-based position, shifting the
// entries between old and new position by one.
func (r *gormPlaylistRepository) MoveTrack(ctx context.Context, playlistID, trackID int64, newPosition int) error {
	if newPosition < 1 {
		return fmt.Errorf("position must be 1-based, got %d", newPosition)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.PlaylistTrack
		err := tx.Where("playlist_id = ? AND track_id = ?", playlistID, trackID).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlaylistNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load playlist entry: %w", err)
		}

		var count int64
		if err := tx.Model(&model.PlaylistTrack{}).Where("playlist_id = ?", playlistID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count playlist entries: %w", err)
		}
		if newPosition > int(count) {
			newPosition = int(count)
		}
		if newPosition == entry.Position {
			return nil
		}

		if newPosition < entry.Position {
			err = tx.Model(&model.PlaylistTrack{}).
				Where("playlist_id = ? AND position >= ? AND position < ?", playlistID, newPosition, entry.Position).
				UpdateColumn("position", gorm.Expr("position + 1")).Error
		} else {
			err = tx.Model(&model.PlaylistTrack{}).
				Where("playlist_id = ? AND position > ? AND position <= ?", playlistID, entry.Position, newPosition).
				UpdateColumn("position", gorm.Expr("position - 1")).Error
		}
		if err != nil {
			return fmt.Errorf("failed to shift playlist positions: %w", err)
		}

		if err := tx.Model(&model.PlaylistTrack{}).
			Where("playlist_id = ? AND track_id = ?", playlistID, trackID).
			UpdateColumn("position", newPosition).Error; err != nil {
			return fmt.Errorf("failed to move track %d in playlist %d: %w", trackID, playlistID, err)
		}
		return nil
	})
}
