package model

import "time"

// Playlist is a named, ordered collection of tracks owned by a user.
// Shared playlists are readable by every user.
type Playlist struct {
	ID        int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	Owner     string          `json:"owner" gorm:"size:100;index;not null"`
	Name      string          `json:"name" gorm:"size:255;not null"`
	IsShared  bool            `json:"isShared" gorm:"default:false"`
	CreatedAt time.Time       `json:"createdAt"`
	Tracks    []PlaylistTrack `json:"tracks" gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM.
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistTrack is one positioned entry in a playlist. Positions are
// 1-based and contiguous within a playlist.
type PlaylistTrack struct {
	PlaylistID int64 `json:"playlistId" gorm:"primaryKey"`
	TrackID    int64 `json:"trackId" gorm:"primaryKey"`
	Position   int   `json:"position" gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (PlaylistTrack) TableName() string {
	return "playlist_tracks"
}
