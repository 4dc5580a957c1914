package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"torb/db"
	"torb/model"
)

// ErrNoTransition is returned when a terminal status update matches no
// processing row: the track either does not exist or already reached a
// terminal state. Terminal states are never overwritten.
var ErrNoTransition = errors.New("track is not in processing state")

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTrackByUUID(uuid string) (*model.Track, error)
	GetReadyTracks() ([]*model.Track, error)
	MarkTrackReady(trackID int64, hlsRoot string, duration float32) error
	MarkTrackError(trackID int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, uuid, title, uploader, original_path, cover_filename, hls_root, duration, status, created_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var cover, hlsRoot sql.NullString
	var duration sql.NullFloat64
	var status string
	err := row.Scan(&track.ID, &track.UUID, &track.Title, &track.Uploader, &track.OriginalPath,
		&cover, &hlsRoot, &duration, &status, &track.CreatedAt)
	if err != nil {
		return nil, err
	}
	track.CoverFilename = cover.String
	track.HLSRoot = hlsRoot.String
	track.Duration = float32(duration.Float64)
	track.Status = model.TrackStatus(status)
	return track, nil
}

// CreateTrack adds a new track to the database with status processing and
// no HLS root. The uuid must already be assigned and is never updated.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (uuid, title, uploader, original_path, cover_filename, hls_root, duration, status, created_at)
	           VALUES (?, ?, ?, ?, ?, NULL, NULL, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(track.UUID, track.Title, track.Uploader, track.OriginalPath,
		track.CoverFilename, string(model.StatusProcessing), time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTrackByUUID retrieves a track by its uuid.
func (r *mysqlTrackRepository) GetTrackByUUID(uuid string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE uuid = ?`
	track, err := scanTrack(r.DB.QueryRow(query, uuid))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by uuid %s: %w", uuid, err)
	}
	return track, nil
}

// GetReadyTracks retrieves all tracks whose processing has completed successfully.
func (r *mysqlTrackRepository) GetReadyTracks() ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE status = ? ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, string(model.StatusReady))
	if err != nil {
		return nil, fmt.Errorf("failed to query ready tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetReadyTracks: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetReadyTracks: %w", err)
	}

	return tracks, nil
}

// MarkTrackReady performs the terminal ready transition: status and
// hls_root are updated together in a single statement, guarded so only a
// processing track can transition.
func (r *mysqlTrackRepository) MarkTrackReady(trackID int64, hlsRoot string, duration float32) error {
	if hlsRoot == "" {
		return fmt.Errorf("hls root is required for ready transition on track %d", trackID)
	}
	query := `UPDATE tracks SET status = ?, hls_root = ?, duration = ? WHERE id = ? AND status = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for MarkTrackReady: %w", err)
	}
	defer stmt.Close()

	var dur interface{}
	if duration > 0 {
		dur = duration
	}
	res, err := stmt.Exec(string(model.StatusReady), hlsRoot, dur, trackID, string(model.StatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to execute MarkTrackReady for track ID %d: %w", trackID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for MarkTrackReady: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark track %d ready: %w", trackID, ErrNoTransition)
	}
	return nil
}

// MarkTrackError performs the terminal error transition. hls_root stays
// NULL regardless of how many tiers had completed.
func (r *mysqlTrackRepository) MarkTrackError(trackID int64) error {
	query := `UPDATE tracks SET status = ?, hls_root = NULL WHERE id = ? AND status = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for MarkTrackError: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(string(model.StatusError), trackID, string(model.StatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to execute MarkTrackError for track ID %d: %w", trackID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for MarkTrackError: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark track %d errored: %w", trackID, ErrNoTransition)
	}
	return nil
}
