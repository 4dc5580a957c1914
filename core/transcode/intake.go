package transcode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"torb/logger"
	"torb/model"
)

// CoverFilename is the fixed name the cover image is staged under.
const CoverFilename = "cover.jpg"

// IntakeStore is the slice of the track store intake needs. The error
// transition is only used when a staged track cannot be scheduled.
type IntakeStore interface {
	CreateTrack(track *model.Track) (int64, error)
	MarkTrackError(trackID int64) error
}

// Scheduler hands a staged job to the orchestrator without blocking on
// the transcode itself.
type Scheduler interface {
	Enqueue(job Job) error
}

// UploadRequest carries one upload: metadata plus the two byte streams.
// Uploader must arrive already resolved to an identity string.
type UploadRequest struct {
	Title         string
	Uploader      string
	Audio         io.Reader
	AudioFilename string // original client filename; only its extension is kept
	Cover         io.Reader
}

// UploadReceipt is what the caller gets back immediately: the created
// record's ids and its initial status.
type UploadReceipt struct {
	TrackID int64             `json:"track_id"`
	UUID    string            `json:"uuid"`
	Title   string            `json:"title"`
	Status  model.TrackStatus `json:"status"`
}

// Intake validates and durably stages an upload, creates the initial
// track record and schedules the transcode job. Staging is all-or-nothing:
// any I/O failure removes the partial staging directory and no record is
// created.
type Intake struct {
	store     IntakeStore
	scheduler Scheduler
	uploadDir string
}

// NewIntake creates an Intake staging into uploadDir.
func NewIntake(store IntakeStore, scheduler Scheduler, uploadDir string) *Intake {
	return &Intake{store: store, scheduler: scheduler, uploadDir: uploadDir}
}

// Ingest processes one upload and returns as soon as the job is staged
// and scheduled; the transcode result is observable only via status polls.
func (i *Intake) Ingest(req UploadRequest) (*UploadReceipt, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("title is required: %w", ErrInvalidUpload)
	}
	if strings.TrimSpace(req.Uploader) == "" {
		return nil, fmt.Errorf("uploader identity is required: %w", ErrInvalidUpload)
	}
	if req.Audio == nil || req.Cover == nil {
		return nil, fmt.Errorf("audio and cover streams are required: %w", ErrInvalidUpload)
	}

	trackUUID := uuid.NewString()
	stagingDir := filepath.Join(i.uploadDir, trackUUID)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", stagingDir, err)
	}

	originalName := "original" + filepath.Ext(req.AudioFilename)
	originalPath := filepath.Join(stagingDir, originalName)

	if err := i.stageFile(originalPath, req.Audio); err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}
	if err := i.stageFile(filepath.Join(stagingDir, CoverFilename), req.Cover); err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}

	track := &model.Track{
		UUID:          trackUUID,
		Title:         req.Title,
		Uploader:      req.Uploader,
		OriginalPath:  originalPath,
		CoverFilename: CoverFilename,
		Status:        model.StatusProcessing,
	}
	trackID, err := i.store.CreateTrack(track)
	if err != nil {
		os.RemoveAll(stagingDir)
		return nil, fmt.Errorf("failed to create track record: %w", err)
	}

	job := Job{TrackID: trackID, UUID: trackUUID, OriginalPath: originalPath}
	if err := i.scheduler.Enqueue(job); err != nil {
		// The record exists but will never be processed; fail it rather
		// than leaving it in processing forever.
		if markErr := i.store.MarkTrackError(trackID); markErr != nil {
			logger.Error("failed to mark unscheduled track errored",
				logger.Int64("trackId", trackID),
				logger.ErrorField(markErr),
			)
		}
		return nil, fmt.Errorf("failed to schedule transcode for track %d: %w", trackID, err)
	}

	logger.Info("upload staged",
		logger.Int64("trackId", trackID),
		logger.String("uuid", trackUUID),
		logger.String("uploader", req.Uploader),
		logger.String("title", req.Title),
	)

	return &UploadReceipt{
		TrackID: trackID,
		UUID:    trackUUID,
		Title:   req.Title,
		Status:  model.StatusProcessing,
	}, nil
}

// stageFile writes src byte-for-byte to dst and syncs it to disk. An
// empty stream is rejected as an invalid upload.
func (i *Intake) stageFile(dst string, src io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create staged file %s: %w", dst, err)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write staged file %s: %w", dst, err)
	}
	if n == 0 {
		f.Close()
		return fmt.Errorf("uploaded file %s is empty: %w", filepath.Base(dst), ErrInvalidUpload)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync staged file %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close staged file %s: %w", dst, err)
	}
	return nil
}
