package transcode_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"torb/core/transcode"
	"torb/model"
)

type fakeIntakeStore struct {
	created   []*model.Track
	createErr error
	errored   []int64
	nextID    int64
}

func (s *fakeIntakeStore) CreateTrack(track *model.Track) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextID++
	s.created = append(s.created, track)
	return s.nextID, nil
}

func (s *fakeIntakeStore) MarkTrackError(trackID int64) error {
	s.errored = append(s.errored, trackID)
	return nil
}

type fakeScheduler struct {
	jobs       []transcode.Job
	enqueueErr error
}

func (s *fakeScheduler) Enqueue(job transcode.Job) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func validRequest() transcode.UploadRequest {
	return transcode.UploadRequest{
		Title:         "First Light",
		Uploader:      "ada",
		Audio:         strings.NewReader("fake mp3 bytes"),
		AudioFilename: "first-light.mp3",
		Cover:         strings.NewReader("fake jpeg bytes"),
	}
}

func TestIngestRejectsIncompleteUploads(t *testing.T) {
	store := &fakeIntakeStore{}
	intake := transcode.NewIntake(store, &fakeScheduler{}, t.TempDir())

	cases := []struct {
		name   string
		mutate func(*transcode.UploadRequest)
	}{
		{"missing title", func(r *transcode.UploadRequest) { r.Title = "  " }},
		{"missing uploader", func(r *transcode.UploadRequest) { r.Uploader = "" }},
		{"missing audio", func(r *transcode.UploadRequest) { r.Audio = nil }},
		{"missing cover", func(r *transcode.UploadRequest) { r.Cover = nil }},
	}
	for _, tc := range cases {
		req := validRequest()
		tc.mutate(&req)
		if _, err := intake.Ingest(req); !errors.Is(err, transcode.ErrInvalidUpload) {
			t.Fatalf("%s: got %v, want ErrInvalidUpload", tc.name, err)
		}
	}
	if len(store.created) != 0 {
		t.Fatalf("no records should be created for rejected uploads, got %d", len(store.created))
	}
}

func TestIngestStagesFilesAndSchedules(t *testing.T) {
	uploadDir := t.TempDir()
	store := &fakeIntakeStore{}
	scheduler := &fakeScheduler{}
	intake := transcode.NewIntake(store, scheduler, uploadDir)

	receipt, err := intake.Ingest(validRequest())
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if receipt.TrackID != 1 {
		t.Fatalf("unexpected track id %d", receipt.TrackID)
	}
	if receipt.Status != model.StatusProcessing {
		t.Fatalf("receipt status: got %s, want processing", receipt.Status)
	}
	if receipt.UUID == "" {
		t.Fatal("receipt is missing the track uuid")
	}

	stagingDir := filepath.Join(uploadDir, receipt.UUID)
	audioPath := filepath.Join(stagingDir, "original.mp3")
	if data, err := os.ReadFile(audioPath); err != nil {
		t.Fatalf("staged audio missing: %v", err)
	} else if string(data) != "fake mp3 bytes" {
		t.Fatalf("staged audio corrupted: %q", data)
	}
	if _, err := os.Stat(filepath.Join(stagingDir, transcode.CoverFilename)); err != nil {
		t.Fatalf("staged cover missing: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 created record, got %d", len(store.created))
	}
	track := store.created[0]
	if track.Status != model.StatusProcessing {
		t.Fatalf("record status: got %s, want processing", track.Status)
	}
	if track.OriginalPath != audioPath {
		t.Fatalf("record original path: got %q, want %q", track.OriginalPath, audioPath)
	}
	if track.Uploader != "ada" || track.Title != "First Light" {
		t.Fatalf("record metadata mismatch: %+v", track)
	}

	if len(scheduler.jobs) != 1 {
		t.Fatalf("expected 1 scheduled job, got %d", len(scheduler.jobs))
	}
	job := scheduler.jobs[0]
	if job.TrackID != receipt.TrackID || job.UUID != receipt.UUID || job.OriginalPath != audioPath {
		t.Fatalf("scheduled job mismatch: %+v", job)
	}
}

func TestIngestRemovesStagingOnEmptyStream(t *testing.T) {
	uploadDir := t.TempDir()
	store := &fakeIntakeStore{}
	intake := transcode.NewIntake(store, &fakeScheduler{}, uploadDir)

	req := validRequest()
	req.Cover = strings.NewReader("")

	if _, err := intake.Ingest(req); !errors.Is(err, transcode.ErrInvalidUpload) {
		t.Fatalf("got %v, want ErrInvalidUpload for empty cover", err)
	}

	// All-or-nothing: the audio file that was staged first must be gone too.
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("reading upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging directory left behind after failed upload: %v", entries)
	}
	if len(store.created) != 0 {
		t.Fatal("no record should be created for a failed staging")
	}
}

func TestIngestRemovesStagingOnRecordFailure(t *testing.T) {
	uploadDir := t.TempDir()
	store := &fakeIntakeStore{createErr: errors.New("db down")}
	intake := transcode.NewIntake(store, &fakeScheduler{}, uploadDir)

	if _, err := intake.Ingest(validRequest()); err == nil {
		t.Fatal("expected error when record creation fails")
	}

	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("reading upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging directory left behind after record failure: %v", entries)
	}
}

func TestIngestFailsTrackWhenSchedulingFails(t *testing.T) {
	uploadDir := t.TempDir()
	store := &fakeIntakeStore{}
	scheduler := &fakeScheduler{enqueueErr: transcode.ErrShuttingDown}
	intake := transcode.NewIntake(store, scheduler, uploadDir)

	if _, err := intake.Ingest(validRequest()); !errors.Is(err, transcode.ErrShuttingDown) {
		t.Fatalf("got %v, want wrapped ErrShuttingDown", err)
	}

	// The record exists but can never be processed; it must be failed
	// rather than left in processing.
	if len(store.created) != 1 {
		t.Fatalf("expected the record to be created before scheduling, got %d", len(store.created))
	}
	if len(store.errored) != 1 || store.errored[0] != 1 {
		t.Fatalf("expected track 1 to be marked errored, got %v", store.errored)
	}
}

func TestIngestGeneratesDistinctStagingDirs(t *testing.T) {
	uploadDir := t.TempDir()
	store := &fakeIntakeStore{}
	scheduler := &fakeScheduler{}
	intake := transcode.NewIntake(store, scheduler, uploadDir)

	first, err := intake.Ingest(validRequest())
	if err != nil {
		t.Fatalf("first Ingest returned error: %v", err)
	}
	second, err := intake.Ingest(validRequest())
	if err != nil {
		t.Fatalf("second Ingest returned error: %v", err)
	}
	if first.UUID == second.UUID {
		t.Fatalf("uploads must not share a staging identity: %s", first.UUID)
	}
}
