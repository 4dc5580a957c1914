package transcode_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"torb/core/transcode"
	"torb/model"
)

// memStore is an in-memory TrackStore that enforces the one-way terminal
// transition the way the SQL repository does.
type memStore struct {
	mu       sync.Mutex
	statuses map[int64]model.TrackStatus
	hlsRoots map[int64]string
}

func newMemStore(ids ...int64) *memStore {
	s := &memStore{
		statuses: make(map[int64]model.TrackStatus),
		hlsRoots: make(map[int64]string),
	}
	for _, id := range ids {
		s.statuses[id] = model.StatusProcessing
	}
	return s
}

func (s *memStore) MarkTrackReady(trackID int64, hlsRoot string, duration float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[trackID] != model.StatusProcessing {
		return fmt.Errorf("track %d is already terminal", trackID)
	}
	s.statuses[trackID] = model.StatusReady
	s.hlsRoots[trackID] = hlsRoot
	return nil
}

func (s *memStore) MarkTrackError(trackID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[trackID] != model.StatusProcessing {
		return fmt.Errorf("track %d is already terminal", trackID)
	}
	s.statuses[trackID] = model.StatusError
	return nil
}

func (s *memStore) status(trackID int64) model.TrackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[trackID]
}

func (s *memStore) hlsRoot(trackID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hlsRoots[trackID]
}

// fakeEncoder records tier requests and writes the artifacts a real
// encoder would leave behind. failOn fails that bitrate; onCall, when
// set, runs after recording and its error short-circuits the tier.
type fakeEncoder struct {
	mu     sync.Mutex
	calls  []transcode.TierRequest
	failOn string
	onCall func(ctx context.Context, req transcode.TierRequest) error
}

func (e *fakeEncoder) EncodeTier(ctx context.Context, req transcode.TierRequest) error {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()

	if e.onCall != nil {
		if err := e.onCall(ctx, req); err != nil {
			return err
		}
	}
	if e.failOn == req.Bitrate {
		return &transcode.CommandError{
			Command: []string{"ffmpeg", "-b:a", req.Bitrate},
			Stderr:  "simulated encoder failure",
			Err:     errors.New("exit status 1"),
		}
	}

	playlist := filepath.Join(req.OutputDir, transcode.TierPlaylistName)
	if err := os.WriteFile(playlist, []byte("#EXTM3U\n"), 0644); err != nil {
		return err
	}
	segment := filepath.Join(req.OutputDir, fmt.Sprintf(transcode.SegmentPattern, 0))
	return os.WriteFile(segment, []byte("ts"), 0644)
}

func (e *fakeEncoder) recorded() []transcode.TierRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]transcode.TierRequest, len(e.calls))
	copy(out, e.calls)
	return out
}

func testLadder(t *testing.T) []transcode.Tier {
	t.Helper()
	ladder, err := transcode.ParseLadder([]string{"64k", "128k", "256k"})
	if err != nil {
		t.Fatalf("ParseLadder returned error: %v", err)
	}
	return ladder
}

func waitTerminal(t *testing.T, store *memStore, trackID int64) model.TrackStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := store.status(trackID); st.Terminal() {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("track %d never reached a terminal status", trackID)
	return ""
}

func TestOrchestratorHappyPath(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(1)
	encoder := &fakeEncoder{}

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir:    mediaDir,
		Ladder:      testLadder(t),
		SegmentTime: "10",
		Workers:     2,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	job := transcode.Job{TrackID: 1, UUID: "uuid-1", OriginalPath: "/tmp/in.mp3"}
	if err := orc.Enqueue(job); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if st := waitTerminal(t, store, 1); st != model.StatusReady {
		t.Fatalf("expected ready, got %s", st)
	}

	wantRoot := filepath.Join(mediaDir, "uuid-1")
	if store.hlsRoot(1) != wantRoot {
		t.Fatalf("hls root: got %q, want %q", store.hlsRoot(1), wantRoot)
	}
	if _, err := os.Stat(filepath.Join(wantRoot, transcode.MasterPlaylistName)); err != nil {
		t.Fatalf("master playlist missing: %v", err)
	}

	calls := encoder.recorded()
	if len(calls) != 3 {
		t.Fatalf("expected 3 tier encodes, got %d", len(calls))
	}
	wantOrder := []string{"64k", "128k", "256k"}
	for i, call := range calls {
		if call.Bitrate != wantOrder[i] {
			t.Fatalf("tier %d encoded out of order: got %s, want %s", i, call.Bitrate, wantOrder[i])
		}
		if call.SegmentTime != "10" {
			t.Fatalf("tier %d: unexpected segment time %q", i, call.SegmentTime)
		}
		if call.OutputDir != filepath.Join(wantRoot, call.Bitrate) {
			t.Fatalf("tier %d: unexpected output dir %q", i, call.OutputDir)
		}
		if _, err := os.Stat(filepath.Join(call.OutputDir, transcode.TierPlaylistName)); err != nil {
			t.Fatalf("tier %d playlist missing: %v", i, err)
		}
	}
}

func TestOrchestratorTierFailureAbortsJob(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(7)
	encoder := &fakeEncoder{failOn: "128k"}

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir: mediaDir,
		Ladder:   testLadder(t),
		Workers:  1,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	if err := orc.Enqueue(transcode.Job{TrackID: 7, UUID: "uuid-7", OriginalPath: "/tmp/in.mp3"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if st := waitTerminal(t, store, 7); st != model.StatusError {
		t.Fatalf("expected error status, got %s", st)
	}

	// The failing tier aborts the job: 256k is never attempted and no
	// master playlist is written.
	calls := encoder.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected 2 tier encodes before abort, got %d", len(calls))
	}
	master := filepath.Join(mediaDir, "uuid-7", transcode.MasterPlaylistName)
	if _, err := os.Stat(master); !os.IsNotExist(err) {
		t.Fatalf("master playlist should not exist after failure, stat err: %v", err)
	}
	if store.hlsRoot(7) != "" {
		t.Fatalf("hls root should not be recorded for a failed job, got %q", store.hlsRoot(7))
	}
}

func TestOrchestratorJobsAreIndependent(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(1, 2, 3)
	encoder := &fakeEncoder{}

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir: mediaDir,
		Ladder:   testLadder(t),
		Workers:  3,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	for i := int64(1); i <= 3; i++ {
		job := transcode.Job{TrackID: i, UUID: fmt.Sprintf("uuid-%d", i), OriginalPath: "/tmp/in.mp3"}
		if err := orc.Enqueue(job); err != nil {
			t.Fatalf("Enqueue job %d returned error: %v", i, err)
		}
	}

	for i := int64(1); i <= 3; i++ {
		if st := waitTerminal(t, store, i); st != model.StatusReady {
			t.Fatalf("track %d: expected ready, got %s", i, st)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for orc.ActiveJobs() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected no active jobs after completion, got %d", orc.ActiveJobs())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestratorMixedOutcomesStayIndependent(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(1, 2)

	// Failure is keyed on the input so a broken upload and a healthy one
	// can run side by side.
	encoder := &fakeEncoder{}
	encoder.onCall = func(ctx context.Context, req transcode.TierRequest) error {
		if strings.HasSuffix(req.InputPath, "bad.mp3") {
			return &transcode.CommandError{
				Command: []string{"ffmpeg", "-i", req.InputPath},
				Stderr:  "simulated encoder failure",
				Err:     errors.New("exit status 1"),
			}
		}
		return nil
	}

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir: mediaDir,
		Ladder:   testLadder(t),
		Workers:  2,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	if err := orc.Enqueue(transcode.Job{TrackID: 1, UUID: "uuid-good", OriginalPath: "/tmp/good.mp3"}); err != nil {
		t.Fatalf("Enqueue good job returned error: %v", err)
	}
	if err := orc.Enqueue(transcode.Job{TrackID: 2, UUID: "uuid-bad", OriginalPath: "/tmp/bad.mp3"}); err != nil {
		t.Fatalf("Enqueue bad job returned error: %v", err)
	}

	if st := waitTerminal(t, store, 1); st != model.StatusReady {
		t.Fatalf("good track: expected ready, got %s", st)
	}
	if st := waitTerminal(t, store, 2); st != model.StatusError {
		t.Fatalf("bad track: expected error, got %s", st)
	}

	goodRoot := filepath.Join(mediaDir, "uuid-good")
	if store.hlsRoot(1) != goodRoot {
		t.Fatalf("good track hls root: got %q, want %q", store.hlsRoot(1), goodRoot)
	}
	if _, err := os.Stat(filepath.Join(goodRoot, transcode.MasterPlaylistName)); err != nil {
		t.Fatalf("good track master playlist missing: %v", err)
	}
	if store.hlsRoot(2) != "" {
		t.Fatalf("bad track must have no hls root, got %q", store.hlsRoot(2))
	}
	badMaster := filepath.Join(mediaDir, "uuid-bad", transcode.MasterPlaylistName)
	if _, err := os.Stat(badMaster); !os.IsNotExist(err) {
		t.Fatalf("bad track master playlist should not exist, stat err: %v", err)
	}
}

func TestOrchestratorStopCancelsRunningJob(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(9)

	started := make(chan struct{}, 1)
	encoder := &fakeEncoder{}
	encoder.onCall = func(ctx context.Context, req transcode.TierRequest) error {
		select {
		case started <- struct{}{}:
		default:
		}
		// Hold the tier open until the orchestrator is cancelled, like a
		// long ffmpeg run being killed.
		<-ctx.Done()
		return ctx.Err()
	}

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir: mediaDir,
		Ladder:   testLadder(t),
		Workers:  1,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()

	if err := orc.Enqueue(transcode.Job{TrackID: 9, UUID: "uuid-9", OriginalPath: "/tmp/in.mp3"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	<-started
	orc.Stop()

	if st := store.status(9); st != model.StatusError {
		t.Fatalf("expected error after cancellation, got %s", st)
	}
	if calls := encoder.recorded(); len(calls) != 1 {
		t.Fatalf("remaining tiers should be skipped after cancellation, got %d encodes", len(calls))
	}

	if err := orc.Enqueue(transcode.Job{TrackID: 10}); !errors.Is(err, transcode.ErrShuttingDown) {
		t.Fatalf("Enqueue after Stop: got %v, want ErrShuttingDown", err)
	}
}

func TestOrchestratorStopDrainsQueuedJobs(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(1, 2, 3)

	started := make(chan struct{}, 1)
	encoder := &fakeEncoder{}
	encoder.onCall = func(ctx context.Context, req transcode.TierRequest) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}

	// A single worker: job 1 occupies it while 2 and 3 sit in the queue.
	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir:   mediaDir,
		Ladder:     testLadder(t),
		Workers:    1,
		QueueDepth: 8,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()

	for i := int64(1); i <= 3; i++ {
		job := transcode.Job{TrackID: i, UUID: fmt.Sprintf("uuid-%d", i), OriginalPath: "/tmp/in.mp3"}
		if err := orc.Enqueue(job); err != nil {
			t.Fatalf("Enqueue job %d returned error: %v", i, err)
		}
	}

	<-started
	orc.Stop()

	// Jobs 2 and 3 never ran; they must still end in error so no record is
	// left in processing forever.
	for i := int64(1); i <= 3; i++ {
		if st := store.status(i); st != model.StatusError {
			t.Fatalf("track %d: expected error after shutdown, got %s", i, st)
		}
	}
}

func TestOrchestratorEnqueueRacingStopLeavesNoJobInProcessing(t *testing.T) {
	// Enqueue and Stop race repeatedly on an orchestrator whose workers
	// never start, so a queued job can only reach a terminal state through
	// a drain. Whatever the interleaving, the record must not stay in
	// processing.
	for i := 0; i < 50; i++ {
		store := newMemStore(1)
		orc, err := transcode.NewOrchestrator(&fakeEncoder{}, nil, store, transcode.Options{
			MediaDir:   t.TempDir(),
			Ladder:     testLadder(t),
			Workers:    1,
			QueueDepth: 4,
		})
		if err != nil {
			t.Fatalf("NewOrchestrator returned error: %v", err)
		}

		done := make(chan error, 1)
		go func() {
			done <- orc.Enqueue(transcode.Job{TrackID: 1, UUID: "uuid-1", OriginalPath: "/tmp/in.mp3"})
		}()
		orc.Stop()

		if err := <-done; err != nil {
			if !errors.Is(err, transcode.ErrShuttingDown) {
				t.Fatalf("iteration %d: Enqueue: got %v, want ErrShuttingDown", i, err)
			}
			// A rejected enqueue is failed by the caller, as the intake does.
			_ = store.MarkTrackError(1)
		}

		if st := store.status(1); st != model.StatusError {
			t.Fatalf("iteration %d: expected error after shutdown, got %s", i, st)
		}
	}
}

func TestOrchestratorReportsJobState(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(5)

	gate := make(chan struct{})
	encoder := &fakeEncoder{}
	encoder.onCall = func(ctx context.Context, req transcode.TierRequest) error {
		if req.Bitrate != "64k" {
			return nil
		}
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir: mediaDir,
		Ladder:   testLadder(t),
		Workers:  1,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	if st := orc.JobState(5); st != nil {
		t.Fatalf("expected no state before enqueue, got %+v", st)
	}

	if err := orc.Enqueue(transcode.Job{TrackID: 5, UUID: "uuid-5", OriginalPath: "/tmp/in.mp3"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := orc.JobState(5)
		if st != nil && st.Phase == transcode.PhaseEncoding && st.Tier == "64k" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reported the encoding phase")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(gate)
	waitTerminal(t, store, 5)

	deadline = time.Now().Add(5 * time.Second)
	for orc.JobState(5) != nil {
		if time.Now().After(deadline) {
			t.Fatal("job state not cleared after terminal transition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestratorInvokesTerminalHook(t *testing.T) {
	mediaDir := t.TempDir()
	store := newMemStore(1)
	encoder := &fakeEncoder{}

	type terminal struct {
		job    transcode.Job
		status model.TrackStatus
		root   string
	}
	done := make(chan terminal, 1)

	orc, err := transcode.NewOrchestrator(encoder, nil, store, transcode.Options{
		MediaDir: mediaDir,
		Ladder:   testLadder(t),
		Workers:  1,
		OnTerminal: func(job transcode.Job, status model.TrackStatus, hlsRoot string, duration float32) {
			done <- terminal{job: job, status: status, root: hlsRoot}
		},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	if err := orc.Enqueue(transcode.Job{TrackID: 1, UUID: "uuid-1", OriginalPath: "/tmp/in.mp3"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	select {
	case got := <-done:
		if got.status != model.StatusReady {
			t.Fatalf("hook status: got %s, want ready", got.status)
		}
		if got.root != filepath.Join(mediaDir, "uuid-1") {
			t.Fatalf("hook hls root: got %q", got.root)
		}
		if got.job.TrackID != 1 {
			t.Fatalf("hook job: got track %d", got.job.TrackID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("terminal hook never invoked")
	}
}
