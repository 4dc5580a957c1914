package transcode_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"torb/core/transcode"
	"torb/model"
)

type fakeTrackReader struct {
	tracks map[int64]*model.Track
	reads  int
}

func (r *fakeTrackReader) GetTrackByID(id int64) (*model.Track, error) {
	r.reads++
	return r.tracks[id], nil
}

type fakeStatusCache struct {
	views  map[int64]*transcode.StatusView
	getErr error
	putErr error
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{views: make(map[int64]*transcode.StatusView)}
}

func (c *fakeStatusCache) Get(ctx context.Context, trackID int64) (*transcode.StatusView, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.views[trackID], nil
}

func (c *fakeStatusCache) Put(ctx context.Context, view *transcode.StatusView) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.views[view.TrackID] = view
	return nil
}

func sampleTrack(id int64, status model.TrackStatus) *model.Track {
	track := &model.Track{
		ID:        id,
		UUID:      "uuid-sample",
		Title:     "Night Drive",
		Uploader:  "ada",
		Status:    status,
		CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	if status == model.StatusReady {
		track.HLSRoot = "media/uuid-sample"
		track.Duration = 187.5
	}
	return track
}

func TestStatusUnknownTrack(t *testing.T) {
	tracker := transcode.NewStatusTracker(&fakeTrackReader{tracks: map[int64]*model.Track{}}, nil)

	_, err := tracker.Status(context.Background(), 42)
	if !errors.Is(err, transcode.ErrTrackNotFound) {
		t.Fatalf("got %v, want ErrTrackNotFound", err)
	}
}

func TestStatusProcessingHasNoHLSURL(t *testing.T) {
	reader := &fakeTrackReader{tracks: map[int64]*model.Track{
		1: sampleTrack(1, model.StatusProcessing),
	}}
	tracker := transcode.NewStatusTracker(reader, nil)

	view, err := tracker.Status(context.Background(), 1)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if view.Status != model.StatusProcessing {
		t.Fatalf("status: got %s, want processing", view.Status)
	}
	if view.HLSURL != nil {
		t.Fatalf("processing track must not expose an hls url, got %q", *view.HLSURL)
	}
}

func TestStatusReadyExposesHLSURL(t *testing.T) {
	reader := &fakeTrackReader{tracks: map[int64]*model.Track{
		1: sampleTrack(1, model.StatusReady),
	}}
	tracker := transcode.NewStatusTracker(reader, nil)

	view, err := tracker.Status(context.Background(), 1)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if view.Status != model.StatusReady {
		t.Fatalf("status: got %s, want ready", view.Status)
	}
	if view.HLSURL == nil || *view.HLSURL != "media/uuid-sample" {
		t.Fatalf("unexpected hls url: %v", view.HLSURL)
	}
	if view.UploadedAt.IsZero() {
		t.Fatal("uploaded_at missing from view")
	}
}

func TestStatusErrorHasNoHLSURL(t *testing.T) {
	reader := &fakeTrackReader{tracks: map[int64]*model.Track{
		1: sampleTrack(1, model.StatusError),
	}}
	tracker := transcode.NewStatusTracker(reader, nil)

	view, err := tracker.Status(context.Background(), 1)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if view.HLSURL != nil {
		t.Fatalf("errored track must not expose an hls url, got %q", *view.HLSURL)
	}
}

func TestStatusCachesOnlyTerminalViews(t *testing.T) {
	reader := &fakeTrackReader{tracks: map[int64]*model.Track{
		1: sampleTrack(1, model.StatusProcessing),
		2: sampleTrack(2, model.StatusReady),
	}}
	cache := newFakeStatusCache()
	tracker := transcode.NewStatusTracker(reader, cache)

	if _, err := tracker.Status(context.Background(), 1); err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if _, ok := cache.views[1]; ok {
		t.Fatal("processing view must not be cached; its answer can still change")
	}

	if _, err := tracker.Status(context.Background(), 2); err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if _, ok := cache.views[2]; !ok {
		t.Fatal("terminal view should be cached")
	}

	// A second poll for the terminal track is answered from the cache.
	reads := reader.reads
	view, err := tracker.Status(context.Background(), 2)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if reader.reads != reads {
		t.Fatalf("cached poll hit the store: %d reads", reader.reads-reads)
	}
	if view.Status != model.StatusReady {
		t.Fatalf("cached view status: got %s, want ready", view.Status)
	}
}

func TestStatusSurvivesCacheFailures(t *testing.T) {
	reader := &fakeTrackReader{tracks: map[int64]*model.Track{
		1: sampleTrack(1, model.StatusReady),
	}}
	cache := newFakeStatusCache()
	cache.getErr = errors.New("redis down")
	cache.putErr = errors.New("redis down")
	tracker := transcode.NewStatusTracker(reader, cache)

	view, err := tracker.Status(context.Background(), 1)
	if err != nil {
		t.Fatalf("Status must fall back to the store on cache failure, got %v", err)
	}
	if view.Status != model.StatusReady {
		t.Fatalf("status: got %s, want ready", view.Status)
	}
}
