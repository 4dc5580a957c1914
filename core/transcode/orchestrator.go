package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"torb/logger"
	"torb/model"
)

// TrackStore is the slice of the track store the orchestrator needs: the
// two terminal transitions. Both must be atomic single-row updates.
type TrackStore interface {
	MarkTrackReady(trackID int64, hlsRoot string, duration float32) error
	MarkTrackError(trackID int64) error
}

// Job describes one staged upload awaiting transcoding.
type Job struct {
	TrackID      int64
	UUID         string
	OriginalPath string
}

// JobPhase is the in-memory lifecycle of a queued job, as distinct from
// the persisted track status: queued jobs are still "processing" in the
// store.
type JobPhase string

const (
	PhaseQueued   JobPhase = "queued"
	PhaseEncoding JobPhase = "encoding"
)

// JobState is a point-in-time view of an in-flight job.
type JobState struct {
	Job      Job
	Phase    JobPhase
	Tier     string // tier currently encoding, empty while queued
	Started  time.Time
	Enqueued time.Time
}

// TerminalFunc observes a job's single terminal transition. hlsRoot is
// non-empty only for ready.
type TerminalFunc func(job Job, status model.TrackStatus, hlsRoot string, duration float32)

// Options configures an Orchestrator.
type Options struct {
	MediaDir    string
	Ladder      []Tier
	SegmentTime string
	Workers     int
	JobTimeout  time.Duration
	QueueDepth  int

	// OnTerminal, when set, is invoked after the store update for each
	// job that reaches ready or error.
	OnTerminal TerminalFunc
}

// Orchestrator runs the transcode pipeline: a bounded pool of workers
// consumes queued jobs, encodes each bitrate tier strictly in ascending
// order, assembles the master playlist and performs the single terminal
// store update. Jobs for different tracks proceed fully independently.
type Orchestrator struct {
	encoder Encoder
	prober  DurationProber
	store   TrackStore
	opts    Options

	jobs chan Job
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[int64]*JobState
	started  bool
	stopped  bool
}

// NewOrchestrator creates an orchestrator. prober may be nil; duration is
// then left unset on ready tracks.
func NewOrchestrator(encoder Encoder, prober DurationProber, store TrackStore, opts Options) (*Orchestrator, error) {
	if encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("track store is required")
	}
	if len(opts.Ladder) == 0 {
		return nil, fmt.Errorf("bitrate ladder is empty")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.SegmentTime == "" {
		opts.SegmentTime = "10"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		encoder:  encoder,
		prober:   prober,
		store:    store,
		opts:     opts,
		jobs:     make(chan Job, opts.QueueDepth),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[int64]*JobState),
	}, nil
}

// Start launches the worker pool. Subsequent calls are no-ops.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	logger.Info("transcode orchestrator started",
		logger.Int("workers", o.opts.Workers),
		logger.Int("ladderTiers", len(o.opts.Ladder)),
		logger.String("segmentTime", o.opts.SegmentTime),
	)
}

// Stop cancels in-flight jobs at their next tier boundary and waits for
// all workers to exit. Queued jobs that never started are marked errored
// so no track is left in processing forever.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	// Drain jobs that were queued but never picked up.
	for {
		select {
		case job := <-o.jobs:
			o.finishError(job)
		default:
			logger.Info("transcode orchestrator stopped")
			return
		}
	}
}

// Enqueue schedules a job for asynchronous processing. It returns without
// waiting for the transcode; the result is observable only through the
// track's persisted status.
func (o *Orchestrator) Enqueue(job Job) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	o.inflight[job.TrackID] = &JobState{Job: job, Phase: PhaseQueued, Enqueued: time.Now()}
	o.mu.Unlock()

	select {
	case o.jobs <- job:
	case <-o.ctx.Done():
		o.clearInflight(job.TrackID)
		return ErrShuttingDown
	}

	// Stop may have run between the stopped check above and the send, in
	// which case its drain loop can no longer see this job. Re-check and
	// pull queued jobs back so no record stays in processing forever.
	o.mu.Lock()
	raced := o.stopped
	o.mu.Unlock()
	if raced {
		for {
			select {
			case queued := <-o.jobs:
				o.finishError(queued)
			default:
				o.clearInflight(job.TrackID)
				return ErrShuttingDown
			}
		}
	}
	return nil
}

// JobState returns the live state of an in-flight job, or nil when the
// track has no queued or running job.
func (o *Orchestrator) JobState(trackID int64) *JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.inflight[trackID]
	if !ok {
		return nil
	}
	copied := *st
	return &copied
}

// ActiveJobs reports how many jobs are queued or running.
func (o *Orchestrator) ActiveJobs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case job := <-o.jobs:
			o.process(job)
		}
	}
}

func (o *Orchestrator) process(job Job) {
	ctx := o.ctx
	var cancel context.CancelFunc
	if o.opts.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.JobTimeout)
		defer cancel()
	}

	o.setPhase(job.TrackID, PhaseEncoding, "")
	logger.Info("transcode job started",
		logger.Int64("trackId", job.TrackID),
		logger.String("uuid", job.UUID),
		logger.String("input", job.OriginalPath),
	)

	hlsRoot := filepath.Join(o.opts.MediaDir, job.UUID)
	if err := o.transcode(ctx, job, hlsRoot); err != nil {
		o.logEncodeFailure(job, err)
		o.finishError(job)
		return
	}

	var duration float32
	if o.prober != nil {
		d, err := o.prober.Duration(ctx, job.OriginalPath)
		if err != nil {
			logger.Warn("could not probe audio duration",
				logger.Int64("trackId", job.TrackID),
				logger.ErrorField(err),
			)
		} else {
			duration = d
		}
	}

	if err := o.store.MarkTrackReady(job.TrackID, hlsRoot, duration); err != nil {
		logger.Error("failed to mark track ready",
			logger.Int64("trackId", job.TrackID),
			logger.ErrorField(err),
		)
		o.clearInflight(job.TrackID)
		return
	}
	o.clearInflight(job.TrackID)
	if o.opts.OnTerminal != nil {
		o.opts.OnTerminal(job, model.StatusReady, hlsRoot, duration)
	}
	logger.Info("transcode job completed",
		logger.Int64("trackId", job.TrackID),
		logger.String("uuid", job.UUID),
		logger.String("hlsRoot", hlsRoot),
		logger.Float64("duration", float64(duration)),
	)
}

// transcode encodes every ladder tier strictly in ascending order, then
// writes the master playlist. On the first tier failure it aborts without
// touching the remaining tiers; artifacts from tiers that already
// completed stay on disk but are referenced by nothing.
func (o *Orchestrator) transcode(ctx context.Context, job Job, hlsRoot string) error {
	if err := os.MkdirAll(hlsRoot, 0755); err != nil {
		return fmt.Errorf("failed to create media directory %s: %w", hlsRoot, err)
	}

	for _, tier := range o.opts.Ladder {
		// Cancellation is honored between tier boundaries.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transcode cancelled before tier %s: %w", tier.Name, err)
		}

		tierDir := filepath.Join(hlsRoot, tier.Name)
		if err := os.MkdirAll(tierDir, 0755); err != nil {
			return fmt.Errorf("failed to create tier directory %s: %w", tierDir, err)
		}

		o.setPhase(job.TrackID, PhaseEncoding, tier.Name)
		err := o.encoder.EncodeTier(ctx, TierRequest{
			InputPath:   job.OriginalPath,
			OutputDir:   tierDir,
			Bitrate:     tier.Name,
			SegmentTime: o.opts.SegmentTime,
		})
		if err != nil {
			return fmt.Errorf("tier %s failed: %w", tier.Name, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transcode cancelled before master playlist: %w", err)
	}
	return WriteMasterPlaylist(hlsRoot, o.opts.Ladder)
}

// finishError performs the terminal error transition for a failed or
// abandoned job.
func (o *Orchestrator) finishError(job Job) {
	if err := o.store.MarkTrackError(job.TrackID); err != nil {
		logger.Error("failed to mark track errored",
			logger.Int64("trackId", job.TrackID),
			logger.ErrorField(err),
		)
		o.clearInflight(job.TrackID)
		return
	}
	o.clearInflight(job.TrackID)
	if o.opts.OnTerminal != nil {
		o.opts.OnTerminal(job, model.StatusError, "", 0)
	}
}

// logEncodeFailure logs the failure with the runner's captured output
// when available. The failure reason is not persisted on the record.
func (o *Orchestrator) logEncodeFailure(job Job, err error) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		logger.Error("encoder invocation failed",
			logger.Int64("trackId", job.TrackID),
			logger.String("uuid", job.UUID),
			logger.Strings("command", cmdErr.Command),
			logger.String("stdout", cmdErr.Stdout),
			logger.String("stderr", cmdErr.Stderr),
			logger.ErrorField(cmdErr.Err),
		)
		return
	}
	logger.Error("transcode job failed",
		logger.Int64("trackId", job.TrackID),
		logger.String("uuid", job.UUID),
		logger.ErrorField(err),
	)
}

func (o *Orchestrator) setPhase(trackID int64, phase JobPhase, tier string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.inflight[trackID]; ok {
		st.Phase = phase
		st.Tier = tier
		if phase == PhaseEncoding && st.Started.IsZero() {
			st.Started = time.Now()
		}
	}
}

func (o *Orchestrator) clearInflight(trackID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, trackID)
}
