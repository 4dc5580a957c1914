package transcode

import "errors"

var (
	// ErrInvalidUpload marks intake validation failures: empty title,
	// missing or empty streams. Returned synchronously to the caller.
	ErrInvalidUpload = errors.New("invalid upload")

	// ErrTrackNotFound is returned by the status tracker for unknown ids.
	ErrTrackNotFound = errors.New("track not found")

	// ErrShuttingDown is returned when a job cannot be scheduled because
	// the orchestrator is stopping.
	ErrShuttingDown = errors.New("transcode orchestrator is shutting down")
)
