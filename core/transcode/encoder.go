package transcode

import (
	"context"
	"path/filepath"
)

// TierRequest describes one bitrate rendition to produce: a fixed-segment
// audio-only encoding of InputPath into OutputDir.
type TierRequest struct {
	InputPath   string
	OutputDir   string
	Bitrate     string // e.g. "64k"
	SegmentTime string // seconds per segment
}

// Encoder produces one tier rendition. Implementations must write the
// numbered segment files and the tier sub-manifest into req.OutputDir.
type Encoder interface {
	EncodeTier(ctx context.Context, req TierRequest) error
}

// FFmpegEncoder implements Encoder by invoking ffmpeg through a Runner.
type FFmpegEncoder struct {
	ffmpegPath string
	runner     *Runner
}

// NewFFmpegEncoder creates an FFmpegEncoder using the given ffmpeg binary.
func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, runner: &Runner{}}
}

// FFmpegPath returns the configured ffmpeg binary path.
func (e *FFmpegEncoder) FFmpegPath() string {
	return e.ffmpegPath
}

// EncodeTier transcodes the input into an audio-only AAC HLS rendition at
// the requested bitrate. ffmpeg writes segment000.ts, segment001.ts, ...
// and a playlist.m3u8 listing them in order.
func (e *FFmpegEncoder) EncodeTier(ctx context.Context, req TierRequest) error {
	playlist := filepath.Join(req.OutputDir, TierPlaylistName)
	segments := filepath.Join(req.OutputDir, SegmentPattern)

	args := []string{
		"-i", req.InputPath,
		"-c:a", "aac",
		"-b:a", req.Bitrate,
		"-vn",
		"-hls_time", req.SegmentTime,
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", segments,
		playlist,
	}

	return e.runner.Run(ctx, e.ffmpegPath, args...)
}
