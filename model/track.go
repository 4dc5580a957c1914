package model

import "time"

// TrackStatus is the processing lifecycle of an uploaded track.
// Transitions are one-way: processing -> ready or processing -> error,
// both terminal.
type TrackStatus string

const (
	StatusProcessing TrackStatus = "processing"
	StatusReady      TrackStatus = "ready"
	StatusError      TrackStatus = "error"
)

// Valid reports whether s is a known status value.
func (s TrackStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s TrackStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Track represents an uploaded audio track and its processing state.
// HLSRoot is set exactly once, when the track reaches ready; it stays
// empty for processing and error tracks.
type Track struct {
	ID            int64       `json:"id"`
	UUID          string      `json:"uuid"` // assigned at intake, never changes
	Title         string      `json:"title"`
	Uploader      string      `json:"uploader"`
	OriginalPath  string      `json:"-"` // staged original file, retained for diagnostics
	CoverFilename string      `json:"coverFilename"`
	HLSRoot       string      `json:"hlsRoot,omitempty"` // directory containing master.m3u8, non-empty iff ready
	Duration      float32     `json:"duration,omitempty"` // seconds, 0 when unknown
	Status        TrackStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
}
