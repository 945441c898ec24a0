package models

import "time"

// RecordingFile represents the metadata exposed for a single raw recording file.
type RecordingFile struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	RelativePath string    `json:"relative_path"`
	SampleCount  *int      `json:"sample_count,omitempty"`
	DurationMS   *int64    `json:"duration_ms,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	ModifiedAt   time.Time `json:"modified_at"`
}
