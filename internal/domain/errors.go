package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned when a job id is not a well-formed encoding.
	ErrInvalidIdentity = errors.New("invalid job identity")

	// ErrDurationExceeded is returned when a video is longer than the allowed maximum.
	ErrDurationExceeded = errors.New("video exceeds maximum duration")

	// ErrDownloadFailed is returned when the download tool fails.
	ErrDownloadFailed = errors.New("video download failed")

	// ErrExtractionFailed is returned when frame sampling fails.
	ErrExtractionFailed = errors.New("frame extraction failed")

	// ErrMetadataFailed is returned when title or duration lookup fails.
	ErrMetadataFailed = errors.New("video metadata lookup failed")

	// ErrBackendUnavailable is returned on transient storage failures.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrJobNotFound is returned when nothing is known about a job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoFramesSelected is returned when a selection is empty.
	ErrNoFramesSelected = errors.New("no frames selected")

	// ErrInvalidFrameName is returned for selections naming something other than a frame image.
	ErrInvalidFrameName = errors.New("invalid frame name")

	// ErrInvalidBucket is returned for a bucket other than frames or final.
	ErrInvalidBucket = errors.New("invalid bucket")

	// ErrStatusNotFound is returned by status stores when no record exists.
	ErrStatusNotFound = errors.New("status record not found")

	// ErrPublishFailed is returned when the task could not be queued.
	ErrPublishFailed = errors.New("failed to queue job")
)

// Pipeline stages, used for PipelineError and metrics labels.
const (
	StageTitle    = "title"
	StageDuration = "duration"
	StageDownload = "download"
	StageSample   = "sample"
	StageIngest   = "ingest"
)

// PipelineError describes an external tool failure.
type PipelineError struct {
	Stage  string
	Detail string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Stage, e.Err, e.Detail)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
