// Package storage defines the per-job artifact store shared by the local
// filesystem and S3-compatible backends.
package storage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/sanderdlm/betascrubber/internal/domain"
)

// Locations describes where a provisioned job keeps its artifacts.
type Locations struct {
	// WorkDir is the local directory the frame sampler writes into.
	WorkDir string
	// Frames and Final are backend specific bucket locations
	// (directories for local, key prefixes for s3).
	Frames string
	Final  string
}

// Store is the artifact store contract. Listing, existence and upload
// failures against a remote backend are logged and reported as empty
// results rather than errors.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// SourceVideoPath is the local working path of the downloaded video.
	SourceVideoPath(id, title string) string

	// Provision ensures both buckets exist. Calling it again is a no-op.
	Provision(ctx context.Context, id, title string) (Locations, error)

	FrameCandidatesExist(ctx context.Context, id string) bool
	FinalFramesExist(ctx context.Context, id string) bool

	// IngestCandidates moves sampled frames from localDir into the
	// candidate bucket and returns how many were stored.
	IngestCandidates(ctx context.Context, id, localDir string) (int, error)

	PromoteToFinal(ctx context.Context, id string, filenames []string) (int, error)
	PurgeCandidates(ctx context.Context, id string, filenames []string) (int, error)

	// ListFrames returns the images of a bucket sorted by filename.
	ListFrames(ctx context.Context, id string, bucket domain.Bucket) []domain.Frame

	// RecentlyFinalized returns up to limit non-empty final buckets,
	// most recently modified first.
	RecentlyFinalized(ctx context.Context, limit int) []domain.RecentJob

	SaveMetadata(ctx context.Context, id string, meta domain.Metadata) error

	// Title returns the sanitized title recorded for id, or "".
	Title(ctx context.Context, id string) string
}

// Directory and key naming shared by the backends.
const (
	TitleSeparator = "___"
	FramesSuffix   = "_frames"
	FinalSuffix    = "_final"
	MetadataFile   = "metadata.json"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImage reports whether name has an image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ValidFrameName reports whether name is a bare image filename that is safe
// to join onto a bucket location.
func ValidFrameName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return IsImage(name)
}

// JobDirName is the local directory or file stem for a job.
func JobDirName(id, title string) string {
	return id + TitleSeparator + title
}

// ContentType returns the MIME type for a frame file.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
