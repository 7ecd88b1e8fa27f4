package repository

import (
	"context"

	"github.com/sanderdlm/betascrubber/internal/domain"
)

// StatusStore persists the transient per-job status record.
// Implementations must be safe for concurrent use.
type StatusStore interface {
	// Save persists status for id, overwriting any prior value.
	Save(ctx context.Context, id string, status domain.Status) error

	// Load returns the persisted status, or domain.ErrStatusNotFound.
	Load(ctx context.Context, id string) (domain.Status, error)

	// CompareAndDelete removes the record only if it still equals expected.
	// Returns true if this call removed it.
	CompareAndDelete(ctx context.Context, id string, expected domain.Status) (bool, error)
}

// LockStore guards against more than one active worker per job id.
type LockStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a job.
	// Returns true if the lock was acquired, false if already held.
	AcquireLock(ctx context.Context, id string) (bool, error)

	// ReleaseLock releases the processing lock.
	ReleaseLock(ctx context.Context, id string) error
}

// JobIndex keeps a queryable record of every submitted job.
type JobIndex interface {
	// Upsert inserts the record or refreshes its source URL and timestamps.
	Upsert(ctx context.Context, rec *domain.JobRecord) error

	// UpdateStatus records the latest status of a job, with its title and
	// frame count once known.
	UpdateStatus(ctx context.Context, id string, status domain.Status, title string, frameCount int) error

	// GetByID returns the record or domain.ErrJobNotFound.
	GetByID(ctx context.Context, id string) (*domain.JobRecord, error)
}
