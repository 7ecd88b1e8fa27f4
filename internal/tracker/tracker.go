// Package tracker answers "what is the state of job id?" from the status
// store, falling back to the artifact store when no record exists.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
)

// consumeAttempts bounds the load/compare-and-delete loop when a record
// changes between the two calls.
const consumeAttempts = 3

// Artifacts is the part of storage.Store the fallback needs.
type Artifacts interface {
	FrameCandidatesExist(ctx context.Context, id string) bool
	FinalFramesExist(ctx context.Context, id string) bool
}

// Tracker is the job status state machine. Terminal records are consumed by
// the read that observes them.
type Tracker struct {
	statuses  repository.StatusStore
	artifacts Artifacts
	logger    *zap.Logger
}

func New(statuses repository.StatusStore, artifacts Artifacts, logger *zap.Logger) *Tracker {
	return &Tracker{statuses: statuses, artifacts: artifacts, logger: logger}
}

// Set persists status for id, overwriting any prior value.
func (t *Tracker) Set(ctx context.Context, id string, status domain.Status) error {
	if err := t.statuses.Save(ctx, id, status); err != nil {
		return fmt.Errorf("tracker: set %s: %w", status.State, err)
	}
	return nil
}

// Get returns the current status of id. A completed or error record is
// returned once and then deleted. Without a record the state is inferred:
// any final or candidate frames mean Completed, otherwise Absent.
func (t *Tracker) Get(ctx context.Context, id string) (domain.Status, error) {
	for attempt := 0; attempt < consumeAttempts; attempt++ {
		status, err := t.statuses.Load(ctx, id)
		if errors.Is(err, domain.ErrStatusNotFound) {
			return t.infer(ctx, id), nil
		}
		if err != nil {
			return domain.Status{}, fmt.Errorf("tracker: get: %w", err)
		}
		if !status.IsTerminal() {
			return status, nil
		}

		consumed, err := t.statuses.CompareAndDelete(ctx, id, status)
		if err != nil {
			return domain.Status{}, fmt.Errorf("tracker: consume: %w", err)
		}
		if consumed {
			t.logger.Debug("Consumed terminal status",
				zap.String("job_id", id),
				zap.String("status", status.String()),
			)
			return status, nil
		}
		// Another reader consumed it or a worker overwrote it; look again.
	}
	return domain.Processing(), nil
}

func (t *Tracker) infer(ctx context.Context, id string) domain.Status {
	if t.artifacts.FinalFramesExist(ctx, id) || t.artifacts.FrameCandidatesExist(ctx, id) {
		return domain.Completed()
	}
	return domain.Absent()
}
