package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/metrics"
	"github.com/sanderdlm/betascrubber/internal/storage"
)

// ListFramesUsecase lists the frames of one bucket of a job.
type ListFramesUsecase struct {
	store storage.Store
}

func NewListFramesUsecase(store storage.Store) *ListFramesUsecase {
	return &ListFramesUsecase{store: store}
}

// Execute returns the frames in capture order. An empty bucket defaults to
// the candidate frames.
func (uc *ListFramesUsecase) Execute(ctx context.Context, id string, bucket domain.Bucket) ([]domain.Frame, error) {
	if !identity.Valid(id) {
		return nil, domain.ErrInvalidIdentity
	}
	if bucket == "" {
		bucket = domain.BucketFrames
	}
	if !bucket.IsValid() {
		return nil, domain.ErrInvalidBucket
	}
	return uc.store.ListFrames(ctx, id, bucket), nil
}

// SelectionResult reports what a selection did.
type SelectionResult struct {
	Promoted int `json:"promoted"`
	Purged   int `json:"purged"`
}

// SelectFramesUsecase promotes a user's chosen frames to the final bucket
// and discards the remaining candidates.
type SelectFramesUsecase struct {
	store  storage.Store
	logger *zap.Logger
}

func NewSelectFramesUsecase(store storage.Store, logger *zap.Logger) *SelectFramesUsecase {
	return &SelectFramesUsecase{store: store, logger: logger}
}

// Execute promotes names and then purges every candidate frame of the job,
// selected or not, so nothing can be selected twice.
func (uc *SelectFramesUsecase) Execute(ctx context.Context, id string, names []string) (*SelectionResult, error) {
	if !identity.Valid(id) {
		return nil, domain.ErrInvalidIdentity
	}
	if len(names) == 0 {
		return nil, domain.ErrNoFramesSelected
	}

	candidates := uc.store.ListFrames(ctx, id, domain.BucketFrames)
	if len(candidates) == 0 {
		return nil, domain.ErrJobNotFound
	}
	known := make(map[string]bool, len(candidates))
	all := make([]string, len(candidates))
	for i, f := range candidates {
		known[f.Filename] = true
		all[i] = f.Filename
	}

	seen := make(map[string]bool, len(names))
	selected := make([]string, 0, len(names))
	for _, name := range names {
		if !storage.ValidFrameName(name) || !known[name] {
			return nil, domain.ErrInvalidFrameName
		}
		if !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}

	promoted, err := uc.store.PromoteToFinal(ctx, id, selected)
	if err != nil {
		return nil, err
	}
	if promoted < len(selected) {
		// Keep the candidates so the user can retry.
		uc.logger.Warn("Partial promotion, keeping candidates",
			zap.String("job_id", id),
			zap.Int("selected", len(selected)),
			zap.Int("promoted", promoted),
		)
		return nil, domain.ErrBackendUnavailable
	}

	purged, err := uc.store.PurgeCandidates(ctx, id, all)
	if err != nil {
		return nil, err
	}
	metrics.FramesFinalized.Add(float64(promoted))

	uc.logger.Info("Frames selected",
		zap.String("job_id", id),
		zap.Int("promoted", promoted),
		zap.Int("purged", purged),
	)
	return &SelectionResult{Promoted: promoted, Purged: purged}, nil
}

const (
	DefaultRecentLimit = 5
	maxRecentLimit     = 50
)

// RecentJobsUsecase lists the most recently finalized jobs.
type RecentJobsUsecase struct {
	store storage.Store
}

func NewRecentJobsUsecase(store storage.Store) *RecentJobsUsecase {
	return &RecentJobsUsecase{store: store}
}

// Execute clamps limit to [1, 50]; zero or less means DefaultRecentLimit.
func (uc *RecentJobsUsecase) Execute(ctx context.Context, limit int) []domain.RecentJob {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	recent := uc.store.RecentlyFinalized(ctx, limit)
	if recent == nil {
		recent = []domain.RecentJob{}
	}
	return recent
}
