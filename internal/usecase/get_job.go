package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/repository"
	"github.com/sanderdlm/betascrubber/internal/storage"
)

// GetJobUsecase handles fetching what is known about a job.
type GetJobUsecase struct {
	store  storage.Store
	index  repository.JobIndex
	logger *zap.Logger
}

// NewGetJobUsecase creates a new GetJobUsecase.
func NewGetJobUsecase(store storage.Store, index repository.JobIndex, logger *zap.Logger) *GetJobUsecase {
	return &GetJobUsecase{
		store:  store,
		index:  index,
		logger: logger,
	}
}

// Execute combines the index record of a job with what its artifacts show.
// It returns domain.ErrJobNotFound only when neither knows the job.
func (uc *GetJobUsecase) Execute(ctx context.Context, id string) (*domain.JobView, error) {
	sourceURL, err := identity.Decode(id)
	if err != nil {
		return nil, err
	}

	view := &domain.JobView{
		ID:        id,
		SourceURL: sourceURL,
		Title:     uc.store.Title(ctx, id),
		HasFinal:  uc.store.FinalFramesExist(ctx, id),
		HasFrames: uc.store.FrameCandidatesExist(ctx, id),
	}

	rec, err := uc.index.GetByID(ctx, id)
	switch {
	case err == nil:
		view.Record = rec
		if view.Title == "" {
			view.Title = rec.Title
		}
	case errors.Is(err, domain.ErrJobNotFound):
	default:
		uc.logger.Warn("Failed to read job index", zap.String("job_id", id), zap.Error(err))
	}

	if view.Record == nil && view.Title == "" && !view.HasFinal && !view.HasFrames {
		uc.logger.Debug("Job not found", zap.String("job_id", id))
		return nil, domain.ErrJobNotFound
	}
	return view, nil
}
