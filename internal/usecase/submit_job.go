package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/metrics"
	"github.com/sanderdlm/betascrubber/internal/pipeline"
	"github.com/sanderdlm/betascrubber/internal/publisher"
	"github.com/sanderdlm/betascrubber/internal/repository"
	"github.com/sanderdlm/betascrubber/internal/storage"
	"github.com/sanderdlm/betascrubber/internal/tracker"
)

// SubmitJobUsecase decides what to do with a submitted video URL and
// queues new work.
type SubmitJobUsecase struct {
	store     storage.Store
	pipeline  pipeline.MediaPipeline
	locks     repository.LockStore
	tracker   *tracker.Tracker
	index     repository.JobIndex
	publisher publisher.Publisher
	logger    *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(
	store storage.Store,
	pipe pipeline.MediaPipeline,
	locks repository.LockStore,
	tr *tracker.Tracker,
	index repository.JobIndex,
	pub publisher.Publisher,
	logger *zap.Logger,
) *SubmitJobUsecase {
	return &SubmitJobUsecase{
		store:     store,
		pipeline:  pipe,
		locks:     locks,
		tracker:   tr,
		index:     index,
		publisher: pub,
		logger:    logger,
	}
}

// Execute returns AlreadyFinal or AlreadyProcessingOrCandidate for a known
// job. Otherwise it checks the duration limit, takes the job lock, records
// the processing status and queues a task, returning Started without
// waiting for the worker.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, url string) (domain.Decision, error) {
	id := identity.Encode(url)
	log := uc.logger.With(zap.String("job_id", id))

	if uc.store.FinalFramesExist(ctx, id) {
		return uc.decide(domain.DecisionAlreadyFinal, id), nil
	}
	if uc.store.FrameCandidatesExist(ctx, id) {
		return uc.decide(domain.DecisionAlreadyProcessingOrCandidate, id), nil
	}

	if err := uc.pipeline.EnforceDurationLimit(ctx, url); err != nil {
		log.Info("Submission rejected", zap.Error(err))
		metrics.JobsSubmitted.WithLabelValues("rejected").Inc()
		return domain.Decision{}, err
	}

	acquired, err := uc.locks.AcquireLock(ctx, id)
	if err != nil {
		log.Error("Failed to acquire job lock", zap.Error(err))
		return domain.Decision{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		log.Info("Job already being processed")
		return uc.decide(domain.DecisionAlreadyProcessingOrCandidate, id), nil
	}

	if err := uc.tracker.Set(ctx, id, domain.Processing()); err != nil {
		uc.release(id)
		log.Error("Failed to record processing status", zap.Error(err))
		return domain.Decision{}, err
	}

	if err := uc.index.Upsert(ctx, &domain.JobRecord{
		ID:        id,
		SourceURL: url,
		Status:    domain.StateProcessing,
	}); err != nil {
		log.Warn("Failed to index job", zap.Error(err))
	}

	task := &domain.Task{ID: id, SourceURL: url, QueuedAt: time.Now().UTC()}
	if err := uc.publisher.Publish(ctx, task); err != nil {
		log.Error("Failed to queue job", zap.Error(err))
		// Nothing will pick the job up, so do not leave it looking busy.
		failed := domain.Failed(domain.ErrPublishFailed.Error())
		if setErr := uc.tracker.Set(ctx, id, failed); setErr != nil {
			log.Warn("Failed to record error status", zap.Error(setErr))
		}
		_ = uc.index.UpdateStatus(ctx, id, failed, "", 0)
		uc.release(id)
		return domain.Decision{}, domain.ErrPublishFailed
	}

	log.Info("Job submitted successfully", zap.String("url", url))
	return uc.decide(domain.DecisionStarted, id), nil
}

func (uc *SubmitJobUsecase) decide(kind domain.DecisionKind, id string) domain.Decision {
	metrics.JobsSubmitted.WithLabelValues(string(kind)).Inc()
	return domain.Decision{Kind: kind, ID: id}
}

func (uc *SubmitJobUsecase) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := uc.locks.ReleaseLock(ctx, id); err != nil {
		uc.logger.Warn("Failed to release job lock", zap.String("job_id", id), zap.Error(err))
	}
}
