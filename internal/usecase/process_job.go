package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/metrics"
	"github.com/sanderdlm/betascrubber/internal/pipeline"
	"github.com/sanderdlm/betascrubber/internal/repository"
	"github.com/sanderdlm/betascrubber/internal/storage"
	"github.com/sanderdlm/betascrubber/internal/tracker"
)

// releaseTimeout bounds the cleanup calls made after a run, which use a
// fresh context so they still happen on shutdown.
const releaseTimeout = 10 * time.Second

// ProcessJobUsecase runs one frame extraction job: download the video,
// sample frames, store them as candidates and record the outcome.
type ProcessJobUsecase struct {
	store    storage.Store
	pipeline pipeline.MediaPipeline
	tracker  *tracker.Tracker
	locks    repository.LockStore
	index    repository.JobIndex
	logger   *zap.Logger
	now      func() time.Time
}

// NewProcessJobUsecase creates a new ProcessJobUsecase.
func NewProcessJobUsecase(
	store storage.Store,
	pipe pipeline.MediaPipeline,
	tr *tracker.Tracker,
	locks repository.LockStore,
	index repository.JobIndex,
	logger *zap.Logger,
) *ProcessJobUsecase {
	return &ProcessJobUsecase{
		store:    store,
		pipeline: pipe,
		tracker:  tr,
		locks:    locks,
		index:    index,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execute processes task. Failures are recorded as an error status before
// being returned. If ctx is cancelled mid-run the status is left as
// processing and the context error is returned, so the task can be retried.
func (uc *ProcessJobUsecase) Execute(ctx context.Context, task *domain.Task) error {
	id := task.ID
	log := uc.logger.With(zap.String("job_id", id))
	start := time.Now()

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := uc.locks.ReleaseLock(releaseCtx, id); err != nil {
			log.Warn("Failed to release job lock", zap.Error(err))
		}
	}()

	if err := uc.tracker.Set(ctx, id, domain.Processing()); err != nil {
		log.Warn("Failed to record processing status", zap.Error(err))
	}

	var rawTitle string
	err := timed(domain.StageTitle, func() (err error) {
		rawTitle, err = uc.pipeline.FetchTitle(ctx, task.SourceURL)
		return err
	})
	if err != nil {
		return uc.fail(ctx, log, id, err)
	}
	title := pipeline.Sanitize(rawTitle)
	log = log.With(zap.String("title", title))

	video := uc.store.SourceVideoPath(id, title)
	defer removeVideo(log, video)

	if err := timed(domain.StageDownload, func() error {
		return uc.pipeline.Download(ctx, task.SourceURL, video)
	}); err != nil {
		return uc.fail(ctx, log, id, err)
	}

	loc, err := uc.store.Provision(ctx, id, title)
	if err != nil {
		return uc.fail(ctx, log, id, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err))
	}

	var frames []string
	err = timed(domain.StageSample, func() (err error) {
		frames, err = uc.pipeline.SampleFrames(ctx, video, loc.WorkDir)
		return err
	})
	if err != nil {
		return uc.fail(ctx, log, id, err)
	}

	var stored int
	err = timed(domain.StageIngest, func() (err error) {
		stored, err = uc.store.IngestCandidates(ctx, id, loc.WorkDir)
		return err
	})
	if err == nil && stored < len(frames) {
		err = fmt.Errorf("stored %d of %d frames", stored, len(frames))
	}
	if err != nil {
		return uc.fail(ctx, log, id, &domain.PipelineError{
			Stage:  domain.StageIngest,
			Detail: err.Error(),
			Err:    domain.ErrBackendUnavailable,
		})
	}
	metrics.FramesExtracted.Add(float64(stored))

	meta := domain.Metadata{Title: title, SourceURL: task.SourceURL, ProcessedAt: uc.now()}
	if err := uc.store.SaveMetadata(ctx, id, meta); err != nil {
		log.Warn("Failed to save job metadata", zap.Error(err))
	}

	if err := uc.tracker.Set(ctx, id, domain.Completed()); err != nil {
		log.Error("Failed to record completed status", zap.Error(err))
	}
	if err := uc.index.UpdateStatus(ctx, id, domain.Completed(), title, stored); err != nil {
		log.Warn("Failed to update job index", zap.Error(err))
	}

	metrics.JobDuration.Observe(time.Since(start).Seconds())
	log.Info("Job processed successfully",
		zap.Int("frames", stored),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// fail records err as the job's error status and returns it.
func (uc *ProcessJobUsecase) fail(ctx context.Context, log *zap.Logger, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("Job interrupted", zap.Error(err))
		return fmt.Errorf("process %s: %w", id, ctxErr)
	}

	status := domain.Failed(err.Error())
	log.Error("Job failed", zap.Error(err), zap.String("stage", stageOf(err)))

	// Partial frames would make the job look finished once the error
	// status is consumed, and block a resubmission.
	uc.discardCandidates(ctx, log, id)

	if setErr := uc.tracker.Set(ctx, id, status); setErr != nil {
		log.Error("Failed to record error status", zap.Error(setErr))
	}
	if idxErr := uc.index.UpdateStatus(ctx, id, status, "", 0); idxErr != nil {
		log.Warn("Failed to update job index", zap.Error(idxErr))
	}
	return err
}

func (uc *ProcessJobUsecase) discardCandidates(ctx context.Context, log *zap.Logger, id string) {
	frames := uc.store.ListFrames(ctx, id, domain.BucketFrames)
	if len(frames) == 0 {
		return
	}
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Filename
	}
	purged, err := uc.store.PurgeCandidates(ctx, id, names)
	if err != nil || purged < len(names) {
		log.Warn("Failed to discard partial frames",
			zap.Int("purged", purged),
			zap.Int("frames", len(names)),
			zap.Error(err),
		)
		return
	}
	log.Info("Discarded partial frames", zap.Int("frames", purged))
}

func stageOf(err error) string {
	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		return perr.Stage
	}
	return "unknown"
}

// timed runs fn and records its duration under stage.
func timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

func removeVideo(log *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove source video", zap.String("path", path), zap.Error(err))
	}
}
