package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/tracker"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 120
)

// PollStatusUsecase reads job status, once or as a bounded stream.
type PollStatusUsecase struct {
	tracker     *tracker.Tracker
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func NewPollStatusUsecase(tr *tracker.Tracker, interval time.Duration, maxAttempts int, logger *zap.Logger) *PollStatusUsecase {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	return &PollStatusUsecase{
		tracker:     tr,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Current performs a single tracker read. A terminal status is consumed.
func (uc *PollStatusUsecase) Current(ctx context.Context, id string) (domain.Status, error) {
	if !identity.Valid(id) {
		return domain.Status{}, domain.ErrInvalidIdentity
	}
	return uc.tracker.Get(ctx, id)
}

// Watch reads the status of id every interval and emits an update for each
// read. Every non-terminal read, including a failed one, is reported as
// processing. Watch returns after emitting a terminal status, after
// emitting a timeout once maxAttempts reads have passed, when emit fails,
// or when ctx is done.
func (uc *PollStatusUsecase) Watch(ctx context.Context, id string, emit func(domain.PollUpdate) error) error {
	if !identity.Valid(id) {
		return domain.ErrInvalidIdentity
	}

	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		status, err := uc.tracker.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			uc.logger.Warn("Status read failed", zap.String("job_id", id), zap.Error(err))
			status = domain.Processing()
		}

		if err := emit(domain.NewPollUpdate(id, status, attempt)); err != nil {
			return err
		}
		if status.IsTerminal() {
			return nil
		}
		if attempt == uc.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	uc.logger.Info("Status stream timed out", zap.String("job_id", id), zap.Int("attempts", uc.maxAttempts))
	return emit(domain.PollUpdate{ID: id, Status: domain.StateTimeout, Attempt: uc.maxAttempts})
}
