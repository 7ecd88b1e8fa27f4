package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/metrics"
)

// Processor runs one task to completion.
type Processor interface {
	Execute(ctx context.Context, task *domain.Task) error
}

// WorkerPool manages a fixed-size pool of goroutines that process tasks.
// At most one task per job id runs at a time within the pool.
type WorkerPool struct {
	size      int
	tasks     <-chan *domain.TaskMessage
	processor Processor
	logger    *zap.Logger
	wg        sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, tasks <-chan *domain.TaskMessage, processor Processor, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:      size,
		tasks:     tasks,
		processor: processor,
		logger:    logger,
		active:    make(map[string]bool),
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current tasks and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.tasks:
			if !ok {
				p.logger.Debug("Task channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

func (p *WorkerPool) handle(ctx context.Context, workerID int, msg *domain.TaskMessage) {
	task := msg.Task
	log := p.logger.With(zap.Int("worker_id", workerID), zap.String("job_id", task.ID))

	if !p.claim(task.ID) {
		log.Info("Job already running in this pool, skipping")
		metrics.JobsProcessed.WithLabelValues("duplicate").Inc()
		if err := msg.Ack(); err != nil {
			log.Error("Failed to ACK duplicate message", zap.Error(err))
		}
		return
	}
	defer p.unclaim(task.ID)

	log.Info("Worker processing job")

	metrics.WorkersActive.Inc()
	err := p.run(ctx, task)
	metrics.WorkersActive.Dec()

	switch {
	case err == nil:
		metrics.JobsProcessed.WithLabelValues("completed").Inc()
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after processing", zap.Error(ackErr))
		}

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Interrupted by shutdown, let another worker pick it up.
		metrics.JobsProcessed.WithLabelValues("interrupted").Inc()
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Error("Failed to NACK interrupted message", zap.Error(nackErr))
		}

	default:
		// The failure is already recorded as the job's status. Requeuing a
		// deterministic tool failure would loop, so dead-letter it.
		log.Error("Job failed", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		if nackErr := msg.Nack(false); nackErr != nil {
			log.Error("Failed to NACK message", zap.Error(nackErr))
		}
	}
}

// run executes task, turning a panic into an error.
func (p *WorkerPool) run(ctx context.Context, task *domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panic recovered",
				zap.String("job_id", task.ID),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processor.Execute(ctx, task)
}

func (p *WorkerPool) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[id] {
		return false
	}
	p.active[id] = true
	return true
}

func (p *WorkerPool) unclaim(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}
