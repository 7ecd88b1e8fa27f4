// Package queue is the in-process task queue used when no broker is
// configured. The server's worker pool consumes it directly.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/publisher"
)

// DefaultCapacity is the number of tasks that may wait for a free worker.
const DefaultCapacity = 64

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue: closed")

var _ publisher.Publisher = (*Local)(nil)

// Local is a buffered channel of task messages. Publish blocks while the
// buffer is full until ctx is done.
type Local struct {
	tasks  chan *domain.TaskMessage
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewLocal(capacity int, logger *zap.Logger) *Local {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Local{
		tasks:  make(chan *domain.TaskMessage, capacity),
		logger: logger,
	}
}

// Tasks is the channel the worker pool reads from. It is closed by Close.
func (q *Local) Tasks() <-chan *domain.TaskMessage {
	return q.tasks
}

func (q *Local) Publish(ctx context.Context, task *domain.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	msg := &domain.TaskMessage{
		Task: task,
		Ack:  func() error { return nil },
		Nack: func(requeue bool) error {
			if requeue {
				q.logger.Warn("Dropping task on shutdown", zap.String("job_id", task.ID))
			}
			return nil
		},
	}

	select {
	case q.tasks <- msg:
		q.logger.Debug("Queued task", zap.String("job_id", task.ID), zap.Int("depth", len(q.tasks)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue: publish: %w", ctx.Err())
	}
}

// Close stops accepting tasks and closes the task channel. Queued tasks are
// still delivered.
func (q *Local) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.tasks)
	return nil
}
