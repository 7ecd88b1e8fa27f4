package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
)

var _ repository.JobIndex = (*JobIndex)(nil)

// JobIndex keeps job records in memory.
type JobIndex struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobRecord
}

func NewJobIndex() *JobIndex {
	return &JobIndex{jobs: make(map[string]*domain.JobRecord)}
}

func (x *JobIndex) Upsert(ctx context.Context, rec *domain.JobRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := x.jobs[rec.ID]; ok {
		existing.SourceURL = rec.SourceURL
		existing.Status = rec.Status
		existing.Detail = rec.Detail
		existing.UpdatedAt = now
		return nil
	}

	stored := *rec
	stored.CreatedAt = now
	stored.UpdatedAt = now
	x.jobs[rec.ID] = &stored
	return nil
}

func (x *JobIndex) UpdateStatus(ctx context.Context, id string, status domain.Status, title string, frameCount int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	rec, ok := x.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.Status = status.State
	rec.Detail = status.Detail
	if title != "" {
		rec.Title = title
	}
	if frameCount > 0 {
		rec.FrameCount = frameCount
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (x *JobIndex) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, ok := x.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *rec
	return &copied, nil
}
