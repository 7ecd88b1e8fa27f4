// Package memory holds in-process repository implementations, used when no
// external store is configured and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
)

var _ repository.StatusStore = (*StatusStore)(nil)

// StatusStore is a mutex-guarded map of job id to status.
type StatusStore struct {
	mu       sync.Mutex
	statuses map[string]domain.Status
}

func NewStatusStore() *StatusStore {
	return &StatusStore{statuses: make(map[string]domain.Status)}
}

func (s *StatusStore) Save(ctx context.Context, id string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *StatusStore) Load(ctx context.Context, id string) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[id]
	if !ok {
		return domain.Status{}, domain.ErrStatusNotFound
	}
	return status, nil
}

func (s *StatusStore) CompareAndDelete(ctx context.Context, id string, expected domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.statuses[id]
	if !ok || current != expected {
		return false, nil
	}
	delete(s.statuses, id)
	return true, nil
}
