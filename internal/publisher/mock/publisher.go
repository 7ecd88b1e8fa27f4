package mock

import (
	"context"
	"sync"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock task publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.Task
	PublishFn func(ctx context.Context, task *domain.Task) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, task *domain.Task) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, task)
	}
	m.mu.Lock()
	m.Published = append(m.Published, task)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Count returns the number of published tasks.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}
