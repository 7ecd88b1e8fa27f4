package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sanderdlm/betascrubber/internal/repository"
)

var _ repository.LockStore = (*LockStore)(nil)

// LockStore is an in-process dedup set. Entries expire after ttl so a
// crashed worker cannot hold a job forever.
type LockStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	held  map[string]time.Time
	nowFn func() time.Time
}

func NewLockStore(ttl time.Duration) *LockStore {
	return &LockStore{
		ttl:   ttl,
		held:  make(map[string]time.Time),
		nowFn: time.Now,
	}
}

func (l *LockStore) AcquireLock(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if expires, ok := l.held[id]; ok && (l.ttl <= 0 || now.Before(expires)) {
		return false, nil
	}
	l.held[id] = now.Add(l.ttl)
	return true, nil
}

func (l *LockStore) ReleaseLock(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
	return nil
}
