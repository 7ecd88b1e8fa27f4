package mock

import (
	"context"
	"sync"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
	"github.com/sanderdlm/betascrubber/internal/repository/memory"
)

// ---- StatusStore mock ----

var _ repository.StatusStore = (*StatusStore)(nil)

// StatusStore is a test double for repository.StatusStore. Without hooks
// it behaves like the in-memory store.
type StatusStore struct {
	mu    sync.Mutex
	inner *memory.StatusStore

	SaveFn             func(ctx context.Context, id string, status domain.Status) error
	LoadFn             func(ctx context.Context, id string) (domain.Status, error)
	CompareAndDeleteFn func(ctx context.Context, id string, expected domain.Status) (bool, error)

	// Recorded calls for assertions.
	Saves   []StatusSave
	Deletes []string
}

type StatusSave struct {
	ID     string
	Status domain.Status
}

func (m *StatusStore) store() *memory.StatusStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inner == nil {
		m.inner = memory.NewStatusStore()
	}
	return m.inner
}

func (m *StatusStore) Save(ctx context.Context, id string, status domain.Status) error {
	m.mu.Lock()
	m.Saves = append(m.Saves, StatusSave{ID: id, Status: status})
	m.mu.Unlock()
	if m.SaveFn != nil {
		return m.SaveFn(ctx, id, status)
	}
	return m.store().Save(ctx, id, status)
}

func (m *StatusStore) Load(ctx context.Context, id string) (domain.Status, error) {
	if m.LoadFn != nil {
		return m.LoadFn(ctx, id)
	}
	return m.store().Load(ctx, id)
}

func (m *StatusStore) CompareAndDelete(ctx context.Context, id string, expected domain.Status) (bool, error) {
	if m.CompareAndDeleteFn != nil {
		return m.CompareAndDeleteFn(ctx, id, expected)
	}
	ok, err := m.store().CompareAndDelete(ctx, id, expected)
	if ok {
		m.mu.Lock()
		m.Deletes = append(m.Deletes, id)
		m.mu.Unlock()
	}
	return ok, err
}

// SavedStates returns the recorded states for id in order.
func (m *StatusStore) SavedStates(id string) []domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Status
	for _, s := range m.Saves {
		if s.ID == id {
			out = append(out, s.Status)
		}
	}
	return out
}

// ---- LockStore mock ----

var _ repository.LockStore = (*LockStore)(nil)

// LockStore is a test double for repository.LockStore.
type LockStore struct {
	mu   sync.Mutex
	held map[string]bool

	AcquireLockFn func(ctx context.Context, id string) (bool, error)
	ReleaseLockFn func(ctx context.Context, id string) error

	AcquireCalls []string
	ReleaseCalls []string
}

func (m *LockStore) AcquireLock(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, id)
	if m.AcquireLockFn != nil {
		m.mu.Unlock()
		return m.AcquireLockFn(ctx, id)
	}
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[string]bool)
	}
	if m.held[id] {
		return false, nil
	}
	m.held[id] = true
	return true, nil
}

func (m *LockStore) ReleaseLock(ctx context.Context, id string) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, id)
	delete(m.held, id)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, id)
	}
	return nil
}

// Held reports whether id is currently locked.
func (m *LockStore) Held(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[id]
}

// ---- JobIndex mock ----

var _ repository.JobIndex = (*JobIndex)(nil)

// JobIndex is a test double for repository.JobIndex.
type JobIndex struct {
	mu    sync.Mutex
	inner *memory.JobIndex

	UpsertFn       func(ctx context.Context, rec *domain.JobRecord) error
	UpdateStatusFn func(ctx context.Context, id string, status domain.Status, title string, frameCount int) error
	GetByIDFn      func(ctx context.Context, id string) (*domain.JobRecord, error)

	Upserts       []domain.JobRecord
	StatusUpdates []StatusUpdate
}

type StatusUpdate struct {
	ID         string
	Status     domain.Status
	Title      string
	FrameCount int
}

func (m *JobIndex) index() *memory.JobIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inner == nil {
		m.inner = memory.NewJobIndex()
	}
	return m.inner
}

func (m *JobIndex) Upsert(ctx context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	m.Upserts = append(m.Upserts, *rec)
	m.mu.Unlock()
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, rec)
	}
	return m.index().Upsert(ctx, rec)
}

func (m *JobIndex) UpdateStatus(ctx context.Context, id string, status domain.Status, title string, frameCount int) error {
	m.mu.Lock()
	m.StatusUpdates = append(m.StatusUpdates, StatusUpdate{ID: id, Status: status, Title: title, FrameCount: frameCount})
	m.mu.Unlock()
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status, title, frameCount)
	}
	return m.index().UpdateStatus(ctx, id, status, title, frameCount)
}

func (m *JobIndex) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return m.index().GetByID(ctx, id)
}
