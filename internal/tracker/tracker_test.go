package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository/memory"
	"github.com/sanderdlm/betascrubber/internal/repository/mock"
)

type fakeArtifacts struct {
	candidates bool
	final      bool
}

func (f *fakeArtifacts) FrameCandidatesExist(ctx context.Context, id string) bool { return f.candidates }
func (f *fakeArtifacts) FinalFramesExist(ctx context.Context, id string) bool     { return f.final }

func newTestTracker(artifacts *fakeArtifacts) *Tracker {
	return New(memory.NewStatusStore(), artifacts, zap.NewNop())
}

func TestGet_Absent(t *testing.T) {
	tr := newTestTracker(&fakeArtifacts{})

	status, err := tr.Get(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Absent(), status)
}

func TestGet_ProcessingIsNotConsumed(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeArtifacts{})
	require.NoError(t, tr.Set(ctx, "job", domain.Processing()))

	for i := 0; i < 3; i++ {
		status, err := tr.Get(ctx, "job")
		require.NoError(t, err)
		assert.Equal(t, domain.Processing(), status)
	}
}

func TestGet_CompletedReadOnce(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeArtifacts{})
	require.NoError(t, tr.Set(ctx, "job", domain.Completed()))

	first, err := tr.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Completed(), first)

	second, err := tr.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Absent(), second)
}

func TestGet_ErrorReadOnceThenFallback(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeArtifacts{candidates: true})
	require.NoError(t, tr.Set(ctx, "job", domain.Failed("Video download failed")))

	first, err := tr.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Failed("Video download failed"), first)

	second, err := tr.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Completed(), second, "leftover candidates infer completed")
}

func TestGet_FinalFramesInferCompleted(t *testing.T) {
	tr := newTestTracker(&fakeArtifacts{final: true})

	status, err := tr.Get(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Completed(), status)
}

func TestGet_ConcurrentReadersConsumeOnce(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeArtifacts{})
	require.NoError(t, tr.Set(ctx, "job", domain.Completed()))

	var completed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := tr.Get(ctx, "job")
			if err == nil && status.State == domain.StateCompleted {
				completed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), completed.Load())
}

func TestGet_RetriesWhenRecordChanges(t *testing.T) {
	ctx := context.Background()
	statuses := &mock.StatusStore{}
	require.NoError(t, statuses.Save(ctx, "job", domain.Completed()))

	calls := 0
	statuses.CompareAndDeleteFn = func(ctx context.Context, id string, expected domain.Status) (bool, error) {
		calls++
		if calls == 1 {
			// A worker for a resubmission wins the race.
			require.NoError(t, statuses.Save(ctx, id, domain.Processing()))
			return false, nil
		}
		return true, nil
	}

	tr := New(statuses, &fakeArtifacts{}, zap.NewNop())
	status, err := tr.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Processing(), status)
	assert.Equal(t, 1, calls)
}

func TestGet_BackendError(t *testing.T) {
	statuses := &mock.StatusStore{
		LoadFn: func(ctx context.Context, id string) (domain.Status, error) {
			return domain.Status{}, errors.New("redis: connection refused")
		},
	}
	tr := New(statuses, &fakeArtifacts{}, zap.NewNop())

	_, err := tr.Get(context.Background(), "job")
	assert.Error(t, err)
}

func TestSet_Error(t *testing.T) {
	statuses := &mock.StatusStore{
		SaveFn: func(ctx context.Context, id string, status domain.Status) error {
			return errors.New("disk full")
		},
	}
	tr := New(statuses, &fakeArtifacts{}, zap.NewNop())

	err := tr.Set(context.Background(), "job", domain.Processing())
	assert.ErrorContains(t, err, "disk full")
}
