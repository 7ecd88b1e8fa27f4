package usecase

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/identity"
	pipemock "github.com/sanderdlm/betascrubber/internal/pipeline/mock"
	mockpub "github.com/sanderdlm/betascrubber/internal/publisher/mock"
	mockrepo "github.com/sanderdlm/betascrubber/internal/repository/mock"
	"github.com/sanderdlm/betascrubber/internal/storage/local"
	"github.com/sanderdlm/betascrubber/internal/storage/storagetest"
	"github.com/sanderdlm/betascrubber/internal/tracker"
)

const testURL = "https://example.com/v"

// testEnv wires every usecase against a local store in a temp dir and
// hand-written mocks.
type testEnv struct {
	store    *local.Store
	pipe     *pipemock.Pipeline
	statuses *mockrepo.StatusStore
	locks    *mockrepo.LockStore
	index    *mockrepo.JobIndex
	pub      *mockpub.MockPublisher
	tracker  *tracker.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := local.NewStore(t.TempDir(), "/media", zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	env := &testEnv{
		store:    store,
		pipe:     &pipemock.Pipeline{Title: "Test Video", Duration: 60},
		statuses: &mockrepo.StatusStore{},
		locks:    &mockrepo.LockStore{},
		index:    &mockrepo.JobIndex{},
		pub:      mockpub.NewMockPublisher(),
	}
	env.tracker = tracker.New(env.statuses, store, zap.NewNop())
	return env
}

func (e *testEnv) submit() *SubmitJobUsecase {
	return NewSubmitJobUsecase(e.store, e.pipe, e.locks, e.tracker, e.index, e.pub, zap.NewNop())
}

func (e *testEnv) process() *ProcessJobUsecase {
	return NewProcessJobUsecase(e.store, e.pipe, e.tracker, e.locks, e.index, zap.NewNop())
}

// withCandidates provisions url's job and writes n candidate frames.
func (e *testEnv) withCandidates(t *testing.T, url string, n int) string {
	t.Helper()
	ctx := context.Background()
	id := identity.Encode(url)
	loc, err := e.store.Provision(ctx, id, "Seeded")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	numbers := make([]int, n)
	for i := range numbers {
		numbers[i] = i + 1
	}
	storagetest.WriteFrames(t, loc.WorkDir, numbers...)
	return id
}

// withFinal seeds url's job with n frames and promotes all of them.
func (e *testEnv) withFinal(t *testing.T, url string, n int) string {
	t.Helper()
	ctx := context.Background()
	id := e.withCandidates(t, url, n)
	var names []string
	for _, f := range e.store.ListFrames(ctx, id, "frames") {
		names = append(names, f.Filename)
	}
	if _, err := e.store.PromoteToFinal(ctx, id, names); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := e.store.PurgeCandidates(ctx, id, names); err != nil {
		t.Fatalf("purge: %v", err)
	}
	return id
}
