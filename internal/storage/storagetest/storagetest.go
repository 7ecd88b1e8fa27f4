// Package storagetest is the behavioural contract every storage.Store
// backend must satisfy.
package storagetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/storage"
)

// Harness adapts a backend to the contract suite.
type Harness struct {
	// New returns an empty store.
	New func(t *testing.T) storage.Store
	// SetFinalizedAt forces the modification time of a job's final bucket.
	SetFinalizedAt func(t *testing.T, s storage.Store, id string, at time.Time)
}

// Run executes the contract suite against h.
func Run(t *testing.T, h Harness) {
	t.Run("ProvisionIsIdempotent", func(t *testing.T) { testProvisionIsIdempotent(t, h) })
	t.Run("EmptyBucketsDoNotExist", func(t *testing.T) { testEmptyBucketsDoNotExist(t, h) })
	t.Run("IngestMakesCandidatesExist", func(t *testing.T) { testIngest(t, h) })
	t.Run("PromoteThenPurge", func(t *testing.T) { testPromoteThenPurge(t, h) })
	t.Run("ListFramesSorted", func(t *testing.T) { testListFramesSorted(t, h) })
	t.Run("RejectsUnsafeNames", func(t *testing.T) { testRejectsUnsafeNames(t, h) })
	t.Run("RecentlyFinalized", func(t *testing.T) { testRecentlyFinalized(t, h) })
	t.Run("RecentlyFinalizedSkipsEmpty", func(t *testing.T) { testRecentlyFinalizedSkipsEmpty(t, h) })
	t.Run("Metadata", func(t *testing.T) { testMetadata(t, h) })
	t.Run("UnknownJob", func(t *testing.T) { testUnknownJob(t, h) })
}

// WriteFrames writes placeholder images named frame_%04d.jpg for each n
// into dir and returns their names.
func WriteFrames(t *testing.T, dir string, numbers ...int) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	names := make([]string, 0, len(numbers))
	for _, n := range numbers {
		name := fmt.Sprintf("frame_%04d.jpg", n)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("jpg"), 0o644))
		names = append(names, name)
	}
	return names
}

// ingested provisions a job and stores candidate frames for it.
func ingested(t *testing.T, s storage.Store, url, title string, numbers ...int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	id := identity.Encode(url)

	loc, err := s.Provision(ctx, id, title)
	require.NoError(t, err)
	names := WriteFrames(t, loc.WorkDir, numbers...)

	n, err := s.IngestCandidates(ctx, id, loc.WorkDir)
	require.NoError(t, err)
	require.Equal(t, len(numbers), n)
	return id, names
}

func filenames(frames []domain.Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Filename
	}
	return out
}

func testProvisionIsIdempotent(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/provision")

	first, err := s.Provision(ctx, id, "Title")
	require.NoError(t, err)
	second, err := s.Provision(ctx, id, "Title")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.DirExists(t, first.WorkDir)
}

func testEmptyBucketsDoNotExist(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/empty")

	_, err := s.Provision(ctx, id, "Empty")
	require.NoError(t, err)

	assert.False(t, s.FrameCandidatesExist(ctx, id), "provisioned but empty candidates must not exist")
	assert.False(t, s.FinalFramesExist(ctx, id), "provisioned but empty final must not exist")
}

func testIngest(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	id, names := ingested(t, s, "https://example.com/ingest", "Ingest", 1, 2, 3)

	assert.True(t, s.FrameCandidatesExist(ctx, id))
	assert.False(t, s.FinalFramesExist(ctx, id))
	assert.Equal(t, names, filenames(s.ListFrames(ctx, id, domain.BucketFrames)))
}

func testPromoteThenPurge(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	id, names := ingested(t, s, "https://example.com/promote", "Promote", 1, 2, 3, 4)

	promoted, err := s.PromoteToFinal(ctx, id, []string{names[1], names[3]})
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)

	purged, err := s.PurgeCandidates(ctx, id, names)
	require.NoError(t, err)
	assert.Equal(t, len(names), purged)

	assert.True(t, s.FinalFramesExist(ctx, id))
	assert.False(t, s.FrameCandidatesExist(ctx, id))
	assert.Equal(t, []string{names[1], names[3]}, filenames(s.ListFrames(ctx, id, domain.BucketFinal)))
	assert.Empty(t, s.ListFrames(ctx, id, domain.BucketFrames))
}

func testListFramesSorted(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	id, _ := ingested(t, s, "https://example.com/sorted", "Sorted", 10, 2, 7, 1)

	frames := s.ListFrames(ctx, id, domain.BucketFrames)
	assert.Equal(t,
		[]string{"frame_0001.jpg", "frame_0002.jpg", "frame_0007.jpg", "frame_0010.jpg"},
		filenames(frames),
	)
	for _, f := range frames {
		assert.NotEmpty(t, f.URL)
		assert.Contains(t, f.URL, f.Filename)
	}
}

func testRejectsUnsafeNames(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	id, _ := ingested(t, s, "https://example.com/unsafe", "Unsafe", 1)

	promoted, err := s.PromoteToFinal(ctx, id, []string{"../frame_0001.jpg", "metadata.json", ""})
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.False(t, s.FinalFramesExist(ctx, id))
}

func testRecentlyFinalized(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		id, names := ingested(t, s, url, fmt.Sprintf("Job_%d", i), 3, 1, 2)
		_, err := s.PromoteToFinal(ctx, id, names)
		require.NoError(t, err)
		require.NoError(t, s.SaveMetadata(ctx, id, domain.Metadata{Title: fmt.Sprintf("Job_%d", i), SourceURL: url, ProcessedAt: base}))
		h.SetFinalizedAt(t, s, id, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, id)
	}

	recent := s.RecentlyFinalized(ctx, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)
	assert.Equal(t, "Job_2", recent[0].Title)
	assert.Equal(t, "frame_0001.jpg", recent[0].Thumbnail)
	assert.NotEmpty(t, recent[0].URL)

	assert.Len(t, s.RecentlyFinalized(ctx, 10), 3)
	assert.Empty(t, s.RecentlyFinalized(ctx, 0))
}

func testRecentlyFinalizedSkipsEmpty(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	ingested(t, s, "https://example.com/pending", "Pending", 1)
	id, names := ingested(t, s, "https://example.com/done", "Done", 1)
	_, err := s.PromoteToFinal(ctx, id, names)
	require.NoError(t, err)

	recent := s.RecentlyFinalized(ctx, 5)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].ID)
}

func testMetadata(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	id, _ := ingested(t, s, "https://example.com/meta", "Meta_Title", 1)
	require.NoError(t, s.SaveMetadata(ctx, id, domain.Metadata{
		Title:       "Meta_Title",
		SourceURL:   "https://example.com/meta",
		ProcessedAt: time.Now().UTC(),
	}))

	assert.Equal(t, "Meta_Title", s.Title(ctx, id))
	assert.False(t, s.FinalFramesExist(ctx, id), "metadata alone is not a final frame")
}

func testUnknownJob(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/unknown")

	assert.False(t, s.FrameCandidatesExist(ctx, id))
	assert.False(t, s.FinalFramesExist(ctx, id))
	assert.Empty(t, s.ListFrames(ctx, id, domain.BucketFinal))
	assert.Empty(t, s.Title(ctx, id))

	n, err := s.PurgeCandidates(ctx, id, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
