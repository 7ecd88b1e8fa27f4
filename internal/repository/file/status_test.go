package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanderdlm/betascrubber/internal/domain"
)

func TestStatusStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewStatusStore(dir)
	require.NoError(t, err)

	for _, status := range []domain.Status{domain.Processing(), domain.Completed(), domain.Failed("Video exceeds 3 minute limit")} {
		require.NoError(t, s.Save(ctx, "job", status))
		got, err := s.Load(ctx, "job")
		require.NoError(t, err)
		assert.Equal(t, status, got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "job_status"))
	require.NoError(t, err)
	assert.Equal(t, "error: Video exceeds 3 minute limit", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestStatusStore_Missing(t *testing.T) {
	s, err := NewStatusStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrStatusNotFound)

	ok, err := s.CompareAndDelete(context.Background(), "nope", domain.Completed())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewStatusStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "job", domain.Completed()))

	ok, err := s.CompareAndDelete(ctx, "job", domain.Processing())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.FileExists(t, filepath.Join(dir, "job_status"))

	ok, err = s.CompareAndDelete(ctx, "job", domain.Completed())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, "job_status"))
}

func TestStatusStore_ReadsForeignTokens(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStatusStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "job_status"), []byte("completed\n"), 0o644))
	got, err := s.Load(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, domain.Completed(), got)
}
