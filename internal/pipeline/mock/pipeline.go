package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sanderdlm/betascrubber/internal/pipeline"
)

var _ pipeline.MediaPipeline = (*Pipeline)(nil)

// Pipeline is a test double for pipeline.MediaPipeline. By default it
// "downloads" a small file and "samples" Frames frames.
type Pipeline struct {
	mu sync.Mutex

	Title    string
	Duration int
	Frames   int

	FetchTitleFn           func(ctx context.Context, url string) (string, error)
	EnforceDurationLimitFn func(ctx context.Context, url string) error
	DownloadFn             func(ctx context.Context, url, destPath string) error
	SampleFramesFn         func(ctx context.Context, videoPath, outDir string) ([]string, error)

	// Recorded calls for assertions.
	TitleCalls    []string
	DurationCalls []string
	DownloadCalls []string
	SampleCalls   []string
}

func (m *Pipeline) FetchTitle(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	m.TitleCalls = append(m.TitleCalls, url)
	m.mu.Unlock()
	if m.FetchTitleFn != nil {
		return m.FetchTitleFn(ctx, url)
	}
	if m.Title == "" {
		return pipeline.UntitledTitle, nil
	}
	return m.Title, nil
}

func (m *Pipeline) FetchDuration(ctx context.Context, url string) (int, error) {
	m.mu.Lock()
	m.DurationCalls = append(m.DurationCalls, url)
	m.mu.Unlock()
	return m.Duration, nil
}

func (m *Pipeline) EnforceDurationLimit(ctx context.Context, url string) error {
	if m.EnforceDurationLimitFn != nil {
		m.mu.Lock()
		m.DurationCalls = append(m.DurationCalls, url)
		m.mu.Unlock()
		return m.EnforceDurationLimitFn(ctx, url)
	}
	_, err := m.FetchDuration(ctx, url)
	return err
}

func (m *Pipeline) Download(ctx context.Context, url, destPath string) error {
	m.mu.Lock()
	m.DownloadCalls = append(m.DownloadCalls, url)
	m.mu.Unlock()
	if m.DownloadFn != nil {
		return m.DownloadFn(ctx, url, destPath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

func (m *Pipeline) SampleFrames(ctx context.Context, videoPath, outDir string) ([]string, error) {
	m.mu.Lock()
	m.SampleCalls = append(m.SampleCalls, videoPath)
	m.mu.Unlock()
	if m.SampleFramesFn != nil {
		return m.SampleFramesFn(ctx, videoPath, outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	n := m.Frames
	if n == 0 {
		n = 3
	}
	names := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf(pipeline.FramePattern, i)
		if err := os.WriteFile(filepath.Join(outDir, name), []byte("jpg"), 0o644); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Downloads returns the number of Download calls made so far.
func (m *Pipeline) Downloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.DownloadCalls)
}
