// Package pipeline drives the external download and frame sampling tools.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
)

const (
	DefaultTimeout     = 300 * time.Second
	DefaultMaxDuration = 180
	DefaultFPS         = 1

	// UntitledTitle is used when the source reports no title.
	UntitledTitle = "Untitled"

	// downloadFormat caps the fetched media at 480p.
	downloadFormat = "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/best[height<=480][ext=mp4]/best[height<=480]/best"

	// FramePattern is the ffmpeg output pattern; names sort in capture order.
	FramePattern = "frame_%04d.jpg"
)

// MediaPipeline is the set of tool-backed operations a worker needs.
type MediaPipeline interface {
	FetchTitle(ctx context.Context, url string) (string, error)
	FetchDuration(ctx context.Context, url string) (int, error)
	EnforceDurationLimit(ctx context.Context, url string) error
	Download(ctx context.Context, url, destPath string) error
	SampleFrames(ctx context.Context, videoPath, outDir string) ([]string, error)
}

var _ MediaPipeline = (*Pipeline)(nil)

// Options configures a Pipeline. Zero values fall back to the defaults.
type Options struct {
	YtDlpPath   string
	FfmpegPath  string
	Timeout     time.Duration
	MaxDuration int
	FPS         int
}

// Pipeline runs yt-dlp and ffmpeg.
type Pipeline struct {
	ytdlp       string
	ffmpeg      string
	maxDuration int
	fps         int
	runner      *runner
	logger      *zap.Logger
}

// New creates a new Pipeline.
func New(opts Options, logger *zap.Logger) *Pipeline {
	if opts.YtDlpPath == "" {
		opts.YtDlpPath = "yt-dlp"
	}
	if opts.FfmpegPath == "" {
		opts.FfmpegPath = "ffmpeg"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &Pipeline{
		ytdlp:       opts.YtDlpPath,
		ffmpeg:      opts.FfmpegPath,
		maxDuration: opts.MaxDuration,
		fps:         opts.FPS,
		runner:      &runner{timeout: opts.Timeout, logger: logger},
		logger:      logger,
	}
}

// FetchTitle returns the human readable title of the video at url.
func (p *Pipeline) FetchTitle(ctx context.Context, url string) (string, error) {
	out, err := p.runner.run(ctx, domain.StageTitle, domain.ErrMetadataFailed,
		p.ytdlp, "--no-playlist", "--get-title", url)
	if err != nil {
		return "", err
	}
	title := firstLine(out)
	if title == "" {
		return UntitledTitle, nil
	}
	return title, nil
}

// FetchDuration returns the duration of the video at url in seconds.
func (p *Pipeline) FetchDuration(ctx context.Context, url string) (int, error) {
	out, err := p.runner.run(ctx, domain.StageDuration, domain.ErrMetadataFailed,
		p.ytdlp, "--no-playlist", "--get-duration", url)
	if err != nil {
		return 0, err
	}
	seconds, err := ParseDuration(firstLine(out))
	if err != nil {
		return 0, &domain.PipelineError{Stage: domain.StageDuration, Detail: err.Error(), Err: domain.ErrMetadataFailed}
	}
	return seconds, nil
}

// EnforceDurationLimit fails with domain.ErrDurationExceeded when the video
// is longer than the configured maximum. It never downloads anything.
func (p *Pipeline) EnforceDurationLimit(ctx context.Context, url string) error {
	seconds, err := p.FetchDuration(ctx, url)
	if err != nil {
		return err
	}
	if seconds > p.maxDuration {
		return fmt.Errorf("%w: %ds exceeds the %ds limit", domain.ErrDurationExceeded, seconds, p.maxDuration)
	}
	return nil
}

// Download fetches the video at url into destPath as mp4.
func (p *Pipeline) Download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &domain.PipelineError{Stage: domain.StageDownload, Detail: err.Error(), Err: domain.ErrDownloadFailed}
	}

	_, err := p.runner.run(ctx, domain.StageDownload, domain.ErrDownloadFailed,
		p.ytdlp,
		"--no-playlist",
		"-f", downloadFormat,
		"--merge-output-format", "mp4",
		"-o", destPath,
		url,
	)
	if err != nil {
		return err
	}

	if info, statErr := os.Stat(destPath); statErr != nil || info.Size() == 0 {
		return &domain.PipelineError{Stage: domain.StageDownload, Detail: "no output file produced", Err: domain.ErrDownloadFailed}
	}

	p.logger.Info("Video downloaded", zap.String("path", destPath))
	return nil
}

// SampleFrames extracts frames from videoPath into outDir and returns the
// frame filenames in capture order.
func (p *Pipeline) SampleFrames(ctx context.Context, videoPath, outDir string) ([]string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageSample, Detail: "source video missing", Err: domain.ErrExtractionFailed}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageSample, Detail: err.Error(), Err: domain.ErrExtractionFailed}
	}

	_, err := p.runner.run(ctx, domain.StageSample, domain.ErrExtractionFailed,
		p.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d,scale=-1:720:flags=fast_bilinear", p.fps),
		"-q:v", "5",
		"-c:v", "mjpeg",
		filepath.Join(outDir, FramePattern),
	)
	if err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil || len(frames) == 0 {
		return nil, &domain.PipelineError{Stage: domain.StageSample, Detail: "no frames produced", Err: domain.ErrExtractionFailed}
	}

	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = filepath.Base(f)
	}
	sort.Strings(names)

	p.logger.Info("Frames sampled", zap.String("video", videoPath), zap.Int("frames", len(names)))
	return names, nil
}

// ParseDuration converts a "[[H:]M:]S" string into seconds.
func ParseDuration(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("malformed duration %q", s)
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed duration %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
