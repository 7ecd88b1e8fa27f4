// Package janitor periodically removes work files left behind by workers
// that died mid-run: partial and orphaned source videos and unrenamed status
// temp files.
package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/metrics"
)

// DefaultSchedule runs a sweep every 15 minutes.
const DefaultSchedule = "@every 15m"

// statusTempMarker matches the temp files the file status store renames
// into place, e.g. "{id}_status.123456".
const statusTempMarker = "_status."

var staleSuffixes = []string{".mp4", ".part", ".ytdl", ".tmp"}

// Janitor sweeps a work directory on a cron schedule.
type Janitor struct {
	root   string
	maxAge time.Duration
	cron   *cron.Cron
	logger *zap.Logger
	nowFn  func() time.Time
}

// New creates a janitor for root. Files older than maxAge are removed by
// every sweep; schedule accepts standard cron expressions and descriptors
// such as "@every 15m".
func New(root, schedule string, maxAge time.Duration, logger *zap.Logger) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("janitor: max age must be positive, got %s", maxAge)
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	j := &Janitor{
		root:   root,
		maxAge: maxAge,
		logger: logger,
		nowFn:  time.Now,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs the schedule in the background.
func (j *Janitor) Start() {
	j.logger.Info("Janitor started", zap.String("root", j.root), zap.Duration("max_age", j.maxAge))
	j.cron.Start()
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Janitor stopped")
}

func (j *Janitor) run() {
	removed, err := j.Sweep(context.Background())
	if err != nil {
		j.logger.Warn("Janitor sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Info("Janitor removed stale files", zap.Int("removed", removed))
	}
}

// Sweep removes stale work files directly under root and returns how many
// were removed. Directories are never touched.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("janitor: read %s: %w", j.root, err)
	}

	cutoff := j.nowFn().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.Type().IsRegular() || !stale(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.root, e.Name())
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				j.logger.Warn("Failed to remove stale file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		j.logger.Debug("Removed stale file", zap.String("path", path), zap.Time("modified", info.ModTime()))
		metrics.JanitorRemoved.Inc()
		removed++
	}
	return removed, nil
}

func stale(name string) bool {
	if strings.Contains(name, statusTempMarker) {
		return true
	}
	for _, suffix := range staleSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
