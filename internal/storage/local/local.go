// Package local stores job artifacts as directories under a work root:
// {root}/{id}___{title}_frames and {root}/{id}___{title}_final.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/metrics"
	"github.com/sanderdlm/betascrubber/internal/storage"
)

const backendName = "local"

var _ storage.Store = (*Store)(nil)

// Store is the local filesystem artifact store.
type Store struct {
	root      string
	publicURL string
	logger    *zap.Logger
}

// NewStore creates a store rooted at root. Frame URLs are built under
// publicURL, which is where the HTTP layer serves root from.
func NewStore(root, publicURL string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("local: create root: %w", err)
	}
	return &Store{
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}, nil
}

func (s *Store) Name() string { return backendName }

// Root returns the directory the store writes into.
func (s *Store) Root() string { return s.root }

func (s *Store) SourceVideoPath(id, title string) string {
	return filepath.Join(s.root, storage.JobDirName(id, title)+".mp4")
}

// Provision reuses the job's existing directories when present, so a title
// change between runs does not fork the job.
func (s *Store) Provision(ctx context.Context, id, title string) (storage.Locations, error) {
	if existing := s.jobDir(id, storage.FramesSuffix); existing != "" {
		title = s.titleOf(id, filepath.Base(existing), storage.FramesSuffix)
	} else if existing := s.jobDir(id, storage.FinalSuffix); existing != "" {
		title = s.titleOf(id, filepath.Base(existing), storage.FinalSuffix)
	}

	base := filepath.Join(s.root, storage.JobDirName(id, title))
	loc := storage.Locations{
		WorkDir: base + storage.FramesSuffix,
		Frames:  base + storage.FramesSuffix,
		Final:   base + storage.FinalSuffix,
	}
	for _, dir := range []string{loc.Frames, loc.Final} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return storage.Locations{}, fmt.Errorf("local: provision %s: %w", dir, err)
		}
	}
	return loc, nil
}

func (s *Store) FrameCandidatesExist(ctx context.Context, id string) bool {
	return len(s.images(s.jobDir(id, storage.FramesSuffix))) > 0
}

func (s *Store) FinalFramesExist(ctx context.Context, id string) bool {
	return len(s.images(s.jobDir(id, storage.FinalSuffix))) > 0
}

// IngestCandidates counts the frames already sampled into the candidate
// directory. Frames sampled elsewhere are moved in first.
func (s *Store) IngestCandidates(ctx context.Context, id, localDir string) (int, error) {
	framesDir := s.jobDir(id, storage.FramesSuffix)
	if framesDir == "" {
		return 0, fmt.Errorf("local: job %s is not provisioned", id)
	}

	if filepath.Clean(localDir) != filepath.Clean(framesDir) {
		for _, name := range s.images(localDir) {
			if err := os.Rename(filepath.Join(localDir, name), filepath.Join(framesDir, name)); err != nil {
				return 0, fmt.Errorf("local: move %s: %w", name, err)
			}
		}
	}

	return len(s.images(framesDir)), nil
}

func (s *Store) PromoteToFinal(ctx context.Context, id string, filenames []string) (int, error) {
	framesDir := s.jobDir(id, storage.FramesSuffix)
	if framesDir == "" {
		return 0, nil
	}
	finalDir := strings.TrimSuffix(framesDir, storage.FramesSuffix) + storage.FinalSuffix
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return 0, fmt.Errorf("local: create final dir: %w", err)
	}

	promoted := 0
	for _, name := range filenames {
		if !storage.ValidFrameName(name) {
			continue
		}
		if err := copyFile(filepath.Join(framesDir, name), filepath.Join(finalDir, name)); err != nil {
			s.logger.Warn("Failed to promote frame",
				zap.String("job_id", id),
				zap.String("frame", name),
				zap.Error(err),
			)
			continue
		}
		promoted++
	}
	return promoted, nil
}

func (s *Store) PurgeCandidates(ctx context.Context, id string, filenames []string) (int, error) {
	framesDir := s.jobDir(id, storage.FramesSuffix)
	if framesDir == "" {
		return 0, nil
	}

	purged := 0
	for _, name := range filenames {
		if !storage.ValidFrameName(name) {
			continue
		}
		if err := os.Remove(filepath.Join(framesDir, name)); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("Failed to purge frame", zap.String("job_id", id), zap.String("frame", name), zap.Error(err))
			}
			continue
		}
		purged++
	}
	return purged, nil
}

func (s *Store) ListFrames(ctx context.Context, id string, bucket domain.Bucket) []domain.Frame {
	suffix := storage.FramesSuffix
	if bucket == domain.BucketFinal {
		suffix = storage.FinalSuffix
	}
	dir := s.jobDir(id, suffix)
	names := s.images(dir)

	frames := make([]domain.Frame, 0, len(names))
	for _, name := range names {
		frames = append(frames, domain.Frame{
			Filename: name,
			URL:      s.frameURL(filepath.Base(dir), name),
		})
	}
	return frames
}

func (s *Store) RecentlyFinalized(ctx context.Context, limit int) []domain.RecentJob {
	if limit <= 0 {
		return nil
	}

	dirs, err := filepath.Glob(filepath.Join(s.root, "*"+storage.TitleSeparator+"*"+storage.FinalSuffix))
	if err != nil {
		metrics.StorageErrors.WithLabelValues(backendName, "recent").Inc()
		return nil
	}

	var recent []domain.RecentJob
	for _, dir := range dirs {
		images := s.images(dir)
		if len(images) == 0 {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		id, title, ok := splitDirName(filepath.Base(dir), storage.FinalSuffix)
		if !ok {
			continue
		}
		recent = append(recent, domain.RecentJob{
			ID:        id,
			Title:     title,
			Thumbnail: images[0],
			URL:       s.frameURL(filepath.Base(dir), images[0]),
			UpdatedAt: info.ModTime(),
		})
	}

	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].UpdatedAt.Equal(recent[j].UpdatedAt) {
			return recent[i].UpdatedAt.After(recent[j].UpdatedAt)
		}
		return recent[i].ID < recent[j].ID
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

// SaveMetadata writes metadata.json into the final directory.
func (s *Store) SaveMetadata(ctx context.Context, id string, meta domain.Metadata) error {
	finalDir := s.jobDir(id, storage.FinalSuffix)
	if finalDir == "" {
		return fmt.Errorf("local: job %s is not provisioned", id)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("local: marshal metadata: %w", err)
	}
	tmp := filepath.Join(finalDir, storage.MetadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("local: write metadata: %w", err)
	}
	return os.Rename(tmp, filepath.Join(finalDir, storage.MetadataFile))
}

func (s *Store) Title(ctx context.Context, id string) string {
	if dir := s.jobDir(id, storage.FramesSuffix); dir != "" {
		return s.titleOf(id, filepath.Base(dir), storage.FramesSuffix)
	}
	if dir := s.jobDir(id, storage.FinalSuffix); dir != "" {
		return s.titleOf(id, filepath.Base(dir), storage.FinalSuffix)
	}
	return ""
}

// FinalizedAt sets the modification time of a job's final directory.
func (s *Store) FinalizedAt(id string, at time.Time) error {
	dir := s.jobDir(id, storage.FinalSuffix)
	if dir == "" {
		return fmt.Errorf("local: job %s has no final dir", id)
	}
	return os.Chtimes(dir, at, at)
}

// jobDir finds the directory {id}___*{suffix} for id, or "".
func (s *Store) jobDir(id, suffix string) string {
	if id == "" {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(s.root, id+storage.TitleSeparator+"*"+suffix))
	if err != nil {
		return ""
	}
	sort.Strings(matches)
	for _, m := range matches {
		gotID, _, ok := splitDirName(filepath.Base(m), suffix)
		if !ok || gotID != id {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			return m
		}
	}
	return ""
}

func (s *Store) titleOf(id, dirName, suffix string) string {
	_, title, ok := splitDirName(dirName, suffix)
	if !ok {
		return ""
	}
	return title
}

// images lists the image files of dir sorted by name.
func (s *Store) images(dir string) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && storage.IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) frameURL(dirName, name string) string {
	return s.publicURL + "/" + url.PathEscape(dirName) + "/" + url.PathEscape(name)
}

// splitDirName splits "{id}___{title}{suffix}" into id and title. Ids may
// themselves contain underscores, so the first split yielding a decodable
// id wins.
func splitDirName(name, suffix string) (id, title string, ok bool) {
	if !strings.HasSuffix(name, suffix) {
		return "", "", false
	}
	stem := strings.TrimSuffix(name, suffix)
	for i := 0; i+len(storage.TitleSeparator) <= len(stem); i++ {
		if !strings.HasPrefix(stem[i:], storage.TitleSeparator) {
			continue
		}
		if candidate := stem[:i]; identity.Valid(candidate) {
			return candidate, stem[i+len(storage.TitleSeparator):], true
		}
	}
	return "", "", false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
