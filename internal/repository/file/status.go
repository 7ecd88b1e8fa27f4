// Package file persists job status records as {dir}/{id}_status files.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
)

const statusSuffix = "_status"

var _ repository.StatusStore = (*StatusStore)(nil)

// StatusStore writes one small file per job containing the status token.
// The mutex makes compare-and-delete atomic within one process; writers in
// other processes only ever Save.
type StatusStore struct {
	dir string
	mu  sync.Mutex
}

func NewStatusStore(dir string) (*StatusStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create status dir: %w", err)
	}
	return &StatusStore{dir: dir}, nil
}

func (s *StatusStore) path(id string) string {
	return filepath.Join(s.dir, id+statusSuffix)
}

// Save writes through a temp file and rename so readers never see a
// partial token.
func (s *StatusStore) Save(ctx context.Context, id string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, id+statusSuffix+".*")
	if err != nil {
		return fmt.Errorf("file: save status: %w", err)
	}
	if _, err := tmp.WriteString(status.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file: save status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file: save status: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file: save status: %w", err)
	}
	return nil
}

func (s *StatusStore) Load(ctx context.Context, id string) (domain.Status, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Status{}, domain.ErrStatusNotFound
		}
		return domain.Status{}, fmt.Errorf("file: load status: %w", err)
	}
	return domain.ParseStatus(string(data)), nil
}

func (s *StatusStore) CompareAndDelete(ctx context.Context, id string, expected domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrStatusNotFound) {
			return false, nil
		}
		return false, err
	}
	if current != expected {
		return false, nil
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("file: delete status: %w", err)
	}
	return true, nil
}
