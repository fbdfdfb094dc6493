package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// FileSource mirrors a local directory into the cache.
type FileSource struct {
	repo string
	path string
}

func NewFileSource(path, repo string) (*FileSource, error) {
	if repo == "" {
		return nil, errors.New("need file source path")
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
	}
	return &FileSource{repo, path}, nil
}

func (f *FileSource) Sync(ctx context.Context) error {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return fmt.Errorf("source destination path %v does not exist", f.path)
	}
	if _, err := os.Stat(f.repo); os.IsNotExist(err) {
		return fmt.Errorf("source repo %v does not exist", f.repo)
	}
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.path, e.Name())); err != nil {
			return fmt.Errorf("error syncing filesystem: can't clear path: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.CopyFS(f.path, os.DirFS(f.repo)); err != nil {
		return fmt.Errorf("error syncing filesystem: can't copy fs: %w", err)
	}
	log.Debug("copied inventory source", "from", f.repo, "to", f.path)
	return nil
}

func (f *FileSource) Clean() error {
	return os.RemoveAll(f.path)
}
