// Package storage reads and writes note artifacts on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Local confines every path to Root when Root is set.
type Local struct {
	Root string
}

func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("storage: empty path")
	}
	clean := filepath.Clean(path)
	if l.Root == "" {
		return clean, nil
	}
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", fmt.Errorf("storage: resolve root: %w", err)
	}
	abs := clean
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, clean)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || (len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: %s escapes %s", path, root)
	}
	return abs, nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	p, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete is a no-op for missing files.
func (l *Local) Delete(ctx context.Context, path string) error {
	p, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	p, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// WriteFile writes through a temp file and rename so readers never see a partial note.
func (l *Local) WriteFile(ctx context.Context, path string, data []byte) error {
	p, err := l.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", p, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("storage: chmod %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("storage: rename %s: %w", p, err)
	}
	return nil
}
