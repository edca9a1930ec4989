package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local archives into a directory on the same host.
type Local struct {
	dir string
}

// NewLocal returns an archiver rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive folder: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the archive directory.
func (l *Local) Dir() string { return l.dir }

// Put moves src to dir/name. The key is the archived file's path.
func (l *Local) Put(_ context.Context, src, name string) (string, error) {
	dst := filepath.Join(l.dir, filepath.Base(name))
	if err := move(src, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", filepath.Base(src), err)
	}
	return dst, nil
}

// Exists reports whether the archived file at key is present.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	_, err := os.Stat(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Restore moves the archived file back to dst.
func (l *Local) Restore(ctx context.Context, key, dst string) error {
	ok, err := l.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := move(key, dst); err != nil {
		return fmt.Errorf("restore %s: %w", filepath.Base(key), err)
	}
	return nil
}

// Remove deletes the archived file.
func (l *Local) Remove(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := os.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove archive %s: %w", filepath.Base(key), err)
	}
	return nil
}

// move renames src to dst, copying when they sit on different devices.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
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
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
