package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps files flat in a single directory.
type DiskStore struct {
	baseDir string
}

func NewDiskStore(baseDir string) (*DiskStore, error) {
	// Create uploads directory if it doesn't exist
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating upload directory: %w", err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

// Dir returns the absolute directory files are stored in.
func (d *DiskStore) Dir() string {
	if abs, err := filepath.Abs(d.baseDir); err == nil {
		return abs
	}
	return d.baseDir
}

func (d *DiskStore) path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(d.baseDir, name), nil
}

func (d *DiskStore) Put(_ context.Context, name string, r io.Reader, size int64) (int64, error) {
	p, err := d.path(name)
	if err != nil {
		return 0, err
	}
	outfile, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return 0, ErrExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(outfile, r)
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("wrote %d bytes, expected %d", n, size)
	}
	if closeErr := outfile.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(p)
		return 0, fmt.Errorf("failed to save file: %w", err)
	}
	return n, nil
}

func (d *DiskStore) Open(_ context.Context, name string) (*Object, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, ErrNotFound
	}
	file, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file %s: %w", name, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, ErrNotFound
	}
	return &Object{
		ReadSeekCloser: file,
		Name:           name,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
	}, nil
}

func (d *DiskStore) Delete(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
