package files

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrExists   = errors.New("file already exists")
)

// Object is an open stored file.
type Object struct {
	io.ReadSeekCloser
	Name    string
	Size    int64
	ModTime time.Time
}

// Store persists raw file bytes by name.
type Store interface {
	// Put stores r under name and returns the number of bytes written. It
	// never overwrites: an existing name yields ErrExists.
	Put(ctx context.Context, name string, r io.Reader, size int64) (int64, error)
	// Open returns the stored object, or ErrNotFound.
	Open(ctx context.Context, name string) (*Object, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
}
