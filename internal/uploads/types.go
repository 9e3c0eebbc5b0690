package uploads

import (
	"errors"
	"io"
	"time"

	"github.com/frodejac/writeups/internal/files"
	"github.com/frodejac/writeups/internal/metadata"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNoFile         = errors.New("no file provided")
	ErrNoSelection    = errors.New("no file selected")
	ErrDisallowedType = errors.New("file type not allowed")
	ErrTooLarge       = errors.New("file too large")
	ErrNotFound       = files.ErrNotFound
)

type Config struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

type UploadService struct {
	records metadata.Store
	files   files.Store
	config  *Config
	now     func() time.Time
}

// Upload is one file received from the administrator. A nil Body means the
// request carried no file at all.
type Upload struct {
	Filename    string
	Title       string
	Description string
	Size        int64
	Body        io.Reader
}
