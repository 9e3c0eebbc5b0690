package uploads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/files"
	"github.com/frodejac/writeups/internal/metadata"
	"github.com/frodejac/writeups/internal/metrics"
	"github.com/frodejac/writeups/internal/random"
	"go.uber.org/zap"
)

func NewUploadService(records metadata.Store, store files.Store, cfg *Config) *UploadService {
	return &UploadService{
		records: records,
		files:   store,
		config:  cfg,
		now:     time.Now,
	}
}

// MaxFileSize is the largest accepted upload in bytes.
func (u *UploadService) MaxFileSize() int64 {
	return u.config.MaxFileSize
}

// AllowedExtensions lists the accepted extensions, lower-cased with a dot.
func (u *UploadService) AllowedExtensions() []string {
	return u.config.AllowedExtensions
}

// Upload validates in, stores the file under a generated name and appends its
// record. The file is written before the record; if the record cannot be
// saved the file is removed again.
func (u *UploadService) Upload(ctx context.Context, principal *auth.Principal, in *Upload) (*metadata.Record, error) {
	if err := u.validate(principal, in); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	now := u.now().UTC()
	name := files.GenerateName(in.Filename, now)
	written, err := u.files.Put(ctx, name, in.Body, in.Size)
	if errors.Is(err, files.ErrExists) {
		// Same name within the same second
		name = files.WithSuffix(name, random.String(6))
		written, err = u.files.Put(ctx, name, in.Body, in.Size)
	}
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = name
	}
	record := metadata.Record{
		Filename:    name,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		UploadDate:  now,
		Size:        written,
	}
	if err := u.records.Append(ctx, record); err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		if delErr := u.files.Delete(ctx, name); delErr != nil {
			metrics.OrphanedFilesTotal.Inc()
			zap.S().Errorw("Failed to remove file after metadata error", "filename", name, "error", delErr)
		}
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues("stored").Inc()
	metrics.UploadedBytesTotal.Add(float64(written))
	zap.S().Infow("File uploaded", "filename", name, "size", written)
	return &record, nil
}

func (u *UploadService) validate(principal *auth.Principal, in *Upload) error {
	if !principal.Can(auth.CapManageUploads) {
		return ErrUnauthorized
	}
	if in == nil || in.Body == nil {
		return ErrNoFile
	}
	if in.Filename == "" {
		return ErrNoSelection
	}
	if !u.checkFileExtension(in.Filename) {
		return ErrDisallowedType
	}
	if in.Size < 0 || in.Size > u.config.MaxFileSize {
		return ErrTooLarge
	}
	return nil
}

// Delete removes every record named filename and then the file itself. A
// missing record or file is not an error, and a failure to remove the file
// after the records are gone is only logged.
func (u *UploadService) Delete(ctx context.Context, principal *auth.Principal, filename string) error {
	if !principal.Can(auth.CapManageUploads) {
		return ErrUnauthorized
	}
	removed, err := u.records.Remove(ctx, filename)
	if err != nil {
		return fmt.Errorf("failed to remove metadata: %w", err)
	}
	if files.ValidName(filename) {
		if err := u.files.Delete(ctx, filename); err != nil {
			zap.S().Warnw("Failed to delete file", "filename", filename, "error", err)
		}
	}
	if removed > 0 {
		metrics.DeletionsTotal.Inc()
	}
	zap.S().Infow("File deleted", "filename", filename, "records", removed)
	return nil
}

func (u *UploadService) List(ctx context.Context) ([]metadata.Record, error) {
	records, err := u.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	return records, nil
}

// Open returns a stored file for download. Only names with an allowed
// extension are served.
func (u *UploadService) Open(ctx context.Context, filename string) (*files.Object, error) {
	if !files.ValidName(filename) || !u.checkFileExtension(filename) {
		return nil, ErrNotFound
	}
	obj, err := u.files.Open(ctx, filename)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return obj, nil
}

func (u *UploadService) checkFileExtension(filename string) bool {
	ext := files.Extension(filename)
	if ext == "" {
		return false
	}
	for _, allowedExt := range u.config.AllowedExtensions {
		if allowedExt == ext {
			return true
		}
	}
	return false
}
