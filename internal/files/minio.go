package files

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// MinioStore keeps files as objects in a single bucket.
type MinioStore struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStore connects to the object store and creates the bucket if it
// does not exist yet.
func NewMinioStore(ctx context.Context, cfg *MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket %q exists: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.BucketName, err)
		}
	}
	return &MinioStore{client: client, bucketName: cfg.BucketName}, nil
}

// Bucket returns the bucket objects are stored in.
func (m *MinioStore) Bucket() string {
	return m.bucketName
}

func (m *MinioStore) Put(ctx context.Context, name string, r io.Reader, size int64) (int64, error) {
	if !ValidName(name) {
		return 0, fmt.Errorf("invalid file name %q", name)
	}
	_, err := m.client.StatObject(ctx, m.bucketName, name, minio.StatObjectOptions{})
	if err == nil {
		return 0, ErrExists
	}
	if !isNoSuchKey(err) {
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}

	info, err := m.client.PutObject(ctx, m.bucketName, name, r, size, minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload object: %w", err)
	}
	return info.Size, nil
}

func (m *MinioStore) Open(ctx context.Context, name string) (*Object, error) {
	if !ValidName(name) {
		return nil, ErrNotFound
	}
	obj, err := m.client.GetObject(ctx, m.bucketName, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject is lazy, Stat is the first call that reaches the server.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return &Object{
		ReadSeekCloser: obj,
		Name:           name,
		Size:           info.Size,
		ModTime:        info.LastModified,
	}, nil
}

func (m *MinioStore) Delete(ctx context.Context, name string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid file name %q", name)
	}
	// S3 answers deletes of missing keys with success.
	if err := m.client.RemoveObject(ctx, m.bucketName, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
