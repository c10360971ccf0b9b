package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/papertrade/apiserver/config"
	"go.uber.org/zap"
)

const (
	BackendNone  = "none"
	BackendLocal = "local"
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// cacheControl keeps statements out of shared caches.
const cacheControl = "private, no-store"

var (
	// ErrObjectNotFound is returned by Get when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectExists is returned by Put when the key is already taken.
	// Objects are written once and never replaced.
	ErrObjectExists = errors.New("object already exists")
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// Storage wraps an ObjectStorage backend with key validation and logging.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg and makes sure its bucket exists.
// It returns nil, nil when exports are disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	var err error

	switch cfg.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendLocal:
		backend, err = NewLocalDir(cfg.LocalDir)
	case BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Backend, err)
	}

	s := NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("%s: ensure bucket %q: %w", cfg.Backend, backend.Bucket(), err)
	}
	zap.L().Info("Object storage ready",
		zap.String("backend", cfg.Backend),
		zap.String("bucket", backend.Bucket()))
	return s, nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return err
	}
	zap.L().Debug("Stored object",
		zap.String("bucket", s.backend.Bucket()),
		zap.String("key", key),
		zap.Int64("size", size))
	return nil
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("object key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}

// attachment returns a Content-Disposition that downloads the object under
// its base name.
func attachment(key string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(key))
}
