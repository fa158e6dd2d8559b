package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/config"
)

// ClipStore abstracts storage for scored pronunciation recordings.
type ClipStore interface {
	// Save stores a clip. key format: {YYYY-MM-DD}/{attempt-uuid}.{ext}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for the clip.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a clip exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Delete removes a clip from every backend. Deleting a missing clip
	// is not an error.
	Delete(ctx context.Context, key string) error

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// URLer is implemented by backends that can mint presigned download URLs.
// The audio endpoint redirects to one instead of proxying clip bytes.
type URLer interface {
	URL(ctx context.Context, key string) (string, error)
}

// New creates a ClipStore based on config: local disk by default, S3 when
// a bucket is configured, tiered local+S3 when the local cache is kept.
// Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, clipDir string, log zerolog.Logger) (ClipStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(clipDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil
	}
	return NewTieredStore(s3store, NewLocalStore(clipDir), log), nil
}
