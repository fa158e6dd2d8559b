package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/rs/zerolog"
)

// TieredStore combines local disk (fast reads) with S3 (durability).
// Write path: local first, then S3; an S3 miss is a warning, not a
// failure. Read path: local first, S3 fallback with cache-on-read.
type TieredStore struct {
	s3    *S3Store
	local *LocalStore
	log   zerolog.Logger
}

func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:    s3,
		local: local,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

func (s *TieredStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	if err := s.s3.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("S3 clip write failed, serving from local copy")
	}
	return nil
}

// Open checks local disk first, then falls back to S3. On an S3 hit the
// clip is cached locally for future reads.
func (s *TieredStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := s.local.Open(ctx, key); err == nil {
		return r, nil
	}
	r, err := s.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if cacheErr := s.local.Save(ctx, key, data, ""); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("key", key).Msg("failed to cache clip locally")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *TieredStore) Exists(ctx context.Context, key string) bool {
	if s.local.Exists(ctx, key) {
		return true
	}
	return s.s3.Exists(ctx, key)
}

// Delete removes the clip from both backends. The S3 delete decides the
// outcome; a local miss is already gone.
func (s *TieredStore) Delete(ctx context.Context, key string) error {
	if err := s.local.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("local clip delete failed")
	}
	return s.s3.Delete(ctx, key)
}

// URL mints a presigned URL from the S3 backend.
func (s *TieredStore) URL(ctx context.Context, key string) (string, error) {
	return s.s3.URL(ctx, key)
}

func (s *TieredStore) Type() string { return "tiered" }
