// Package storage holds recording audio on local disk or in an S3-compatible
// object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/config"
)

// ErrNotExist is returned by Open for a key with no stored object.
var ErrNotExist = errors.New("audio object does not exist")

// AudioStore abstracts audio file storage backends.
type AudioStore interface {
	// Save stores audio data under key (e.g. "recording_1718000000000.m4a").
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a presigned URL for the audio file.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the audio file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the audio file. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Stat reports whether an audio file exists. A non-nil error means the
	// backend could not tell, and the bool must not be trusted.
	Stat(ctx context.Context, key string) (bool, error)

	// Type returns "local" or "s3".
	Type() string
}

// New creates an AudioStore based on config.
// Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(audioDir), nil
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

	return s3store, nil
}
