package storage

import (
	"context"
	"io"
	"log/slog"
	"os"

	"bnpl/internal/logging"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// Blobs stores sound content under the key derived by Naming.URL.
type Blobs struct {
	backend BlobBackend
	naming  sound.Naming
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewBlobs wraps backend with key derivation and retries.
func NewBlobs(backend BlobBackend, naming sound.Naming, retry RetryPolicy, logger *slog.Logger) *Blobs {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Blobs{
		backend: backend,
		naming:  naming,
		retry:   retry,
		logger:  logging.NewComponentLogger(logger, "blobs"),
	}
}

// Key returns the storage key for s.
func (b *Blobs) Key(s *sound.Sound) (string, error) {
	return b.naming.URL(s)
}

// Put uploads the sound's local file. It reports false without writing when
// an object already exists under the key, which makes repeated puts of one
// sound free.
func (b *Blobs) Put(ctx context.Context, s *sound.Sound) (bool, error) {
	key, err := b.naming.URL(s)
	if err != nil {
		return false, err
	}
	exists, err := b.Exists(ctx, s)
	if err != nil {
		return false, err
	}
	if exists {
		b.logger.DebugContext(ctx, "blob already stored", logging.String("key", key))
		return false, nil
	}
	if !s.IsLocal() {
		return false, services.Wrap(services.ErrPrecondition, "blobs", "put", "no local file for "+s.UID, nil)
	}

	contentType := b.naming.MimeType(s)
	err = b.retry.Do(ctx, "blob put "+key, func(ctx context.Context) error {
		f, err := os.Open(s.Path)
		if err != nil {
			return services.Wrap(services.ErrPrecondition, "blobs", "put", "open "+s.Path, err)
		}
		defer f.Close()
		return b.backend.Put(ctx, key, f, contentType)
	})
	if err != nil {
		return false, err
	}
	b.logger.DebugContext(ctx, "blob stored", logging.String("key", key))
	return true, nil
}

// Get opens the stored content for s.
func (b *Blobs) Get(ctx context.Context, s *sound.Sound) (io.ReadCloser, error) {
	key, err := b.naming.URL(s)
	if err != nil {
		return nil, err
	}
	return Retry(ctx, b.retry, "blob get "+key, func(ctx context.Context) (io.ReadCloser, error) {
		return b.backend.Get(ctx, key)
	})
}

// Rm deletes the stored content for s. Removing a missing blob succeeds.
func (b *Blobs) Rm(ctx context.Context, s *sound.Sound) error {
	key, err := b.naming.URL(s)
	if err != nil {
		return err
	}
	return b.retry.Do(ctx, "blob rm "+key, func(ctx context.Context) error {
		return b.backend.Delete(ctx, key)
	})
}

// Exists reports whether content is stored for s.
func (b *Blobs) Exists(ctx context.Context, s *sound.Sound) (bool, error) {
	key, err := b.naming.URL(s)
	if err != nil {
		return false, err
	}
	return Retry(ctx, b.retry, "blob exists "+key, func(ctx context.Context) (bool, error) {
		return b.backend.Exists(ctx, key)
	})
}
