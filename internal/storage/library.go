package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/pool"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// Outcome describes what one backend did during a write.
type Outcome string

const (
	OutcomeStored  Outcome = "stored"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// PutResult reports each backend independently so callers can see one-sided
// writes.
type PutResult struct {
	UID       string
	Sound     *sound.Sound
	Blob      Outcome
	BlobErr   error
	Record    Outcome
	RecordErr error
}

// Err returns nil when neither backend failed, otherwise a *PartialWriteError.
func (r PutResult) Err() error {
	if r.BlobErr == nil && r.RecordErr == nil {
		return nil
	}
	return &PartialWriteError{UID: r.UID, Blob: r.BlobErr, Record: r.RecordErr}
}

// PartialWriteError reports a put or rm where at least one backend failed.
// The other backend may have succeeded; there is no rollback.
type PartialWriteError struct {
	UID    string
	Blob   error
	Record error
}

func (e *PartialWriteError) Error() string {
	var parts []string
	if e.Blob != nil {
		parts = append(parts, "blob: "+e.Blob.Error())
	}
	if e.Record != nil {
		parts = append(parts, "record: "+e.Record.Error())
	}
	return fmt.Sprintf("sound %s: %s", e.UID, strings.Join(parts, "; "))
}

func (e *PartialWriteError) Unwrap() []error {
	var errs []error
	if e.Blob != nil {
		errs = append(errs, e.Blob)
	}
	if e.Record != nil {
		errs = append(errs, e.Record)
	}
	return errs
}

// Consistency reports which stores hold a sound.
type Consistency struct {
	UID     string `json:"uid"`
	BlobKey string `json:"blob_key"`
	Blob    bool   `json:"blob"`
	Record  bool   `json:"record"`
}

// Consistent reports whether both stores agree.
func (c Consistency) Consistent() bool { return c.Blob == c.Record }

// LibraryOptions tunes a Library.
type LibraryOptions struct {
	Retry    RetryPolicy
	PoolSize int
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Library writes sounds to the blob store and the record store together.
type Library struct {
	naming   sound.Naming
	blobs    *Blobs
	records  RecordStore
	retry    RetryPolicy
	poolSize int
	logger   *slog.Logger
	now      func() time.Time
}

// NewLibrary combines a blob backend and a record store.
func NewLibrary(naming sound.Naming, backend BlobBackend, records RecordStore, opts LibraryOptions) *Library {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	now := opts.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	size := opts.PoolSize
	if size < 1 {
		size = pool.DefaultSize
	}
	return &Library{
		naming:   naming,
		blobs:    NewBlobs(backend, naming, opts.Retry, logger),
		records:  records,
		retry:    opts.Retry,
		poolSize: size,
		logger:   logging.NewComponentLogger(logger, "library"),
		now:      now,
	}
}

// Open builds the configured backends.
func Open(cfg *config.Config, logger *slog.Logger) (*Library, error) {
	naming := sound.NewNaming(cfg)
	var (
		backend BlobBackend
		err     error
	)
	switch cfg.Blob.Backend {
	case config.BlobBackendS3:
		backend, err = NewS3Blobs(S3ConfigFrom(cfg.Blob))
	default:
		backend, err = NewLocalBlobs(cfg.Blob.Dir)
	}
	if err != nil {
		return nil, err
	}
	records, err := OpenSQLite(cfg.Records.Path, naming)
	if err != nil {
		return nil, err
	}
	return NewLibrary(naming, backend, records, LibraryOptions{
		Retry:    NewRetryPolicy(cfg.Retry, logger),
		PoolSize: cfg.Pool.Size,
		Logger:   logger,
	}), nil
}

// Naming returns the key derivation rules in use.
func (l *Library) Naming() sound.Naming { return l.naming }

// Close releases the record store.
func (l *Library) Close() error { return l.records.Close() }

// Put stamps the sound's timestamps and writes the blob and the record
// concurrently. The blob write is skipped when the object already exists or
// the sound has no local file; the record is always overwritten.
//
// Two concurrent puts for the same uid race: the record store keeps whichever
// write lands last and the second blob write is skipped.
func (l *Library) Put(ctx context.Context, s *sound.Sound) (PutResult, error) {
	if s == nil || s.UID == "" {
		return PutResult{}, sound.ErrMissingUID
	}
	now := l.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	result := PutResult{UID: s.UID, Sound: s}
	_ = pool.RunAll(ctx,
		func(ctx context.Context) error {
			result.Blob, result.BlobErr = l.putBlob(ctx, s)
			return result.BlobErr
		},
		func(ctx context.Context) error {
			result.RecordErr = l.retry.Do(ctx, "record put "+s.UID, func(ctx context.Context) error {
				return l.records.Put(ctx, s)
			})
			result.Record = outcomeOf(result.RecordErr)
			return result.RecordErr
		},
	)
	if err := result.Err(); err != nil {
		l.logger.WarnContext(ctx, "sound put incomplete",
			logging.String(logging.FieldSoundUID, s.UID),
			logging.String("blob", string(result.Blob)),
			logging.String("record", string(result.Record)),
			logging.Error(err),
		)
		return result, err
	}
	l.logger.DebugContext(ctx, "sound stored",
		logging.String(logging.FieldSoundUID, s.UID),
		logging.String("blob", string(result.Blob)),
	)
	return result, nil
}

func (l *Library) putBlob(ctx context.Context, s *sound.Sound) (Outcome, error) {
	if !s.IsLocal() {
		return OutcomeSkipped, nil
	}
	stored, err := l.blobs.Put(ctx, s)
	switch {
	case err != nil:
		return OutcomeFailed, err
	case stored:
		return OutcomeStored, nil
	default:
		return OutcomeSkipped, nil
	}
}

func outcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeStored
}

// Bulk puts every sound on a pool of size workers, or the library default
// when size is below one. Results arrive unordered; each carries its own error.
func (l *Library) Bulk(ctx context.Context, sounds iter.Seq[*sound.Sound], size int) iter.Seq2[PutResult, error] {
	if size < 1 {
		size = l.poolSize
	}
	return pool.Map(ctx, size, sounds, l.Put)
}

// Get loads the stored record.
func (l *Library) Get(ctx context.Context, uid string) (*sound.Sound, error) {
	return Retry(ctx, l.retry, "record get "+uid, func(ctx context.Context) (*sound.Sound, error) {
		return l.records.Get(ctx, uid)
	})
}

// Read opens the stored content for uid.
func (l *Library) Read(ctx context.Context, uid string) (*sound.Sound, io.ReadCloser, error) {
	s, err := l.Get(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	body, err := l.blobs.Get(ctx, s)
	if err != nil {
		return s, nil, err
	}
	return s, body, nil
}

// Exists reports whether a record is stored for uid.
func (l *Library) Exists(ctx context.Context, uid string) (bool, error) {
	return Retry(ctx, l.retry, "record exists "+uid, func(ctx context.Context) (bool, error) {
		return l.records.Exists(ctx, uid)
	})
}

// Rm deletes the blob and the record for uid concurrently. The record is
// needed to derive the blob key, so an unknown uid is ErrNotFound.
func (l *Library) Rm(ctx context.Context, uid string) error {
	s, err := l.Get(ctx, uid)
	if err != nil {
		return err
	}
	return l.RmSound(ctx, s)
}

// RmSound deletes both copies of s.
func (l *Library) RmSound(ctx context.Context, s *sound.Sound) error {
	if s == nil || s.UID == "" {
		return sound.ErrMissingUID
	}
	var blobErr, recordErr error
	_ = pool.RunAll(ctx,
		func(ctx context.Context) error {
			blobErr = l.blobs.Rm(ctx, s)
			return blobErr
		},
		func(ctx context.Context) error {
			recordErr = l.retry.Do(ctx, "record rm "+s.UID, func(ctx context.Context) error {
				return l.records.Rm(ctx, s.UID)
			})
			return recordErr
		},
	)
	if blobErr != nil || recordErr != nil {
		return &PartialWriteError{UID: s.UID, Blob: blobErr, Record: recordErr}
	}
	l.logger.DebugContext(ctx, "sound removed", logging.String(logging.FieldSoundUID, s.UID))
	return nil
}

// Search queries the record store.
func (l *Library) Search(ctx context.Context, q Query) ([]*sound.Sound, error) {
	return Retry(ctx, l.retry, "record search", func(ctx context.Context) ([]*sound.Sound, error) {
		return l.records.Search(ctx, q)
	})
}

// Check reports which stores hold s. The blob key is derived from s, so a
// blob written under an older slug is not found.
func (l *Library) Check(ctx context.Context, s *sound.Sound) (Consistency, error) {
	key, err := l.blobs.Key(s)
	if err != nil {
		return Consistency{}, err
	}
	c := Consistency{UID: s.UID, BlobKey: key}
	err = pool.RunAll(ctx,
		func(ctx context.Context) error {
			var err error
			c.Blob, err = l.blobs.Exists(ctx, s)
			return err
		},
		func(ctx context.Context) error {
			var err error
			c.Record, err = l.Exists(ctx, s.UID)
			return err
		},
	)
	return c, err
}

// Repair copies whatever is missing from one store using the other. A sound
// with a record but no blob can only be repaired from a local file.
func (l *Library) Repair(ctx context.Context, s *sound.Sound) (Consistency, error) {
	c, err := l.Check(ctx, s)
	if err != nil || c.Consistent() {
		return c, err
	}
	switch {
	case c.Blob && !c.Record:
		if err := l.retry.Do(ctx, "record put "+s.UID, func(ctx context.Context) error {
			return l.records.Put(ctx, s)
		}); err != nil {
			return c, err
		}
		c.Record = true
	case c.Record && !c.Blob:
		if !s.IsLocal() {
			return c, services.Wrap(services.ErrPrecondition, "library", "repair",
				fmt.Sprintf("blob for %s missing and no local file at %q", s.UID, s.Path), nil)
		}
		if _, err := l.blobs.Put(ctx, s); err != nil {
			return c, err
		}
		c.Blob = true
	}
	l.logger.InfoContext(ctx, "sound repaired",
		logging.String(logging.FieldSoundUID, s.UID),
		logging.Bool("blob", c.Blob),
		logging.Bool("record", c.Record),
	)
	return c, nil
}

// IsPartial reports whether err came from a one-sided write.
func IsPartial(err error) bool {
	var pw *PartialWriteError
	return errors.As(err, &pw)
}
