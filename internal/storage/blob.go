package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"bnpl/internal/fileutil"
	"bnpl/internal/services"
)

// BlobBackend stores raw bytes under slash-separated keys.
//
// Put must leave either the complete object or nothing under key. Backends
// that sign payloads may need to rewind r, so callers should pass an
// io.ReadSeeker when they have one. Delete of a missing key succeeds.
type BlobBackend interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// LocalBlobs keeps blobs as files below a root directory.
type LocalBlobs struct {
	root string
}

// NewLocalBlobs creates root when needed.
func NewLocalBlobs(root string) (*LocalBlobs, error) {
	if strings.TrimSpace(root) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "blobs", "open", "blob directory not set", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "blobs", "open", fmt.Sprintf("create %s", root), err)
	}
	return &LocalBlobs{root: root}, nil
}

// Root returns the backing directory.
func (b *LocalBlobs) Root() string { return b.root }

func (b *LocalBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "blobs", "get", key, nil)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *LocalBlobs) Put(_ context.Context, key string, r io.Reader, _ string) error {
	target, err := b.path(key)
	if err != nil {
		return err
	}
	_, _, err = fileutil.WriteAtomic(target, r, 0o644)
	return err
}

func (b *LocalBlobs) Delete(_ context.Context, key string) error {
	target, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Drop the per-uid directory once it is empty.
	_ = os.Remove(filepath.Dir(target))
	return nil
}

func (b *LocalBlobs) Exists(_ context.Context, key string) (bool, error) {
	target, err := b.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *LocalBlobs) path(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	if cleaned == "/" || strings.TrimSpace(key) == "" {
		return "", services.Wrap(services.ErrValidation, "blobs", "key", "empty key", nil)
	}
	if cleaned != "/"+strings.Trim(key, "/") {
		return "", services.Wrap(services.ErrValidation, "blobs", "key", fmt.Sprintf("invalid key %q", key), nil)
	}
	return filepath.Join(b.root, filepath.FromSlash(cleaned[1:])), nil
}
