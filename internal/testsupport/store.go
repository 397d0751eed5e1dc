package testsupport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/services"
	"bnpl/internal/sound"
	"bnpl/internal/storage"
)

// MustOpenLibrary opens the configured library for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *storage.Library {
	t.Helper()

	lib, err := storage.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = lib.Close()
	})
	return lib
}

// MemoryBlobs is an in-memory BlobBackend. FailPut, when set, is returned
// from every Put.
type MemoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    atomic.Int64
	FailPut error
}

// NewMemoryBlobs returns an empty backend.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *MemoryBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "memory blobs", "get", key, nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryBlobs) Put(_ context.Context, key string, r io.Reader, contentType string) error {
	m.puts.Add(1)
	if m.FailPut != nil {
		return m.FailPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *MemoryBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func (m *MemoryBlobs) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Keys returns every stored key in sorted order.
func (m *MemoryBlobs) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (m *MemoryBlobs) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}

// Puts counts Put calls, including failed ones.
func (m *MemoryBlobs) Puts() int { return int(m.puts.Load()) }

// CountingRecords is an in-memory RecordStore that counts writes. Search
// supports Text and Match on string values only.
type CountingRecords struct {
	mu      sync.Mutex
	records map[string]*sound.Sound
	puts    atomic.Int64
	FailPut error
}

// NewCountingRecords returns an empty store.
func NewCountingRecords() *CountingRecords {
	return &CountingRecords{records: map[string]*sound.Sound{}}
}

func (c *CountingRecords) Get(_ context.Context, uid string) (*sound.Sound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.records[uid]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "memory records", "get", uid, nil)
	}
	return s.Clone(), nil
}

func (c *CountingRecords) Put(_ context.Context, s *sound.Sound) error {
	c.puts.Add(1)
	if c.FailPut != nil {
		return c.FailPut
	}
	if s.UID == "" {
		return sound.ErrMissingUID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[s.UID] = s.Clone()
	return nil
}

func (c *CountingRecords) Rm(_ context.Context, uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, uid)
	return nil
}

func (c *CountingRecords) Exists(_ context.Context, uid string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[uid]
	return ok, nil
}

func (c *CountingRecords) Bulk(ctx context.Context, sounds []*sound.Sound) error {
	var errs []error
	for _, s := range sounds {
		errs = append(errs, c.Put(ctx, s))
	}
	return errors.Join(errs...)
}

func (c *CountingRecords) Search(_ context.Context, q storage.Query) ([]*sound.Sound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	uids := make([]string, 0, len(c.records))
	for uid := range c.records {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	var out []*sound.Sound
	for _, uid := range uids {
		s := c.records[uid]
		if !matches(s, q) {
			continue
		}
		out = append(out, s.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func matches(s *sound.Sound, q storage.Query) bool {
	for field, want := range q.Match {
		got, ok := s.Attr(field)
		if !ok {
			return want == nil
		}
		str, isString := want.(string)
		if !isString || got.Text(",") != str {
			return false
		}
	}
	if q.Text == "" {
		return true
	}
	needle := strings.ToLower(q.Text)
	for _, v := range s.Properties {
		if strings.Contains(strings.ToLower(v.Text(",")), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(s.Path), needle)
}

func (c *CountingRecords) Close() error { return nil }

// Puts counts Put calls, including failed ones.
func (c *CountingRecords) Puts() int { return int(c.puts.Load()) }

// Len returns the number of stored records.
func (c *CountingRecords) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
