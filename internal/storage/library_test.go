package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bnpl/internal/pool"
	"bnpl/internal/services"
	"bnpl/internal/sound"
	"bnpl/internal/storage"
	"bnpl/internal/testsupport"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type libraryFixture struct {
	lib     *storage.Library
	blobs   *testsupport.MemoryBlobs
	records *testsupport.CountingRecords
	clock   *fixedClock
	dir     string
}

func newLibraryFixture(t *testing.T) libraryFixture {
	t.Helper()
	f := libraryFixture{
		blobs:   testsupport.NewMemoryBlobs(),
		records: testsupport.NewCountingRecords(),
		clock:   &fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		dir:     t.TempDir(),
	}
	f.lib = storage.NewLibrary(sound.DefaultNaming(), f.blobs, f.records, storage.LibraryOptions{
		Retry:    storage.NoRetry(),
		PoolSize: 4,
		Clock:    f.clock.Now,
	})
	return f
}

func (f libraryFixture) localSound(t *testing.T, uid, title string) *sound.Sound {
	t.Helper()
	path := filepath.Join(f.dir, uid+".mp3")
	testsupport.WriteFile(t, path, 64)
	s := sound.New(path)
	s.UID = uid
	s.Properties["title"] = sound.String(title)
	return s
}

func TestLibraryPutWritesBothStores(t *testing.T) {
	f := newLibraryFixture(t)
	s := f.localSound(t, "abc", "Song")

	result, err := f.lib.Put(context.Background(), s)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.Blob != storage.OutcomeStored || result.Record != storage.OutcomeStored {
		t.Fatalf("unexpected outcomes: %+v", result)
	}
	keys := f.blobs.Keys()
	if len(keys) != 1 || keys[0] != "sounds/abc/song.mp3" {
		t.Fatalf("blob keys = %v", keys)
	}
	if ct := f.blobs.ContentType(keys[0]); ct != "audio/mpeg" {
		t.Fatalf("content type = %q", ct)
	}
	if !s.CreatedAt.Equal(f.clock.Now()) || !s.UpdatedAt.Equal(f.clock.Now()) {
		t.Fatalf("timestamps not stamped: %v %v", s.CreatedAt, s.UpdatedAt)
	}
}

func TestLibraryPutIsIdempotent(t *testing.T) {
	f := newLibraryFixture(t)
	s := f.localSound(t, "abc", "Song")
	ctx := context.Background()

	if _, err := f.lib.Put(ctx, s); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	created := s.CreatedAt
	f.clock.Advance(time.Hour)

	result, err := f.lib.Put(ctx, s)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if result.Blob != storage.OutcomeSkipped {
		t.Fatalf("expected blob skip, got %s", result.Blob)
	}
	if f.blobs.Puts() != 1 {
		t.Fatalf("expected one blob write, got %d", f.blobs.Puts())
	}
	if f.records.Puts() != 2 || f.records.Len() != 1 {
		t.Fatalf("expected two record upserts of one record, got %d puts / %d records", f.records.Puts(), f.records.Len())
	}
	if !s.CreatedAt.Equal(created) || !s.UpdatedAt.Equal(created.Add(time.Hour)) {
		t.Fatalf("unexpected timestamps: created %v updated %v", s.CreatedAt, s.UpdatedAt)
	}
}

func TestLibraryPutRequiresUID(t *testing.T) {
	f := newLibraryFixture(t)
	s := f.localSound(t, "abc", "Song")
	s.UID = ""
	if _, err := f.lib.Put(context.Background(), s); !errors.Is(err, sound.ErrMissingUID) {
		t.Fatalf("expected ErrMissingUID, got %v", err)
	}
	if f.blobs.Puts() != 0 || f.records.Puts() != 0 {
		t.Fatal("expected no writes")
	}
}

func TestLibraryPutReportsPartialWrite(t *testing.T) {
	f := newLibraryFixture(t)
	f.records.FailPut = errors.New("index unavailable")
	s := f.localSound(t, "abc", "Song")

	result, err := f.lib.Put(context.Background(), s)
	var partial *storage.PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialWriteError, got %v", err)
	}
	if partial.Blob != nil || partial.Record == nil {
		t.Fatalf("expected record-only failure, got %+v", partial)
	}
	if result.Blob != storage.OutcomeStored || result.Record != storage.OutcomeFailed {
		t.Fatalf("unexpected outcomes: %+v", result)
	}
	if len(f.blobs.Keys()) != 1 {
		t.Fatal("expected blob write to survive record failure")
	}
	if !storage.IsPartial(err) || !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected partial storage error, got %v", err)
	}
}

func TestLibraryPutWithoutLocalFileSkipsBlob(t *testing.T) {
	f := newLibraryFixture(t)
	s := sound.New("/nowhere/remote.mp3")
	s.UID = "remote"

	result, err := f.lib.Put(context.Background(), s)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.Blob != storage.OutcomeSkipped || result.Record != storage.OutcomeStored {
		t.Fatalf("unexpected outcomes: %+v", result)
	}
}

func TestLibraryBulkStoresEverySound(t *testing.T) {
	f := newLibraryFixture(t)
	sounds := make([]*sound.Sound, 25)
	for i := range sounds {
		sounds[i] = f.localSound(t, fmt.Sprintf("uid%02d", i), fmt.Sprintf("Track %d", i))
	}

	results, err := pool.Collect(f.lib.Bulk(context.Background(), pool.Slice(sounds), 4))
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if len(results) != 25 {
		t.Fatalf("expected 25 results, got %d", len(results))
	}
	if len(f.blobs.Keys()) != 25 || f.records.Len() != 25 {
		t.Fatalf("expected 25 blobs and records, got %d and %d", len(f.blobs.Keys()), f.records.Len())
	}
}

func TestLibraryReadAndRm(t *testing.T) {
	f := newLibraryFixture(t)
	s := f.localSound(t, "abc", "Song")
	ctx := context.Background()
	if _, err := f.lib.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, body, err := f.lib.Read(ctx, "abc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if got.UID != "abc" || len(data) != 64 {
		t.Fatalf("Read returned uid %q and %d bytes", got.UID, len(data))
	}

	if err := f.lib.Rm(ctx, "abc"); err != nil {
		t.Fatalf("Rm: %v", err)
	}
	if len(f.blobs.Keys()) != 0 || f.records.Len() != 0 {
		t.Fatal("expected both stores empty after Rm")
	}
	if err := f.lib.Rm(ctx, "abc"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second Rm, got %v", err)
	}
}

func TestLibraryCheckAndRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("record without blob", func(t *testing.T) {
		f := newLibraryFixture(t)
		s := f.localSound(t, "abc", "Song")
		if err := f.records.Put(ctx, s); err != nil {
			t.Fatalf("records.Put: %v", err)
		}
		c, err := f.lib.Check(ctx, s)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if c.Consistent() || c.Blob || !c.Record {
			t.Fatalf("unexpected consistency: %+v", c)
		}
		c, err = f.lib.Repair(ctx, s)
		if err != nil {
			t.Fatalf("Repair: %v", err)
		}
		if !c.Blob || !c.Record || len(f.blobs.Keys()) != 1 {
			t.Fatalf("expected blob restored: %+v", c)
		}
	})

	t.Run("blob without record", func(t *testing.T) {
		f := newLibraryFixture(t)
		s := f.localSound(t, "abc", "Song")
		if _, err := f.lib.Put(ctx, s); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := f.records.Rm(ctx, "abc"); err != nil {
			t.Fatalf("records.Rm: %v", err)
		}
		c, err := f.lib.Repair(ctx, s)
		if err != nil {
			t.Fatalf("Repair: %v", err)
		}
		if !c.Record || f.records.Len() != 1 {
			t.Fatalf("expected record restored: %+v", c)
		}
	})

	t.Run("missing blob without local file", func(t *testing.T) {
		f := newLibraryFixture(t)
		s := sound.New("/gone.mp3")
		s.UID = "gone"
		if err := f.records.Put(ctx, s); err != nil {
			t.Fatalf("records.Put: %v", err)
		}
		if _, err := f.lib.Repair(ctx, s); !errors.Is(err, services.ErrPrecondition) {
			t.Fatalf("expected precondition error, got %v", err)
		}
	})
}

func TestOpenLibraryFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lib := testsupport.MustOpenLibrary(t, cfg)
	ctx := context.Background()

	path := filepath.Join(testsupport.BaseDir(cfg), "in", "track.wav")
	testsupport.WriteFile(t, path, 128)
	s := sound.New(path)
	s.UID = lib.Naming().UID("fingerprint")
	s.Properties["artist"] = sound.String("Árvore")
	s.Properties["title"] = sound.String("Dança")

	if _, err := lib.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	found, err := lib.Search(ctx, storage.Query{Match: map[string]any{"artist": "Árvore"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].UID != s.UID {
		t.Fatalf("unexpected search results: %v", found)
	}
	c, err := lib.Check(ctx, found[0])
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !c.Blob || !c.Record || c.BlobKey != "sounds/"+s.UID+"/arvore-danca.wav" {
		t.Fatalf("unexpected consistency: %+v", c)
	}
}
