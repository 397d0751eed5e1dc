package sound_test

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"bnpl/internal/services"
	"bnpl/internal/sound"
)

func testNaming() sound.Naming {
	return sound.Naming{
		SlugKeys:  []string{"artist", "title"},
		SlugDelim: "-",
		UIDLength: 12,
		Root:      "sounds",
		MimeTypes: map[string]string{"mp3": "audio/mpeg"},
	}
}

func TestUIDIsTruncatedSHA1(t *testing.T) {
	n := testNaming()
	sum := sha1.Sum([]byte("AQAAE0mUaEkSRZEGAA"))
	want := hex.EncodeToString(sum[:])[:12]
	if got := n.UID("AQAAE0mUaEkSRZEGAA"); got != want {
		t.Fatalf("UID = %q, want %q", got, want)
	}
	if n.UID("AQAAE0mUaEkSRZEGAA") != n.UID("AQAAE0mUaEkSRZEGAA") {
		t.Fatal("expected content-derived uid to be stable")
	}
}

func TestUIDWithoutFingerprintIsRandom(t *testing.T) {
	n := testNaming()
	a, b := n.UID(""), n.UID("")
	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("expected truncated random uids, got %q %q", a, b)
	}
	if a == b {
		t.Fatal("expected distinct random uids")
	}
}

func TestSlugUsesAttributesThenProperties(t *testing.T) {
	n := testNaming()
	s := sound.New("/music/01 Track.mp3")
	_ = s.SetProperty("artist", "Daft Punk")
	_ = s.SetProperty("title", "One More Time!")

	first := n.Slug(s)
	if first != "daft-punk-one-more-time" {
		t.Fatalf("Slug = %q", first)
	}
	again := sound.New("/music/01 Track.mp3")
	_ = again.SetProperty("title", "One More Time!")
	_ = again.SetProperty("artist", "Daft Punk")
	if n.Slug(again) != first {
		t.Fatal("expected deterministic slug")
	}

	n.SlugKeys = []string{"format", "title"}
	if got := n.Slug(s); got != "mp3-one-more-time" {
		t.Fatalf("expected direct attribute lookup, got %q", got)
	}
}

func TestSlugFallsBackToBaseFilename(t *testing.T) {
	n := testNaming()
	s := sound.New("/music/My Song (Live).wav")
	if got := n.Slug(s); got != "my-song-live" {
		t.Fatalf("Slug = %q", got)
	}
	_ = s.SetProperty("album", "ignored")
	if got := n.Slug(s); got != "my-song-live" {
		t.Fatalf("expected unconfigured keys to be ignored, got %q", got)
	}
}

func TestFilename(t *testing.T) {
	n := testNaming()
	s := sound.New("/music/a.mp3")
	if got := n.Filename(s); got != "a.mp3" {
		t.Fatalf("Filename = %q", got)
	}
	n.Compression = "gz"
	if got := n.Filename(s); got != "a.mp3.gz" {
		t.Fatalf("Filename with compression = %q", got)
	}
	s.Format = ""
	s.Path = "/music/noext"
	n.Compression = ""
	if got := n.Filename(s); got != "noext" {
		t.Fatalf("expected trailing dot stripped, got %q", got)
	}
}

func TestURLRequiresUID(t *testing.T) {
	n := testNaming()
	cases := []*sound.Sound{
		{},
		sound.New("/music/a.mp3"),
		{Path: "/x.wav", Format: "wav", Properties: sound.Properties{"artist": sound.String("x")}},
	}
	for _, s := range cases {
		_, err := n.URL(s)
		if !errors.Is(err, sound.ErrMissingUID) {
			t.Fatalf("expected ErrMissingUID, got %v", err)
		}
		if !errors.Is(err, services.ErrPrecondition) {
			t.Fatalf("expected precondition marker, got %v", err)
		}
	}

	s := sound.New("/music/a.mp3")
	s.UID = "abc"
	url, err := n.URL(s)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if url != "sounds/abc/a.mp3" {
		t.Fatalf("URL = %q", url)
	}
}

func TestMapRoundTrip(t *testing.T) {
	n := testNaming()
	s := sound.New("/music/track.mp3")
	s.UID = n.UID("fingerprint")
	s.CreatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_ = s.SetProperty("artist", "Björk")
	_ = s.SetProperty("bpm", 98.5)
	_ = s.SetProperty("tags", []string{"a", "b"})

	m := n.ToMap(s)
	back, err := sound.FromMap(m)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if back.UID != s.UID {
		t.Fatalf("uid %q != %q", back.UID, s.UID)
	}
	if n.Slug(back) != n.Slug(s) || n.Filename(back) != n.Filename(s) {
		t.Fatalf("derived names changed: %q/%q vs %q/%q", n.Slug(back), n.Filename(back), n.Slug(s), n.Filename(s))
	}
	if !back.CreatedAt.Equal(s.CreatedAt) {
		t.Fatalf("created_at %v != %v", back.CreatedAt, s.CreatedAt)
	}
	if m[sound.KeyURL] != "sounds/"+s.UID+"/bjork.mp3" {
		t.Fatalf("unexpected url %v", m[sound.KeyURL])
	}
	if m[sound.KeyMimeType] != "audio/mpeg" {
		t.Fatalf("unexpected mimetype %v", m[sound.KeyMimeType])
	}
}

func TestFromMapPromotesUnknownKeys(t *testing.T) {
	s, err := sound.FromMap(map[string]any{
		"path":  "/music/x.flac",
		"bpm":   120,
		"tonal": map[string]any{"key": "A", "scale": "minor"},
		"slug":  "ignored",
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if s.Format != "flac" {
		t.Fatalf("expected format from extension, got %q", s.Format)
	}
	if v, ok := s.Properties.Get("bpm"); !ok || v.Any() != 120.0 {
		t.Fatalf("bpm property = %#v", v)
	}
	if v, _ := s.Properties.Get("tonal_key"); v.Any() != "A" {
		t.Fatalf("expected nested map flattened, got %#v", s.Properties)
	}
	if _, ok := s.Properties.Get("slug"); ok {
		t.Fatal("expected derived keys to be dropped")
	}
	if _, err := sound.FromMap(map[string]any{"created_at": "yesterday"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad timestamp, got %v", err)
	}
}

func TestFlattenTopLevelWins(t *testing.T) {
	n := testNaming()
	s := sound.New("/music/a.mp3")
	s.UID = "u1"
	_ = s.SetProperty("uid", "shadow")
	_ = s.SetProperty("path", "/elsewhere/b.wav")
	_ = s.SetProperty("format", "wav")
	_ = s.SetProperty("tags", map[string]any{"genre": "house"})

	doc := n.Flatten(s)
	for key, want := range map[string]any{"uid": "u1", "path": "/music/a.mp3", "format": "mp3"} {
		if doc[key] != want {
			t.Fatalf("expected top-level %s %v to win, got %v", key, want, doc[key])
		}
	}
	if doc["tags_genre"] != "house" {
		t.Fatalf("expected flattened nested key, got %#v", doc)
	}
	if _, ok := doc["properties"]; ok {
		t.Fatal("expected no nested properties key in flattened document")
	}
	if doc["url"] != "sounds/u1/a.mp3" {
		t.Fatalf("unexpected url %v", doc["url"])
	}
}

func TestTransformerLeavesOtherPropertiesUntouched(t *testing.T) {
	n := testNaming()
	s := sound.New("/music/a.mp3")
	_ = s.SetProperty("artist", "x")
	before := n.ToMap(s)[sound.KeyProperties].(map[string]any)

	_ = s.SetProperty("bpm", 120.0)

	after := n.ToMap(s)[sound.KeyProperties].(map[string]any)
	if after["bpm"] != 120.0 {
		t.Fatalf("bpm = %v", after["bpm"])
	}
	if len(after) != len(before)+1 || after["artist"] != before["artist"] {
		t.Fatalf("unexpected property mutation: before %#v after %#v", before, after)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := sound.New("/a.mp3")
	_ = s.SetProperty("tags", []string{"x"})
	c := s.Clone()
	_ = c.SetProperty("bpm", 1)
	if _, ok := s.Properties.Get("bpm"); ok {
		t.Fatal("expected clone mutations to stay local")
	}
}
