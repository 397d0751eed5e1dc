package plugins_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
)

const itunesLibraryXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Major Version</key><integer>1</integer>
	<key>Tracks</key>
	<dict>
		<key>812</key>
		<dict>
			<key>Track ID</key><integer>812</integer>
			<key>Name</key><string>Radio Show</string>
			<key>Location</key><string>http://example.com/stream.mp3</string>
		</dict>
		<key>204</key>
		<dict>
			<key>Track ID</key><integer>204</integer>
			<key>Name</key><string>Blue Train</string>
			<key>Artist</key><string>John Coltrane</string>
			<key>Album</key><string>Blue Train</string>
			<key>Genre</key><string>Jazz</string>
			<key>Total Time</key><integer>643000</integer>
			<key>Track Number</key><integer>1</integer>
			<key>Year</key><integer>1957</integer>
			<key>Date Added</key><date>2019-03-02T10:00:00Z</date>
			<key>Location</key><string>file://localhost{{DIR}}/Blue%20Train.mp3</string>
		</dict>
		<key>377</key>
		<dict>
			<key>Track ID</key><integer>377</integer>
			<key>Name</key><string>Cloud Only</string>
		</dict>
		<key>205</key>
		<dict>
			<key>Track ID</key><integer>205</integer>
			<key>Name</key><string>Moment's Notice</string>
			<key>BPM</key><integer>240</integer>
			<key>Location</key><string>file://{{DIR}}/Moments%20Notice.m4a</string>
		</dict>
	</dict>
</dict>
</plist>
`

func writeItunesLibrary(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Library.xml")
	body := strings.ReplaceAll(itunesLibraryXML, "{{DIR}}", filepath.ToSlash(dir))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	return path
}

func TestItunesSongsYieldsLocalTracks(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	library := writeItunesLibrary(t, dir)

	out, err := h.reg.Run(context.Background(), "itunes.songs", plugin.ContextLibrary,
		plugin.WithEnv(h.env), plugin.WithOptions(map[string]any{"library_xml": library}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	sounds, err := out.Sounds()
	if len(sounds) != 2 {
		t.Fatalf("expected 2 local tracks, got %d", len(sounds))
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected per-item validation errors, got %v", err)
	}
	for _, want := range []string{"Radio Show", "Cloud Only"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q reported in %v", want, err)
		}
	}

	first := sounds[0]
	if first.Path != filepath.Join(dir, "Blue Train.mp3") || first.Format != "mp3" {
		t.Fatalf("path = %q format = %q", first.Path, first.Format)
	}
	for key, want := range map[string]string{"title": "Blue Train", "artist": "John Coltrane", "album": "Blue Train", "genre": "Jazz"} {
		if got, _ := first.Attr(key); got.Any() != want {
			t.Fatalf("%s = %v, want %q", key, got.Any(), want)
		}
	}
	if duration, _ := first.Attr("duration"); duration.Any() != 643.0 {
		t.Fatalf("duration = %v", duration.Any())
	}
	if year, _ := first.Attr("year"); year.Any() != 1957.0 {
		t.Fatalf("year = %v", year.Any())
	}
	if added, ok := first.Attr("itunes_added_at"); !ok {
		t.Fatal("expected date added to be kept")
	} else if at, _ := added.Time(); at.Year() != 2019 {
		t.Fatalf("itunes_added_at = %v", at)
	}

	second := sounds[1]
	if second.Path != filepath.Join(dir, "Moments Notice.m4a") {
		t.Fatalf("second path = %q", second.Path)
	}
	if bpm, _ := second.Attr("bpm"); bpm.Any() != 240.0 {
		t.Fatalf("bpm = %v", bpm.Any())
	}
	if _, ok := second.Attr("artist"); ok {
		t.Fatal("expected empty fields to stay unset")
	}
}

func TestItunesSongsRequiresLibrary(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		options map[string]any
	}{
		{"missing option", map[string]any{}},
		{"missing file", map[string]any{"library_xml": filepath.Join(t.TempDir(), "none.xml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.reg.Run(context.Background(), "itunes.songs", plugin.ContextLibrary,
				plugin.WithEnv(h.env), plugin.WithOptions(tt.options))
			var verr *option.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected option validation error, got %v", err)
			}
		})
	}
}

func TestItunesSongsReportsUnreadableLibrary(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "Library.xml")
	if err := os.WriteFile(path, []byte("<plist><dict><key>Tracks</key>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := h.reg.Run(context.Background(), "itunes.songs", plugin.ContextLibrary,
		plugin.WithEnv(h.env), plugin.WithOptions(map[string]any{"library_xml": path}))
	if err == nil {
		_, err = out.Sounds()
	}
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode failure, got %v", err)
	}
}
