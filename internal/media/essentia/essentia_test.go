package essentia_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bnpl/internal/media/essentia"
	"bnpl/internal/services"
	"bnpl/internal/testsupport"
)

func TestParseStatistics(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want essentia.Stats
	}{
		{
			name: "full",
			doc:  "rhythm:\n  bpm: 127.96\ntonal:\n  key_key: A\n  key_scale: minor\n  chord_key: C\n  chord_scale: major\n",
			want: essentia.Stats{BPM: 128, Key: "Aminor", Chord: "Cmajor"},
		},
		{
			name: "chords fallback",
			doc:  "tonal:\n  chords_key: F#\n  chords_scale: minor\n",
			want: essentia.Stats{Chord: "F#minor"},
		},
		{name: "empty", doc: "{}\n", want: essentia.Stats{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := essentia.ParseStatistics([]byte(tc.doc))
			if err != nil {
				t.Fatalf("ParseStatistics: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
	if _, err := essentia.ParseStatistics([]byte("rhythm: [")); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestAnalyzeRunsExtractorAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "freesound")
	testsupport.WriteScript(t, stub, `printf 'rhythm:\n  bpm: 90.04\ntonal:\n  key_key: D\n  key_scale: major\n' > "$2_statistics.yaml"`)
	work := filepath.Join(dir, "work")

	stats, err := essentia.Analyze(context.Background(), stub, "/music/a.wav", work)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if stats.BPM != 90 || stats.Key != "Dmajor" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected output files removed, found %d entries", len(entries))
	}
}

func TestAnalyzeWithoutStatisticsFails(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "freesound")
	testsupport.WriteScript(t, stub, "exit 0")
	_, err := essentia.Analyze(context.Background(), stub, "/music/a.wav", dir)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := essentia.Analyze(context.Background(), "", "/music/a.wav", dir); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
