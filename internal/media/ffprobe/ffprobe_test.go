package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"bnpl/internal/services"
)

func TestResultTagsPreferContainer(t *testing.T) {
	result := Result{
		Format: Format{Tags: map[string]string{"ARTIST": "Container", "Title": " Song "}},
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", Tags: map[string]string{"artist": "Stream", "genre": "Dub", "empty": " "}},
		},
	}
	tags := result.Tags()
	if tags["artist"] != "Container" || tags["title"] != "Song" || tags["genre"] != "Dub" {
		t.Fatalf("unexpected tags %v", tags)
	}
	if _, ok := tags["empty"]; ok {
		t.Fatal("expected blank values to be dropped")
	}
	if stream, ok := result.AudioStream(); !ok || stream.Tags["genre"] != "Dub" {
		t.Fatalf("expected the audio stream, got %+v", stream)
	}
}

func TestResultNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "123.45", BitRate: "32000"}}
	if result.DurationSeconds() != 123.45 || result.BitRate() != 32000 {
		t.Fatalf("unexpected numbers %v %v", result.DurationSeconds(), result.BitRate())
	}
	bad := Result{Format: Format{Duration: "bad", BitRate: "-1"}}
	if !math.IsNaN(bad.DurationSeconds()) || bad.BitRate() != 0 {
		t.Fatalf("unexpected numbers for invalid input %v %v", bad.DurationSeconds(), bad.BitRate())
	}
}

func TestInspectDecodesStubOutput(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n{\"format\":{\"duration\":\"2.5\",\"tags\":{\"ARTIST\":\"Ana\"}},\"streams\":[{\"codec_type\":\"audio\",\"channels\":2}]}\nJSON\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	result, err := Inspect(context.Background(), stub, "/music/a.mp3")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.Tags()["artist"] != "Ana" || result.DurationSeconds() != 2.5 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestInspectFailureIsExternalToolError(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\necho 'Invalid data' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	_, err := Inspect(context.Background(), stub, "/music/a.mp3")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := Inspect(context.Background(), stub, " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty path, got %v", err)
	}
}
