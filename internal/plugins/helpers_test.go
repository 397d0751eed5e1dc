package plugins_test

import (
	"context"
	"path/filepath"
	"testing"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/plugins"
	"bnpl/internal/storage"
	"bnpl/internal/testsupport"
)

const (
	fpcalcStub = `for last; do :; done
name=$(basename "$last")
echo "{\"duration\": 1.5, \"fingerprint\": \"fp-$name\"}"`
	ffprobeStub = `for last; do :; done
name=$(basename "$last")
cat <<JSON
{"format": {"tags": {"ARTIST": "Ana", "TITLE": "$name", "track": "3", "comment": "skip"}}, "streams": [{"codec_type": "audio"}]}
JSON`
)

type harness struct {
	cfg *config.Config
	reg *plugin.Registry
	lib *storage.Library
	env *plugin.Env
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	lib := testsupport.MustOpenLibrary(t, cfg)
	reg := plugins.NewRegistry()
	return &harness{
		cfg: cfg,
		reg: reg,
		lib: lib,
		env: &plugin.Env{Config: cfg, Library: lib, Registry: reg, Logger: logging.NewNop()},
	}
}

func (h *harness) run(t *testing.T, key string, options map[string]any, data any) *plugin.Output {
	t.Helper()
	out, err := h.reg.Run(context.Background(), key, plugin.ContextLibrary,
		plugin.WithEnv(h.env), plugin.WithOptions(options), plugin.WithData(data))
	if err != nil {
		t.Fatalf("run %s: %v", key, err)
	}
	return out
}

// writeAudio creates placeholder files under dir and returns their paths.
func writeAudio(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		testsupport.WriteFile(t, path, 64)
		paths = append(paths, path)
	}
	return paths
}

func withTool(tool, body string) testsupport.ConfigOption {
	return testsupport.WithToolScript(tool, body)
}
