package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bnpl/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Storage points at a local blob directory and a sqlite file below the same
// temp root, and storage retries are disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TmpDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Blob.Backend = config.BlobBackendLocal
	cfgVal.Blob.Dir = filepath.Join(base, "data", "blobs")
	cfgVal.Records.Path = filepath.Join(base, "data", "records.db")
	cfgVal.Retry.Attempts = 1
	cfgVal.Retry.WaitSeconds = 0
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithSlugKeys overrides the attributes used to build slugs.
func WithSlugKeys(keys ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Naming.SlugKeys = keys
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the external tools used by the
// bundled plugins are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Tools.Fpcalc, b.cfg.Tools.FFprobe, b.cfg.Tools.FFmpeg, b.cfg.Tools.Freesound}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WithToolScript writes a stub script for one of the plugin tools (fpcalc,
// ffprobe, ffmpeg or freesound) and points the configuration at it.
func WithToolScript(tool, body string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "tools", tool)
		WriteScript(b.t, path, body)
		switch tool {
		case "fpcalc":
			b.cfg.Tools.Fpcalc = path
		case "ffprobe":
			b.cfg.Tools.FFprobe = path
		case "ffmpeg":
			b.cfg.Tools.FFmpeg = path
		case "freesound":
			b.cfg.Tools.Freesound = path
		default:
			b.t.Fatalf("unknown tool %q", tool)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TmpDir)
}
