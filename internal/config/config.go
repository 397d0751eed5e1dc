package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains scratch, log and data directory configuration.
type Paths struct {
	TmpDir  string `toml:"tmp_dir"`
	LogDir  string `toml:"log_dir"`
	DataDir string `toml:"data_dir"`
}

// Naming controls how sound identifiers, slugs and storage keys are derived.
type Naming struct {
	SlugKeys    []string `toml:"slug_keys"`
	SlugDelim   string   `toml:"slug_delim"`
	UIDLength   int      `toml:"uid_length"`
	Compression string   `toml:"compression"`
	Root        string   `toml:"root"`
}

// Blob selects and configures the binary storage backend.
type Blob struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Records configures the searchable metadata store.
type Records struct {
	Path string `toml:"path"`
}

// Retry configures the backoff policy wrapped around storage calls.
type Retry struct {
	Attempts       int     `toml:"attempts"`
	WaitSeconds    float64 `toml:"wait_seconds"`
	Backoff        float64 `toml:"backoff"`
	MaxWaitSeconds float64 `toml:"max_wait_seconds"`
	Jitter         float64 `toml:"jitter"`
}

// Pool configures the default worker count for bulk operations.
type Pool struct {
	Size int `toml:"size"`
}

// API configures the HTTP surface served by bnpld.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Tools names the external binaries invoked by the bundled plugins.
type Tools struct {
	Fpcalc    string `toml:"fpcalc"`
	FFprobe   string `toml:"ffprobe"`
	FFmpeg    string `toml:"ffmpeg"`
	Freesound string `toml:"freesound"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bnpl.
//
// Configuration sections by subsystem:
//   - Paths: scratch, log and data directories
//   - Naming: uid length, slug keys and storage key layout
//   - MimeTypes: format to mime type table
//   - Blob: local directory or S3 bucket for binary content
//   - Records: sqlite metadata store
//   - Retry: backoff policy for storage calls
//   - Pool: default bulk worker count
//   - API: bind address and bearer token
//   - Tools: external binaries used by plugins
//   - Logging: log format and level
type Config struct {
	Paths     Paths             `toml:"paths"`
	Naming    Naming            `toml:"naming"`
	MimeTypes map[string]string `toml:"mimetypes"`
	Blob      Blob              `toml:"blob"`
	Records   Records           `toml:"records"`
	Retry     Retry             `toml:"retry"`
	Pool      Pool              `toml:"pool"`
	API       API               `toml:"api"`
	Tools     Tools             `toml:"tools"`
	Logging   Logging           `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bnpl.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI and daemon write into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.TmpDir, c.Paths.LogDir, c.Paths.DataDir}
	if c.Blob.Backend == BlobBackendLocal {
		dirs = append(dirs, c.Blob.Dir)
	}
	if c.Records.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Records.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MimeType returns the configured mime type for a format, or the empty string.
func (c *Config) MimeType(format string) string {
	return c.MimeTypes[strings.ToLower(strings.TrimSpace(format))]
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
