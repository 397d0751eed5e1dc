package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"bnpl/internal/config"
	"bnpl/internal/deps"
	"bnpl/internal/storage"
)

const (
	blobProbeKey     = ".bnpl-preflight"
	blobProbeTimeout = 10 * time.Second
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBlobs probes the blob backend with an existence lookup. A missing
// object is a pass; only transport or permission errors fail.
func CheckBlobs(ctx context.Context, name string, blobs storage.BlobBackend) Result {
	checkCtx, cancel := context.WithTimeout(ctx, blobProbeTimeout)
	defer cancel()
	if _, err := blobs.Exists(checkCtx, blobProbeKey); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("probe failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// Requirements lists the external tools used by the bundled plugins.
func Requirements(cfg *config.Config) []deps.Requirement {
	return []deps.Requirement{
		{Name: "fpcalc", Command: cfg.Tools.Fpcalc, Plugins: []string{"fpcalc.uid"}},
		{Name: "ffprobe", Command: cfg.Tools.FFprobe, Plugins: []string{"tags.get-tags"}},
		{Name: "ffmpeg", Command: cfg.Tools.FFmpeg, Plugins: []string{"ffmpeg.concat"}, Optional: true},
		{Name: "freesound extractor", Command: cfg.Tools.Freesound, Plugins: []string{"essentia.free-sound"}, Optional: true},
	}
}

// CheckTools resolves every configured tool.
func CheckTools(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(Requirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		r := Result{Name: s.Name, Passed: s.Available, Optional: s.Optional, Detail: s.Path}
		if !s.Available {
			r.Detail = fmt.Sprintf("%s; disables %s", s.Detail, strings.Join(s.Plugins, ", "))
		}
		results = append(results, r)
	}
	return results
}
