// Package ffmpeg wraps the ffmpeg invocations used by mixers.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"bnpl/internal/services"
)

// Concat joins sources end to end into dest using the concat demuxer. The
// output codec follows the extension of dest.
func Concat(ctx context.Context, binary string, sources []string, dest string) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if len(sources) == 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "concat", "no input files", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "create output dir", err)
	}

	list, err := os.CreateTemp(filepath.Dir(dest), ".concat-*.txt")
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "create list file", err)
	}
	defer os.Remove(list.Name())
	if _, err := list.WriteString(ListFile(sources)); err != nil {
		list.Close()
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "write list file", err)
	}
	if err := list.Close(); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "write list file", err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-vn",
		dest,
	}
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "concat", dest,
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	return nil
}

// ListFile renders the concat demuxer input for sources.
func ListFile(sources []string) string {
	var b strings.Builder
	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			abs = src
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
