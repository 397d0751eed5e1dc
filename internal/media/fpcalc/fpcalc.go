// Package fpcalc runs chromaprint's fpcalc to fingerprint audio files.
package fpcalc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"bnpl/internal/services"
)

// Result is the decoded `fpcalc -json` report.
type Result struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// Run fingerprints path with the given binary ("fpcalc" when empty).
func Run(ctx context.Context, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "fpcalc"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "fpcalc", "run", "empty path", nil)
	}
	output, err := exec.CommandContext(ctx, binary, "-json", path).Output() //nolint:gosec
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "fpcalc", "run", path, err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "fpcalc", "parse", path, err)
	}
	return result, nil
}
