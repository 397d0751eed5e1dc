package preflight

import (
	"context"
	"log/slog"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// RunAll executes every check that applies to cfg. blobs may be nil, in which
// case the blob store is not probed.
func RunAll(ctx context.Context, cfg *config.Config, blobs storage.BlobBackend) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Temp directory", cfg.Paths.TmpDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
	}
	if cfg.Blob.Backend == config.BlobBackendLocal {
		results = append(results, CheckDirectoryAccess("Blob directory", cfg.Blob.Dir))
	}
	if blobs != nil {
		results = append(results, CheckBlobs(ctx, "Blob store", blobs))
	}
	return append(results, CheckTools(cfg)...)
}

// Failed returns the required results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// Log writes one line per result.
func Log(ctx context.Context, logger *slog.Logger, results []Result) {
	if logger == nil {
		return
	}
	for _, r := range results {
		attrs := logging.Args(
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		)
		switch {
		case r.Passed:
			logger.DebugContext(ctx, "preflight passed", attrs...)
		case r.Optional:
			logger.WarnContext(ctx, "preflight optional check failed", attrs...)
		default:
			logger.ErrorContext(ctx, "preflight failed", attrs...)
		}
	}
}
