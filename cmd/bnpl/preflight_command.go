package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bnpl/internal/config"
	"bnpl/internal/preflight"
	"bnpl/internal/storage"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var probeBlobs bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, storage and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var backend storage.BlobBackend
			if probeBlobs {
				if backend, err = openBlobBackend(cfg); err != nil {
					return err
				}
			}
			results := preflight.RunAll(cmd.Context(), cfg, backend)

			if wantsJSON(cmd, jsonOutput) {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := "ok"
					switch {
					case !r.Passed && r.Optional:
						state = "missing (optional)"
					case !r.Passed:
						state = "FAILED"
					}
					rows = append(rows, []string{r.Name, state, r.Detail})
				}
				printTable(cmd, []string{"Check", "Status", "Detail"}, rows, nil)
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON even when attached to a terminal")
	cmd.Flags().BoolVar(&probeBlobs, "blobs", true, "Probe the configured blob store")
	return cmd
}

func openBlobBackend(cfg *config.Config) (storage.BlobBackend, error) {
	if cfg.Blob.Backend == config.BlobBackendS3 {
		blobs, err := storage.NewS3Blobs(storage.S3ConfigFrom(cfg.Blob))
		if err != nil {
			return nil, err
		}
		return blobs, nil
	}
	blobs, err := storage.NewLocalBlobs(cfg.Blob.Dir)
	if err != nil {
		return nil, err
	}
	return blobs, nil
}
