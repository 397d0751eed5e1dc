package main

import (
	"io"

	"github.com/spf13/cobra"

	"bnpl/internal/cliargs"
	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/sound"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noInput bool

	cmd := &cobra.Command{
		Use:   "run <plugin> [--option value ...]",
		Short: "Run a plugin, reading NDJSON from stdin and writing NDJSON to stdout",
		Long: `Run a registered plugin in the cli context.

Everything after the plugin key is passed to the plugin as options:
--name=value, --name value, --flag and --no-flag. List and dict values may be
written as JSON, and a path ending in .json, .yml or .yaml is loaded.
Pass --help after the key to print the plugin descriptor.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.log()
			env := &plugin.Env{Config: cfg, Registry: ctx.plugins(), Logger: logger}

			lib, err := ctx.openLibrary()
			if err != nil {
				logger.Debug("library unavailable", logging.Error(err))
			} else {
				defer lib.Close()
				env.Library = lib
			}

			var input io.Reader
			if !noInput {
				input = pipedInput(cmd)
			}
			sink := cliargs.NewSink(cmd.OutOrStdout(), sound.NewNaming(cfg), logger)
			_, err = env.Registry.Run(cmd.Context(), args[0], plugin.ContextCLI,
				plugin.WithEnv(env),
				plugin.WithSource(cliargs.NewSource(args[1:], input)),
				plugin.WithSink(sink),
			)
			if sink.Failed > 0 {
				logger.Warn("run finished with failures",
					logging.String(logging.FieldPlugin, args[0]),
					logging.Int("written", sink.Written),
					logging.Int("failed", sink.Failed))
			}
			return err
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Do not read data from stdin")
	return cmd
}

// pipedInput returns stdin unless it is attached to a terminal.
func pipedInput(cmd *cobra.Command) io.Reader {
	in := cmd.InOrStdin()
	if interactive(in) {
		return nil
	}
	return in
}
