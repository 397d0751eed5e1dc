// Command bnpld serves the bnpl plugins and sound library over HTTP until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		bind       string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:           "bnpld",
		Short:         "Serve the bnpl HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), serveOptions{
				configPath: configPath,
				bind:       bind,
				logLevel:   logLevel,
				ready: func(addr string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "bnpld listening on %s\n", addr)
				},
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&bind, "bind", "", "Override api.bind")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}
