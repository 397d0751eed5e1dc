package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bnpl/internal/config"
	"bnpl/internal/daemon"
	"bnpl/internal/logging"
	"bnpl/internal/plugins"
	"bnpl/internal/storage"
)

type serveOptions struct {
	configPath string
	bind       string
	logLevel   string
	// ready is called with the listening address once the daemon started.
	ready func(addr string)
}

// serve runs the daemon until ctx ends.
func serve(ctx context.Context, opts serveOptions) error {
	cfg, _, _, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if bind := strings.TrimSpace(opts.bind); bind != "" {
		cfg.API.Bind = bind
	}
	if level := strings.TrimSpace(opts.logLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := bootstrap(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if opts.ready != nil {
		opts.ready(d.Addr())
	}

	<-ctx.Done()
	logger.Info("bnpld shutting down")
	return nil
}

// bootstrap opens the library and builds the daemon around the built-in
// plugins.
func bootstrap(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	lib, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	d, err := daemon.New(cfg, lib, plugins.NewRegistry(), logger)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}
	return d, nil
}
