package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/plugins"
	"bnpl/internal/storage"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger

	registryOnce sync.Once
	registry     *plugin.Registry
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// log returns the process logger. Construction failures fall back to a
// console logger on stderr.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, _ := c.ensureConfig()
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warn: %v\n", err)
			logger, _ = logging.New(logging.Options{Level: "info", Format: "console"})
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) plugins() *plugin.Registry {
	c.registryOnce.Do(func() {
		c.registry = plugins.NewRegistry()
	})
	return c.registry
}

func (c *commandContext) openLibrary() (*storage.Library, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg, c.log())
}

func (c *commandContext) withLibrary(fn func(*storage.Library) error) error {
	lib, err := c.openLibrary()
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer lib.Close()
	return fn(lib)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// interactive reports whether f is a terminal.
func interactive(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// wantsJSON selects machine output when asked for, or when stdout is a pipe.
func wantsJSON(cmd *cobra.Command, flag bool) bool {
	if flag {
		return true
	}
	out := cmd.OutOrStdout()
	if _, isFile := out.(*os.File); isFile {
		return !interactive(out)
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
