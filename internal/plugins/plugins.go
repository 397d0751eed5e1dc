package plugins

import (
	"strings"

	"bnpl/internal/plugin"
)

// Register adds every bundled plugin to reg.
func Register(reg *plugin.Registry) {
	reg.MustRegister("file", NewDirectory())
	reg.MustRegister("fpcalc", NewUID())
	reg.MustRegister("tags", NewGetTags())
	reg.MustRegister("itunes", NewSongs())
	reg.MustRegister("essentia", NewFreeSound())
	reg.MustRegister("core", NewImporter(), NewSearch(), NewPipeline())
	reg.MustRegister("export", NewManifest())
	reg.MustRegister("ffmpeg", NewConcat())
}

// NewRegistry returns a registry holding the bundled plugins.
func NewRegistry() *plugin.Registry {
	reg := plugin.NewRegistry()
	Register(reg)
	return reg
}

// binary picks the per-call override, falling back to the configured tool.
func binary(call *plugin.Call, option, configured string) string {
	if override := strings.TrimSpace(call.Options.String(option)); override != "" {
		return override
	}
	return configured
}
