package plugin

import (
	"fmt"
	"strings"

	"bnpl/internal/services"
)

// Capability is the closed set of plugin types. It decides how an
// Invocation feeds data to the plugin and what shape the output takes.
type Capability string

const (
	CapExtractor   Capability = "extractor"
	CapTransformer Capability = "transformer"
	CapImporter    Capability = "importer"
	CapExporter    Capability = "exporter"
	CapMixer       Capability = "mixer"
	CapPipeline    Capability = "pipeline"
)

// Capabilities lists every capability in pipeline order.
var Capabilities = []Capability{
	CapExtractor, CapTransformer, CapImporter, CapExporter, CapMixer, CapPipeline,
}

// Validate reports whether c is one of the known capabilities.
func (c Capability) Validate() error {
	for _, known := range Capabilities {
		if c == known {
			return nil
		}
	}
	return services.Wrap(services.ErrValidation, "plugin", "capability", fmt.Sprintf("unknown capability %q", string(c)), nil)
}

// ParseCapability parses a capability name case-insensitively.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Validate()
}

// CallContext identifies who is invoking a plugin. It decides where options
// and data come from and what happens to the output.
type CallContext string

const (
	// ContextLibrary is an in-process Go caller passing options and data directly.
	ContextLibrary CallContext = "library"
	ContextCLI     CallContext = "cli"
	ContextAPI     CallContext = "api"
	// ContextInternal is one plugin calling another, such as a pipeline stage.
	ContextInternal CallContext = "internal"
)

// Validate reports whether c is a known call context.
func (c CallContext) Validate() error {
	switch c {
	case ContextLibrary, ContextCLI, ContextAPI, ContextInternal:
		return nil
	}
	return services.Wrap(services.ErrValidation, "plugin", "context", fmt.Sprintf("invalid plugin context %q", string(c)), nil)
}

// adapted reports whether options, data and output go through a Source and Sink.
func (c CallContext) adapted() bool {
	return c == ContextCLI || c == ContextAPI
}
