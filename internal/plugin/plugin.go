package plugin

import (
	"context"
	"iter"
	"log/slog"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/option"
	"bnpl/internal/pool"
	"bnpl/internal/services"
	"bnpl/internal/sound"
	"bnpl/internal/storage"
)

// Plugin is the descriptive half every plugin implements. A plugin must also
// implement exactly the capability interface matching Capability().
type Plugin interface {
	Name() string
	Description() string
	Capability() Capability
	Options() *option.Set
}

// Extractor produces new sounds from its options alone.
type Extractor interface {
	Plugin
	Extract(ctx context.Context, call *Call) iter.Seq2[*sound.Sound, error]
}

// Transformer returns exactly one sound for each input sound.
type Transformer interface {
	Plugin
	Transform(ctx context.Context, call *Call, s *sound.Sound) (*sound.Sound, error)
}

// Importer consumes the whole input stream and yields the stored sounds.
type Importer interface {
	Plugin
	Import(ctx context.Context, call *Call, sounds iter.Seq[*sound.Sound]) iter.Seq2[*sound.Sound, error]
}

// Exporter writes the input sounds somewhere and returns its location.
type Exporter interface {
	Plugin
	Export(ctx context.Context, call *Call, sounds []*sound.Sound) (string, error)
}

// Mixer combines many sounds into one.
type Mixer interface {
	Plugin
	Mix(ctx context.Context, call *Call, sounds []*sound.Sound) (*sound.Sound, error)
}

// Composer runs other plugins as stages.
type Composer interface {
	Plugin
	Compose(ctx context.Context, call *Call) (*Output, error)
}

// implements reports whether p provides the method set its capability needs.
func implements(p Plugin) bool {
	switch p.Capability() {
	case CapExtractor:
		_, ok := p.(Extractor)
		return ok
	case CapTransformer:
		_, ok := p.(Transformer)
		return ok
	case CapImporter:
		_, ok := p.(Importer)
		return ok
	case CapExporter:
		_, ok := p.(Exporter)
		return ok
	case CapMixer:
		_, ok := p.(Mixer)
		return ok
	case CapPipeline:
		_, ok := p.(Composer)
		return ok
	}
	return false
}

// Base carries the descriptive fields shared by concrete plugins. Embed it
// and add the capability method. Base on its own cannot be registered.
type Base struct {
	name        string
	description string
	capability  Capability
	options     *option.Set
}

// NewBase builds the descriptive half of a plugin. It panics on an invalid
// option declaration, which is a programming error caught at startup.
func NewBase(name string, capability Capability, description string, opts ...option.Option) Base {
	return Base{
		name:        name,
		description: description,
		capability:  capability,
		options:     option.MustSet(opts...),
	}
}

func (b Base) Name() string { return b.name }
func (b Base) Description() string { return b.description }
func (b Base) Capability() Capability { return b.capability }
func (b Base) Options() *option.Set { return b.options }

// PoolSizeOption is the per-call worker count option shared by bulk plugins.
// It has no default so Call.PoolSize can fall back to the configuration.
func PoolSizeOption() option.Option {
	return option.New("pool_size", option.KindInteger,
		option.Alias("p"),
		option.Describe("Number of concurrent workers; [pool] size when unset"))
}

// Env holds the shared collaborators plugins may use. Any field may be nil;
// plugins that need a missing collaborator fail with a configuration error.
type Env struct {
	Config   *config.Config
	Library  *storage.Library
	Registry *Registry
	Logger   *slog.Logger
}

// Call is what a plugin sees during dispatch.
type Call struct {
	Key     string
	Context CallContext
	Options option.Values
	Env     *Env
	Logger  *slog.Logger
	// Input is the invocation's data stream. Only pipelines read it; other
	// capabilities receive their input through their method arguments.
	Input iter.Seq2[*sound.Sound, error]
}

// Library returns the configured library or a configuration error.
func (c *Call) Library() (*storage.Library, error) {
	if c.Env == nil || c.Env.Library == nil {
		return nil, services.Wrap(services.ErrConfiguration, c.Key, "library", "no storage configured", nil)
	}
	return c.Env.Library, nil
}

// Registry returns the registry used to resolve nested plugins.
func (c *Call) Registry() (*Registry, error) {
	if c.Env == nil || c.Env.Registry == nil {
		return nil, services.Wrap(services.ErrConfiguration, c.Key, "registry", "no plugin registry available", nil)
	}
	return c.Env.Registry, nil
}

// Config returns the configuration, falling back to defaults.
func (c *Call) Config() *config.Config {
	if c.Env != nil && c.Env.Config != nil {
		return c.Env.Config
	}
	cfg := config.Default()
	return &cfg
}

// Naming returns the key derivation rules in effect.
func (c *Call) Naming() sound.Naming {
	if c.Env != nil && c.Env.Library != nil {
		return c.Env.Library.Naming()
	}
	return sound.NewNaming(c.Config())
}

// PoolSize resolves the worker count from the pool_size option, then the
// configuration, then the package default.
func (c *Call) PoolSize() int {
	if n := c.Options.Int("pool_size"); n > 0 {
		return int(n)
	}
	if c.Env != nil && c.Env.Config != nil && c.Env.Config.Pool.Size > 0 {
		return c.Env.Config.Pool.Size
	}
	return pool.DefaultSize
}

// Log returns the call logger, never nil.
func (c *Call) Log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.NewNop()
}
