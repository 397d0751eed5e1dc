package plugin

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"bnpl/internal/logging"
	"bnpl/internal/option"
	"bnpl/internal/pool"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// State is a step of the invocation lifecycle.
type State string

const (
	StateConstructed   State = "constructed"
	StateOptionsLoaded State = "options_loaded"
	StateDataLoaded    State = "data_loaded"
	StateDispatched    State = "dispatched"
	StateReturned      State = "returned"
)

// Source supplies raw options and data for the cli and api contexts.
type Source interface {
	Options(ctx context.Context) (map[string]any, error)
	// Data yields raw items: *sound.Sound, maps, or local paths.
	Data(ctx context.Context) (iter.Seq2[any, error], error)
}

// Sink receives the output in the cli and api contexts.
type Sink interface {
	Write(ctx context.Context, out *Output) error
}

// InvocationOption configures an Invocation.
type InvocationOption func(*Invocation)

// WithKey sets the registry key used in logs, errors and help output.
func WithKey(key string) InvocationOption {
	return func(inv *Invocation) { inv.key = key }
}

// WithOptions supplies raw options for the library and internal contexts.
func WithOptions(raw map[string]any) InvocationOption {
	return func(inv *Invocation) { inv.rawOptions = raw }
}

// WithData supplies input for the library and internal contexts: a sound, a
// map, a local path, a slice of those, a sound sequence, or another Output.
func WithData(data any) InvocationOption {
	return func(inv *Invocation) { inv.rawData = data }
}

// WithSource sets the adapter the cli and api contexts read from.
func WithSource(src Source) InvocationOption {
	return func(inv *Invocation) { inv.source = src }
}

// WithSink sets the adapter the cli and api contexts write to.
func WithSink(sink Sink) InvocationOption {
	return func(inv *Invocation) { inv.sink = sink }
}

// WithEnv shares collaborators with the plugin.
func WithEnv(env *Env) InvocationOption {
	return func(inv *Invocation) { inv.env = env }
}

// Invocation runs one plugin once. It moves through
// constructed → options_loaded → data_loaded → dispatched → returned; each
// step may only run after the previous one succeeded.
type Invocation struct {
	plugin     Plugin
	context    CallContext
	key        string
	rawOptions map[string]any
	rawData    any
	source     Source
	sink       Sink
	env        *Env

	mu     sync.Mutex
	state  State
	values option.Values
	data   iter.Seq2[*sound.Sound, error]
}

// NewInvocation fixes the call context. An unknown context, or a cli/api
// context without a Source and Sink, fails here.
func NewInvocation(p Plugin, cctx CallContext, opts ...InvocationOption) (*Invocation, error) {
	if p == nil {
		return nil, services.Wrap(services.ErrConfiguration, "plugin", "invoke", "plugin cannot be nil", nil)
	}
	if err := cctx.Validate(); err != nil {
		return nil, err
	}
	inv := &Invocation{plugin: p, context: cctx, key: p.Name(), state: StateConstructed}
	for _, opt := range opts {
		opt(inv)
	}
	if cctx.adapted() && (inv.source == nil || inv.sink == nil) {
		return nil, services.Wrap(services.ErrConfiguration, inv.key, "invoke",
			fmt.Sprintf("%s context requires a source and a sink", cctx), nil)
	}
	return inv, nil
}

// State returns the current lifecycle step.
func (inv *Invocation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Context returns the fixed call context.
func (inv *Invocation) Context() CallContext { return inv.context }

// Values returns the resolved options once loaded.
func (inv *Invocation) Values() option.Values {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.values
}

func (inv *Invocation) advance(from, to State) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state != from {
		return services.Wrap(services.ErrPrecondition, inv.key, "invoke",
			fmt.Sprintf("cannot move to %s from %s", to, inv.state), nil)
	}
	inv.state = to
	return nil
}

func (inv *Invocation) expect(state State) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state != state {
		return services.Wrap(services.ErrPrecondition, inv.key, "invoke",
			fmt.Sprintf("expected state %s, found %s", state, inv.state), nil)
	}
	return nil
}

// LoadOptions reads the raw options and validates them. Every problem is
// reported at once and nothing else runs when validation fails.
func (inv *Invocation) LoadOptions(ctx context.Context) error {
	if err := inv.expect(StateConstructed); err != nil {
		return err
	}
	raw := inv.rawOptions
	if inv.context.adapted() {
		var err error
		if raw, err = inv.source.Options(ctx); err != nil {
			return err
		}
	}
	values, err := inv.plugin.Options().Prepare(raw)
	if err != nil {
		if !helpRequested(raw) {
			return fmt.Errorf("%s: %w", inv.key, err)
		}
		values = option.Values{option.HelpOption: true}
	}
	inv.mu.Lock()
	inv.values = values
	inv.mu.Unlock()
	return inv.advance(StateConstructed, StateOptionsLoaded)
}

// LoadData normalizes the input into a lazy sound stream. It reads nothing
// when help was requested.
func (inv *Invocation) LoadData(ctx context.Context) error {
	if err := inv.expect(StateOptionsLoaded); err != nil {
		return err
	}
	data := empty()
	if !inv.Values().Help() {
		if inv.context.adapted() {
			items, err := inv.source.Data(ctx)
			if err != nil {
				return err
			}
			if items != nil {
				data = normalize(items)
			}
		} else {
			data = normalize(inv.rawData)
		}
	}
	inv.mu.Lock()
	inv.data = data
	inv.mu.Unlock()
	return inv.advance(StateOptionsLoaded, StateDataLoaded)
}

// Dispatch runs the plugin according to its capability, or returns its
// descriptor when help was requested.
func (inv *Invocation) Dispatch(ctx context.Context) (*Output, error) {
	if err := inv.expect(StateDataLoaded); err != nil {
		return nil, err
	}
	ctx = services.WithPlugin(ctx, inv.key)
	values := inv.Values()
	if values.Help() {
		desc := Describe(inv.module(), inv.plugin)
		desc.Key = inv.key
		if err := inv.advance(StateDataLoaded, StateDispatched); err != nil {
			return nil, err
		}
		return &Output{Key: inv.key, Capability: inv.plugin.Capability(), Help: &desc}, nil
	}

	call := &Call{
		Key:     inv.key,
		Context: inv.context,
		Options: values,
		Env:     inv.env,
		Logger:  inv.logger(ctx),
	}
	call.Log().DebugContext(ctx, "plugin dispatched",
		logging.String("capability", string(inv.plugin.Capability())),
		logging.String("context", string(inv.context)),
	)

	out, err := inv.dispatch(ctx, call)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &Output{}
	}
	out.Key = inv.key
	out.Capability = inv.plugin.Capability()
	if err := inv.advance(StateDataLoaded, StateDispatched); err != nil {
		return nil, err
	}
	return out, nil
}

func (inv *Invocation) dispatch(ctx context.Context, call *Call) (*Output, error) {
	inv.mu.Lock()
	data := inv.data
	inv.mu.Unlock()

	if !implements(inv.plugin) {
		return nil, services.Wrap(services.ErrConfiguration, inv.key, "dispatch",
			fmt.Sprintf("%s does not implement %s", ImportPath(inv.plugin), inv.plugin.Capability()), nil)
	}

	switch inv.plugin.Capability() {
	case CapExtractor:
		p := inv.plugin.(Extractor)
		return NewStreamOutput(CapExtractor, tagErrors(inv.key, p.Extract(ctx, call))), nil
	case CapTransformer:
		return NewStreamOutput(CapTransformer, transformEach(ctx, call, inv.plugin.(Transformer), data)), nil
	case CapImporter:
		return NewStreamOutput(CapImporter, importAll(ctx, call, inv.plugin.(Importer), data)), nil
	case CapExporter:
		sounds, err := collectInput(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inv.key, err)
		}
		location, err := inv.plugin.(Exporter).Export(ctx, call, sounds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inv.key, err)
		}
		return &Output{Locations: []string{location}}, nil
	case CapMixer:
		sounds, err := collectInput(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inv.key, err)
		}
		mixed, err := inv.plugin.(Mixer).Mix(ctx, call, sounds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inv.key, err)
		}
		if mixed == nil {
			return nil, services.Wrap(services.ErrValidation, inv.key, "mix", "mixer returned no sound", nil)
		}
		return &Output{Sound: mixed}, nil
	default:
		call.Input = data
		out, err := inv.plugin.(Composer).Compose(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inv.key, err)
		}
		return out, nil
	}
}

// Return finishes the invocation. In the cli and api contexts the output is
// handed to the Sink; otherwise it is returned as is.
func (inv *Invocation) Return(ctx context.Context, out *Output) (*Output, error) {
	if err := inv.expect(StateDispatched); err != nil {
		return nil, err
	}
	if inv.context.adapted() {
		if err := inv.sink.Write(ctx, out); err != nil {
			return out, err
		}
	}
	if err := inv.advance(StateDispatched, StateReturned); err != nil {
		return nil, err
	}
	return out, nil
}

// Run performs every remaining step in order.
func (inv *Invocation) Run(ctx context.Context) (*Output, error) {
	if err := inv.LoadOptions(ctx); err != nil {
		return nil, err
	}
	if err := inv.LoadData(ctx); err != nil {
		return nil, err
	}
	out, err := inv.Dispatch(ctx)
	if err != nil {
		return nil, err
	}
	return inv.Return(ctx, out)
}

// helpRequested lets help through when other options are missing or invalid.
func helpRequested(raw map[string]any) bool {
	v, err := option.Coerce(raw[option.HelpOption], option.KindBoolean)
	return err == nil && v == true
}

func (inv *Invocation) module() string {
	if idx := strings.Index(inv.key, "."); idx > 0 {
		return inv.key[:idx]
	}
	return ""
}

func (inv *Invocation) logger(ctx context.Context) *slog.Logger {
	var base *slog.Logger
	if inv.env != nil {
		base = inv.env.Logger
	}
	return logging.WithContext(ctx, logging.NewComponentLogger(orNop(base), "plugin"))
}

func orNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.NewNop()
	}
	return logger
}

type pending struct {
	sound *sound.Sound
	err   error
}

func transformEach(ctx context.Context, call *Call, t Transformer, data iter.Seq2[*sound.Sound, error]) iter.Seq2[*sound.Sound, error] {
	items := func(yield func(pending) bool) {
		for s, err := range data {
			if !yield(pending{sound: s, err: err}) {
				return
			}
		}
	}
	return pool.Map(ctx, call.PoolSize(), items, func(ctx context.Context, item pending) (*sound.Sound, error) {
		if item.err != nil {
			return nil, item.err
		}
		out, err := t.Transform(ctx, call, item.sound)
		if err != nil {
			return nil, wrapItem(call.Key, item.sound, err)
		}
		if out == nil {
			return nil, wrapItem(call.Key, item.sound,
				services.Wrap(services.ErrValidation, call.Key, "transform", "transformer returned no sound", nil))
		}
		return out, nil
	})
}

func importAll(ctx context.Context, call *Call, imp Importer, data iter.Seq2[*sound.Sound, error]) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		var (
			mu        sync.Mutex
			inputErrs []error
		)
		valid := func(yield func(*sound.Sound) bool) {
			for s, err := range data {
				if err != nil {
					mu.Lock()
					inputErrs = append(inputErrs, err)
					mu.Unlock()
					continue
				}
				if !yield(s) {
					return
				}
			}
		}
		for s, err := range imp.Import(ctx, call, valid) {
			if !yield(s, wrapItem(call.Key, s, err)) {
				return
			}
		}
		mu.Lock()
		errs := inputErrs
		mu.Unlock()
		for _, err := range errs {
			if !yield(nil, err) {
				return
			}
		}
	}
}

func tagErrors(key string, stream iter.Seq2[*sound.Sound, error]) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		for s, err := range stream {
			if !yield(s, wrapItem(key, s, err)) {
				return
			}
		}
	}
}

// collectInput materializes the input for capabilities that need all of it.
// Any bad input item fails the whole call.
func collectInput(data iter.Seq2[*sound.Sound, error]) ([]*sound.Sound, error) {
	var (
		sounds []*sound.Sound
		errs   []error
	)
	for s, err := range data {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sounds = append(sounds, s)
	}
	return sounds, errors.Join(errs...)
}
