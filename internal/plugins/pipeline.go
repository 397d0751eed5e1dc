package plugins

import (
	"context"
	"errors"
	"iter"

	"bnpl/internal/logging"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/pool"
	"bnpl/internal/sound"
)

const stageSchema = `{
  "type": "object",
  "additionalProperties": {"type": ["object", "null"]}
}`

// Pipeline chains extractors, transformers, importers and exporters.
type Pipeline struct {
	plugin.Base
}

func stageOption(name, describe string) option.Option {
	return option.New(name, option.KindDict, option.Schema(stageSchema), option.Describe(describe))
}

// NewPipeline returns the core.pipeline plugin.
func NewPipeline() *Pipeline {
	return &Pipeline{Base: plugin.NewBase("pipeline", plugin.CapPipeline,
		"Run extractors, transformers, importers and exporters as one job.",
		stageOption("extractors", "Extractor keys mapped to their options; input data is used when empty"),
		stageOption("transformers", "Transformer keys mapped to their options"),
		option.New("order", option.KindList, option.Items(option.KindString),
			option.Describe("Transformer keys in the order they run, naming every configured transformer; sorted by key when empty")),
		stageOption("importers", "Importer keys mapped to their options"),
		stageOption("exporters", "Exporter keys mapped to their options"),
		plugin.PoolSizeOption(),
	)}
}

type stages struct {
	extractors   []plugin.Stage
	transformers []plugin.Stage
	importers    []plugin.Stage
	exporters    []plugin.Stage
}

// prepare validates every stage's options before any data is read.
func (p *Pipeline) prepare(call *plugin.Call) (stages, error) {
	reg, err := call.Registry()
	if err != nil {
		return stages{}, err
	}
	var (
		st   stages
		errs = make([]error, 4)
	)
	st.extractors, errs[0] = reg.Stages(plugin.CapExtractor, call.Options.Dict("extractors"), nil)
	st.transformers, errs[1] = reg.Stages(plugin.CapTransformer, call.Options.Dict("transformers"), call.Options.Strings("order"))
	st.importers, errs[2] = reg.Stages(plugin.CapImporter, call.Options.Dict("importers"), nil)
	st.exporters, errs[3] = reg.Stages(plugin.CapExporter, call.Options.Dict("exporters"), nil)
	return st, errors.Join(errs...)
}

// Compose runs the stages. Each sound passes through every transformer on a
// single worker, pool_size sounds at a time. Importers run in sequence, each
// fed by the previous one. When exporters are configured the stream is
// collected first and every exporter receives the same sounds.
func (p *Pipeline) Compose(ctx context.Context, call *plugin.Call) (*plugin.Output, error) {
	st, err := p.prepare(call)
	if err != nil {
		return nil, err
	}
	call.Log().InfoContext(ctx, "pipeline started",
		logging.Int("extractors", len(st.extractors)),
		logging.Int("transformers", len(st.transformers)),
		logging.Int("importers", len(st.importers)),
		logging.Int("exporters", len(st.exporters)))

	stream := call.Input
	if len(st.extractors) > 0 {
		stream = extractAll(ctx, call, st.extractors)
	}
	if stream == nil {
		stream = func(func(*sound.Sound, error) bool) {}
	}
	if len(st.transformers) > 0 {
		stream = transformChain(ctx, call, st.transformers, stream)
	}
	for _, importer := range st.importers {
		stream = importer.Import(ctx, call, stream)
	}
	if len(st.exporters) == 0 {
		return plugin.NewStreamOutput(plugin.CapPipeline, stream), nil
	}

	sounds, errs := drain(stream)
	if len(sounds) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	locations := make([]string, 0, len(st.exporters))
	for _, exporter := range st.exporters {
		location, err := exporter.Export(ctx, call, sounds)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	out := plugin.NewStreamOutput(plugin.CapPipeline, replay(sounds, errs))
	out.Locations = locations
	return out, nil
}

func extractAll(ctx context.Context, call *plugin.Call, extractors []plugin.Stage) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		for _, extractor := range extractors {
			for s, err := range extractor.Extract(ctx, call) {
				if !yield(s, err) {
					return
				}
			}
		}
	}
}

type item struct {
	sound *sound.Sound
	err   error
}

func transformChain(ctx context.Context, call *plugin.Call, transformers []plugin.Stage, data iter.Seq2[*sound.Sound, error]) iter.Seq2[*sound.Sound, error] {
	items := func(yield func(item) bool) {
		for s, err := range data {
			if !yield(item{sound: s, err: err}) {
				return
			}
		}
	}
	return pool.Map(ctx, call.PoolSize(), items, func(ctx context.Context, in item) (*sound.Sound, error) {
		if in.err != nil {
			return nil, in.err
		}
		current := in.sound
		for _, t := range transformers {
			next, err := t.Transform(ctx, call, current)
			if err != nil {
				return nil, err
			}
			current = next
		}
		return current, nil
	})
}

func drain(stream iter.Seq2[*sound.Sound, error]) ([]*sound.Sound, []error) {
	var (
		sounds []*sound.Sound
		errs   []error
	)
	for s, err := range stream {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sounds = append(sounds, s)
	}
	return sounds, errs
}

func replay(sounds []*sound.Sound, errs []error) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		for _, s := range sounds {
			if !yield(s, nil) {
				return
			}
		}
		for _, err := range errs {
			if !yield(nil, err) {
				return
			}
		}
	}
}
