package plugin

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"bnpl/internal/option"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// Stage is a nested plugin with its options already validated. Pipelines
// prepare every stage before reading any data.
type Stage struct {
	Key    string
	Plugin Plugin
	Values option.Values
}

// Stage resolves key, checks that it has the wanted capability and validates
// raw against its options.
func (r *Registry) Stage(key string, want Capability, raw map[string]any) (Stage, error) {
	p, err := r.Get(key)
	if err != nil {
		return Stage{}, err
	}
	if p.Capability() != want {
		return Stage{}, services.Wrap(services.ErrValidation, key, "stage",
			fmt.Sprintf("is a %s, not a %s", p.Capability(), want), nil)
	}
	values, err := p.Options().Prepare(raw)
	if err != nil {
		return Stage{}, fmt.Errorf("%s: %w", key, err)
	}
	return Stage{Key: key, Plugin: p, Values: values}, nil
}

// Stages prepares one stage per key of specs, in order when given, otherwise
// sorted by key. When order is given it must name every key of specs and
// nothing else. Every problem is reported together.
func (r *Registry) Stages(want Capability, specs map[string]any, order []string) ([]Stage, error) {
	var (
		stages []Stage
		errs   []error
	)
	keys := order
	if len(keys) == 0 {
		keys = slices.Sorted(maps.Keys(specs))
	} else {
		for _, key := range slices.Sorted(maps.Keys(specs)) {
			if !slices.Contains(order, key) {
				errs = append(errs, services.Wrap(services.ErrValidation, key, "stage",
					"configured but missing from order", nil))
			}
		}
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			errs = append(errs, services.Wrap(services.ErrValidation, key, "stage",
				"listed more than once in order", nil))
			continue
		}
		seen[key] = true
		raw, ok := specs[key]
		if !ok {
			errs = append(errs, services.Wrap(services.ErrValidation, key, "stage",
				"listed in order but not configured", nil))
			continue
		}
		opts, ok := raw.(map[string]any)
		if raw != nil && !ok {
			errs = append(errs, services.Wrap(services.ErrValidation, key, "stage",
				fmt.Sprintf("options must be a dict, got %T", raw), nil))
			continue
		}
		stage, err := r.Stage(key, want, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stages = append(stages, stage)
	}
	return stages, errors.Join(errs...)
}

func (s Stage) call(parent *Call) *Call {
	return &Call{
		Key:     s.Key,
		Context: ContextInternal,
		Options: s.Values,
		Env:     parent.Env,
		Logger:  parent.Logger,
	}
}

// Extract runs an extractor stage.
func (s Stage) Extract(ctx context.Context, parent *Call) iter.Seq2[*sound.Sound, error] {
	return tagErrors(s.Key, s.Plugin.(Extractor).Extract(ctx, s.call(parent)))
}

// Transform runs a transformer stage on one sound.
func (s Stage) Transform(ctx context.Context, parent *Call, in *sound.Sound) (*sound.Sound, error) {
	out, err := s.Plugin.(Transformer).Transform(ctx, s.call(parent), in)
	if err != nil {
		return nil, wrapItem(s.Key, in, err)
	}
	if out == nil {
		return nil, wrapItem(s.Key, in, services.Wrap(services.ErrValidation, s.Key, "transform", "transformer returned no sound", nil))
	}
	return out, nil
}

// Import runs an importer stage over a stream, passing input errors through.
func (s Stage) Import(ctx context.Context, parent *Call, data iter.Seq2[*sound.Sound, error]) iter.Seq2[*sound.Sound, error] {
	return importAll(ctx, s.call(parent), s.Plugin.(Importer), data)
}

// Export runs an exporter stage and returns its location.
func (s Stage) Export(ctx context.Context, parent *Call, sounds []*sound.Sound) (string, error) {
	location, err := s.Plugin.(Exporter).Export(ctx, s.call(parent), sounds)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.Key, err)
	}
	return location, nil
}
