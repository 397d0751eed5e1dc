package plugin_test

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

type listing struct {
	plugin.Base
	paths []string
}

func newListing(paths ...string) *listing {
	return &listing{
		Base: plugin.NewBase("listing", plugin.CapExtractor, "Yields fixed paths",
			option.New("limit", option.KindInteger, option.Default(int64(100)))),
		paths: paths,
	}
}

func (l *listing) Extract(_ context.Context, call *plugin.Call) iter.Seq2[*sound.Sound, error] {
	limit := int(call.Options.Int("limit"))
	return func(yield func(*sound.Sound, error) bool) {
		for i, p := range l.paths {
			if i >= limit {
				return
			}
			if !yield(sound.New(p), nil) {
				return
			}
		}
	}
}

type tempo struct {
	plugin.Base
	calls    atomic.Int64
	poolSize atomic.Int64
}

func newTempo() *tempo {
	return &tempo{Base: plugin.NewBase("tempo", plugin.CapTransformer, "Sets bpm",
		option.New("bpm", option.KindFloat, option.Required()),
		plugin.PoolSizeOption())}
}

func (t *tempo) Transform(_ context.Context, call *plugin.Call, s *sound.Sound) (*sound.Sound, error) {
	t.calls.Add(1)
	t.poolSize.Store(int64(call.PoolSize()))
	if s.Format == "txt" {
		return nil, services.Wrap(services.ErrExternalTool, "tempo", "analyze", "cannot analyze "+s.Path, nil)
	}
	out := s.Clone()
	if err := out.SetProperty("bpm", call.Options.Float("bpm")); err != nil {
		return nil, err
	}
	return out, nil
}

type collector struct {
	plugin.Base
	got []*sound.Sound
}

func newCollector() *collector {
	return &collector{Base: plugin.NewBase("collector", plugin.CapImporter, "Keeps what it sees")}
}

func (c *collector) Import(_ context.Context, _ *plugin.Call, sounds iter.Seq[*sound.Sound]) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		for s := range sounds {
			c.got = append(c.got, s)
			if !yield(s, nil) {
				return
			}
		}
	}
}

type counter struct {
	plugin.Base
}

func newCounter() *counter {
	return &counter{Base: plugin.NewBase("counter", plugin.CapExporter, "Reports how many sounds it saw")}
}

func (c *counter) Export(_ context.Context, _ *plugin.Call, sounds []*sound.Sound) (string, error) {
	return fmt.Sprintf("count:%d", len(sounds)), nil
}

type first struct {
	plugin.Base
}

func newFirst() *first {
	return &first{Base: plugin.NewBase("first", plugin.CapMixer, "Returns the first input")}
}

func (f *first) Mix(_ context.Context, _ *plugin.Call, sounds []*sound.Sound) (*sound.Sound, error) {
	if len(sounds) == 0 {
		return nil, services.Wrap(services.ErrValidation, "first", "mix", "no input", nil)
	}
	return sounds[0], nil
}

// bare declares a capability without the matching method.
type bare struct {
	plugin.Base
}

func newBare() *bare {
	return &bare{Base: plugin.NewBase("bare", plugin.CapTransformer, "Missing Transform")}
}

type recordingSource struct {
	options  map[string]any
	items    []any
	dataRead bool
}

func (s *recordingSource) Options(context.Context) (map[string]any, error) {
	return s.options, nil
}

func (s *recordingSource) Data(context.Context) (iter.Seq2[any, error], error) {
	s.dataRead = true
	return func(yield func(any, error) bool) {
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
	}, nil
}

type recordingSink struct {
	outputs []*plugin.Output
}

func (s *recordingSink) Write(_ context.Context, out *plugin.Output) error {
	s.outputs = append(s.outputs, out)
	return nil
}
