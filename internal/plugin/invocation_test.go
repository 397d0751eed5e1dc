package plugin_test

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sort"
	"strings"
	"testing"

	"bnpl/internal/config"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

func TestNewInvocationRejectsUnknownContext(t *testing.T) {
	_, err := plugin.NewInvocation(newTempo(), plugin.CallContext("python"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid plugin context") {
		t.Fatalf("unexpected message %v", err)
	}
}

func TestAdaptedContextsNeedSourceAndSink(t *testing.T) {
	for _, cctx := range []plugin.CallContext{plugin.ContextCLI, plugin.ContextAPI} {
		if _, err := plugin.NewInvocation(newTempo(), cctx); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", cctx, err)
		}
	}
}

func TestInvocationStepsRunInOrder(t *testing.T) {
	inv, err := plugin.NewInvocation(newListing("a.wav"), plugin.ContextLibrary)
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	if inv.State() != plugin.StateConstructed {
		t.Fatalf("state = %s", inv.State())
	}
	ctx := context.Background()
	if err := inv.LoadData(ctx); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error loading data first, got %v", err)
	}
	if _, err := inv.Dispatch(ctx); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error dispatching first, got %v", err)
	}
	if err := inv.LoadOptions(ctx); err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if err := inv.LoadOptions(ctx); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected options to load once, got %v", err)
	}
	if err := inv.LoadData(ctx); err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	out, err := inv.Dispatch(ctx)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if inv.State() != plugin.StateDispatched {
		t.Fatalf("state = %s", inv.State())
	}
	if _, err := inv.Return(ctx, out); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if inv.State() != plugin.StateReturned {
		t.Fatalf("state = %s", inv.State())
	}
}

func TestValidationFailureStopsBeforeData(t *testing.T) {
	src := &recordingSource{options: map[string]any{"bpm": "fast", "pool_size": "many"}}
	sink := &recordingSink{}
	inv, err := plugin.NewInvocation(newTempo(), plugin.ContextCLI, plugin.WithSource(src), plugin.WithSink(sink))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	_, err = inv.Run(context.Background())
	var verr *option.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Fatalf("expected both problems reported, got %v", verr.Problems)
	}
	if src.dataRead {
		t.Fatal("expected data not to be read after failed validation")
	}
	if len(sink.outputs) != 0 {
		t.Fatal("expected nothing written to the sink")
	}
	if inv.State() != plugin.StateConstructed {
		t.Fatalf("state = %s", inv.State())
	}
}

func TestHelpReturnsDescriptorWithoutDispatch(t *testing.T) {
	tp := newTempo()
	src := &recordingSource{options: map[string]any{"help": "yes"}}
	sink := &recordingSink{}
	inv, err := plugin.NewInvocation(tp, plugin.ContextCLI,
		plugin.WithKey("test.tempo"), plugin.WithSource(src), plugin.WithSink(sink))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.IsHelp() || out.Help.Key != "test.tempo" || out.Help.Module != "test" {
		t.Fatalf("expected descriptor output, got %+v", out)
	}
	if tp.calls.Load() != 0 || src.dataRead {
		t.Fatal("expected help to bypass data and dispatch")
	}
	if len(sink.outputs) != 1 || sink.outputs[0] != out {
		t.Fatalf("expected help written to the sink, got %d outputs", len(sink.outputs))
	}
}

func TestTransformerSetsPropertyOnEveryInput(t *testing.T) {
	inputs := []any{
		sound.New("/music/a.mp3"),
		map[string]any{"path": "/music/b.wav", "title": "Bee"},
		"/music/c.flac",
	}
	inv, err := plugin.NewInvocation(newTempo(), plugin.ContextLibrary,
		plugin.WithOptions(map[string]any{"bpm": "120", "p": 2}),
		plugin.WithData(inputs))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sounds, err := out.Sounds()
	if err != nil {
		t.Fatalf("Sounds: %v", err)
	}
	if len(sounds) != 3 {
		t.Fatalf("expected 3 sounds, got %d", len(sounds))
	}
	var paths []string
	for _, s := range sounds {
		bpm, ok := s.Attr("bpm")
		if n, _ := bpm.Num(); !ok || n != 120 {
			t.Fatalf("%s: bpm = %v", s.Path, bpm.Any())
		}
		paths = append(paths, s.Path)
	}
	sort.Strings(paths)
	if !slices.Equal(paths, []string{"/music/a.mp3", "/music/b.wav", "/music/c.flac"}) {
		t.Fatalf("paths = %v", paths)
	}
	if title, _ := sounds[slices.IndexFunc(sounds, func(s *sound.Sound) bool { return s.Path == "/music/b.wav" })].Attr("title"); title.Any() != "Bee" {
		t.Fatalf("expected map properties to survive, got %v", title.Any())
	}
}

func TestPoolSizeFallsBackToConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.Size = 3

	tests := []struct {
		name    string
		env     *plugin.Env
		options map[string]any
		want    int64
	}{
		{"option wins", &plugin.Env{Config: &cfg}, map[string]any{"bpm": 90, "pool_size": 5}, 5},
		{"config when unset", &plugin.Env{Config: &cfg}, map[string]any{"bpm": 90}, 3},
		{"package default without config", nil, map[string]any{"bpm": 90}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := newTempo()
			opts := []plugin.InvocationOption{
				plugin.WithOptions(tt.options),
				plugin.WithData([]string{"/x/a.wav"}),
			}
			if tt.env != nil {
				opts = append(opts, plugin.WithEnv(tt.env))
			}
			inv, err := plugin.NewInvocation(tp, plugin.ContextLibrary, opts...)
			if err != nil {
				t.Fatalf("NewInvocation: %v", err)
			}
			out, err := inv.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if _, err := out.Sounds(); err != nil {
				t.Fatalf("Sounds: %v", err)
			}
			if got := tp.poolSize.Load(); got != tt.want {
				t.Fatalf("PoolSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTransformerReportsFailuresPerItem(t *testing.T) {
	inv, err := plugin.NewInvocation(newTempo(), plugin.ContextLibrary,
		plugin.WithKey("test.tempo"),
		plugin.WithOptions(map[string]any{"bpm": 90}),
		plugin.WithData([]string{"/x/a.wav", "/x/notes.txt", "/x/b.wav"}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sounds, err := out.Sounds()
	if len(sounds) != 2 {
		t.Fatalf("expected 2 successes, got %d", len(sounds))
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected tool error to keep its marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "test.tempo: /x/notes.txt") {
		t.Fatalf("expected plugin key and item in error, got %v", err)
	}
}

func TestImporterSeesValidItemsAndReportsBadOnes(t *testing.T) {
	c := newCollector()
	inv, err := plugin.NewInvocation(c, plugin.ContextInternal,
		plugin.WithData([]any{"/x/a.wav", 42, sound.New("/x/b.wav")}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sounds, err := out.Sounds()
	if len(sounds) != 2 || len(c.got) != 2 {
		t.Fatalf("expected importer to see 2 sounds, got %d/%d", len(sounds), len(c.got))
	}
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "int") {
		t.Fatalf("expected validation error for the bad item, got %v", err)
	}
}

func TestExporterAndMixerCollectInput(t *testing.T) {
	ctx := context.Background()
	inv, err := plugin.NewInvocation(newCounter(), plugin.ContextLibrary,
		plugin.WithData([]string{"a.wav", "b.wav", "c.wav"}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := out.Value(); !slices.Equal(v.([]string), []string{"count:3"}) {
		t.Fatalf("exporter value = %v", v)
	}

	inv, err = plugin.NewInvocation(newCounter(), plugin.ContextLibrary, plugin.WithData([]any{"a.wav", 7}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	if _, err := inv.Run(ctx); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected bad input to fail the export, got %v", err)
	}

	inv, err = plugin.NewInvocation(newFirst(), plugin.ContextLibrary, plugin.WithData([]string{"a.wav", "b.wav"}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err = inv.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Sound == nil || out.Sound.Path != "a.wav" {
		t.Fatalf("mixer output = %+v", out.Sound)
	}
	streamed, err := out.Sounds()
	if err != nil || len(streamed) != 1 {
		t.Fatalf("expected mixer stream of one, got %d (%v)", len(streamed), err)
	}
}

func TestOutputFeedsNextStage(t *testing.T) {
	ctx := context.Background()
	inv, err := plugin.NewInvocation(newListing("a.wav", "b.wav", "c.wav"), plugin.ContextInternal,
		plugin.WithOptions(map[string]any{"limit": 2}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	extracted, err := inv.Run(ctx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	inv, err = plugin.NewInvocation(newCounter(), plugin.ContextInternal, plugin.WithData(extracted))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Locations[0] != "count:2" {
		t.Fatalf("locations = %v", out.Locations)
	}
}

func TestCLIContextReadsSourceAndWritesSink(t *testing.T) {
	src := &recordingSource{
		options: map[string]any{"bpm": "128"},
		items:   []any{map[string]any{"path": "/x/a.wav"}, "/x/b.wav"},
	}
	sink := &recordingSink{}
	inv, err := plugin.NewInvocation(newTempo(), plugin.ContextAPI,
		plugin.WithSource(src), plugin.WithSink(sink),
		plugin.WithOptions(map[string]any{"bpm": "1"}))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	if _, err := inv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.dataRead || len(sink.outputs) != 1 {
		t.Fatalf("expected source read and one sink write, got read=%v writes=%d", src.dataRead, len(sink.outputs))
	}
	sounds, err := sink.outputs[0].Sounds()
	if err != nil || len(sounds) != 2 {
		t.Fatalf("expected 2 sounds, got %d (%v)", len(sounds), err)
	}
	for _, s := range sounds {
		if bpm, _ := s.Attr("bpm"); bpm.Any() != float64(128) {
			t.Fatalf("expected source options to win, got %v", bpm.Any())
		}
	}
}

func TestLazySequenceInput(t *testing.T) {
	var seq iter.Seq[*sound.Sound] = func(yield func(*sound.Sound) bool) {
		for _, p := range []string{"a.wav", "b.wav"} {
			if !yield(sound.New(p)) {
				return
			}
		}
	}
	inv, err := plugin.NewInvocation(newCounter(), plugin.ContextLibrary, plugin.WithData(seq))
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	out, err := inv.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Locations[0] != "count:2" {
		t.Fatalf("locations = %v", out.Locations)
	}
}
