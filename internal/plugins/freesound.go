package plugins

import (
	"context"

	"bnpl/internal/media/essentia"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// FreeSound adds tempo, key and chord descriptors from the essentia
// freesound extractor.
type FreeSound struct {
	plugin.Base
}

// NewFreeSound returns the essentia.free-sound transformer.
func NewFreeSound() *FreeSound {
	return &FreeSound{Base: plugin.NewBase("free-sound", plugin.CapTransformer,
		"Extract bpm and key via the essentia freesound extractor.",
		option.New("freesound_path", option.KindString,
			option.Describe("Extractor binary; defaults to tools.freesound")),
		plugin.PoolSizeOption(),
	)}
}

// Transform analyzes the local file and sets bpm, key and chord.
func (f *FreeSound) Transform(ctx context.Context, call *plugin.Call, s *sound.Sound) (*sound.Sound, error) {
	if !s.IsLocal() {
		return nil, services.Wrap(services.ErrPrecondition, call.Key, "analyze", "no local file at "+s.Path, nil)
	}
	cfg := call.Config()
	stats, err := essentia.Analyze(ctx, binary(call, "freesound_path", cfg.Tools.Freesound), s.Path, cfg.Paths.TmpDir)
	if err != nil {
		return nil, err
	}
	out := s.Clone()
	for key, value := range stats.Properties() {
		if err := out.SetProperty(key, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
