package plugins

import (
	"context"
	"slices"

	"bnpl/internal/media/ffprobe"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// DefaultTags are the container tags copied unless told otherwise.
var DefaultTags = []any{"artist", "album", "title", "genre", "tracknumber", "date"}

// ffprobe reports a few common tags under other names.
var tagAliases = map[string]string{
	"track":        "tracknumber",
	"album_artist": "albumartist",
	"year":         "date",
}

// GetTags copies container tags onto sound properties.
type GetTags struct {
	plugin.Base
}

// NewGetTags returns the tags.get-tags transformer.
func NewGetTags() *GetTags {
	return &GetTags{Base: plugin.NewBase("get-tags", plugin.CapTransformer,
		"Set tags on a sound from its container metadata.",
		option.New("tags", option.KindList, option.Items(option.KindString),
			option.Default(DefaultTags),
			option.Describe("Lowercase tag names to keep")),
		option.New("ffprobe_path", option.KindString,
			option.Describe("ffprobe binary; defaults to tools.ffprobe")),
		plugin.PoolSizeOption(),
	)}
}

// Transform reads the tags of the local file and keeps the wanted ones.
func (g *GetTags) Transform(ctx context.Context, call *plugin.Call, s *sound.Sound) (*sound.Sound, error) {
	if !s.IsLocal() {
		return nil, services.Wrap(services.ErrPrecondition, call.Key, "tags", "no local file at "+s.Path, nil)
	}
	result, err := ffprobe.Inspect(ctx, binary(call, "ffprobe_path", call.Config().Tools.FFprobe), s.Path)
	if err != nil {
		return nil, err
	}
	wanted := call.Options.Strings("tags")
	tags := result.Tags()
	out := s.Clone()
	for key, value := range tags {
		if alias, ok := tagAliases[key]; ok {
			if _, direct := tags[alias]; !direct {
				key = alias
			}
		}
		if !slices.Contains(wanted, key) {
			continue
		}
		if err := out.SetProperty(key, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
