package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"bnpl/internal/media/ffmpeg"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// Concat joins many local sounds into one file.
type Concat struct {
	plugin.Base
	now func() time.Time
}

// NewConcat returns the ffmpeg.concat mixer.
func NewConcat() *Concat {
	return &Concat{
		Base: plugin.NewBase("concat", plugin.CapMixer,
			"Concatenate sounds end to end with ffmpeg.",
			option.New("output", option.KindString,
				option.Describe("Output file; defaults to a timestamped file in the temp dir")),
			option.New("format", option.KindString, option.Default("wav"),
				option.Describe("Output format when no output path is given")),
			option.New("ffmpeg_path", option.KindString,
				option.Describe("ffmpeg binary; defaults to tools.ffmpeg")),
		),
		now: time.Now,
	}
}

// Mix concatenates the inputs in the order given. Every input must be a
// local file. The result is a new sound without a uid; the properties of the
// inputs are not carried over.
func (c *Concat) Mix(ctx context.Context, call *plugin.Call, sounds []*sound.Sound) (*sound.Sound, error) {
	if len(sounds) == 0 {
		return nil, services.Wrap(services.ErrValidation, call.Key, "mix", "no input sounds", nil)
	}
	sources := make([]string, 0, len(sounds))
	uids := make([]any, 0, len(sounds))
	for _, s := range sounds {
		if !s.IsLocal() {
			return nil, services.Wrap(services.ErrPrecondition, call.Key, "mix", "no local file at "+s.Path, nil)
		}
		sources = append(sources, s.Path)
		if s.UID != "" {
			uids = append(uids, s.UID)
		}
	}

	dest := strings.TrimSpace(call.Options.String("output"))
	if dest == "" {
		format := strings.TrimPrefix(strings.ToLower(call.Options.String("format")), ".")
		name := fmt.Sprintf("concat-%s.%s", c.now().UTC().Format("20060102T150405Z"), format)
		dest = filepath.Join(call.Config().Paths.TmpDir, name)
	}
	if err := ffmpeg.Concat(ctx, binary(call, "ffmpeg_path", call.Config().Tools.FFmpeg), sources, dest); err != nil {
		return nil, err
	}

	mixed := sound.New(dest)
	if err := mixed.SetProperty("sources", uids); err != nil {
		return nil, err
	}
	return mixed, nil
}
