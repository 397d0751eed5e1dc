package plugins

import (
	"context"
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
	"strings"

	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// DefaultFormats are the extensions file.directory keeps unless told otherwise.
var DefaultFormats = []any{"mp3", "wav", "aif", "aiff", "m4a", "flac"}

// Directory walks a local directory and yields one sound per audio file.
type Directory struct {
	plugin.Base
}

// NewDirectory returns the file.directory extractor.
func NewDirectory() *Directory {
	return &Directory{Base: plugin.NewBase("directory", plugin.CapExtractor,
		"Extract sounds from a local directory.",
		option.New("path", option.KindPath, option.Required(),
			option.Describe("Directory to walk recursively")),
		option.New("formats", option.KindList, option.Alias("f"), option.Items(option.KindString),
			option.Default(DefaultFormats),
			option.Describe("File extensions to keep")),
	)}
}

// Extract walks path in lexical order. Unreadable entries are reported as
// per-item errors and the walk continues.
func (d *Directory) Extract(ctx context.Context, call *plugin.Call) iter.Seq2[*sound.Sound, error] {
	root := call.Options.String("path")
	var formats []string
	for _, f := range call.Options.Strings("formats") {
		formats = append(formats, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), ".")))
	}
	return func(yield func(*sound.Sound, error) bool) {
		stopped := false
		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if !yield(nil, services.Wrap(services.ErrValidation, "directory", "walk", path, err)) {
					stopped = true
					return filepath.SkipAll
				}
				if entry != nil && entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			format := sound.FormatOf(path)
			if !slices.Contains(formats, format) {
				return nil
			}
			if !yield(sound.New(path), nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if !stopped {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
			}
		}
	}
}
