// Package plugins holds the bundled plugins and the static table that
// registers them.
//
// Plugins that wrap an external tool (fpcalc, ffprobe, ffmpeg and the
// essentia freesound extractor) read the binary from an option first and the
// [tools] configuration section second. Tool failures carry
// services.ErrExternalTool so callers can tell them apart from bad input.
package plugins
