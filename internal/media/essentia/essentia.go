// Package essentia runs the essentia freesound extractor and reads back the
// summary statistics it writes.
package essentia

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bnpl/internal/services"
)

const statisticsSuffix = "_statistics.yaml"

// Stats are the descriptors kept from the extractor output.
type Stats struct {
	BPM   float64
	Key   string
	Chord string
}

// Properties returns the stats as sound properties.
func (s Stats) Properties() map[string]any {
	return map[string]any{"bpm": s.BPM, "key": s.Key, "chord": s.Chord}
}

type statistics struct {
	Rhythm struct {
		BPM float64 `yaml:"bpm"`
	} `yaml:"rhythm"`
	Tonal struct {
		KeyKey      string `yaml:"key_key"`
		KeyScale    string `yaml:"key_scale"`
		ChordKey    string `yaml:"chord_key"`
		ChordScale  string `yaml:"chord_scale"`
		ChordsKey   string `yaml:"chords_key"`
		ChordsScale string `yaml:"chords_scale"`
	} `yaml:"tonal"`
}

// Analyze runs binary on path, writing its output under workDir, and parses
// the statistics file. The output files are removed afterwards.
func Analyze(ctx context.Context, binary, path, workDir string) (Stats, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return Stats{}, services.Wrap(services.ErrConfiguration, "essentia", "analyze", "extractor binary not configured", nil)
	}
	if strings.TrimSpace(path) == "" {
		return Stats{}, services.Wrap(services.ErrValidation, "essentia", "analyze", "empty path", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Stats{}, services.Wrap(services.ErrConfiguration, "essentia", "analyze", "create work dir", err)
	}
	dir, err := os.MkdirTemp(workDir, "freesound-*")
	if err != nil {
		return Stats{}, services.Wrap(services.ErrConfiguration, "essentia", "analyze", "create work dir", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "output")
	if output, err := exec.CommandContext(ctx, binary, path, prefix).CombinedOutput(); err != nil { //nolint:gosec
		return Stats{}, services.Wrap(services.ErrExternalTool, "essentia", "analyze", path,
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}

	data, err := os.ReadFile(prefix + statisticsSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stats{}, services.Wrap(services.ErrExternalTool, "essentia", "analyze", "extractor wrote no statistics for "+path, nil)
		}
		return Stats{}, services.Wrap(services.ErrExternalTool, "essentia", "read", path, err)
	}
	return ParseStatistics(data)
}

// ParseStatistics extracts bpm (rounded to one decimal), key and chord from a
// statistics document. Missing sections yield zero values.
func ParseStatistics(data []byte) (Stats, error) {
	var doc statistics
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Stats{}, services.Wrap(services.ErrExternalTool, "essentia", "parse", "statistics", err)
	}
	chordKey, chordScale := doc.Tonal.ChordKey, doc.Tonal.ChordScale
	if chordKey == "" && chordScale == "" {
		chordKey, chordScale = doc.Tonal.ChordsKey, doc.Tonal.ChordsScale
	}
	return Stats{
		BPM:   math.Round(doc.Rhythm.BPM*10) / 10,
		Key:   doc.Tonal.KeyKey + doc.Tonal.KeyScale,
		Chord: chordKey + chordScale,
	}, nil
}
