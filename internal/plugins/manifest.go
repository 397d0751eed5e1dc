package plugins

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"bnpl/internal/fileutil"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// Manifest formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var leadingColumns = []string{sound.KeyUID, sound.KeyPath, sound.KeyFormat, sound.KeySlug, sound.KeyURL}

// Manifest writes the input sounds to a JSONL or CSV file.
type Manifest struct {
	plugin.Base
	now func() time.Time
}

// NewManifest returns the export.manifest exporter.
func NewManifest() *Manifest {
	return &Manifest{
		Base: plugin.NewBase("manifest", plugin.CapExporter,
			"Write sounds to a JSONL or CSV manifest and return its path.",
			option.New("path", option.KindString,
				option.Describe("Output file; defaults to a timestamped file in the temp dir")),
			option.New("format", option.KindString, option.Default(FormatJSONL),
				option.Describe("jsonl or csv")),
			option.New("fields", option.KindList, option.Items(option.KindString),
				option.Describe("CSV columns; defaults to the identity fields and every property")),
		),
		now: time.Now,
	}
}

// Export renders the manifest and writes it atomically.
func (m *Manifest) Export(_ context.Context, call *plugin.Call, sounds []*sound.Sound) (string, error) {
	format := strings.ToLower(strings.TrimSpace(call.Options.String("format")))
	naming := call.Naming()

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSONL:
		data, err = renderJSONL(naming, sounds)
	case FormatCSV:
		data, err = renderCSV(naming, sounds, call.Options.Strings("fields"))
	default:
		return "", services.Wrap(services.ErrValidation, call.Key, "export", fmt.Sprintf("unknown format %q", format), nil)
	}
	if err != nil {
		return "", err
	}

	dest := strings.TrimSpace(call.Options.String("path"))
	if dest == "" {
		name := fmt.Sprintf("manifest-%s.%s", m.now().UTC().Format("20060102T150405Z"), format)
		dest = filepath.Join(call.Config().Paths.TmpDir, name)
	}
	if _, _, err := fileutil.WriteAtomic(dest, bytes.NewReader(data), 0o644); err != nil {
		return "", services.Wrap(services.ErrStorage, call.Key, "export", dest, err)
	}
	return dest, nil
}

func renderJSONL(naming sound.Naming, sounds []*sound.Sound) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, s := range sounds {
		if err := enc.Encode(naming.ToMap(s)); err != nil {
			return nil, services.Wrap(services.ErrValidation, "manifest", "encode", s.Path, err)
		}
	}
	return buf.Bytes(), nil
}

func renderCSV(naming sound.Naming, sounds []*sound.Sound, fields []string) ([]byte, error) {
	docs := make([]map[string]any, len(sounds))
	for i, s := range sounds {
		docs[i] = naming.Flatten(s)
	}
	if len(fields) == 0 {
		fields = defaultColumns(sounds)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	row := make([]string, len(fields))
	for _, doc := range docs {
		for i, field := range fields {
			row[i] = cell(doc[field])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func defaultColumns(sounds []*sound.Sound) []string {
	props := make(map[string]struct{})
	for _, s := range sounds {
		for key := range s.Properties {
			props[key] = struct{}{}
		}
	}
	columns := slices.Clone(leadingColumns)
	for _, key := range slices.Sorted(maps.Keys(props)) {
		if !slices.Contains(columns, key) {
			columns = append(columns, key)
		}
	}
	return columns
}

func cell(raw any) string {
	value, err := sound.FromAny(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return value.Text(";")
}
