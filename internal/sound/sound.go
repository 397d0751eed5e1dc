package sound

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sound is one media asset: a local file (optional), its derived identity,
// and an open set of metadata properties.
//
// A Sound is owned by the pipeline stage currently holding it. Stages must not
// share one *Sound across concurrent workers; use Clone when a copy is needed.
type Sound struct {
	UID        string
	Path       string
	Format     string
	MimeType   string
	Properties Properties
	// CreatedAt and UpdatedAt are maintained by the storage layer.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a sound for a local file with the format taken from the extension.
func New(path string) *Sound {
	return &Sound{
		Path:       path,
		Format:     FormatOf(path),
		Properties: Properties{},
	}
}

// FormatOf returns the lowercase extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Attr looks key up on the direct attributes first, then on the properties.
func (s *Sound) Attr(key string) (Value, bool) {
	switch key {
	case KeyUID:
		return nonEmpty(s.UID)
	case KeyPath:
		return nonEmpty(s.Path)
	case KeyFormat:
		return nonEmpty(s.format())
	case KeyMimeType:
		return nonEmpty(s.MimeType)
	case KeyCreatedAt:
		if !s.CreatedAt.IsZero() {
			return Date(s.CreatedAt), true
		}
	case KeyUpdatedAt:
		if !s.UpdatedAt.IsZero() {
			return Date(s.UpdatedAt), true
		}
	}
	v, ok := s.Properties[key]
	if !ok || v.IsNull() {
		return Value{}, false
	}
	return v, true
}

// SetProperty stores a property value, flattening nested maps.
func (s *Sound) SetProperty(key string, x any) error {
	if s.Properties == nil {
		s.Properties = Properties{}
	}
	return s.Properties.Set(key, x)
}

// IsLocal reports whether the sound's file is present on this machine.
func (s *Sound) IsLocal() bool {
	if s.Path == "" {
		return false
	}
	info, err := os.Stat(s.Path)
	return err == nil && info.Mode().IsRegular()
}

// Clone returns a deep copy.
func (s *Sound) Clone() *Sound {
	if s == nil {
		return nil
	}
	c := *s
	c.Properties = s.Properties.Clone()
	if c.Properties == nil {
		c.Properties = Properties{}
	}
	return &c
}

func (s *Sound) format() string {
	if s.Format != "" {
		return strings.ToLower(strings.TrimPrefix(s.Format, "."))
	}
	return FormatOf(s.Path)
}

func nonEmpty(s string) (Value, bool) {
	if s == "" {
		return Value{}, false
	}
	return String(s), true
}
