package sound

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"bnpl/internal/config"
	"bnpl/internal/services"
	"bnpl/internal/textutil"
)

// Keys of the map representation.
const (
	KeyUID        = "uid"
	KeyPath       = "path"
	KeyFormat     = "format"
	KeyMimeType   = "mimetype"
	KeySlug       = "slug"
	KeyFilename   = "filename"
	KeyURL        = "url"
	KeyCreatedAt  = "created_at"
	KeyUpdatedAt  = "updated_at"
	KeyProperties = "properties"
)

// ErrMissingUID is returned when a storage key is requested for a sound
// without an identifier.
var ErrMissingUID = fmt.Errorf("%w: sound has no uid", services.ErrPrecondition)

// Naming holds the static configuration used to derive identifiers, slugs,
// filenames and storage keys.
type Naming struct {
	SlugKeys    []string
	SlugDelim   string
	UIDLength   int
	Compression string
	Root        string
	MimeTypes   map[string]string
}

// NewNaming builds a Naming from configuration.
func NewNaming(cfg *config.Config) Naming {
	return Naming{
		SlugKeys:    append([]string(nil), cfg.Naming.SlugKeys...),
		SlugDelim:   cfg.Naming.SlugDelim,
		UIDLength:   cfg.Naming.UIDLength,
		Compression: cfg.Naming.Compression,
		Root:        cfg.Naming.Root,
		MimeTypes:   cfg.MimeTypes,
	}
}

// DefaultNaming returns the naming derived from the default configuration.
func DefaultNaming() Naming {
	cfg := config.Default()
	return NewNaming(&cfg)
}

// UID hashes fingerprint with SHA-1 and truncates the hex digest. An empty
// fingerprint hashes a random UUID instead, yielding a random identifier.
func (n Naming) UID(fingerprint string) string {
	if fingerprint == "" {
		fingerprint = uuid.NewString()
	}
	sum := sha1.Sum([]byte(fingerprint))
	digest := hex.EncodeToString(sum[:])
	if n.UIDLength > 0 && n.UIDLength < len(digest) {
		return digest[:n.UIDLength]
	}
	return digest
}

// Slug joins the slugified values of the configured keys. Keys are looked up
// on direct attributes first, then properties. When none yields text the
// local file's base name (extension removed) is used, then the uid.
func (n Naming) Slug(s *Sound) string {
	delim := n.delim()
	parts := make([]string, 0, len(n.SlugKeys))
	for _, key := range n.SlugKeys {
		value, ok := s.Attr(key)
		if !ok {
			continue
		}
		if part := textutil.Slugify(value.Text(" "), delim); part != "" {
			parts = append(parts, part)
		}
	}
	slug := strings.TrimSuffix(strings.Join(parts, delim), delim)
	if slug != "" {
		return slug
	}
	if s.Path != "" {
		base := filepath.Base(s.Path)
		if slug = textutil.Slugify(strings.TrimSuffix(base, filepath.Ext(base)), delim); slug != "" {
			return slug
		}
	}
	return textutil.Slugify(s.UID, delim)
}

// Filename is slug.format.compression with empty parts omitted.
func (n Naming) Filename(s *Sound) string {
	parts := []string{n.Slug(s), s.format(), n.Compression}
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.Trim(part, "."); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ".")
}

// URL returns the blob storage key {root}/{uid}/{filename}.
func (n Naming) URL(s *Sound) (string, error) {
	if s == nil || s.UID == "" {
		return "", ErrMissingUID
	}
	parts := make([]string, 0, 3)
	if root := strings.Trim(n.Root, "/"); root != "" {
		parts = append(parts, root)
	}
	parts = append(parts, s.UID, n.Filename(s))
	return strings.Join(parts, "/"), nil
}

// MimeType returns the sound's mime type, falling back to the format table.
func (n Naming) MimeType(s *Sound) string {
	if s.MimeType != "" {
		return s.MimeType
	}
	if mime, ok := n.MimeTypes[s.format()]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ToMap returns the round-trippable map representation including derived
// fields. The url key is present only when the sound has a uid.
func (n Naming) ToMap(s *Sound) map[string]any {
	m := map[string]any{
		KeyUID:        s.UID,
		KeyPath:       s.Path,
		KeyFormat:     s.format(),
		KeyMimeType:   n.MimeType(s),
		KeySlug:       n.Slug(s),
		KeyFilename:   n.Filename(s),
		KeyCreatedAt:  timeOrNil(s.CreatedAt),
		KeyUpdatedAt:  timeOrNil(s.UpdatedAt),
		KeyProperties: s.Properties.Map(),
	}
	if url, err := n.URL(s); err == nil {
		m[KeyURL] = url
	}
	return m
}

// Flatten returns the record store document: properties merged into the top
// level, nested keys joined with "_", direct attributes winning on conflict.
func (n Naming) Flatten(s *Sound) map[string]any {
	doc := make(map[string]any, len(s.Properties)+9)
	for key, value := range s.Properties {
		doc[key] = value.Any()
	}
	for key, value := range n.ToMap(s) {
		if key == KeyProperties {
			continue
		}
		doc[key] = value
	}
	return doc
}

// FromMap rebuilds a sound from its map representation. Derived keys (slug,
// filename, url) are ignored and recomputed on demand; any other unknown
// top-level key becomes a property.
func FromMap(m map[string]any) (*Sound, error) {
	s := &Sound{Properties: Properties{}}
	for key, raw := range m {
		switch key {
		case KeyUID:
			s.UID = stringOf(raw)
		case KeyPath:
			s.Path = stringOf(raw)
		case KeyFormat:
			s.Format = strings.ToLower(strings.TrimPrefix(stringOf(raw), "."))
		case KeyMimeType:
			s.MimeType = stringOf(raw)
		case KeyCreatedAt, KeyUpdatedAt:
			t, err := timeOf(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", services.ErrValidation, key, err)
			}
			if key == KeyCreatedAt {
				s.CreatedAt = t
			} else {
				s.UpdatedAt = t
			}
		case KeySlug, KeyFilename, KeyURL:
		case KeyProperties:
			switch props := raw.(type) {
			case nil:
			case Properties:
				s.Properties.Merge(props)
			case map[string]any:
				for k, v := range props {
					if err := s.Properties.Set(k, v); err != nil {
						return nil, fmt.Errorf("%w: %v", services.ErrValidation, err)
					}
				}
			default:
				return nil, fmt.Errorf("%w: properties must be a map, got %T", services.ErrValidation, raw)
			}
		default:
			if err := s.Properties.Set(key, raw); err != nil {
				return nil, fmt.Errorf("%w: %v", services.ErrValidation, err)
			}
		}
	}
	if s.Format == "" {
		s.Format = FormatOf(s.Path)
	}
	return s, nil
}

func stringOf(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func timeOf(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", raw)
	}
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (n Naming) delim() string {
	if n.SlugDelim == "" {
		return "-"
	}
	return n.SlugDelim
}
