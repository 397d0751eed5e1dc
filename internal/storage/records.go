package storage

import (
	"context"
	"fmt"
	"regexp"

	"bnpl/internal/services"
	"bnpl/internal/sound"
)

// RecordStore keeps the searchable metadata document for each sound.
type RecordStore interface {
	Get(ctx context.Context, uid string) (*sound.Sound, error)
	// Put always overwrites the stored document.
	Put(ctx context.Context, s *sound.Sound) error
	Rm(ctx context.Context, uid string) error
	Exists(ctx context.Context, uid string) (bool, error)
	// Bulk upserts every sound in one transaction.
	Bulk(ctx context.Context, sounds []*sound.Sound) error
	Search(ctx context.Context, q Query) ([]*sound.Sound, error)
	Close() error
}

// DefaultSearchLimit caps result sets when a query sets no limit.
const DefaultSearchLimit = 100

// Query selects records. Text matches anywhere in the flattened document;
// Match requires each top-level field to equal the given scalar. Results are
// ordered by most recent update.
type Query struct {
	Text   string         `json:"text,omitempty"`
	Match  map[string]any `json:"match,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate rejects field names and values the stores cannot match on.
func (q Query) Validate() error {
	if q.Limit < 0 || q.Offset < 0 {
		return services.Wrap(services.ErrValidation, "records", "search", "limit and offset must not be negative", nil)
	}
	for field, value := range q.Match {
		if !fieldPattern.MatchString(field) {
			return services.Wrap(services.ErrValidation, "records", "search", fmt.Sprintf("invalid field name %q", field), nil)
		}
		switch value.(type) {
		case nil, string, bool, int, int64, float64:
		default:
			return services.Wrap(services.ErrValidation, "records", "search", fmt.Sprintf("field %s: unsupported value %T", field, value), nil)
		}
	}
	return nil
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultSearchLimit
	}
	return q.Limit
}

// QueryFromMap decodes the dict form used by plugin options and the API.
func QueryFromMap(m map[string]any) (Query, error) {
	var q Query
	for key, raw := range m {
		switch key {
		case "text":
			s, ok := raw.(string)
			if !ok {
				return q, services.Wrap(services.ErrValidation, "records", "query", "text must be a string", nil)
			}
			q.Text = s
		case "match":
			fields, ok := raw.(map[string]any)
			if !ok {
				return q, services.Wrap(services.ErrValidation, "records", "query", "match must be a map", nil)
			}
			q.Match = fields
		case "limit", "offset":
			n, ok := intOf(raw)
			if !ok {
				return q, services.Wrap(services.ErrValidation, "records", "query", key+" must be an integer", nil)
			}
			if key == "limit" {
				q.Limit = n
			} else {
				q.Offset = n
			}
		default:
			return q, services.Wrap(services.ErrValidation, "records", "query", fmt.Sprintf("unknown key %q", key), nil)
		}
	}
	return q, q.Validate()
}

func intOf(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}
