package plugins

import (
	"context"
	"iter"

	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/sound"
	"bnpl/internal/storage"
)

const querySchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "text": {"type": "string"},
    "match": {
      "type": "object",
      "propertyNames": {"pattern": "^[A-Za-z0-9_]+$"},
      "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
    },
    "limit": {"type": "integer", "minimum": 1},
    "offset": {"type": "integer", "minimum": 0}
  }
}`

// Search yields stored sounds matching a query.
type Search struct {
	plugin.Base
}

// NewSearch returns the core.search extractor.
func NewSearch() *Search {
	return &Search{Base: plugin.NewBase("search", plugin.CapExtractor,
		"Search the record store.",
		option.New("query", option.KindDict, option.Schema(querySchema),
			option.Describe("Query document: text, match, limit, offset")),
		option.New("text", option.KindString, option.Alias("q"),
			option.Describe("Free text to look for; overrides query.text")),
		option.New("limit", option.KindInteger,
			option.Default(int64(storage.DefaultSearchLimit)),
			option.Describe("Maximum number of results when the query sets none")),
	)}
}

// Extract runs the query and yields the results most recent first.
func (s *Search) Extract(ctx context.Context, call *plugin.Call) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		lib, err := call.Library()
		if err != nil {
			yield(nil, err)
			return
		}
		q, err := storage.QueryFromMap(call.Options.Dict("query"))
		if err != nil {
			yield(nil, err)
			return
		}
		if text := call.Options.String("text"); text != "" {
			q.Text = text
		}
		if q.Limit == 0 {
			q.Limit = int(call.Options.Int("limit"))
		}
		results, err := lib.Search(ctx, q)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, snd := range results {
			if !yield(snd, nil) {
				return
			}
		}
	}
}
