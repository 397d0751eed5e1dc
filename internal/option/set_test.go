package option_test

import (
	"errors"
	"strings"
	"testing"

	"bnpl/internal/option"
	"bnpl/internal/services"
)

func sampleSet(t *testing.T) *option.Set {
	t.Helper()
	set, err := option.NewSet(
		option.New("formats", option.KindList, option.Alias("f"), option.Items(option.KindString),
			option.Default([]any{"mp3", "wav"})),
		option.New("pool size", option.KindInteger, option.Default(10)),
		option.New("path", option.KindString, option.Required()),
		option.New("bpm", option.KindFloat),
		option.New("recursive", option.KindBoolean, option.Default(true)),
	)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

func TestPrepareResolvesEveryOption(t *testing.T) {
	set := sampleSet(t)
	values, err := set.Prepare(map[string]any{"path": "/tmp/music", "f": "flac,ogg", "unknown": 1})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := values.String("path"); got != "/tmp/music" {
		t.Fatalf("path = %q", got)
	}
	if got := values.Strings("formats"); strings.Join(got, ",") != "flac,ogg" {
		t.Fatalf("formats = %v", got)
	}
	if got := values.Int("pool_size"); got != 10 {
		t.Fatalf("pool_size = %d", got)
	}
	if !values.Bool("recursive") {
		t.Fatal("expected recursive default true")
	}
	if values.Get("bpm") != nil || values.Has("bpm") {
		t.Fatal("expected unresolved optional option to be nil")
	}
	if values.Help() {
		t.Fatal("expected help default false")
	}
	if values.Get("unknown") != nil {
		t.Fatal("expected unknown keys to be ignored")
	}
}

func TestPrepareAggregatesAllProblems(t *testing.T) {
	set := sampleSet(t)
	_, err := set.Prepare(map[string]any{"pool_size": "many", "bpm": "fast", "recursive": "perhaps"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *option.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatal("expected validation marker")
	}
	msg := err.Error()
	for _, name := range []string{"pool_size", "bpm", "recursive", "missing required option(s): path"} {
		if !strings.Contains(msg, name) {
			t.Fatalf("expected %q in %q", name, msg)
		}
	}
	if len(verr.Problems) != 3 || len(verr.Missing) != 1 {
		t.Fatalf("unexpected problems %#v missing %#v", verr.Problems, verr.Missing)
	}
	if lines := strings.Split(msg, "\n"); len(lines) != 5 {
		t.Fatalf("expected header plus one line per problem, got %d lines: %q", len(lines), msg)
	}
}

func TestPrepareListItemsReportEveryElement(t *testing.T) {
	set := option.MustSet(option.New("weights", option.KindList, option.Items(option.KindInteger)))
	_, err := set.Prepare(map[string]any{"weights": []any{1, "x", "y"}})
	if err == nil {
		t.Fatal("expected element errors")
	}
	if !strings.Contains(err.Error(), "item 1") || !strings.Contains(err.Error(), "item 2") {
		t.Fatalf("expected both bad items reported, got %q", err)
	}

	values, err := set.Prepare(map[string]any{"weights": "3"})
	if err != nil {
		t.Fatalf("scalar wrap: %v", err)
	}
	if list := values.List("weights"); len(list) != 1 || list[0] != int64(3) {
		t.Fatalf("expected scalar wrapped into list, got %#v", list)
	}
}

func TestCanonicalNameBeatsAlias(t *testing.T) {
	set := sampleSet(t)
	values, err := set.Prepare(map[string]any{"path": "p", "formats": "a,b", "f": "c,d"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := strings.Join(values.Strings("formats"), ","); got != "a,b" {
		t.Fatalf("expected canonical value to win, got %q", got)
	}
}

func TestRequiredWithDefaultNeverMissing(t *testing.T) {
	set := option.MustSet(option.New("limit", option.KindInteger, option.Required(), option.Default(5)))
	values, err := set.Prepare(nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if values.Int("limit") != 5 {
		t.Fatalf("limit = %d", values.Int("limit"))
	}
	if len(set.Required()) != 0 {
		t.Fatalf("expected no outstanding required names, got %v", set.Required())
	}
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	_, err := option.NewSet(
		option.New("name", option.KindString),
		option.New("Name", option.KindString),
		option.New("other", option.KindString, option.Alias("name")),
		option.New("bad", option.KindInteger, option.Default("x")),
	)
	if err == nil {
		t.Fatal("expected construction error")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
	for _, fragment := range []string{"duplicate option \"name\"", "alias \"name\"", "option bad: default"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err)
		}
	}
}

func TestDescribeIncludesImplicitHelp(t *testing.T) {
	set := sampleSet(t)
	desc := set.Describe()
	if len(desc) != 6 {
		t.Fatalf("expected 6 descriptions, got %d", len(desc))
	}
	last := desc[len(desc)-1]
	if last.Name != option.HelpOption || last.Type != option.KindBoolean || last.Default != false {
		t.Fatalf("unexpected help description %#v", last)
	}
	if desc[0].Alias != "f" || desc[0].Items != option.KindString {
		t.Fatalf("unexpected formats description %#v", desc[0])
	}
	if desc[1].Name != "pool_size" {
		t.Fatalf("expected slug-normalized name, got %q", desc[1].Name)
	}
}

func TestDictSchemaValidation(t *testing.T) {
	set := option.MustSet(option.New("query", option.KindDict, option.Schema(`{
		"type": "object",
		"properties": {"bpm": {"type": "number"}},
		"additionalProperties": true
	}`)))
	if _, err := set.Prepare(map[string]any{"query": `{"bpm": 120}`}); err != nil {
		t.Fatalf("expected valid query, got %v", err)
	}
	_, err := set.Prepare(map[string]any{"query": map[string]any{"bpm": "fast"}})
	if err == nil || !strings.Contains(err.Error(), "query") {
		t.Fatalf("expected schema violation naming query, got %v", err)
	}
}

func TestDictSchemaNestedAndIntegers(t *testing.T) {
	set := option.MustSet(option.New("stages", option.KindDict, option.Schema(`{
		"type": "object",
		"properties": {
			"limit": {"type": "integer", "minimum": 1},
			"filter": {"type": "object", "required": ["field"]}
		}
	}`)))
	values, err := set.Prepare(map[string]any{"stages": map[string]any{
		"limit":  int64(25),
		"filter": map[string]any{"field": "bpm"},
	}})
	if err != nil {
		t.Fatalf("expected nested dict to validate, got %v", err)
	}
	if got := values.Dict("stages")["limit"]; got != int64(25) {
		t.Fatalf("expected original value kept, got %#v", got)
	}

	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"fractional integer", map[string]any{"limit": 2.5}},
		{"below minimum", map[string]any{"limit": 0}},
		{"nested missing field", map[string]any{"filter": map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := set.Prepare(map[string]any{"stages": tt.raw})
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidInputsNeverFail(t *testing.T) {
	set := sampleSet(t)
	inputs := []map[string]any{
		{"path": "a"},
		{"path": "b", "bpm": 1},
		{"path": "c", "bpm": "2.5", "recursive": "no", "pool_size": "3", "f": []string{"mp3"}},
		{"path": "d", "help": "yes"},
	}
	for _, raw := range inputs {
		if _, err := set.Prepare(raw); err != nil {
			t.Fatalf("Prepare(%v) failed: %v", raw, err)
		}
	}
}
