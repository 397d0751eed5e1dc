package option

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"bnpl/internal/services"
	"bnpl/internal/textutil"
)

// HelpOption is the implicit option present in every Set.
const HelpOption = "help"

// Set is an ordered collection of options with alias resolution.
type Set struct {
	options  []Option
	index    map[string]int
	aliases  map[string]string
	required []string
}

// NewSet builds a Set. An implicit boolean "help" option (default false) is
// appended unless declared explicitly. Duplicate names or aliases are rejected.
func NewSet(opts ...Option) (*Set, error) {
	s := &Set{
		index:   make(map[string]int, len(opts)+1),
		aliases: make(map[string]string),
	}
	hasHelp := false
	for _, opt := range opts {
		if opt.Name == HelpOption {
			hasHelp = true
		}
	}
	if !hasHelp {
		opts = append(append([]Option(nil), opts...), New(HelpOption, KindBoolean, Default(false), Describe("Show plugin description and options")))
	}
	var problems []error
	for _, opt := range opts {
		if err := opt.check(); err != nil {
			problems = append(problems, err)
			continue
		}
		if _, dup := s.index[opt.Name]; dup {
			problems = append(problems, fmt.Errorf("duplicate option %q", opt.Name))
			continue
		}
		if _, dup := s.aliases[opt.Name]; dup {
			problems = append(problems, fmt.Errorf("option %q collides with an alias", opt.Name))
			continue
		}
		if opt.Alias != "" {
			if _, dup := s.index[opt.Alias]; dup {
				problems = append(problems, fmt.Errorf("alias %q of %q collides with an option", opt.Alias, opt.Name))
				continue
			}
			if other, dup := s.aliases[opt.Alias]; dup {
				problems = append(problems, fmt.Errorf("alias %q used by %q and %q", opt.Alias, other, opt.Name))
				continue
			}
			s.aliases[opt.Alias] = opt.Name
		}
		s.index[opt.Name] = len(s.options)
		s.options = append(s.options, opt)
		if opt.Required && opt.Default == nil {
			s.required = append(s.required, opt.Name)
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", services.ErrConfiguration, errors.Join(problems...))
	}
	return s, nil
}

// MustSet is NewSet for package-level declarations; it panics on error.
func MustSet(opts ...Option) *Set {
	s, err := NewSet(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Options returns the declared options in order.
func (s *Set) Options() []Option {
	return append([]Option(nil), s.options...)
}

// Lookup returns the option registered under name or alias.
func (s *Set) Lookup(name string) (Option, bool) {
	key := s.canonical(name)
	i, ok := s.index[key]
	if !ok {
		return Option{}, false
	}
	return s.options[i], true
}

// Required lists the names that must be supplied.
func (s *Set) Required() []string {
	return append([]string(nil), s.required...)
}

func (s *Set) canonical(name string) string {
	key := textutil.Slugify(name, "_")
	if canonical, ok := s.aliases[key]; ok {
		return canonical
	}
	return key
}

// Prepare validates raw input against every option. All problems are
// collected and reported together in a single *ValidationError; keys that do
// not name an option are ignored.
func (s *Set) Prepare(raw map[string]any) (Values, error) {
	supplied := make(map[string]any, len(raw))
	// Canonical names take precedence over aliases when both are given.
	for key, value := range raw {
		name := textutil.Slugify(key, "_")
		if _, ok := s.index[name]; ok {
			supplied[name] = value
		}
	}
	for key, value := range raw {
		name := textutil.Slugify(key, "_")
		if canonical, ok := s.aliases[name]; ok {
			if _, taken := supplied[canonical]; !taken {
				supplied[canonical] = value
			}
		}
	}

	values := make(Values, len(s.options))
	verr := &ValidationError{}
	for _, opt := range s.options {
		value, present := supplied[opt.Name]
		resolved, err := opt.Prepare(value, present)
		if err != nil {
			var missing *missingError
			if errors.As(err, &missing) {
				verr.Missing = append(verr.Missing, opt.Name)
				continue
			}
			verr.Problems = append(verr.Problems, Problem{Option: opt.Name, Err: err})
			continue
		}
		values[opt.Name] = resolved
	}
	if len(verr.Problems) > 0 || len(verr.Missing) > 0 {
		return nil, verr
	}
	return values, nil
}

// Describe returns the metadata of every option in declaration order.
func (s *Set) Describe() []Description {
	out := make([]Description, 0, len(s.options))
	for _, opt := range s.options {
		out = append(out, opt.Describe())
	}
	return out
}

// Problem is one invalid option value.
type Problem struct {
	Option string
	Err    error
}

// ValidationError aggregates every problem found by Set.Prepare.
type ValidationError struct {
	Problems []Problem
	Missing  []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid options:")
	for _, p := range e.Problems {
		b.WriteString("\n  ")
		b.WriteString(p.Option)
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(p.Err.Error(), "\n", " "))
	}
	if len(e.Missing) > 0 {
		b.WriteString("\n  missing required option(s): ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return services.ErrValidation }

// Fields returns every option name mentioned by the error, sorted.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Problems)+len(e.Missing))
	for _, p := range e.Problems {
		out = append(out, p.Option)
	}
	out = append(out, e.Missing...)
	sort.Strings(out)
	return out
}

// Values holds resolved option values keyed by canonical name.
type Values map[string]any

// Get returns the resolved value or nil when unresolved.
func (v Values) Get(name string) any {
	return v[textutil.Slugify(name, "_")]
}

// Has reports whether name resolved to a non-nil value.
func (v Values) Has(name string) bool {
	return v.Get(name) != nil
}

func (v Values) String(name string) string {
	s, _ := v.Get(name).(string)
	return s
}

func (v Values) Bool(name string) bool {
	b, _ := v.Get(name).(bool)
	return b
}

func (v Values) Int(name string) int64 {
	n, _ := v.Get(name).(int64)
	return n
}

func (v Values) Float(name string) float64 {
	f, _ := v.Get(name).(float64)
	return f
}

func (v Values) List(name string) []any {
	l, _ := v.Get(name).([]any)
	return l
}

// Strings returns a list or set option as strings; sets come back sorted.
func (v Values) Strings(name string) []string {
	switch value := v.Get(name).(type) {
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case map[string]struct{}:
		out := make([]string, 0, len(value))
		for item := range value {
			out = append(out, item)
		}
		sort.Strings(out)
		return out
	}
	return nil
}

func (v Values) Dict(name string) map[string]any {
	d, _ := v.Get(name).(map[string]any)
	return d
}

func (v Values) Regexp(name string) *regexp.Regexp {
	re, _ := v.Get(name).(*regexp.Regexp)
	return re
}

func (v Values) Time(name string) time.Time {
	t, _ := v.Get(name).(time.Time)
	return t
}

// Help reports whether the implicit help option resolved true.
func (v Values) Help() bool {
	return v.Bool(HelpOption)
}
