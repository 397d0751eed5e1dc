package option

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bnpl/internal/config"
	"bnpl/internal/services"
	"bnpl/internal/textutil"
)

// Kind tags the type of an option value.
type Kind string

const (
	KindNull      Kind = "null"
	KindBoolean   Kind = "boolean"
	KindInteger   Kind = "integer"
	KindFloat     Kind = "float"
	KindDate      Kind = "date"
	KindTimestamp Kind = "timestamp"
	KindDict      Kind = "dict"
	KindList      Kind = "list"
	KindSet       Kind = "set"
	KindPath      Kind = "path"
	KindRegex     Kind = "regex"
	KindString    Kind = "string"
)

// Kinds lists every supported kind.
var Kinds = []Kind{
	KindNull, KindBoolean, KindInteger, KindFloat, KindDate, KindTimestamp,
	KindDict, KindList, KindSet, KindPath, KindRegex, KindString,
}

// sniffOrder is the default candidate order for Sniff. Set and regex are left
// out because almost any string compiles as a pattern; callers opt in by
// naming them explicitly.
var sniffOrder = []Kind{
	KindNull, KindBoolean, KindDate, KindTimestamp, KindInteger, KindFloat,
	KindDict, KindList, KindPath, KindString,
}

var (
	trueTokens  = map[string]struct{}{"y": {}, "yes": {}, "true": {}, "on": {}, "ok": {}, "si": {}, "oui": {}}
	falseTokens = map[string]struct{}{"n": {}, "no": {}, "false": {}, "off": {}, "non": {}}
	nullTokens  = map[string]struct{}{"": {}, "null": {}, "na": {}, "n/a": {}, "nan": {}, "none": {}}
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// TypeError reports a value that cannot be interpreted as a kind.
type TypeError struct {
	Kind   Kind
	Value  any
	Reason string
}

func (e *TypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot interpret %s as %s: %s", describeValue(e.Value), e.Kind, e.Reason)
	}
	return fmt.Sprintf("cannot interpret %s as %s", describeValue(e.Value), e.Kind)
}

func (e *TypeError) Unwrap() error { return services.ErrValidation }

// ParseKind resolves a kind name.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown option type %q", services.ErrValidation, name)
}

// Coerce converts value into the Go representation of kind:
//
//	null      nil
//	boolean   bool
//	integer   int64
//	float     float64
//	date      time.Time (UTC)
//	timestamp time.Time from unix seconds
//	dict      map[string]any
//	list      []any
//	set       map[string]struct{}
//	path      absolute string naming an existing entry
//	regex     *regexp.Regexp
//	string    NFC-normalized string
func Coerce(value any, kind Kind) (any, error) {
	switch kind {
	case KindNull:
		return toNull(value)
	case KindBoolean:
		return toBool(value)
	case KindInteger:
		return toInt(value)
	case KindFloat:
		return toFloat(value)
	case KindDate:
		return toDate(value)
	case KindTimestamp:
		return toTimestamp(value)
	case KindDict:
		return toDict(value)
	case KindList:
		return toList(value)
	case KindSet:
		return toSet(value)
	case KindPath:
		return toPath(value)
	case KindRegex:
		return toRegex(value)
	case KindString:
		return toString(value)
	default:
		return nil, &TypeError{Kind: kind, Value: value, Reason: "unknown type"}
	}
}

// Validate reports whether value can be coerced to kind.
func Validate(value any, kind Kind) bool {
	_, err := Coerce(value, kind)
	return err == nil
}

// Sniff returns value coerced to the first candidate kind that accepts it.
// Without candidates the default order is used. When nothing matches the value
// is coerced to a string, or returned unchanged if even that fails.
func Sniff(value any, candidates ...Kind) any {
	if len(candidates) == 0 {
		candidates = sniffOrder
	}
	for _, kind := range candidates {
		if out, err := Coerce(value, kind); err == nil {
			return out
		}
	}
	if out, err := toString(value); err == nil {
		return out
	}
	return value
}

func toNull(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		if _, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]; ok {
			return nil, nil
		}
	}
	return nil, &TypeError{Kind: KindNull, Value: value}
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		token := strings.ToLower(strings.TrimSpace(v))
		if _, ok := trueTokens[token]; ok {
			return true, nil
		}
		if _, ok := falseTokens[token]; ok {
			return false, nil
		}
	}
	return nil, &TypeError{Kind: KindBoolean, Value: value}
}

func toInt(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return nil, &TypeError{Kind: KindInteger, Value: value}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, &TypeError{Kind: KindInteger, Value: value}
		}
		return n, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, &TypeError{Kind: KindInteger, Value: value}
		}
		return n, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, &TypeError{Kind: KindInteger, Value: value, Reason: "overflows int64"}
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, &TypeError{Kind: KindInteger, Value: value, Reason: "not a whole number"}
		}
		return int64(f), nil
	}
	return nil, &TypeError{Kind: KindInteger, Value: value}
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return nil, &TypeError{Kind: KindFloat, Value: value}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &TypeError{Kind: KindFloat, Value: value}
		}
		return f, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, &TypeError{Kind: KindFloat, Value: value}
		}
		return f, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, &TypeError{Kind: KindFloat, Value: value}
}

func toDate(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return nil, &TypeError{Kind: KindDate, Value: value}
}

// toTimestamp accepts unix seconds with at least ten integer digits starting
// with 1, which covers 2001-09-09 through 2286 and keeps small integers from
// being read as dates.
func toTimestamp(value any) (any, error) {
	if t, ok := value.(time.Time); ok {
		return t.UTC(), nil
	}
	var text string
	switch v := value.(type) {
	case string:
		text = strings.TrimSpace(v)
	case json.Number:
		text = v.String()
	case bool:
		return nil, &TypeError{Kind: KindTimestamp, Value: value}
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			text = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			text = strconv.FormatUint(rv.Uint(), 10)
		case reflect.Float32, reflect.Float64:
			text = strconv.FormatFloat(rv.Float(), 'f', -1, 64)
		default:
			return nil, &TypeError{Kind: KindTimestamp, Value: value}
		}
	}
	whole, frac, _ := strings.Cut(text, ".")
	if len(whole) < 10 || whole[0] != '1' {
		return nil, &TypeError{Kind: KindTimestamp, Value: value, Reason: "not unix seconds"}
	}
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return nil, &TypeError{Kind: KindTimestamp, Value: value}
	}
	var nanos int64
	if frac != "" {
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return nil, &TypeError{Kind: KindTimestamp, Value: value}
		}
		nanos = int64(f * float64(time.Second))
	}
	return time.Unix(secs, nanos).UTC(), nil
}

func toDict(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, &TypeError{Kind: KindDict, Value: value}
		}
		var out map[string]any
		if err := yaml.Unmarshal([]byte(s), &out); err != nil || out == nil {
			return nil, &TypeError{Kind: KindDict, Value: value}
		}
		return out, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	return nil, &TypeError{Kind: KindDict, Value: value}
}

// toList accepts slices, JSON array literals and comma separated strings. A
// bare scalar string is rejected so sniffing does not turn every word into a
// one-element list.
func toList(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") {
			var out []any
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, &TypeError{Kind: KindList, Value: value, Reason: err.Error()}
			}
			return out, nil
		}
		if !strings.Contains(s, ",") {
			return nil, &TypeError{Kind: KindList, Value: value}
		}
		parts := strings.Split(s, ",")
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, &TypeError{Kind: KindList, Value: value}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	if set, ok := value.(map[string]struct{}); ok {
		out := make([]any, 0, len(set))
		for k := range set {
			out = append(out, k)
		}
		return out, nil
	}
	return nil, &TypeError{Kind: KindList, Value: value}
}

func toSet(value any) (any, error) {
	if set, ok := value.(map[string]struct{}); ok {
		return set, nil
	}
	items, err := toList(value)
	if err != nil {
		return nil, &TypeError{Kind: KindSet, Value: value}
	}
	out := make(map[string]struct{})
	for _, item := range items.([]any) {
		out[fmt.Sprint(item)] = struct{}{}
	}
	return out, nil
}

func toPath(value any) (any, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, &TypeError{Kind: KindPath, Value: value}
	}
	abs, err := config.ExpandPath(strings.TrimSpace(s))
	if err != nil {
		return nil, &TypeError{Kind: KindPath, Value: value, Reason: err.Error()}
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, &TypeError{Kind: KindPath, Value: value, Reason: "does not exist"}
	}
	return abs, nil
}

func toRegex(value any) (any, error) {
	switch v := value.(type) {
	case *regexp.Regexp:
		return v, nil
	case string:
		re, err := regexp.Compile(v)
		if err != nil {
			return nil, &TypeError{Kind: KindRegex, Value: value, Reason: err.Error()}
		}
		return re, nil
	}
	return nil, &TypeError{Kind: KindRegex, Value: value}
}

func toString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return textutil.Normalize(v), nil
	case []byte:
		return textutil.Normalize(string(v)), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case fmt.Stringer:
		return textutil.Normalize(v.String()), nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return nil, &TypeError{Kind: KindString, Value: value}
}

func describeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%v (%T)", v, v)
	}
}
