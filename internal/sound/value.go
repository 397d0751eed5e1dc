package sound

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	NullKind ValueKind = iota
	StringKind
	NumberKind
	BoolKind
	DateKind
	ListKind
)

func (k ValueKind) String() string {
	switch k {
	case StringKind:
		return "string"
	case NumberKind:
		return "number"
	case BoolKind:
		return "boolean"
	case DateKind:
		return "date"
	case ListKind:
		return "list"
	default:
		return "null"
	}
}

// Value is one property value: null, string, number, boolean, date, or a list
// of values. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	flag bool
	date time.Time
	list []Value
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: StringKind, str: s} }

func Number(f float64) Value { return Value{kind: NumberKind, num: f} }

func Bool(b bool) Value { return Value{kind: BoolKind, flag: b} }

func Date(t time.Time) Value { return Value{kind: DateKind, date: t.UTC()} }

func List(items ...Value) Value {
	return Value{kind: ListKind, list: append([]Value(nil), items...)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNull() bool { return v.kind == NullKind }

func (v Value) Str() (string, bool) { return v.str, v.kind == StringKind }

func (v Value) Num() (float64, bool) { return v.num, v.kind == NumberKind }

func (v Value) Boolean() (bool, bool) { return v.flag, v.kind == BoolKind }

func (v Value) Time() (time.Time, bool) { return v.date, v.kind == DateKind }

func (v Value) Items() ([]Value, bool) {
	return append([]Value(nil), v.list...), v.kind == ListKind
}

// Text renders the value for slugs and display. Lists are joined with sep.
func (v Value) Text(sep string) string {
	switch v.kind {
	case StringKind:
		return v.str
	case NumberKind:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case BoolKind:
		return strconv.FormatBool(v.flag)
	case DateKind:
		return v.date.Format(time.RFC3339)
	case ListKind:
		parts := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if text := item.Text(sep); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, sep)
	default:
		return ""
	}
}

// Any converts the value back into plain Go data: nil, string, float64, bool,
// time.Time or []any.
func (v Value) Any() any {
	switch v.kind {
	case StringKind:
		return v.str
	case NumberKind:
		return v.num
	case BoolKind:
		return v.flag
	case DateKind:
		return v.date
	case ListKind:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case StringKind:
		return v.str == other.str
	case NumberKind:
		return v.num == other.num
	case BoolKind:
		return v.flag == other.flag
	case DateKind:
		return v.date.Equal(other.date)
	case ListKind:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
	}
	return true
}

// FromAny converts plain Go data into a Value. Maps are encoded as JSON text;
// use Properties.Set to flatten them into separate keys instead.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case time.Time:
		return Date(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("property number %q: %w", v, err)
		}
		return Number(f), nil
	case []any:
		items := make([]Value, 0, len(v))
		for _, item := range v {
			value, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, value)
		}
		return Value{kind: ListKind, list: items}, nil
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return Value{}, fmt.Errorf("property map: %w", err)
		}
		return String(string(encoded)), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			value, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			items = append(items, value)
		}
		return Value{kind: ListKind, list: items}, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	}
	return Value{}, fmt.Errorf("unsupported property value %T", x)
}

// MarshalJSON encodes dates as RFC 3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == DateKind {
		return json.Marshal(v.date.Format(time.RFC3339Nano))
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes any JSON scalar or array. Strings in RFC 3339 form
// become dates; objects are kept as their JSON text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	value, err := fromJSON(raw)
	if err != nil {
		return err
	}
	*v = value
	return nil
}

func fromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return Date(t), nil
		}
		return String(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			value, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, value)
		}
		return Value{kind: ListKind, list: items}, nil
	default:
		return FromAny(raw)
	}
}

// Properties is the open metadata map of a sound.
type Properties map[string]Value

// Get returns the value stored under key.
func (p Properties) Get(key string) (Value, bool) {
	v, ok := p[key]
	return v, ok
}

// Set stores x under key. Nested maps are flattened into key_sub entries.
func (p Properties) Set(key string, x any) error {
	if nested, ok := x.(map[string]any); ok {
		for sub, value := range nested {
			if err := p.Set(key+"_"+sub, value); err != nil {
				return err
			}
		}
		return nil
	}
	value, err := FromAny(x)
	if err != nil {
		return fmt.Errorf("property %s: %w", key, err)
	}
	p[key] = value
	return nil
}

// Merge copies every entry of other into p, overwriting existing keys.
func (p Properties) Merge(other Properties) {
	for k, v := range other {
		p[k] = v
	}
}

// Keys returns the property names in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map converts the properties into plain Go data.
func (p Properties) Map() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Any()
	}
	return out
}

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		if v.kind == ListKind {
			v.list = append([]Value(nil), v.list...)
		}
		out[k] = v
	}
	return out
}

// PropertiesFromMap converts plain data into Properties, flattening nested
// maps with "_".
func PropertiesFromMap(m map[string]any) (Properties, error) {
	props := make(Properties, len(m))
	for k, v := range m {
		if err := props.Set(k, v); err != nil {
			return nil, err
		}
	}
	return props, nil
}
