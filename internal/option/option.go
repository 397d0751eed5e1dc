package option

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bnpl/internal/services"
	"bnpl/internal/textutil"
)

// Option is one named, typed configuration field of a plugin.
type Option struct {
	Name        string
	Kind        Kind
	Default     any
	Required    bool
	Alias       string
	Items       Kind
	Description string

	schema    *jsonschema.Schema
	schemaSrc json.RawMessage
	err       error
}

// Setting customizes an Option during construction.
type Setting func(*Option)

// Default sets the value used when the option is not supplied.
func Default(value any) Setting {
	return func(o *Option) { o.Default = value }
}

// Required marks the option as mandatory. A required option with a default is
// always satisfied.
func Required() Setting {
	return func(o *Option) { o.Required = true }
}

// Alias registers a short alternative name.
func Alias(alias string) Setting {
	return func(o *Option) { o.Alias = textutil.Slugify(alias, "_") }
}

// Items sets the element kind of a list or set option.
func Items(kind Kind) Setting {
	return func(o *Option) { o.Items = kind }
}

// Describe sets the human readable description.
func Describe(text string) Setting {
	return func(o *Option) { o.Description = strings.TrimSpace(text) }
}

// Schema attaches a JSON schema that dict values must satisfy.
func Schema(document string) Setting {
	return func(o *Option) {
		compiler := jsonschema.NewCompiler()
		url := "mem://option/" + o.Name + ".json"
		if err := compiler.AddResource(url, strings.NewReader(document)); err != nil {
			o.err = fmt.Errorf("option %s: load schema: %w", o.Name, err)
			return
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			o.err = fmt.Errorf("option %s: compile schema: %w", o.Name, err)
			return
		}
		o.schema = schema
		o.schemaSrc = json.RawMessage(document)
	}
}

// New declares an option. The name is normalized to a snake_case slug.
func New(name string, kind Kind, settings ...Setting) Option {
	opt := Option{Name: textutil.Slugify(name, "_"), Kind: kind}
	for _, setting := range settings {
		setting(&opt)
	}
	return opt
}

func (o Option) check() error {
	if o.err != nil {
		return o.err
	}
	if o.Name == "" {
		return errors.New("option name must not be empty")
	}
	if _, err := ParseKind(string(o.Kind)); err != nil {
		return fmt.Errorf("option %s: %w", o.Name, err)
	}
	if o.Items != "" {
		if o.Kind != KindList && o.Kind != KindSet {
			return fmt.Errorf("option %s: items only apply to list and set options", o.Name)
		}
		if _, err := ParseKind(string(o.Items)); err != nil {
			return fmt.Errorf("option %s: %w", o.Name, err)
		}
	}
	if o.schema != nil && o.Kind != KindDict {
		return fmt.Errorf("option %s: schema only applies to dict options", o.Name)
	}
	if o.Default != nil {
		if _, err := o.coerce(o.Default); err != nil {
			return fmt.Errorf("option %s: default: %w", o.Name, err)
		}
	}
	return nil
}

// Prepare resolves the value of the option from raw input. When supplied is
// false the default is used. A nil result with no error means the option is
// unresolved. Prepare does not modify the option.
func (o Option) Prepare(raw any, supplied bool) (any, error) {
	if !supplied || raw == nil {
		if o.Default == nil {
			if o.Required {
				return nil, &missingError{name: o.Name}
			}
			return nil, nil
		}
		raw = o.Default
	}
	return o.coerce(raw)
}

func (o Option) coerce(raw any) (any, error) {
	switch o.Kind {
	case KindList, KindSet:
		return o.coerceCollection(raw)
	case KindDict:
		value, err := Coerce(raw, KindDict)
		if err != nil {
			return nil, err
		}
		if o.schema != nil {
			if err := o.validateSchema(value); err != nil {
				return nil, err
			}
		}
		return value, nil
	default:
		return Coerce(raw, o.Kind)
	}
}

// coerceCollection wraps a bare scalar into a one element list and coerces
// every element, reporting all element failures together.
func (o Option) coerceCollection(raw any) (any, error) {
	if _, isMap := raw.(map[string]any); isMap {
		return nil, &TypeError{Kind: o.Kind, Value: raw}
	}
	items, err := toList(raw)
	if err != nil {
		items = []any{raw}
	}
	list := items.([]any)
	out := make([]any, 0, len(list))
	if o.Items == "" {
		out = append(out, list...)
	} else {
		var problems []string
		for i, item := range list {
			value, err := Coerce(item, o.Items)
			if err != nil {
				problems = append(problems, fmt.Sprintf("item %d: %v", i, err))
				continue
			}
			out = append(out, value)
		}
		if len(problems) > 0 {
			return nil, &TypeError{Kind: o.Kind, Value: raw, Reason: strings.Join(problems, "; ")}
		}
	}
	if o.Kind == KindSet {
		return toSet(out)
	}
	return out, nil
}

func (o Option) validateSchema(value any) error {
	// jsonschema expects values shaped like encoding/json output.
	encoded, err := json.Marshal(value)
	if err != nil {
		return &TypeError{Kind: KindDict, Value: value, Reason: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return &TypeError{Kind: KindDict, Value: value, Reason: err.Error()}
	}
	if err := o.schema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: schema: %v", services.ErrValidation, err)
	}
	return nil
}

// Description is the serializable metadata of an option.
type Description struct {
	Name        string          `json:"name"`
	Type        Kind            `json:"type"`
	Description string          `json:"description,omitempty"`
	Default     any             `json:"default"`
	Required    bool            `json:"required"`
	Alias       string          `json:"alias,omitempty"`
	Items       Kind            `json:"items,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Describe returns the option metadata.
func (o Option) Describe() Description {
	return Description{
		Name:        o.Name,
		Type:        o.Kind,
		Description: o.Description,
		Default:     o.Default,
		Required:    o.Required,
		Alias:       o.Alias,
		Items:       o.Items,
		Schema:      o.schemaSrc,
	}
}

type missingError struct {
	name string
}

func (e *missingError) Error() string { return "missing required option " + e.name }

func (e *missingError) Unwrap() error { return services.ErrValidation }
