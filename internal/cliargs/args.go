package cliargs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bnpl/internal/option"
	"bnpl/internal/services"
)

// Parse converts plugin arguments into raw options. Repeating a flag collects
// its values into a list.
func Parse(args []string) (map[string]any, error) {
	out := make(map[string]any)
	set := func(name string, value any) {
		prev, ok := out[name]
		if !ok {
			out[name] = value
			return
		}
		if list, isList := prev.([]any); isList {
			out[name] = append(list, value)
			return
		}
		out[name] = []any{prev, value}
	}

	for i := 0; i < len(args); i++ {
		token := args[i]
		if !isFlag(token) {
			return nil, services.Wrap(services.ErrValidation, "cli", "args", fmt.Sprintf("unexpected argument %q", token), nil)
		}
		name := strings.TrimLeft(token, "-")
		raw, hasValue := "", false
		if idx := strings.Index(name, "="); idx >= 0 {
			name, raw, hasValue = name[:idx], name[idx+1:], true
		} else if i+1 < len(args) && !isFlag(args[i+1]) {
			raw, hasValue = args[i+1], true
			i++
		}
		name = strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
		if name == "" {
			return nil, services.Wrap(services.ErrValidation, "cli", "args", fmt.Sprintf("invalid flag %q", token), nil)
		}
		if !hasValue {
			if negated, ok := strings.CutPrefix(name, "no_"); ok {
				set(negated, false)
				continue
			}
			set(name, true)
			continue
		}
		value, err := Value(raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		set(name, value)
	}
	return out, nil
}

// isFlag reports whether token starts a flag. Negative numbers are values.
func isFlag(token string) bool {
	if !strings.HasPrefix(token, "-") || token == "-" {
		return false
	}
	rest := strings.TrimLeft(token, "-")
	return rest != "" && !(rest[0] >= '0' && rest[0] <= '9') && rest[0] != '.'
}

// Value interprets one argument value: a literal, or the contents of an
// existing .json/.yml/.yaml file.
func Value(raw string) (any, error) {
	v, err := Literal(raw)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); !ok || s != raw {
		return v, nil
	}
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(filepath.Ext(trimmed)) {
	case ".json", ".yml", ".yaml":
		path, err := expand(trimmed)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return raw, nil
			}
			return nil, services.Wrap(services.ErrValidation, "cli", "args", "read "+path, err)
		}
		return decode(data, path)
	}
	return raw, nil
}

// Literal interprets null tokens and inline JSON or YAML documents. Anything
// else is returned unchanged for the option layer to coerce.
func Literal(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if v, err := option.Coerce(trimmed, option.KindNull); err == nil {
		return v, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return decode([]byte(trimmed), "inline value")
	}
	return raw, nil
}

// decode parses JSON or YAML; YAML is a superset of JSON.
func decode(data []byte, source string) (any, error) {
	var out any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, services.Wrap(services.ErrValidation, "cli", "args", "parse "+source, err)
	}
	return out, nil
}

func expand(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "cli", "args", "resolve home directory", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
