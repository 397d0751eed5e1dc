package plugin

import (
	"reflect"

	"bnpl/internal/option"
)

// Descriptor is the static metadata shown by help output and plugin listings.
type Descriptor struct {
	Key         string               `json:"key"`
	Name        string               `json:"name"`
	Module      string               `json:"module"`
	ImportPath  string               `json:"import_path"`
	Description string               `json:"description"`
	Type        Capability           `json:"type"`
	Options     []option.Description `json:"options"`
}

// Describe builds the descriptor for p registered under module.
func Describe(module string, p Plugin) Descriptor {
	return Descriptor{
		Key:         module + "." + p.Name(),
		Name:        p.Name(),
		Module:      module,
		ImportPath:  ImportPath(p),
		Description: p.Description(),
		Type:        p.Capability(),
		Options:     p.Options().Describe(),
	}
}

// ImportPath names the concrete Go type behind p, for example
// "bnpl/internal/plugins.Directory".
func ImportPath(p Plugin) string {
	t := reflect.TypeOf(p)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}
