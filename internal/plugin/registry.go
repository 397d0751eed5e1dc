package plugin

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"bnpl/internal/services"
	"bnpl/internal/textutil"
)

type entry struct {
	plugin     Plugin
	descriptor Descriptor
}

// Registry indexes plugins by "{module}.{name}" and by capability.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	byPath  map[string]string
	byCap   map[Capability][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		byPath:  make(map[string]string),
		byCap:   make(map[Capability][]string),
	}
}

// Register adds p under module. Registering the same concrete type again is a
// no-op; a different type claiming a taken key is rejected, as is a plugin
// that lacks the method set of its declared capability.
func (r *Registry) Register(module string, p Plugin) error {
	if p == nil {
		return services.Wrap(services.ErrConfiguration, "registry", "register", "plugin cannot be nil", nil)
	}
	module = strings.TrimSpace(module)
	if module == "" || textutil.Slugify(module, "_") != module {
		return services.Wrap(services.ErrConfiguration, "registry", "register", fmt.Sprintf("invalid module name %q", module), nil)
	}
	name := p.Name()
	if name == "" || textutil.Slugify(name, "-") != name {
		return services.Wrap(services.ErrConfiguration, "registry", "register", fmt.Sprintf("invalid plugin name %q", name), nil)
	}
	if err := p.Capability().Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "registry", "register", name, err)
	}
	if !implements(p) {
		return services.Wrap(services.ErrConfiguration, "registry", "register",
			fmt.Sprintf("%s does not implement the %s interface", ImportPath(p), p.Capability()), nil)
	}

	desc := Describe(module, p)

	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.byPath[desc.ImportPath]; ok && key == desc.Key {
		return nil
	}
	if existing, ok := r.entries[desc.Key]; ok {
		return services.Wrap(services.ErrConfiguration, "registry", "register",
			fmt.Sprintf("duplicate plugin key %q (%s already registered)", desc.Key, existing.descriptor.ImportPath), nil)
	}
	r.entries[desc.Key] = entry{plugin: p, descriptor: desc}
	r.byPath[desc.ImportPath] = desc.Key
	keys := append(r.byCap[desc.Type], desc.Key)
	sort.Strings(keys)
	r.byCap[desc.Type] = keys
	return nil
}

// MustRegister is Register for static tables.
func (r *Registry) MustRegister(module string, plugins ...Plugin) {
	for _, p := range plugins {
		if err := r.Register(module, p); err != nil {
			panic(err)
		}
	}
}

// Get returns the plugin registered under key.
func (r *Registry) Get(key string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "registry", "get", fmt.Sprintf("no plugin named %q", key), nil)
	}
	return e.plugin, nil
}

// Descriptor returns the descriptor registered under key.
func (r *Registry) Descriptor(key string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return Descriptor{}, services.Wrap(services.ErrNotFound, "registry", "describe", fmt.Sprintf("no plugin named %q", key), nil)
	}
	return e.descriptor, nil
}

// Keys returns every registered key in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Describe lists every descriptor sorted by key.
func (r *Registry) Describe() []Descriptor {
	keys := r.Keys()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(keys))
	for _, key := range keys {
		if e, ok := r.entries[key]; ok {
			out = append(out, e.descriptor)
		}
	}
	return out
}

// All iterates key and plugin pairs in key order.
func (r *Registry) All() iter.Seq2[string, Plugin] {
	keys := r.Keys()
	return func(yield func(string, Plugin) bool) {
		for _, key := range keys {
			p, err := r.Get(key)
			if err != nil {
				continue
			}
			if !yield(key, p) {
				return
			}
		}
	}
}

// ByCapability iterates the plugins of one capability in key order.
func (r *Registry) ByCapability(c Capability) iter.Seq2[string, Plugin] {
	r.mu.RLock()
	keys := append([]string(nil), r.byCap[c]...)
	r.mu.RUnlock()
	return func(yield func(string, Plugin) bool) {
		for _, key := range keys {
			p, err := r.Get(key)
			if err != nil {
				continue
			}
			if !yield(key, p) {
				return
			}
		}
	}
}

// Run looks key up and runs it in a new invocation.
func (r *Registry) Run(ctx context.Context, key string, cctx CallContext, opts ...InvocationOption) (*Output, error) {
	p, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	inv, err := NewInvocation(p, cctx, append([]InvocationOption{WithKey(key)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return inv.Run(ctx)
}
