package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// Registry holds compiled plugins by name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]*Plugin)}
}

// Register adds p. A second plugin with the same name is a ConfigError.
func (r *Registry) Register(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[p.Name]; ok {
		return pattern.Configf("name", "plugin %s registered twice", p.Name)
	}
	r.plugins[p.Name] = p
	return nil
}

// CompileAll compiles every definition with params and registers it.
func (r *Registry) CompileAll(defs []Definition, params map[string]string) error {
	for _, d := range defs {
		p, err := Compile(d, params)
		if err != nil {
			return fmt.Errorf("plugin %q: %w", d.Name, err)
		}
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the plugin called name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select returns the named plugins, or all of them in name order when no
// names are given.
func (r *Registry) Select(names ...string) ([]*Plugin, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]*Plugin, 0, len(names))
	for _, n := range names {
		p, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", n)
		}
		out = append(out, p)
	}
	return out, nil
}
