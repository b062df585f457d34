package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Renderer writes a report to w in one format.
type Renderer func(w io.Writer, r *Report) error

// Registry maps format names to renderers, enabling pluggable output
// formats for report commands.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry creates an empty renderer registry.
func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[string]Renderer),
	}
}

// Register adds a renderer under the given format name.
// Existing entries for the same name are overwritten.
func (r *Registry) Register(name string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.renderers[name] = renderer
}

// Renderer returns the renderer for the given format, or an error if not found.
func (r *Registry) Renderer(name string) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.renderers[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", name, r.availableLocked())
	}

	return f, nil
}

// Formats returns the sorted list of registered format names.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.formatsLocked()
}

// AvailableFormats returns a comma-separated string of registered format names.
func (r *Registry) AvailableFormats() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.availableLocked()
}

func (r *Registry) formatsLocked() []string {
	names := make([]string, 0, len(r.renderers))
	for name := range r.renderers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *Registry) availableLocked() string {
	formats := r.formatsLocked()
	if len(formats) == 0 {
		return "none"
	}

	return strings.Join(formats, ", ")
}

// DefaultRegistry returns a registry pre-populated with the built-in
// formats: table, json, yaml.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("table", RenderTable)
	r.Register("json", RenderJSON)
	r.Register("yaml", RenderYAML)

	return r
}
