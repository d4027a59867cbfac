package tools

import (
	"fmt"
	"sort"
	"sync"

	"minerva/internal/adapters/ai"
	"minerva/pkg/errors"
)

// Registry stores tools by name for discovery and lookup.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. A duplicate name is a bootstrap bug, not a
// runtime condition, so it fails hard.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "tool %s registered twice", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers a tool and panics on duplicates. For bootstrap use.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Middleware wraps a tool with cross-cutting behavior.
type Middleware interface {
	Wrap(Tool) Tool
}

// Use rewraps every registered tool with the given middlewares. The first
// listed middleware runs outermost.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, t := range r.tools {
		wrapped := t
		for i := len(middlewares) - 1; i >= 0; i-- {
			wrapped = middlewares[i].Wrap(wrapped)
		}
		r.tools[name] = wrapped
	}
}

// Get retrieves a tool by name if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the names of all registered tools, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Resolve returns the named subset as wire definitions plus the tools
// themselves, preserving the requested order. Unknown names error so a
// persona never silently runs with fewer tools than it asked for.
func (r *Registry) Resolve(names []string) ([]Tool, []ai.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := make([]Tool, 0, len(names))
	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, nil, errors.Wrapf(errors.ErrNotFound, "tool %s is not registered", name)
		}
		resolved = append(resolved, t)
		defs = append(defs, Definition(t))
	}

	return resolved, defs, nil
}

// NotImplemented is the text returned to the model when it hallucinates a
// tool name outside its granted set.
func NotImplemented(name string) string {
	return fmt.Sprintf("Tool %s not implemented", name)
}
