// Package tool defines the self-describing tool contract used by the
// orchestrator's domain integrations: each tool exposes a schema for
// discovery and an execute call returning a structured result.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Definition is the self-describing schema of a tool
type Definition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
}

// Tool is an executable integration with a discoverable schema
type Tool interface {
	// Definition returns the tool's schema
	Definition() Definition

	// Execute runs the tool with named arguments
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry holds the available tools by name
type Registry struct {
	mutex sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool to the registry
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool: name is required")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.tools[def.Name]; ok {
		return fmt.Errorf("tool: %q already registered", def.Name)
	}
	r.tools[def.Name] = t
	return nil
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the schemas of all registered tools, sorted by name
func (r *Registry) Definitions() []Definition {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// validateArgs checks that every required argument is present
func validateArgs(def Definition, args map[string]any) error {
	for _, name := range def.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("tool %s: missing required argument %q", def.Name, name)
		}
	}
	return nil
}
