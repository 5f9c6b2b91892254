package tools

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DuplicateToolNameError is returned by Register and Merge when a tool name
// collides with one already present. The registry never silently overrides
// an existing entry.
type DuplicateToolNameError struct {
	Name Ident
}

func (e *DuplicateToolNameError) Error() string {
	return fmt.Sprintf("tools: duplicate tool name %q", e.Name)
}

// Registry is a mapping from tool name to tool with deterministic,
// insertion-order iteration. It is safe for concurrent reads; Register and
// Merge are expected to run during setup, before a Run begins, matching the
// guarantee that a Runner snapshots describe_all() once at Run start.
type Registry struct {
	mu      sync.RWMutex
	order   []Ident
	entries map[Ident]Tool
	schemas map[Ident]*jsonschema.Schema
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Ident]Tool),
		schemas: make(map[Ident]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry. It fails with
// *DuplicateToolNameError if a tool with this name is already registered,
// and with a validation error if the descriptor itself is malformed.
func (r *Registry) Register(t Tool) error {
	if err := t.Descriptor.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.Descriptor.Name]; exists {
		return &DuplicateToolNameError{Name: t.Descriptor.Name}
	}
	schema, err := t.Descriptor.CompileArgumentsSchema()
	if err != nil {
		return err
	}
	r.entries[t.Descriptor.Name] = t
	r.schemas[t.Descriptor.Name] = schema
	r.order = append(r.order, t.Descriptor.Name)
	return nil
}

// Merge returns a new registry containing the tools of both r and other. It
// fails with *DuplicateToolNameError on the first name collision found,
// without mutating either source registry.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	merged := NewRegistry()
	r.mu.RLock()
	for _, name := range r.order {
		if err := merged.Register(r.entries[name]); err != nil {
			r.mu.RUnlock()
			return nil, err
		}
	}
	r.mu.RUnlock()

	other.mu.RLock()
	defer other.mu.RUnlock()
	for _, name := range other.order {
		if err := merged.Register(other.entries[name]); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// Get returns the tool registered under name, and whether it was found.
func (r *Registry) Get(name Ident) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[name]
	return t, ok
}

// CompiledSchema returns the pre-compiled arguments schema for name, cached
// at Register time so dispatch does not recompile on every call.
func (r *Registry) CompiledSchema(name Ident) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// ValidateArguments validates raw JSON arguments for the named tool against
// its cached compiled schema, without recompiling it.
func (r *Registry) ValidateArguments(name Ident, args []byte) ([]FieldIssue, error) {
	schema, ok := r.CompiledSchema(name)
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
	return validateCompiled(schema, args)
}

// DescribeAll returns the ordered list of descriptors in insertion order,
// used to emit the tool set to the LLM executor. The returned slice is a
// fresh copy; mutating it does not affect the registry.
func (r *Registry) DescribeAll() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Descriptor)
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
