// Package tools implements the Tool Registry: a type-safe, composable
// catalog of callable tools with JSON-Schema-emitting descriptors. Tools are
// stateless with respect to the registry; any state a tool needs is injected
// at construction.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Ident is the strong type for tool names, kept distinct from free-form
// strings so callers cannot accidentally mix up map keys.
type Ident string

// FieldIssue represents a single validation issue raised when a tool's
// arguments fail schema validation. Constraint values mirror common
// JSON-Schema violation kinds so downstream retry-hint logic and UIs can
// render consistent messages without re-parsing the validator's own error
// text.
type FieldIssue struct {
	Field      string
	Constraint string
	Allowed    []string
	MinLen     *int
	MaxLen     *int
	Pattern    string
	Format     string
}

// ParameterKind discriminates the recursive ToolParameterType variant.
type ParameterKind string

const (
	KindString  ParameterKind = "string"
	KindInteger ParameterKind = "integer"
	KindFloat   ParameterKind = "float"
	KindBoolean ParameterKind = "boolean"
	KindEnum    ParameterKind = "enum"
	KindList    ParameterKind = "list"
	KindObject  ParameterKind = "object"
)

// ParameterType is the recursive tagged variant named by the tool
// descriptor model: String | Integer | Float | Boolean | Enum(values) |
// List(element_type) | Object(properties, required_property_names). Only
// the fields relevant to Kind are populated; the zero value of the others is
// ignored during schema emission.
type ParameterType struct {
	Kind ParameterKind

	// EnumValues is populated when Kind == KindEnum.
	EnumValues []string

	// ElementType is populated when Kind == KindList.
	ElementType *ParameterType

	// Properties and RequiredProperties are populated when Kind ==
	// KindObject. Invariant: RequiredProperties must be a subset of the keys
	// of Properties.
	Properties         map[string]ParameterType
	PropertyOrder      []string
	RequiredProperties []string

	// Description optionally annotates the type itself (as opposed to a
	// ParamDescriptor's top-level description), useful for nested Object
	// properties and List element types.
	Description string
}

// String constructs a string parameter type.
func String() ParameterType { return ParameterType{Kind: KindString} }

// Integer constructs an integer parameter type.
func Integer() ParameterType { return ParameterType{Kind: KindInteger} }

// Float constructs a floating point parameter type.
func Float() ParameterType { return ParameterType{Kind: KindFloat} }

// Boolean constructs a boolean parameter type.
func Boolean() ParameterType { return ParameterType{Kind: KindBoolean} }

// Enum constructs an enumerated string parameter type.
func Enum(values ...string) ParameterType {
	return ParameterType{Kind: KindEnum, EnumValues: values}
}

// List constructs a list parameter type with the given element type.
func List(element ParameterType) ParameterType {
	return ParameterType{Kind: KindList, ElementType: &element}
}

// Object constructs an object parameter type. propertyOrder is kept as
// PropertyOrder; JSONSchema does not consult it and emits properties as a
// map, which encoding/json writes in sorted key order.
func Object(properties map[string]ParameterType, propertyOrder []string, required []string) ParameterType {
	return ParameterType{
		Kind:               KindObject,
		Properties:         properties,
		PropertyOrder:      propertyOrder,
		RequiredProperties: required,
	}
}

// Validate checks the Object.required_property_names ⊆ property_names
// invariant, recursively.
func (t ParameterType) Validate() error {
	switch t.Kind {
	case KindObject:
		for _, req := range t.RequiredProperties {
			if _, ok := t.Properties[req]; !ok {
				return fmt.Errorf("tools: required property %q not declared in object properties", req)
			}
		}
		for _, p := range t.Properties {
			if err := p.Validate(); err != nil {
				return err
			}
		}
	case KindList:
		if t.ElementType == nil {
			return fmt.Errorf("tools: list parameter type missing element type")
		}
		return t.ElementType.Validate()
	}
	return nil
}

// ParamDescriptor describes a single named tool parameter.
type ParamDescriptor struct {
	Name        string
	Description string
	Type        ParameterType
}

// ToolDescriptor is the registry-facing, provider-agnostic description of a
// tool: its name, human description, and the parameters it accepts split
// into required and optional. Parameter names must be unique within a
// descriptor.
type ToolDescriptor struct {
	Name           Ident
	Description    string
	RequiredParams []ParamDescriptor
	OptionalParams []ParamDescriptor

	// ParallelSafe declares that concurrent invocations of this tool may be
	// executed in parallel by dispatch_tool_calls. Defaults to false so
	// determinism is the default; results are always appended in call order
	// regardless of execution order.
	ParallelSafe bool
}

// Validate checks descriptor-level invariants: unique parameter names and
// valid nested parameter types.
func (d ToolDescriptor) Validate() error {
	seen := make(map[string]struct{}, len(d.RequiredParams)+len(d.OptionalParams))
	all := make([]ParamDescriptor, 0, len(d.RequiredParams)+len(d.OptionalParams))
	all = append(all, d.RequiredParams...)
	all = append(all, d.OptionalParams...)
	for _, p := range all {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tools: duplicate parameter name %q in tool %q", p.Name, d.Name)
		}
		seen[p.Name] = struct{}{}
		if err := p.Type.Validate(); err != nil {
			return fmt.Errorf("tools: tool %q parameter %q: %w", d.Name, p.Name, err)
		}
	}
	return nil
}

// Executor is the callable body of a Tool: it receives the raw JSON
// arguments (already schema-validated against the descriptor by the
// registry) and an execution-scoped Environment handle, returning a JSON
// result value or a structured failure. The Environment parameter is typed
// as `any` here to avoid an import cycle with the environment package;
// callers type-assert to the concrete environment.Environment interface.
type Executor func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error)

// Tool pairs a descriptor with its executor. Tools are stateless with
// respect to the registry; any state an executor closes over is supplied at
// construction time by the caller.
type Tool struct {
	Descriptor ToolDescriptor
	Run        Executor
}

// Name returns the tool's identifier for convenience in map-keyed contexts.
func (t Tool) Name() Ident { return t.Descriptor.Name }
