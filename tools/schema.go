package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// JSONSchema recursively renders a ParameterType into a JSON Schema draft
// 2020-12 document, as a map ready for json.Marshal. This walk is what
// avoids the `{"type":{"type":...}}` nesting bug: each variant emits exactly
// one JSON Schema "type" keyword at its own level, never wrapping a child
// schema inside an extra "type" envelope.
func (t ParameterType) JSONSchema() map[string]any {
	schema := map[string]any{}
	if t.Description != "" {
		schema["description"] = t.Description
	}
	switch t.Kind {
	case KindString:
		schema["type"] = "string"
	case KindInteger:
		schema["type"] = "integer"
	case KindFloat:
		schema["type"] = "number"
	case KindBoolean:
		schema["type"] = "boolean"
	case KindEnum:
		schema["type"] = "string"
		schema["enum"] = append([]string{}, t.EnumValues...)
	case KindList:
		schema["type"] = "array"
		if t.ElementType != nil {
			schema["items"] = t.ElementType.JSONSchema()
		}
	case KindObject:
		schema["type"] = "object"
		props := make(map[string]any, len(t.Properties))
		for name, prop := range t.Properties {
			props[name] = prop.JSONSchema()
		}
		schema["properties"] = props
		if len(t.RequiredProperties) > 0 {
			schema["required"] = append([]string{}, t.RequiredProperties...)
		}
		schema["additionalProperties"] = false
	}
	return schema
}

// ArgumentsSchema renders a ToolDescriptor's parameters into the single JSON
// Schema document used to validate a call's arguments object: a top-level
// object whose properties are the union of required and optional params.
func (d ToolDescriptor) ArgumentsSchema() map[string]any {
	props := make(map[string]any, len(d.RequiredParams)+len(d.OptionalParams))
	var required []string
	for _, p := range d.RequiredParams {
		props[p.Name] = withDescription(p.Type.JSONSchema(), p.Description)
		required = append(required, p.Name)
	}
	for _, p := range d.OptionalParams {
		props[p.Name] = withDescription(p.Type.JSONSchema(), p.Description)
	}
	schema := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func withDescription(schema map[string]any, description string) map[string]any {
	if description != "" {
		if _, ok := schema["description"]; !ok {
			schema["description"] = description
		}
	}
	return schema
}

// CompileArgumentsSchema compiles the descriptor's arguments schema into a
// reusable validator. Compilation failures indicate a malformed descriptor
// (e.g. an Object parameter whose RequiredProperties escaped Validate).
func (d ToolDescriptor) CompileArgumentsSchema() (*jsonschema.Schema, error) {
	doc := d.ArgumentsSchema()
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("tools: marshal schema for %q: %w", d.Name, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("tools: decode schema for %q: %w", d.Name, err)
	}
	resourceName := fmt.Sprintf("%s.schema.json", d.Name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, decoded); err != nil {
		return nil, fmt.Errorf("tools: add schema resource for %q: %w", d.Name, err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema for %q: %w", d.Name, err)
	}
	return compiled, nil
}

// ValidateArguments validates raw JSON arguments against the descriptor's
// schema, translating jsonschema validation errors into FieldIssue values.
// It compiles the schema on every call; registries that validate the same
// tool repeatedly should cache the compiled schema instead (see
// Registry.CompiledSchema).
func (d ToolDescriptor) ValidateArguments(args json.RawMessage) ([]FieldIssue, error) {
	schema, err := d.CompileArgumentsSchema()
	if err != nil {
		return nil, err
	}
	return validateCompiled(schema, args)
}

func validateCompiled(schema *jsonschema.Schema, args json.RawMessage) ([]FieldIssue, error) {
	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("tools: decode arguments: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			return flattenValidationError(ve), nil
		}
		return []FieldIssue{{Field: "", Constraint: "invalid_format"}}, nil
	}
	return nil, nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}

// flattenValidationError walks the causes tree a jsonschema.ValidationError
// carries and produces one FieldIssue per leaf cause.
func flattenValidationError(ve *jsonschema.ValidationError) []FieldIssue {
	if ve == nil {
		return nil
	}
	if len(ve.Causes) == 0 {
		field := ""
		if len(ve.InstanceLocation) > 0 {
			field = ve.InstanceLocation[len(ve.InstanceLocation)-1]
		}
		return []FieldIssue{{
			Field:      field,
			Constraint: "invalid_field_type",
		}}
	}
	var issues []FieldIssue
	for _, cause := range ve.Causes {
		issues = append(issues, flattenValidationError(cause)...)
	}
	return issues
}
