package toolsmcp

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/agentkit/agentrt/tools"
)

func TestDescriptorFromMCPTool(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"city": map[string]any{"type": "string", "description": "city name"},
			"days": map[string]any{"type": "integer"},
		},
		Required: []string{"city"},
	}
	mt := mcp.Tool{Name: "get_forecast", Description: "fetch a forecast", InputSchema: schema}

	d, err := descriptorFromMCPTool(mt)
	require.NoError(t, err)
	require.Equal(t, tools.Ident("get_forecast"), d.Name)
	require.Len(t, d.RequiredParams, 1)
	require.Equal(t, "city", d.RequiredParams[0].Name)
	require.Equal(t, tools.KindString, d.RequiredParams[0].Type.Kind)
	require.Len(t, d.OptionalParams, 1)
	require.Equal(t, "days", d.OptionalParams[0].Name)
	require.Equal(t, tools.KindInteger, d.OptionalParams[0].Type.Kind)
}

func TestParameterTypeFromSchema_Enum(t *testing.T) {
	schema := map[string]any{"enum": []any{"c", "f"}}
	typ, _ := parameterTypeFromSchema(schema)
	require.Equal(t, tools.KindEnum, typ.Kind)
	require.Equal(t, []string{"c", "f"}, typ.EnumValues)
}

func TestParameterTypeFromSchema_ArrayAndObject(t *testing.T) {
	arr := map[string]any{"type": "array", "items": map[string]any{"type": "number"}}
	typ, _ := parameterTypeFromSchema(arr)
	require.Equal(t, tools.KindList, typ.Kind)
	require.Equal(t, tools.KindFloat, typ.ElementType.Kind)

	obj := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "boolean"}},
		"required":   []any{"x"},
	}
	objType, _ := parameterTypeFromSchema(obj)
	require.Equal(t, tools.KindObject, objType.Kind)
	require.Equal(t, []string{"x"}, objType.RequiredProperties)
}

func TestEncodeCallResult(t *testing.T) {
	ok := &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "42F"}}}
	raw, err := encodeCallResult(ok)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "42F", decoded["result"])

	failed := &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "boom"}}}
	raw, err = encodeCallResult(failed)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "boom", decoded["error"])
}

func TestEnvSlice(t *testing.T) {
	out := envSlice(map[string]string{"A": "1"})
	require.Equal(t, []string{"A=1"}, out)
	require.Nil(t, envSlice(nil))
}

func TestConnect_RequiresCommand(t *testing.T) {
	_, err := Connect(nil, Config{})
	require.Error(t, err)
}
