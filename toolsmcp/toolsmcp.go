// Package toolsmcp adapts an external MCP (Model Context Protocol) server's
// tools onto the Tool Registry: it connects over stdio via mcp-go, lists
// the server's tools, and registers one tools.Tool per MCP tool whose
// Executor proxies the call back to the server.
package toolsmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentkit/agentrt/tools"
)

const protocolVersion = "2024-11-05"

// Config configures a stdio connection to an MCP server.
type Config struct {
	// Name identifies this client to the server during initialize.
	Name string
	// Version identifies this client's version during initialize.
	Version string
	// Command launches the MCP server subprocess.
	Command string
	// Args are passed to Command.
	Args []string
	// Env is appended to the subprocess environment as "KEY=VALUE" pairs.
	Env map[string]string
	// Filter limits which server tools are registered. Empty means all.
	Filter []string
}

// Client wraps an mcp-go stdio client with the lifecycle (connect,
// initialize, list tools, call tool, close) the adapter needs.
type Client struct {
	cfg Config

	mu     sync.Mutex
	mcp    *client.Client
	tools  []mcp.Tool
}

// Connect launches the configured MCP server, performs the initialize
// handshake, and lists its tools.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("toolsmcp: command is required")
	}
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("toolsmcp: create client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("toolsmcp: start client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	name := cfg.Name
	if name == "" {
		name = "agentrt"
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}
	initReq.Params.ClientInfo = mcp.Implementation{Name: name, Version: version}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("toolsmcp: initialize: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("toolsmcp: list tools: %w", err)
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, n := range cfg.Filter {
			filterSet[n] = true
		}
	}
	var kept []mcp.Tool
	for _, t := range listResp.Tools {
		if filterSet != nil && !filterSet[t.Name] {
			continue
		}
		kept = append(kept, t)
	}

	return &Client{cfg: cfg, mcp: mcpClient, tools: kept}, nil
}

// Close releases the underlying MCP subprocess.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mcp == nil {
		return nil
	}
	err := c.mcp.Close()
	c.mcp = nil
	return err
}

// RegisterAll builds one tools.Tool per listed MCP tool and registers it on
// registry.
func (c *Client) RegisterAll(registry *tools.Registry) error {
	for _, mt := range c.tools {
		descriptor, err := descriptorFromMCPTool(mt)
		if err != nil {
			return fmt.Errorf("toolsmcp: tool %q: %w", mt.Name, err)
		}
		name := mt.Name
		if err := registry.Register(tools.Tool{
			Descriptor: descriptor,
			Run:        c.makeExecutor(name),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) makeExecutor(name string) tools.Executor {
	return func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error) {
		var arguments map[string]any
		if len(args) > 0 {
			if err := json.Unmarshal(args, &arguments); err != nil {
				return nil, fmt.Errorf("toolsmcp: decode arguments for %q: %w", name, err)
			}
		}

		c.mu.Lock()
		mcpClient := c.mcp
		c.mu.Unlock()
		if mcpClient == nil {
			return nil, fmt.Errorf("toolsmcp: client for %q is closed", name)
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = arguments
		resp, err := mcpClient.CallTool(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("toolsmcp: call %q: %w", name, err)
		}
		return encodeCallResult(resp)
	}
}

// encodeCallResult collects the text content blocks of an MCP tool result
// into a JSON value the registry's caller can hand back as a tool_result
// message.
func encodeCallResult(resp *mcp.CallToolResult) (json.RawMessage, error) {
	var texts []string
	for _, block := range resp.Content {
		if tc, ok := block.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	var payload any
	switch {
	case resp.IsError:
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		payload = map[string]any{"error": msg}
	case len(texts) == 1:
		payload = map[string]any{"result": texts[0]}
	case len(texts) > 1:
		payload = map[string]any{"results": texts}
	default:
		payload = map[string]any{}
	}
	return json.Marshal(payload)
}

// descriptorFromMCPTool converts an MCP tool's JSON-Schema input shape into
// a tools.ToolDescriptor, by round-tripping through JSON into the raw
// property/required maps the schema actually carries.
func descriptorFromMCPTool(t mcp.Tool) (tools.ToolDescriptor, error) {
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return tools.ToolDescriptor{}, err
	}
	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                    `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return tools.ToolDescriptor{}, err
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	d := tools.ToolDescriptor{Name: tools.Ident(t.Name), Description: t.Description}
	for propName, propRaw := range schema.Properties {
		var propSchema map[string]any
		if err := json.Unmarshal(propRaw, &propSchema); err != nil {
			return tools.ToolDescriptor{}, err
		}
		paramType, description := parameterTypeFromSchema(propSchema)
		param := tools.ParamDescriptor{Name: propName, Description: description, Type: paramType}
		if required[propName] {
			d.RequiredParams = append(d.RequiredParams, param)
		} else {
			d.OptionalParams = append(d.OptionalParams, param)
		}
	}
	return d, nil
}

func parameterTypeFromSchema(schema map[string]any) (tools.ParameterType, string) {
	description, _ := schema["description"].(string)
	kind, _ := schema["type"].(string)
	switch kind {
	case "integer":
		return tools.Integer(), description
	case "number":
		return tools.Float(), description
	case "boolean":
		return tools.Boolean(), description
	case "array":
		elemSchema, _ := schema["items"].(map[string]any)
		elemType, _ := parameterTypeFromSchema(elemSchema)
		return tools.List(elemType), description
	case "object":
		props, _ := schema["properties"].(map[string]any)
		requiredList, _ := schema["required"].([]any)
		required := make([]string, 0, len(requiredList))
		for _, r := range requiredList {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
		properties := make(map[string]tools.ParameterType, len(props))
		order := make([]string, 0, len(props))
		for name, sub := range props {
			subSchema, _ := sub.(map[string]any)
			subType, _ := parameterTypeFromSchema(subSchema)
			properties[name] = subType
			order = append(order, name)
		}
		return tools.Object(properties, order, required), description
	default:
		if enumRaw, ok := schema["enum"].([]any); ok {
			values := make([]string, 0, len(enumRaw))
			for _, v := range enumRaw {
				if s, ok := v.(string); ok {
					values = append(values, s)
				}
			}
			return tools.Enum(values...), description
		}
		return tools.String(), description
	}
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
