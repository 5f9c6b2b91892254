// Package anthropic implements an llm.Executor backed by the Anthropic
// Claude Messages API. It translates the provider-agnostic agent.Prompt and
// tools.ToolDescriptor model into anthropic-sdk-go request types and maps
// responses (text, tool_use, usage) back into agent.Message.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/tools"
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// adapter, satisfied by *sdk.MessageService so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures adapter-wide defaults applied when a Prompt's Params
// leave a value unset.
type Options struct {
	// MaxTokens is the completion cap sent on every request; LLModel carries
	// no per-model cap. Anthropic requires a positive value on every
	// request.
	MaxTokens int

	// Temperature is used when a Prompt's Params.Temperature is zero.
	Temperature float64
}

// Client implements llm.Executor on top of Anthropic Claude Messages.
type Client struct {
	msg    MessagesClient
	maxTok int
	temp   float64
}

// New builds an Anthropic-backed executor from the given Messages client and
// options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens default is required")
	}
	return &Client{msg: msg, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP
// transport, reading ANTHROPIC_API_KEY conventions via option.WithAPIKey.
func NewFromAPIKey(apiKey string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{MaxTokens: maxTokens})
}

// Execute performs a synchronous Messages.New call and translates the
// response into agent.Message values.
func (c *Client) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	if err := llm.RequireCapability(model, llm.CapCompletion); err != nil {
		return nil, err
	}
	params, nameMap, err := c.prepareRequest(prompt, model, descriptors)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, wrapCallError(err)
	}
	out, err := translateResponse(msg, nameMap)
	if err != nil {
		return nil, err
	}
	if err := llm.EnforceToolChoice(prompt.Params.ToolChoice, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteStreaming invokes Messages.NewStreaming, emitting only the text
// deltas in arrival order; tool_use and usage events are dropped since the
// stream.LazySequence[string] contract carries text fragments only.
func (c *Client) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	if err := llm.RequireCapability(model, llm.CapCompletion); err != nil {
		return nil, err
	}
	params, _, err := c.prepareRequest(prompt, model, nil)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	sdkStream := c.msg.NewStreaming(ctx, *params)
	if err := sdkStream.Err(); err != nil {
		return nil, wrapCallError(err)
	}

	values := make(chan string, 32)
	errs := make(chan error, 1)
	go func() {
		defer close(values)
		for sdkStream.Next() {
			event := sdkStream.Current()
			delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(sdk.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			select {
			case values <- text.Text:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := sdkStream.Err(); err != nil {
			errs <- wrapCallError(err)
		}
		close(errs)
	}()
	return stream.NewChannelSequence(values, errs, sdkStream.Close), nil
}

// ExecuteMultipleChoices has no native Anthropic equivalent; it issues
// Params.NumberOfChoices independent Execute calls.
func (c *Client) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	if err := llm.RequireCapability(model, llm.CapMultipleChoices); err != nil {
		return nil, err
	}
	n := prompt.Params.NumberOfChoices
	if n <= 0 {
		n = 1
	}
	choices := make([]llm.Choice, 0, n)
	for i := 0; i < n; i++ {
		msgs, err := c.Execute(ctx, prompt, model, descriptors)
		if err != nil {
			return nil, err
		}
		choices = append(choices, llm.Choice(msgs))
	}
	return choices, nil
}

// Moderate is unsupported: Anthropic's Messages API has no moderation
// endpoint.
func (c *Client) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, &agenterrors.CapabilityUnsupportedError{Capability: string(llm.CapModeration)}
}

// Embed is unsupported: Anthropic's Messages API has no embeddings
// endpoint.
func (c *Client) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, &agenterrors.CapabilityUnsupportedError{Capability: string(llm.CapEmbed)}
}

func (c *Client) prepareRequest(prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) (*sdk.MessageNewParams, map[string]string, error) {
	if model.ModelID == "" {
		return nil, nil, errors.New("anthropic: model id is required")
	}
	toolParams, canonToSan, sanToCanon, err := encodeTools(descriptors)
	if err != nil {
		return nil, nil, err
	}
	msgs, system, err := encodeMessages(prompt.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}
	maxTokens := c.maxTok
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(model.ModelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	if model.HasCapability(llm.CapTemperature) {
		temp := prompt.Params.Temperature
		if temp <= 0 {
			temp = c.temp
		}
		if temp > 0 {
			params.Temperature = sdk.Float(temp)
		}
	}
	if prompt.Params.ToolChoice.Mode != "" {
		if err := llm.RequireCapability(model, llm.CapToolChoice); err != nil {
			return nil, nil, err
		}
		tc, err := encodeToolChoice(prompt.Params.ToolChoice, canonToSan)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	return &params, sanToCanon, nil
}

func encodeMessages(msgs []agent.Message, nameMap map[string]string) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0)

	for _, m := range msgs {
		switch m.Kind {
		case agent.KindSystem:
			if m.Text != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Text})
			}
		case agent.KindUser:
			if m.Text != "" {
				conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
			}
		case agent.KindAssistant:
			if m.Text != "" {
				conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text)))
			}
		case agent.KindToolCall:
			sanitized, ok := nameMap[string(m.ToolName)]
			if !ok {
				sanitized = sanitizeToolName(string(m.ToolName))
			}
			var input any
			if len(m.ArgumentsJSON) > 0 {
				if err := json.Unmarshal(m.ArgumentsJSON, &input); err != nil {
					return nil, nil, fmt.Errorf("anthropic: tool_call %q arguments: %w", m.ToolName, err)
				}
			}
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewToolUseBlock(m.ToolCallID, input, sanitized)))
		case agent.KindToolResult:
			content, err := encodeToolResultContent(m.Content)
			if err != nil {
				return nil, nil, err
			}
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, content, false)))
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeToolResultContent(content any) (string, error) {
	switch v := content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("anthropic: tool result content: %w", err)
		}
		return string(data), nil
	}
}

// encodeTools returns the provider tool list plus the canonical<->sanitized
// name maps needed to translate tool_use blocks back into tools.Ident on the
// way out, and canonical->sanitized on the way in for tool_call messages
// already present in history.
func encodeTools(descriptors []tools.ToolDescriptor) ([]sdk.ToolUnionParam, map[string]string, map[string]string, error) {
	if len(descriptors) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]sdk.ToolUnionParam, 0, len(descriptors))
	canonToSan := make(map[string]string, len(descriptors))
	sanToCanon := make(map[string]string, len(descriptors))

	for _, d := range descriptors {
		canonical := string(d.Name)
		sanitized := sanitizeToolName(canonical)
		if prev, ok := sanToCanon[sanitized]; ok && prev != canonical {
			return nil, nil, nil, fmt.Errorf("anthropic: tool name %q sanitizes to %q which collides with %q", canonical, sanitized, prev)
		}
		sanToCanon[sanitized] = canonical
		canonToSan[canonical] = sanitized

		schema := toolInputSchema(d)
		u := sdk.ToolUnionParamOfTool(schema, sanitized)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(d.Description)
		}
		toolList = append(toolList, u)
	}
	return toolList, canonToSan, sanToCanon, nil
}

func toolInputSchema(d tools.ToolDescriptor) sdk.ToolInputSchemaParam {
	properties := make(map[string]any, len(d.RequiredParams)+len(d.OptionalParams))
	required := make([]string, 0, len(d.RequiredParams))
	for _, p := range d.RequiredParams {
		properties[p.Name] = paramTypeSchema(p.Type, p.Description)
		required = append(required, p.Name)
	}
	for _, p := range d.OptionalParams {
		properties[p.Name] = paramTypeSchema(p.Type, p.Description)
	}
	m := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		m["required"] = required
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}
}

func paramTypeSchema(t tools.ParameterType, description string) map[string]any {
	m := map[string]any{}
	switch t.Kind {
	case tools.KindString:
		m["type"] = "string"
	case tools.KindInteger:
		m["type"] = "integer"
	case tools.KindFloat:
		m["type"] = "number"
	case tools.KindBoolean:
		m["type"] = "boolean"
	case tools.KindEnum:
		m["type"] = "string"
		m["enum"] = t.EnumValues
	case tools.KindList:
		m["type"] = "array"
		if t.ElementType != nil {
			m["items"] = paramTypeSchema(*t.ElementType, "")
		}
	case tools.KindObject:
		m["type"] = "object"
		props := make(map[string]any, len(t.Properties))
		for name, prop := range t.Properties {
			props[name] = paramTypeSchema(prop, prop.Description)
		}
		m["properties"] = props
		if len(t.RequiredProperties) > 0 {
			m["required"] = t.RequiredProperties
		}
	}
	if description != "" {
		m["description"] = description
	} else if t.Description != "" {
		m["description"] = t.Description
	}
	return m
}

func encodeToolChoice(choice agent.ToolChoice, canonToSan map[string]string) (sdk.ToolChoiceUnionParam, error) {
	switch choice.Mode {
	case "", agent.ToolChoiceAuto:
		return sdk.ToolChoiceUnionParam{}, nil
	case agent.ToolChoiceNone:
		none := sdk.NewToolChoiceNoneParam()
		return sdk.ToolChoiceUnionParam{OfNone: &none}, nil
	case agent.ToolChoiceRequired:
		return sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}, nil
	case agent.ToolChoiceNamed:
		sanitized, ok := canonToSan[choice.Name]
		if !ok {
			return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: tool choice name %q does not match any tool", choice.Name)
		}
		return sdk.ToolChoiceParamOfTool(sanitized), nil
	default:
		return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: unsupported tool choice mode %q", choice.Mode)
	}
}

// sanitizeToolName maps a canonical tool identifier to the character set
// allowed by Anthropic's tool naming constraints ([a-zA-Z0-9_-], <=64
// chars), replacing any other rune with '_'.
func sanitizeToolName(in string) string {
	if in == "" {
		return in
	}
	if isProviderSafeToolName(in) {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	name := string(out)
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func isProviderSafeToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func wrapCallError(err error) error {
	if err == nil {
		return nil
	}
	if isRateLimited(err) {
		return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorRateLimited, Cause: err}
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
		return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTransient5xx, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTimeout, Cause: err}
	}
	return &agenterrors.LLMPermanentError{Cause: err}
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 429
}

func translateResponse(msg *sdk.Message, nameMap map[string]string) ([]agent.Message, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	var out []agent.Message
	usage := map[string]any{
		"input_tokens":  int(msg.Usage.InputTokens),
		"output_tokens": int(msg.Usage.OutputTokens),
		"stop_reason":   string(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			out = append(out, agent.NewAssistantMessage(block.Text, usage))
		case "tool_use":
			name := block.Name
			if canonical, ok := nameMap[name]; ok {
				name = canonical
			}
			argsJSON, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: tool_use %q arguments: %w", block.ID, err)
			}
			out = append(out, agent.NewToolCallMessage(block.ID, tools.Ident(name), argsJSON))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: response had no text or tool_use content")
	}
	return out, nil
}
