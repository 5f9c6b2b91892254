// Package openai implements an llm.Executor backed by the OpenAI Chat
// Completions API. It translates the provider-agnostic agent.Prompt and
// tools.ToolDescriptor model into github.com/openai/openai-go request types
// and maps responses (text, tool calls, usage) back into agent.Message.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/tools"
)

// ChatClient captures the subset of the OpenAI SDK client used by the
// adapter, satisfied by *oai.ChatCompletionService so tests can substitute a
// fake.
type ChatClient interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk]
}

// Options configures adapter-wide defaults applied when a Prompt's Params
// leave a value unset.
type Options struct {
	// MaxTokens is the completion cap sent on every request when positive;
	// Prompt.Params has no per-request override. Zero leaves the provider's
	// own default in force.
	MaxTokens int

	// Temperature is used when a Prompt's Params.Temperature is zero.
	Temperature float64
}

// Client implements llm.Executor on top of the OpenAI Chat Completions API.
type Client struct {
	chat   ChatClient
	maxTok int
	temp   float64
}

// New builds an OpenAI-backed executor from the given chat client and
// options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP transport.
func NewFromAPIKey(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := oai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, Options{})
}

// Execute performs a synchronous Chat Completions call and translates the
// response into agent.Message values.
func (c *Client) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	if err := llm.RequireCapability(model, llm.CapCompletion); err != nil {
		return nil, err
	}
	params, err := c.prepareRequest(prompt, model, descriptors)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, wrapCallError(err)
	}
	out, err := translateResponse(resp)
	if err != nil {
		return nil, err
	}
	if err := llm.EnforceToolChoice(prompt.Params.ToolChoice, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteStreaming invokes the streaming Chat Completions endpoint, emitting
// only the assistant's text deltas in arrival order.
func (c *Client) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	if err := llm.RequireCapability(model, llm.CapCompletion); err != nil {
		return nil, err
	}
	params, err := c.prepareRequest(prompt, model, nil)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	sdkStream := c.chat.NewStreaming(ctx, *params)
	if err := sdkStream.Err(); err != nil {
		return nil, wrapCallError(err)
	}

	values := make(chan string, 32)
	errs := make(chan error, 1)
	go func() {
		defer close(values)
		for sdkStream.Next() {
			chunk := sdkStream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case values <- text:
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

// ExecuteMultipleChoices uses Chat Completions' native n parameter to
// request Params.NumberOfChoices alternatives in a single call.
func (c *Client) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	if err := llm.RequireCapability(model, llm.CapMultipleChoices); err != nil {
		return nil, err
	}
	params, err := c.prepareRequest(prompt, model, descriptors)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	n := prompt.Params.NumberOfChoices
	if n <= 0 {
		n = 1
	}
	params.N = oai.Int(int64(n))
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, wrapCallError(err)
	}
	choices := make([]llm.Choice, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		msgs, err := translateChoice(ch)
		if err != nil {
			return nil, err
		}
		choices = append(choices, llm.Choice(msgs))
	}
	return choices, nil
}

// Moderate is unsupported: the Chat Completions boundary this adapter uses
// has no moderation endpoint wired; use the dedicated Moderations API via a
// separate executor if needed.
func (c *Client) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, &agenterrors.CapabilityUnsupportedError{Capability: string(llm.CapModeration)}
}

// Embed is unsupported by this Chat Completions adapter; use a dedicated
// embeddings executor.
func (c *Client) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, &agenterrors.CapabilityUnsupportedError{Capability: string(llm.CapEmbed)}
}

func (c *Client) prepareRequest(prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) (*oai.ChatCompletionNewParams, error) {
	if model.ModelID == "" {
		return nil, errors.New("openai: model id is required")
	}
	messages, err := encodeMessages(prompt.Messages)
	if err != nil {
		return nil, err
	}
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model.ModelID),
		Messages: messages,
	}
	if maxTok := c.maxTok; maxTok > 0 {
		params.MaxCompletionTokens = oai.Int(int64(maxTok))
	}
	if model.HasCapability(llm.CapTemperature) {
		temp := prompt.Params.Temperature
		if temp <= 0 {
			temp = c.temp
		}
		if temp > 0 {
			params.Temperature = oai.Float(temp)
		}
	}
	if len(descriptors) > 0 {
		toolParams, err := encodeTools(descriptors)
		if err != nil {
			return nil, err
		}
		params.Tools = toolParams
	}
	if prompt.Params.ToolChoice.Mode != "" {
		if err := llm.RequireCapability(model, llm.CapToolChoice); err != nil {
			return nil, err
		}
		choice, err := encodeToolChoice(prompt.Params.ToolChoice)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = choice
	}
	return &params, nil
}

func encodeMessages(msgs []agent.Message) ([]oai.ChatCompletionMessageParamUnion, error) {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case agent.KindSystem:
			out = append(out, oai.SystemMessage(m.Text))
		case agent.KindUser:
			out = append(out, oai.UserMessage(m.Text))
		case agent.KindAssistant:
			out = append(out, oai.AssistantMessage(m.Text))
		case agent.KindToolCall:
			var args map[string]any
			if len(m.ArgumentsJSON) > 0 {
				if err := json.Unmarshal(m.ArgumentsJSON, &args); err != nil {
					return nil, fmt.Errorf("openai: tool_call %q arguments: %w", m.ToolName, err)
				}
			}
			argsJSON, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			out = append(out, oai.ChatCompletionMessageParamUnion{
				OfAssistant: &oai.ChatCompletionAssistantMessageParam{
					ToolCalls: []oai.ChatCompletionMessageToolCallParam{{
						ID: m.ToolCallID,
						Function: oai.ChatCompletionMessageToolCallFunctionParam{
							Name:      string(m.ToolName),
							Arguments: string(argsJSON),
						},
					}},
				},
			})
		case agent.KindToolResult:
			content, err := encodeToolResultContent(m.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, oai.ToolMessage(content, m.ToolCallID))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
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
			return "", fmt.Errorf("openai: tool result content: %w", err)
		}
		return string(data), nil
	}
}

func encodeTools(descriptors []tools.ToolDescriptor) ([]oai.ChatCompletionToolUnionParam, error) {
	out := make([]oai.ChatCompletionToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		properties := make(map[string]any, len(d.RequiredParams)+len(d.OptionalParams))
		required := make([]string, 0, len(d.RequiredParams))
		for _, p := range d.RequiredParams {
			properties[p.Name] = paramTypeSchema(p.Type, p.Description)
			required = append(required, p.Name)
		}
		for _, p := range d.OptionalParams {
			properties[p.Name] = paramTypeSchema(p.Type, p.Description)
		}
		params := shared.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			params["required"] = required
		}
		out = append(out, oai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        string(d.Name),
			Description: oai.String(d.Description),
			Parameters:  params,
		}))
	}
	return out, nil
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

func encodeToolChoice(choice agent.ToolChoice) (oai.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice.Mode {
	case "", agent.ToolChoiceAuto:
		return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oai.String("auto")}, nil
	case agent.ToolChoiceNone:
		return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oai.String("none")}, nil
	case agent.ToolChoiceRequired:
		return oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oai.String("required")}, nil
	case agent.ToolChoiceNamed:
		if choice.Name == "" {
			return oai.ChatCompletionToolChoiceOptionUnionParam{}, errors.New("openai: named tool choice requires a tool name")
		}
		return oai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &oai.ChatCompletionNamedToolChoiceParam{
				Function: oai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}, nil
	default:
		return oai.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func wrapCallError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorRateLimited, Cause: err}
		case apiErr.StatusCode >= 500:
			return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTransient5xx, Cause: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTimeout, Cause: err}
	}
	return &agenterrors.LLMPermanentError{Cause: err}
}

func translateResponse(resp *oai.ChatCompletion) ([]agent.Message, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: response had no choices")
	}
	return translateChoice(resp.Choices[0])
}

func translateChoice(choice oai.ChatCompletionChoice) ([]agent.Message, error) {
	var out []agent.Message
	msg := choice.Message
	usage := map[string]any{"finish_reason": string(choice.FinishReason)}
	if msg.Content != "" {
		out = append(out, agent.NewAssistantMessage(msg.Content, usage))
	}
	for _, call := range msg.ToolCalls {
		out = append(out, agent.NewToolCallMessage(call.ID, tools.Ident(call.Function.Name), json.RawMessage(call.Function.Arguments)))
	}
	if len(out) == 0 {
		return nil, errors.New("openai: response had no text or tool_call content")
	}
	return out, nil
}
