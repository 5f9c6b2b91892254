// Package bedrock implements an llm.Executor backed by the AWS Bedrock
// Converse API. It splits system vs. conversational messages, encodes tool
// descriptors into Bedrock's ToolConfiguration, and translates Converse
// responses (text + tool_use blocks) back into agent.Message.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/tools"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used by
// the adapter, satisfied by *bedrockruntime.Client so tests can substitute a
// fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures adapter-wide defaults applied when a Prompt's Params
// leave a value unset.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// Client implements llm.Executor on top of AWS Bedrock Converse.
type Client struct {
	runtime RuntimeClient
	maxTok  int
	temp    float32
}

// New builds a Bedrock-backed executor from the given runtime client and
// options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	return &Client{runtime: runtime, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

type requestParts struct {
	modelID    string
	messages   []brtypes.Message
	system     []brtypes.SystemContentBlock
	toolConfig *brtypes.ToolConfiguration
	sanToCanon map[string]string
}

// Execute issues a Converse request and translates the response into
// agent.Message values.
func (c *Client) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	if err := llm.RequireCapability(model, llm.CapCompletion); err != nil {
		return nil, err
	}
	parts, err := c.prepareRequest(prompt, model, descriptors)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	output, err := c.runtime.Converse(ctx, c.buildConverseInput(parts))
	if err != nil {
		return nil, wrapCallError(err)
	}
	out, err := translateResponse(output, parts.sanToCanon)
	if err != nil {
		return nil, err
	}
	if err := llm.EnforceToolChoice(prompt.Params.ToolChoice, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteStreaming invokes ConverseStream, emitting only the assistant's
// text deltas in arrival order.
func (c *Client) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	if err := llm.RequireCapability(model, llm.CapCompletion); err != nil {
		return nil, err
	}
	parts, err := c.prepareRequest(prompt, model, nil)
	if err != nil {
		return nil, &agenterrors.LLMPermanentError{Cause: err}
	}
	out, err := c.runtime.ConverseStream(ctx, c.buildConverseStreamInput(parts))
	if err != nil {
		return nil, wrapCallError(err)
	}
	eventStream := out.GetStream()
	if eventStream == nil {
		return nil, &agenterrors.LLMPermanentError{Cause: errors.New("bedrock: stream output missing event stream")}
	}

	values := make(chan string, 32)
	errs := make(chan error, 1)
	go func() {
		defer close(values)
		events := eventStream.Events()
		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				close(errs)
				return
			case event, ok := <-events:
				if !ok {
					if err := eventStream.Err(); err != nil {
						errs <- wrapCallError(err)
					}
					close(errs)
					return
				}
				delta, ok := event.(*brtypes.ConverseStreamOutputMemberContentBlockDelta)
				if !ok {
					continue
				}
				text, ok := delta.Value.Delta.(*brtypes.ContentBlockDeltaMemberText)
				if !ok || text.Value == "" {
					continue
				}
				select {
				case values <- text.Value:
				case <-ctx.Done():
					errs <- ctx.Err()
					close(errs)
					return
				}
			}
		}
	}()
	return stream.NewChannelSequence(values, errs, eventStream.Close), nil
}

// ExecuteMultipleChoices has no native Converse equivalent; it issues
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

// Moderate is unsupported: Bedrock's Converse API has no moderation
// endpoint.
func (c *Client) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, &agenterrors.CapabilityUnsupportedError{Capability: string(llm.CapModeration)}
}

// Embed is unsupported by the Converse API; use Bedrock's dedicated
// embeddings models via a separate executor.
func (c *Client) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, &agenterrors.CapabilityUnsupportedError{Capability: string(llm.CapEmbed)}
}

func (c *Client) prepareRequest(prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) (*requestParts, error) {
	if model.ModelID == "" {
		return nil, errors.New("bedrock: model id is required")
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(descriptors, prompt.Params.ToolChoice)
	if err != nil {
		return nil, err
	}
	messages, system, err := encodeMessages(prompt.Messages, canonToSan)
	if err != nil {
		return nil, err
	}
	return &requestParts{
		modelID:    model.ModelID,
		messages:   messages,
		system:     system,
		toolConfig: toolConfig,
		sanToCanon: sanToCanon,
	}, nil
}

func (c *Client) buildConverseInput(parts *requestParts) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := c.inferenceConfig(); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func (c *Client) buildConverseStreamInput(parts *requestParts) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := c.inferenceConfig(); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func (c *Client) inferenceConfig() *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if c.maxTok > 0 {
		cfg.MaxTokens = aws.Int32(int32(c.maxTok)) //nolint:gosec
	}
	if c.temp > 0 {
		cfg.Temperature = aws.Float32(c.temp)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []agent.Message, nameMap map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0)

	for _, m := range msgs {
		switch m.Kind {
		case agent.KindSystem:
			if m.Text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
			}
		case agent.KindUser:
			if m.Text == "" {
				continue
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
			})
		case agent.KindAssistant:
			if m.Text == "" {
				continue
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
			})
		case agent.KindToolCall:
			sanitized, ok := nameMap[string(m.ToolName)]
			if !ok {
				sanitized = sanitizeToolName(string(m.ToolName))
			}
			tb := brtypes.ToolUseBlock{Name: aws.String(sanitized), ToolUseId: aws.String(m.ToolCallID)}
			tb.Input = toDocument(m.ArgumentsJSON)
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolUse{Value: tb}},
			})
		case agent.KindToolResult:
			tr := brtypes.ToolResultBlock{ToolUseId: aws.String(m.ToolCallID)}
			if s, ok := m.Content.(string); ok {
				tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: s}}
			} else {
				doc, err := jsonDocument(m.Content)
				if err != nil {
					return nil, nil, err
				}
				tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberJson{Value: doc}}
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: tr}},
			})
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(descriptors []tools.ToolDescriptor, choice agent.ToolChoice) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(descriptors) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(descriptors))
	canonToSan := make(map[string]string, len(descriptors))
	sanToCanon := make(map[string]string, len(descriptors))

	for _, d := range descriptors {
		canonical := string(d.Name)
		sanitized := sanitizeToolName(canonical)
		if prev, ok := sanToCanon[sanitized]; ok && prev != canonical {
			return nil, nil, nil, fmt.Errorf("bedrock: tool name %q sanitizes to %q which collides with %q", canonical, sanitized, prev)
		}
		sanToCanon[sanitized] = canonical
		canonToSan[canonical] = sanitized

		schemaDoc := toDocument(toolInputSchemaJSON(d))
		spec := brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(d.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: schemaDoc},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}

	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	switch choice.Mode {
	case "", agent.ToolChoiceAuto, agent.ToolChoiceNone:
	case agent.ToolChoiceRequired:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	case agent.ToolChoiceNamed:
		sanitized, ok := canonToSan[choice.Name]
		if !ok {
			return nil, nil, nil, fmt.Errorf("bedrock: tool choice name %q does not match any tool", choice.Name)
		}
		cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(sanitized)}}
	default:
		return nil, nil, nil, fmt.Errorf("bedrock: unsupported tool choice mode %q", choice.Mode)
	}
	return cfg, canonToSan, sanToCanon, nil
}

func toolInputSchemaJSON(d tools.ToolDescriptor) []byte {
	properties := make(map[string]any, len(d.RequiredParams)+len(d.OptionalParams))
	required := make([]string, 0, len(d.RequiredParams))
	for _, p := range d.RequiredParams {
		properties[p.Name] = paramTypeSchema(p.Type, p.Description)
		required = append(required, p.Name)
	}
	for _, p := range d.OptionalParams {
		properties[p.Name] = paramTypeSchema(p.Type, p.Description)
	}
	m := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		m["required"] = required
	}
	data, _ := json.Marshal(m)
	return data
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

// sanitizeToolName maps a canonical tool identifier to the [a-zA-Z0-9_-]+,
// <=64-char constraint Bedrock imposes on tool names, truncating with a
// stable hash suffix when the mapped name would otherwise exceed the limit.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	const hashLen = 8
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_' || r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	prefixLen := maxLen - (1 + hashLen)
	if prefixLen < 1 {
		prefixLen = 1
	}
	return sanitized[:prefixLen] + "_" + suffix
}

func toDocument(raw []byte) document.Interface {
	if len(raw) == 0 {
		v := any(map[string]any{"type": "object"})
		return document.NewLazyDocument(&v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		v := any(map[string]any{"type": "object"})
		return document.NewLazyDocument(&v)
	}
	return document.NewLazyDocument(&decoded)
}

func jsonDocument(v any) (document.Interface, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bedrock: tool result content: %w", err)
	}
	return toDocument(data), nil
}

func wrapCallError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorRateLimited, Cause: err}
		case "ServiceUnavailableException", "InternalServerException":
			return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTransient5xx, Cause: err}
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorRateLimited, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTimeout, Cause: err}
	}
	return &agenterrors.LLMPermanentError{Cause: err}
}

func translateResponse(output *bedrockruntime.ConverseOutput, nameMap map[string]string) ([]agent.Message, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	var out []agent.Message
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrock: response has no message output")
	}
	usage := map[string]any{"stop_reason": string(output.StopReason)}
	for _, block := range msg.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value == "" {
				continue
			}
			out = append(out, agent.NewAssistantMessage(v.Value, usage))
		case *brtypes.ContentBlockMemberToolUse:
			name := ""
			if v.Value.Name != nil {
				name = normalizeToolName(*v.Value.Name)
				if canonical, ok := nameMap[name]; ok {
					name = canonical
				}
			}
			var id string
			if v.Value.ToolUseId != nil {
				id = *v.Value.ToolUseId
			}
			argsJSON := decodeDocument(v.Value.Input)
			out = append(out, agent.NewToolCallMessage(id, tools.Ident(name), argsJSON))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("bedrock: response had no text or tool_use content")
	}
	return out, nil
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func normalizeToolName(name string) string {
	return strings.TrimPrefix(name, "$FUNCTIONS.")
}
