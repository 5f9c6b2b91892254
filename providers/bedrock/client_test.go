package bedrock_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/providers/bedrock"
	"github.com/agentkit/agentrt/tools"
)

// fakeRuntimeClient scripts a single Converse response for tests;
// ConverseStream is not exercised here since it requires a live event stream.
type fakeRuntimeClient struct {
	response *bedrockruntime.ConverseOutput
	err      error
	captured *bedrockruntime.ConverseInput
}

func (f *fakeRuntimeClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.captured = params
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeRuntimeClient) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func textModel() llm.LLModel {
	return llm.NewLLModel("bedrock", "anthropic.claude-sonnet-4-5-v1:0", llm.CapCompletion, llm.CapTools, llm.CapToolChoice, llm.CapTemperature)
}

func TestClient_ExecuteTranslatesTextResponse(t *testing.T) {
	fake := &fakeRuntimeClient{response: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "hello there"}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	c, err := bedrock.New(fake, bedrock.Options{MaxTokens: 1024})
	require.NoError(t, err)

	prompt := agent.NewPrompt().Append(agent.NewUserMessage("hi"))
	out, err := c.Execute(context.Background(), prompt, textModel(), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, agent.KindAssistant, out[0].Kind)
	require.Equal(t, "hello there", out[0].Text)
	require.NotNil(t, fake.captured)
	require.Equal(t, "anthropic.claude-sonnet-4-5-v1:0", *fake.captured.ModelId)
}

func TestClient_ExecuteTranslatesToolUse(t *testing.T) {
	name := "get_weather"
	id := "call_1"
	fake := &fakeRuntimeClient{response: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{Name: &name, ToolUseId: &id},
				}},
			},
		},
	}}
	c, err := bedrock.New(fake, bedrock.Options{MaxTokens: 1024})
	require.NoError(t, err)

	descriptors := []tools.ToolDescriptor{{
		Name:        "get_weather",
		Description: "fetch weather",
		RequiredParams: []tools.ParamDescriptor{
			{Name: "city", Type: tools.String()},
		},
	}}
	prompt := agent.NewPrompt().Append(agent.NewUserMessage("weather in nyc?"))
	out, err := c.Execute(context.Background(), prompt, textModel(), descriptors)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, agent.KindToolCall, out[0].Kind)
	require.Equal(t, tools.Ident("get_weather"), out[0].ToolName)
	require.Equal(t, "call_1", out[0].ToolCallID)
}

func TestClient_ExecuteSignalsToolChoiceUnsatisfied(t *testing.T) {
	fake := &fakeRuntimeClient{response: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "I won't call a tool"}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	c, err := bedrock.New(fake, bedrock.Options{MaxTokens: 1024})
	require.NoError(t, err)

	descriptors := []tools.ToolDescriptor{{Name: "get_weather"}}
	prompt := agent.NewPrompt().
		Append(agent.NewUserMessage("weather in nyc?")).
		WithParams(agent.Params{NumberOfChoices: 1, ToolChoice: agent.ToolChoice{Mode: agent.ToolChoiceRequired}})
	_, err = c.Execute(context.Background(), prompt, textModel(), descriptors)
	require.Error(t, err)
	var toolChoiceErr llm.ToolChoiceUnsatisfiedError
	require.ErrorAs(t, err, &toolChoiceErr)
}

func TestClient_ExecuteRequiresCompletionCapability(t *testing.T) {
	fake := &fakeRuntimeClient{}
	c, err := bedrock.New(fake, bedrock.Options{MaxTokens: 1024})
	require.NoError(t, err)

	prompt := agent.NewPrompt().Append(agent.NewUserMessage("hi"))
	_, err = c.Execute(context.Background(), prompt, llm.LLModel{ProviderID: "bedrock", ModelID: "x"}, nil)
	var capErr *agenterrors.CapabilityUnsupportedError
	require.ErrorAs(t, err, &capErr)
}

func TestClient_ModerateAndEmbedAreUnsupported(t *testing.T) {
	fake := &fakeRuntimeClient{}
	c, err := bedrock.New(fake, bedrock.Options{MaxTokens: 1024})
	require.NoError(t, err)

	_, err = c.Moderate(context.Background(), agent.NewPrompt(), textModel())
	var capErr *agenterrors.CapabilityUnsupportedError
	require.ErrorAs(t, err, &capErr)

	_, err = c.Embed(context.Background(), "text", textModel())
	require.ErrorAs(t, err, &capErr)
}

func TestNew_RejectsNilRuntime(t *testing.T) {
	_, err := bedrock.New(nil, bedrock.Options{})
	require.Error(t, err)
}
