package environment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/interrupt"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/tools"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	response []agent.Message
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	return f.response, f.err
}
func (f *fakeExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	return nil, errors.New("not implemented")
}
func (f *fakeExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, errors.New("not implemented")
}
func (f *fakeExecutor) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func newTestRegistry(t *testing.T) *tools.Registry {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Tool{
		Descriptor: tools.ToolDescriptor{
			Name: "double",
			RequiredParams: []tools.ParamDescriptor{
				{Name: "n", Type: tools.Integer()},
			},
		},
		Run: func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error) {
			var in struct{ N int }
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]int{"result": in.N * 2})
		},
	}))
	require.NoError(t, reg.Register(tools.Tool{
		Descriptor: tools.ToolDescriptor{
			Name: "fails",
		},
		Run: func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("boom")
		},
	}))
	return reg
}

func TestAgentEnvironment_AppendAssignsMonotonicIndex(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())

	env.Append(agent.NewUserMessage("hi"))
	env.Append(agent.NewAssistantMessage("hello", nil))

	history := env.History()
	require.Len(t, history, 2)
	require.Equal(t, 0, history[0].Index)
	require.Equal(t, 1, history[1].Index)
}

func TestAgentEnvironment_CallToolSucceeds(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())

	result, err := env.CallTool(context.Background(), "double", []byte(`{"n":21}`))
	require.NoError(t, err)
	var out map[string]int
	require.NoError(t, json.Unmarshal(result, &out))
	require.Equal(t, 42, out["result"])
}

func TestAgentEnvironment_CallToolValidationFailure(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())

	_, err := env.CallTool(context.Background(), "double", []byte(`{}`))
	require.Error(t, err)
	var valErr *agenterrors.ToolValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestAgentEnvironment_CallToolExecutionFailure(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())

	_, err := env.CallTool(context.Background(), "fails", []byte(`{}`))
	require.Error(t, err)
	var execErr *agenterrors.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestAgentEnvironment_CancellationProbe(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())

	require.False(t, env.CancellationRequested())
	env.Cancel()
	require.True(t, env.CancellationRequested())
}

func TestAgentEnvironment_LLMExecuteFiresHooksInOrder(t *testing.T) {
	pipeline := hooks.NewPipeline()
	var order []string
	pipeline.On(hooks.OnBeforeLLM, "obs", func(ctx context.Context, payload any) (hooks.Outcome, error) {
		order = append(order, "before")
		return hooks.Continue(), nil
	})
	pipeline.On(hooks.OnAfterLLM, "obs", func(ctx context.Context, payload any) (hooks.Outcome, error) {
		order = append(order, "after")
		return hooks.Continue(), nil
	})
	exec := &fakeExecutor{response: []agent.Message{agent.NewAssistantMessage("ok", nil)}}
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, exec, newTestRegistry(t), pipeline, telemetry.NewNoopProvider())

	msgs, err := env.LLMExecute(context.Background(), agent.NewPrompt(), nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, []string{"before", "after"}, order)
}

func TestAgentEnvironment_AwaitControllerDefaultsToNil(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())
	require.Nil(t, env.AwaitController())
}

func TestAgentEnvironment_SetAwaitControllerIsObservable(t *testing.T) {
	env := New("run-1", agent.NewPrompt(), llm.LLModel{}, &fakeExecutor{}, newTestRegistry(t), hooks.NewPipeline(), telemetry.NewNoopProvider())
	c := interrupt.NewController()
	env.SetAwaitController(c)
	require.Same(t, c, env.AwaitController())
}
