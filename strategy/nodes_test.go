package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/tools"
	"github.com/stretchr/testify/require"
)

type fixedStreamExecutor struct {
	fragments []string
}

func (e *fixedStreamExecutor) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	return nil, errors.New("not implemented")
}
func (e *fixedStreamExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	values := make(chan string, len(e.fragments))
	for _, f := range e.fragments {
		values <- f
	}
	close(values)
	errs := make(chan error)
	close(errs)
	return stream.NewChannelSequence(values, errs, func() error { return nil }), nil
}
func (e *fixedStreamExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	return nil, errors.New("not implemented")
}
func (e *fixedStreamExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, errors.New("not implemented")
}
func (e *fixedStreamExecutor) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func TestCallLLMStreamingNode_ReassemblesFragmentsIntoOneMessage(t *testing.T) {
	exec := &fixedStreamExecutor{fragments: []string{"the ", "quick ", "fox"}}
	env := newEnv(t, exec, nil, nil)

	node := NewCallLLMStreamingNode("stream")
	out, err := node.Run(context.Background(), env, "go")
	require.NoError(t, err)
	msg, ok := out.(agent.Message)
	require.True(t, ok)
	require.Equal(t, "the quick fox", msg.Text)

	history := env.History()
	require.Equal(t, agent.KindAssistant, history[len(history)-1].Kind)
}

func TestDispatchToolCallsNode_PreservesCallOrderRegardlessOfCompletionOrder(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Tool{
		Descriptor: tools.ToolDescriptor{Name: "slow", ParallelSafe: true},
		Run: func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(map[string]string{"who": "slow"})
		},
	}))
	require.NoError(t, reg.Register(tools.Tool{
		Descriptor: tools.ToolDescriptor{Name: "fast", ParallelSafe: true},
		Run: func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(map[string]string{"who": "fast"})
		},
	}))
	env := newEnv(t, &scriptedExecutor{}, reg, nil)

	calls := []agent.Message{
		agent.NewToolCallMessage("call-1", "slow", json.RawMessage(`{}`)),
		agent.NewToolCallMessage("call-2", "fast", json.RawMessage(`{}`)),
	}
	node := NewDispatchToolCallsNode("dispatch")
	out, err := node.Run(context.Background(), env, calls)
	require.NoError(t, err)
	results, ok := out.([]agent.Message)
	require.True(t, ok)
	require.Len(t, results, 2)
	require.Equal(t, "call-1", results[0].ToolCallID)
	require.Equal(t, "call-2", results[1].ToolCallID)
}

func TestDispatchToolCallsNode_PropagatesToolError(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Tool{
		Descriptor: tools.ToolDescriptor{Name: "fails"},
		Run: func(ctx context.Context, env any, args json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("boom")
		},
	}))
	env := newEnv(t, &scriptedExecutor{}, reg, nil)

	calls := []agent.Message{agent.NewToolCallMessage("call-1", "fails", json.RawMessage(`{}`))}
	node := NewDispatchToolCallsNode("dispatch")
	_, err := node.Run(context.Background(), env, calls)
	require.Error(t, err)
}

func TestCompressHistoryNode_SummarizesWhenBudgetExceeded(t *testing.T) {
	env := newEnv(t, &scriptedExecutor{}, nil, nil)
	for i := 0; i < 10; i++ {
		env.Append(agent.NewUserMessage("this is a moderately long filler message to push past budget"))
	}

	var summarizeCalled bool
	node := NewCompressHistoryNode("compress", 10, 2, func(ctx context.Context, messages []agent.Message) (string, error) {
		summarizeCalled = true
		return "summary of earlier turns", nil
	})

	_, err := node.Run(context.Background(), env, nil)
	require.NoError(t, err)
	require.True(t, summarizeCalled)

	history := env.History()
	require.Equal(t, agent.KindSystem, history[0].Kind)
	require.Equal(t, "summary of earlier turns", history[0].Text)
	require.Len(t, history, 3) // summary + 2 kept recent
}

func TestCompressHistoryNode_NoopUnderBudget(t *testing.T) {
	env := newEnv(t, &scriptedExecutor{}, nil, nil)
	env.Append(agent.NewUserMessage("short"))

	node := NewCompressHistoryNode("compress", 1_000_000, 2, func(ctx context.Context, messages []agent.Message) (string, error) {
		t.Fatal("summarize should not be called under budget")
		return "", nil
	})

	_, err := node.Run(context.Background(), env, nil)
	require.NoError(t, err)
	require.Len(t, env.History(), 1)
}

func TestSubgraphNode_DelegatesToNestedSubgraphViaInterpreter(t *testing.T) {
	exec := &scriptedExecutor{responses: [][]agent.Message{
		{agent.NewAssistantMessage("nested reply", nil)},
	}}
	env := newEnv(t, exec, nil, nil)

	nested, err := NewSubgraphBuilder("nested").
		AddNode(NewCallLLMNode("call_llm")).
		AddNode(NewFinishNode("finish")).
		AddEdge(Edge{From: "call_llm", To: "finish"}).
		Start("call_llm").
		Finish("finish").
		Build()
	require.NoError(t, err)

	in := NewInterpreter(hooks.NewPipeline())
	outer, err := NewSubgraphBuilder("outer").
		AddNode(&SubgraphNode{NodeName: "invoke_nested", Target: "nested", Interpreter: in}).
		AddNode(NewFinishNode("finish")).
		AddEdge(Edge{From: "invoke_nested", To: "finish"}).
		Start("invoke_nested").
		Finish("finish").
		Build()
	require.NoError(t, err)

	s, err := NewStrategyBuilder("s").AddSubgraph(outer).AddSubgraph(nested).Entry("outer").Build()
	require.NoError(t, err)

	out, err := in.Run(context.Background(), env, s, "hi")
	require.NoError(t, err)
	msgs, ok := out.([]agent.Message)
	require.True(t, ok)
	require.Equal(t, "nested reply", msgs[0].Text)
}
