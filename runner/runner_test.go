package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/checkpoint"
	"github.com/agentkit/agentrt/environment"
	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/interrupt"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/run"
	"github.com/agentkit/agentrt/runner"
	"github.com/agentkit/agentrt/session"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/strategy"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/tools"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor returns one prerecorded response per call, in order.
type scriptedExecutor struct {
	responses [][]agent.Message
	call      int
}

func (e *scriptedExecutor) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	if e.call >= len(e.responses) {
		return nil, errors.New("scriptedExecutor: no more scripted responses")
	}
	out := e.responses[e.call]
	e.call++
	return out, nil
}
func (e *scriptedExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	return nil, errors.New("not implemented")
}
func (e *scriptedExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	return nil, errors.New("not implemented")
}
func (e *scriptedExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, errors.New("not implemented")
}
func (e *scriptedExecutor) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, errors.New("not implemented")
}

// blockingExecutor signals entered once Execute is called, then blocks until
// proceed is closed, letting a test deterministically observe a Run while it
// is in flight without sleeping.
type blockingExecutor struct {
	entered chan struct{}
	proceed chan struct{}
}

func (e *blockingExecutor) Execute(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	close(e.entered)
	<-e.proceed
	return []agent.Message{agent.NewAssistantMessage("ok", nil)}, nil
}
func (e *blockingExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (stream.LazySequence[string], error) {
	return nil, errors.New("not implemented")
}
func (e *blockingExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model llm.LLModel, descriptors []tools.ToolDescriptor) ([]llm.Choice, error) {
	return nil, errors.New("not implemented")
}
func (e *blockingExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model llm.LLModel) (llm.ModerationResult, error) {
	return llm.ModerationResult{}, errors.New("not implemented")
}
func (e *blockingExecutor) Embed(ctx context.Context, text string, model llm.LLModel) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func echoStrategy(t *testing.T, name string) *strategy.Strategy {
	t.Helper()
	sg, err := strategy.NewSubgraphBuilder("main").
		AddNode(strategy.NewCallLLMNode("call_llm")).
		AddNode(strategy.NewFinishNode("finish")).
		AddEdge(strategy.Edge{From: "call_llm", To: "finish"}).
		Start("call_llm").
		Finish("finish").
		Build()
	require.NoError(t, err)
	s, err := strategy.NewStrategyBuilder(name).AddSubgraph(sg).Entry("main").Build()
	require.NoError(t, err)
	return s
}

// questionAnswerStrategy models call_llm_1 -> extract_text -> call_llm_2 ->
// finish, where extract_text pulls the prior assistant turn's text out of
// the []agent.Message call_llm_1 produced so call_llm_2 receives a plain
// string, keeping the checkpoint's current_input JSON-round-trippable.
func questionAnswerStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()
	extractText := strategy.NodeFunc{NodeName: "extract_text", Fn: func(ctx context.Context, env environment.Environment, input any) (any, error) {
		msgs, ok := input.([]agent.Message)
		if !ok || len(msgs) == 0 {
			return "", nil
		}
		return msgs[len(msgs)-1].Text, nil
	}}
	sg, err := strategy.NewSubgraphBuilder("main").
		AddNode(strategy.NewCallLLMNode("call_llm_1")).
		AddNode(extractText).
		AddNode(strategy.NewCallLLMNode("call_llm_2")).
		AddNode(strategy.NewFinishNode("finish")).
		AddEdge(strategy.Edge{From: "call_llm_1", To: "extract_text"}).
		AddEdge(strategy.Edge{From: "extract_text", To: "call_llm_2"}).
		AddEdge(strategy.Edge{From: "call_llm_2", To: "finish"}).
		Start("call_llm_1").
		Finish("finish").
		Build()
	require.NoError(t, err)
	s, err := strategy.NewStrategyBuilder("qa").AddSubgraph(sg).Entry("main").Build()
	require.NoError(t, err)
	return s
}

func textsOf(messages []agent.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = string(m.Kind) + ":" + m.Text
	}
	return out
}

func TestRunner_RunSucceedsAndRecordsHistory(t *testing.T) {
	exec := &scriptedExecutor{responses: [][]agent.Message{{agent.NewAssistantMessage("hi there", nil)}}}
	r := runner.New("agent-1", echoStrategy(t, "echo"), tools.NewRegistry(), exec, hooks.NewPipeline(), telemetry.NewNoopProvider())

	res, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.False(t, res.Cancelled)
	msgs, ok := res.Output.([]agent.Message)
	require.True(t, ok)
	require.Equal(t, "hi there", msgs[0].Text)

	require.Equal(t, []string{"user:hello", "assistant:hi there"}, textsOf(r.History()))
}

func TestRunner_ConcurrentRunRejectedWithErrRunnerBusy(t *testing.T) {
	exec := &blockingExecutor{entered: make(chan struct{}), proceed: make(chan struct{})}
	r := runner.New("agent-1", echoStrategy(t, "echo"), tools.NewRegistry(), exec, hooks.NewPipeline(), telemetry.NewNoopProvider())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), "first")
	}()

	<-exec.entered
	_, err := r.Run(context.Background(), "second")
	require.ErrorIs(t, err, runner.ErrRunnerBusy)

	close(exec.proceed)
	<-done
}

func TestRunner_CancelStopsRunBeforeNextNode(t *testing.T) {
	exec := &blockingExecutor{entered: make(chan struct{}), proceed: make(chan struct{})}
	r := runner.New("agent-1", echoStrategy(t, "echo"), tools.NewRegistry(), exec, hooks.NewPipeline(), telemetry.NewNoopProvider())

	var res runner.Result
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = r.Run(context.Background(), "hello")
	}()

	<-exec.entered
	r.Cancel()
	close(exec.proceed)
	<-done

	require.NoError(t, runErr)
	require.True(t, res.Cancelled)
}

// TestRunner_CheckpointRestoreReproducesUninterruptedHistory is the
// checkpoint round-trip scenario: running two node transitions, checkpointing,
// restoring onto a fresh Runner, and driving to completion must reproduce
// exactly the message history an uninterrupted run would have produced.
func TestRunner_CheckpointRestoreReproducesUninterruptedHistory(t *testing.T) {
	s := questionAnswerStrategy(t)
	thinking := agent.NewAssistantMessage("let me think", nil)
	answer := agent.NewAssistantMessage("the answer is 4", nil)

	// The uninterrupted baseline: the same strategy driven start to finish
	// against its own environment, with no checkpoint involved.
	baselinePipeline := hooks.NewPipeline()
	baselineEnv := environment.New("run-baseline", agent.NewPrompt(), llm.LLModel{}, &scriptedExecutor{
		responses: [][]agent.Message{{thinking}, {answer}},
	}, tools.NewRegistry(), baselinePipeline, telemetry.NewNoopProvider())
	_, err := strategy.NewInterpreter(baselinePipeline).Run(context.Background(), baselineEnv, s, "what is 2+2?")
	require.NoError(t, err)
	baselineHistory := textsOf(baselineEnv.History())

	// The interrupted run: capped at two iterations so it fails with
	// IterationLimitExceededError immediately before call_llm_2 would run,
	// with a checkpoint taken from inside the on_before_node hook for that
	// node, which fires before the iteration bound is checked.
	pipelineA := hooks.NewPipeline()
	execA := &scriptedExecutor{responses: [][]agent.Message{{thinking}, {answer}}}
	runnerA := runner.New("agent-1", s, tools.NewRegistry(), execA, pipelineA, telemetry.NewNoopProvider())
	runnerA.MaxIterations = 2

	var captured struct {
		cp  checkpoint.Checkpoint
		err error
	}
	pipelineA.On(hooks.OnBeforeNode, "test.capture-checkpoint", func(ctx context.Context, payload any) (hooks.Outcome, error) {
		evt, ok := payload.(hooks.BeforeNodeEvent)
		if ok && evt.Node == "call_llm_2" {
			cp, err := runnerA.Checkpoint()
			captured.cp, captured.err = cp, err
		}
		return hooks.Continue(), nil
	})

	_, err = runnerA.Run(context.Background(), "what is 2+2?")
	require.Error(t, err)
	var limitErr *agenterrors.IterationLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	require.NoError(t, captured.err)
	require.Equal(t, "main", captured.cp.CurrentSubgraph)
	require.Equal(t, "call_llm_2", captured.cp.CurrentNode)

	// Restore onto a fresh Runner and drive to completion.
	pipelineB := hooks.NewPipeline()
	execB := &scriptedExecutor{responses: [][]agent.Message{{answer}}}
	runnerB := runner.Restore(captured.cp, s, tools.NewRegistry(), execB, pipelineB, telemetry.NewNoopProvider())

	_, err = runnerB.RunFromCheckpoint(context.Background(), captured.cp)
	require.NoError(t, err)

	require.Equal(t, baselineHistory, textsOf(runnerB.History()))
}

func TestRunner_NoSessionsConfiguredIsNoOp(t *testing.T) {
	exec := &scriptedExecutor{responses: [][]agent.Message{{agent.NewAssistantMessage("hi there", nil)}}}
	r := runner.New("agent-1", echoStrategy(t, "echo"), tools.NewRegistry(), exec, hooks.NewPipeline(), telemetry.NewNoopProvider())

	_, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)
}

func TestRunner_RecordsRunLifecycleInSessions(t *testing.T) {
	exec := &scriptedExecutor{responses: [][]agent.Message{{agent.NewAssistantMessage("hi there", nil)}}}
	r := runner.New("agent-1", echoStrategy(t, "echo"), tools.NewRegistry(), exec, hooks.NewPipeline(), telemetry.NewNoopProvider())
	store := session.NewMemoryStore()
	r.Sessions = store
	r.SessionID = "session-1"
	r.TurnID = "turn-1"

	_, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)

	recs, err := store.ListRuns(context.Background(), "session-1", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, run.StatusCompleted, recs[0].Status)
	require.Equal(t, "agent-1", recs[0].AgentID)
	require.Equal(t, "turn-1", recs[0].TurnID)
}

func TestRunner_RecordsFailedRunInSessions(t *testing.T) {
	exec := &scriptedExecutor{}
	r := runner.New("agent-1", echoStrategy(t, "echo"), tools.NewRegistry(), exec, hooks.NewPipeline(), telemetry.NewNoopProvider())
	store := session.NewMemoryStore()
	r.Sessions = store
	r.SessionID = "session-1"

	_, err := r.Run(context.Background(), "hello")
	require.Error(t, err)

	recs, err := store.ListRuns(context.Background(), "session-1", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, run.StatusFailed, recs[0].Status)
}

func TestRunner_AwaitControllerAttachedToEnvironmentUnblocksAwaitResumeNode(t *testing.T) {
	sg, err := strategy.NewSubgraphBuilder("main").
		AddNode(strategy.NewAwaitResumeNode("await")).
		AddNode(strategy.NewFinishNode("finish")).
		AddEdge(strategy.Edge{From: "await", To: "finish"}).
		Start("await").
		Finish("finish").
		Build()
	require.NoError(t, err)
	s, err := strategy.NewStrategyBuilder("awaiting").AddSubgraph(sg).Entry("main").Build()
	require.NoError(t, err)

	controller := interrupt.NewController()
	r := runner.New("agent-1", s, tools.NewRegistry(), &scriptedExecutor{}, hooks.NewPipeline(), telemetry.NewNoopProvider())
	r.AwaitController = controller

	go func() {
		controller.DeliverResume(interrupt.ResumeRequest{
			Messages: []agent.Message{agent.NewUserMessage("resumed")},
		})
	}()

	res, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)
	msgs, ok := res.Output.([]agent.Message)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	require.Equal(t, "resumed", msgs[0].Text)
}

