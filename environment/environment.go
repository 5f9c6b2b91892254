// Package environment implements the Agent Environment: the sole mediator
// nodes and tools use to call the LLM, mutate or read prompt history,
// dispatch tool calls, and probe cancellation.
package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/interrupt"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/toolerrors"
	"github.com/agentkit/agentrt/tools"
)

// Environment is the only way nodes and tools interact with the runtime.
// Tools MUST NOT hold references to an Environment beyond the lifetime of a
// single invocation.
type Environment interface {
	// LLMExecute calls the executor synchronously, returning the messages it
	// produces. It does not itself mutate history; callers append the
	// returned messages if they want them recorded.
	LLMExecute(ctx context.Context, prompt agent.Prompt, descriptors []tools.ToolDescriptor) ([]agent.Message, error)

	// LLMStream calls the executor's streaming path.
	LLMStream(ctx context.Context, prompt agent.Prompt) (stream.LazySequence[string], error)

	// Append mutates the Run's prompt; invariant: the new message's index
	// equals the previous maximum + 1.
	Append(message agent.Message)

	// ReplaceHistory substitutes the entire prompt, used by compress_history
	// to swap a summarized prefix in for the messages it replaces.
	ReplaceHistory(prompt agent.Prompt)

	// History returns a read-only snapshot of the Run's prompt.
	History() []agent.Message

	// Prompt returns a read-only snapshot of the full Run prompt, including
	// Params.
	Prompt() agent.Prompt

	// CallTool dispatches name through the Tool Registry and the Feature
	// Pipeline's tool hooks, the same path used internally by
	// dispatch_tool_calls. This is how one tool may safely call another.
	CallTool(ctx context.Context, name tools.Ident, args json.RawMessage) (json.RawMessage, error)

	// CancellationRequested is a cooperative cancellation probe;
	// long-running tools MUST poll it.
	CancellationRequested() bool

	// RequestID returns the correlation id for the active call.
	RequestID() string

	// DescribeTools returns the registry's descriptor snapshot, taken once
	// at Run start, used to advertise tools to the LLM executor.
	DescribeTools() []tools.ToolDescriptor

	// ResolveTool returns the registered tool's descriptor for name, used by
	// dispatch_tool_calls to check ParallelSafe before fanning out.
	ResolveTool(name tools.Ident) (tools.ToolDescriptor, bool)

	// AwaitController returns the Run's human-in-the-loop pause/resume
	// controller, or nil if the Runner was not configured with one. A node
	// that needs to suspend for external input (strategy.AwaitResumeNode,
	// or a custom node) calls WaitResume/WaitProvideClarification/
	// WaitProvideToolResults on it directly; the Environment itself does not
	// interpret the controller's state.
	AwaitController() *interrupt.Controller
}

// AgentEnvironment is the concrete Environment implementation bound to a
// single Run. It owns the mutable prompt for the duration of that Run; the
// interpreter task accesses it without locks, but CallTool may run
// concurrently during parallel_safe tool dispatch, so prompt access and
// append are themselves internally synchronized.
type AgentEnvironment struct {
	mu       sync.Mutex
	prompt   agent.Prompt
	model    llm.LLModel
	executor llm.Executor
	registry *tools.Registry
	pipeline *hooks.Pipeline
	provider telemetry.Provider
	runID    string
	cancel   atomic.Bool
	await    *interrupt.Controller
}

// New constructs an AgentEnvironment for a single Run. The Run has no
// await controller until SetAwaitController is called; AwaitController
// returns nil until then, and nodes that need to suspend for external
// input must treat that as "pause/resume is not configured for this Run".
func New(runID string, initial agent.Prompt, model llm.LLModel, executor llm.Executor, registry *tools.Registry, pipeline *hooks.Pipeline, provider telemetry.Provider) *AgentEnvironment {
	// Snapshot the registry so the Run keeps the tool set it started with,
	// even if the caller registers more tools while the Run is in flight.
	if registry != nil {
		if snapshot, err := registry.Merge(tools.NewRegistry()); err == nil {
			registry = snapshot
		}
	}
	return &AgentEnvironment{
		prompt:   initial,
		model:    model,
		executor: executor,
		registry: registry,
		pipeline: pipeline,
		provider: provider,
		runID:    runID,
	}
}

// SetAwaitController attaches the Run's pause/resume controller. Called by
// the Runner after constructing the Environment, before the interpreter
// starts, when the Runner itself was configured with one.
func (e *AgentEnvironment) SetAwaitController(c *interrupt.Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.await = c
}

// AwaitController returns the Run's pause/resume controller, or nil if none
// was configured.
func (e *AgentEnvironment) AwaitController() *interrupt.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.await
}

// LLMExecute fires on_before_llm/on_after_llm around the executor call.
func (e *AgentEnvironment) LLMExecute(ctx context.Context, prompt agent.Prompt, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	if _, err := e.pipeline.Fire(ctx, hooks.OnBeforeLLM, hooks.BeforeLLMEvent{
		Prompt: prompt, Tools: descriptors, Model: e.model, RunID: e.runID,
	}); err != nil {
		return nil, err
	}
	msgs, err := e.executor.Execute(ctx, prompt, e.model, descriptors)
	if err != nil {
		return nil, err
	}
	if _, err := e.pipeline.Fire(ctx, hooks.OnAfterLLM, hooks.AfterLLMEvent{
		Prompt: prompt, Tools: descriptors, Model: e.model, Responses: msgs, RunID: e.runID,
	}); err != nil {
		return nil, err
	}
	return msgs, nil
}

// LLMStream delegates to the executor's streaming path.
func (e *AgentEnvironment) LLMStream(ctx context.Context, prompt agent.Prompt) (stream.LazySequence[string], error) {
	if _, err := e.pipeline.Fire(ctx, hooks.OnBeforeLLM, hooks.BeforeLLMEvent{
		Prompt: prompt, Model: e.model, RunID: e.runID,
	}); err != nil {
		return nil, err
	}
	return e.executor.ExecuteStreaming(ctx, prompt, e.model)
}

// Append records message in the prompt, assigning the next monotonic index.
func (e *AgentEnvironment) Append(message agent.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompt = e.prompt.Append(message)
}

// ReplaceHistory substitutes the entire prompt.
func (e *AgentEnvironment) ReplaceHistory(prompt agent.Prompt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompt = prompt
}

// History returns a read-only snapshot of the prompt's messages.
func (e *AgentEnvironment) History() []agent.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prompt.History()
}

// Prompt returns a read-only snapshot of the full prompt.
func (e *AgentEnvironment) Prompt() agent.Prompt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return agent.Prompt{Messages: e.prompt.History(), Params: e.prompt.Params}
}

// CallTool resolves name via the registry, validates args, executes it, and
// fires the tool lifecycle hooks around the call.
func (e *AgentEnvironment) CallTool(ctx context.Context, name tools.Ident, args json.RawMessage) (json.RawMessage, error) {
	t, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("environment: unknown tool %q", name)
	}

	if _, err := e.pipeline.Fire(ctx, hooks.OnToolCall, hooks.ToolCallEvent{Tool: name, Args: args, RunID: e.runID}); err != nil {
		return nil, err
	}

	if issues, err := e.registry.ValidateArguments(name, args); err != nil {
		return nil, err
	} else if len(issues) > 0 {
		msg := fmt.Sprintf("tool %q arguments failed validation (%d issues)", name, len(issues))
		if _, fireErr := e.pipeline.Fire(ctx, hooks.OnToolValidationError, hooks.ToolValidationErrorEvent{
			Tool: name, Args: args, Message: msg, RunID: e.runID,
		}); fireErr != nil {
			return nil, fireErr
		}
		return nil, &agenterrors.ToolValidationError{Tool: name, Issues: issues}
	}

	result, err := t.Run(ctx, e, args)
	if err != nil {
		toolErr := toolerrors.FromError(err)
		if _, fireErr := e.pipeline.Fire(ctx, hooks.OnToolFailure, hooks.ToolFailureEvent{
			Tool: name, Args: args, Err: toolErr, RunID: e.runID,
		}); fireErr != nil {
			return nil, fireErr
		}
		return nil, &agenterrors.ToolExecutionError{Tool: name, Cause: toolErr}
	}

	if _, err := e.pipeline.Fire(ctx, hooks.OnToolResult, hooks.ToolResultEvent{
		Tool: name, Args: args, Result: result, RunID: e.runID,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// CancellationRequested reports whether Cancel has been called.
func (e *AgentEnvironment) CancellationRequested() bool {
	return e.cancel.Load()
}

// Cancel sets the cooperative cancellation flag. Called by the Runner in
// response to Runner.Cancel().
func (e *AgentEnvironment) Cancel() {
	e.cancel.Store(true)
}

// RequestID returns the Run's correlation id.
func (e *AgentEnvironment) RequestID() string {
	return e.runID
}

// DescribeTools returns the registry's descriptor snapshot.
func (e *AgentEnvironment) DescribeTools() []tools.ToolDescriptor {
	return e.registry.DescribeAll()
}

// ResolveTool returns the registered tool's descriptor for name.
func (e *AgentEnvironment) ResolveTool(name tools.Ident) (tools.ToolDescriptor, bool) {
	t, ok := e.registry.Get(name)
	if !ok {
		return tools.ToolDescriptor{}, false
	}
	return t.Descriptor, true
}
