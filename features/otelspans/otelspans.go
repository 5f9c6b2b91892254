// Package otelspans installs a tracing feature that maps the lifecycle hook
// surface onto a four-level span hierarchy: one "agent" span per Run,
// wrapping one "run" span, wrapping one span per node, each node wrapping
// its llm and tool spans. AgentStartEvent/AgentFinishEvent in this codebase
// already fire exactly once per Run (see hooks.AgentStartEvent's doc
// comment), so the "agent" and "run" spans share a lifetime; they are kept
// as distinct spans purely to preserve the named hierarchy a trace viewer
// expects.
//
// Because the Feature Pipeline does not thread a modified context.Context
// back out of Fire (each hook in a Run is invoked with the same base
// context), this feature keeps its own per-Run span contexts and parents
// child spans off those rather than off the hook's incoming context.
package otelspans

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/telemetry"
)

const featureKey = "otelspans"

// Feature installs the Agent -> Run -> Node -> {LLM, Tool} span hierarchy
// on a Pipeline.
type Feature struct {
	tracer telemetry.Tracer

	mu   sync.Mutex
	runs map[string]*runSpans
}

// New constructs the span-hierarchy feature against tracer.
func New(tracer telemetry.Tracer) *Feature {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Feature{tracer: tracer, runs: make(map[string]*runSpans)}
}

// Key identifies this feature's per-Run state scope.
func (f *Feature) Key() string { return featureKey }

type runSpans struct {
	mu sync.Mutex

	agentCtx  context.Context
	agentSpan telemetry.Span
	runCtx    context.Context
	runSpan   telemetry.Span

	nodeCtx   context.Context
	nodeSpan  telemetry.Span
	nodeStack []levelFrame

	llmStack  []levelFrame
	toolStack map[string][]levelFrame
}

type levelFrame struct {
	ctx  context.Context
	span telemetry.Span
}

func (f *Feature) runState(runID string) *runSpans {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs, ok := f.runs[runID]
	if !ok {
		rs = &runSpans{toolStack: make(map[string][]levelFrame)}
		f.runs[runID] = rs
	}
	return rs
}

func (f *Feature) dropRunState(runID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runs, runID)
}

// Install registers handlers for every hook that bounds a span level.
func (f *Feature) Install(p *hooks.Pipeline) error {
	p.On(hooks.OnAgentStart, featureKey, f.onAgentStart)
	p.On(hooks.OnAgentFinish, featureKey, f.onAgentFinish)
	p.On(hooks.OnAgentError, featureKey, f.onAgentError)
	p.On(hooks.OnBeforeNode, featureKey, f.onBeforeNode)
	p.On(hooks.OnAfterNode, featureKey, f.onAfterNode)
	p.On(hooks.OnBeforeLLM, featureKey, f.onBeforeLLM)
	p.On(hooks.OnAfterLLM, featureKey, f.onAfterLLM)
	p.On(hooks.OnToolCall, featureKey, f.onToolCall)
	p.On(hooks.OnToolResult, featureKey, f.onToolResult)
	p.On(hooks.OnToolFailure, featureKey, f.onToolFailure)
	p.On(hooks.OnToolValidationError, featureKey, f.onToolValidationError)
	return nil
}

func (f *Feature) onAgentStart(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.AgentStartEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	agentCtx, agentSpan := f.tracer.Start(ctx, "agent",
		trace.WithAttributes(
			attribute.String("agent.id", evt.AgentID),
			attribute.String("agent.strategy", evt.StrategyName),
		))
	runCtx, runSpan := f.tracer.Start(agentCtx, "run",
		trace.WithAttributes(attribute.String("run.id", evt.RunID)))

	rs.agentCtx, rs.agentSpan = agentCtx, agentSpan
	rs.runCtx, rs.runSpan = runCtx, runSpan
	return hooks.Continue(), nil
}

func (f *Feature) onAgentFinish(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.AgentFinishEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	if rs.runSpan != nil {
		if evt.Cancelled {
			rs.runSpan.SetStatus(codes.Error, "cancelled")
		} else {
			rs.runSpan.SetStatus(codes.Ok, "")
		}
		rs.runSpan.End()
	}
	if rs.agentSpan != nil {
		rs.agentSpan.SetStatus(codes.Ok, "")
		rs.agentSpan.End()
	}
	rs.mu.Unlock()
	f.dropRunState(evt.RunID)
	return hooks.Continue(), nil
}

func (f *Feature) onAgentError(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.AgentErrorEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	if rs.runSpan != nil {
		rs.runSpan.RecordError(evt.Err)
		rs.runSpan.SetStatus(codes.Error, evt.Err.Error())
		rs.runSpan.End()
	}
	if rs.agentSpan != nil {
		rs.agentSpan.SetStatus(codes.Error, evt.Err.Error())
		rs.agentSpan.End()
	}
	rs.mu.Unlock()
	f.dropRunState(evt.RunID)
	return hooks.Continue(), nil
}

func (f *Feature) onBeforeNode(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.BeforeNodeEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	parent := rs.runCtx
	if parent == nil {
		parent = ctx
	}
	if rs.nodeSpan != nil {
		rs.nodeStack = append(rs.nodeStack, levelFrame{ctx: rs.nodeCtx, span: rs.nodeSpan})
		parent = rs.nodeCtx
	}
	nodeCtx, nodeSpan := f.tracer.Start(parent, "node",
		trace.WithAttributes(
			attribute.String("node.name", evt.Node),
			attribute.String("node.subgraph", evt.Subgraph),
		))
	rs.nodeCtx, rs.nodeSpan = nodeCtx, nodeSpan
	return hooks.Continue(), nil
}

func (f *Feature) onAfterNode(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.AfterNodeEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.nodeSpan != nil {
		rs.nodeSpan.SetStatus(codes.Ok, "")
		rs.nodeSpan.End()
	}
	if n := len(rs.nodeStack); n > 0 {
		frame := rs.nodeStack[n-1]
		rs.nodeStack = rs.nodeStack[:n-1]
		rs.nodeCtx, rs.nodeSpan = frame.ctx, frame.span
	} else {
		rs.nodeCtx, rs.nodeSpan = nil, nil
	}
	return hooks.Continue(), nil
}

func (f *Feature) parentForChild(rs *runSpans) context.Context {
	if rs.nodeCtx != nil {
		return rs.nodeCtx
	}
	if rs.runCtx != nil {
		return rs.runCtx
	}
	return context.Background()
}

func (f *Feature) onBeforeLLM(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.BeforeLLMEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	_, span := f.tracer.Start(f.parentForChild(rs), "llm",
		trace.WithAttributes(
			attribute.String("llm.provider", evt.Model.ProviderID),
			attribute.String("llm.model", evt.Model.ModelID),
		))
	rs.llmStack = append(rs.llmStack, levelFrame{span: span})
	return hooks.Continue(), nil
}

func (f *Feature) onAfterLLM(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.AfterLLMEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if n := len(rs.llmStack); n > 0 {
		frame := rs.llmStack[n-1]
		rs.llmStack = rs.llmStack[:n-1]
		frame.span.AddEvent("llm.response", "message_count", len(evt.Responses))
		frame.span.SetStatus(codes.Ok, "")
		frame.span.End()
	}
	return hooks.Continue(), nil
}

// onToolCall/onToolResult/onToolFailure key their span stack by tool name
// since ToolCallEvent carries no per-invocation call id; concurrent
// parallel_safe calls of the SAME tool name within one Run will nest their
// spans LIFO rather than matching call-for-call.
func (f *Feature) onToolCall(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.ToolCallEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	_, span := f.tracer.Start(f.parentForChild(rs), "tool",
		trace.WithAttributes(attribute.String("tool.name", string(evt.Tool))))
	rs.toolStack[string(evt.Tool)] = append(rs.toolStack[string(evt.Tool)], levelFrame{span: span})
	return hooks.Continue(), nil
}

func (f *Feature) popToolSpan(rs *runSpans, tool string) telemetry.Span {
	stack := rs.toolStack[tool]
	if len(stack) == 0 {
		return nil
	}
	frame := stack[len(stack)-1]
	rs.toolStack[tool] = stack[:len(stack)-1]
	return frame.span
}

func (f *Feature) onToolResult(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.ToolResultEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if span := f.popToolSpan(rs, string(evt.Tool)); span != nil {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	return hooks.Continue(), nil
}

func (f *Feature) onToolFailure(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.ToolFailureEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if span := f.popToolSpan(rs, string(evt.Tool)); span != nil {
		span.RecordError(evt.Err)
		span.SetStatus(codes.Error, evt.Err.Error())
		span.End()
	}
	return hooks.Continue(), nil
}

func (f *Feature) onToolValidationError(ctx context.Context, payload any) (hooks.Outcome, error) {
	evt, ok := payload.(hooks.ToolValidationErrorEvent)
	if !ok {
		return hooks.Continue(), nil
	}
	rs := f.runState(evt.RunID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if span := f.popToolSpan(rs, string(evt.Tool)); span != nil {
		span.SetStatus(codes.Error, evt.Message)
		span.End()
	}
	return hooks.Continue(), nil
}

var _ hooks.Feature = (*Feature)(nil)
