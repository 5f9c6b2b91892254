package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/environment"
	"github.com/agentkit/agentrt/stream"
)

// SubgraphNode invokes a nested subgraph by name, recursing back into the
// owning Interpreter so Go's own call stack tracks subgraph depth instead of
// an explicit stack data structure.
type SubgraphNode struct {
	NodeName    string
	Target      string
	Interpreter *Interpreter
}

// Name returns the node's unique name.
func (n *SubgraphNode) Name() string { return n.NodeName }

// Run descends into the target subgraph with input as its starting value.
func (n *SubgraphNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	return n.Interpreter.RunNested(ctx, env, n.Target, input)
}

// CallLLMNode appends input to the prompt (if it is a string or
// agent.Message) and calls the LLM executor once, appending every message it
// returns to history. Its output is the slice of messages the executor
// produced in this call.
type CallLLMNode struct {
	NodeName string
}

// NewCallLLMNode constructs a call_llm node.
func NewCallLLMNode(name string) *CallLLMNode { return &CallLLMNode{NodeName: name} }

// Name returns the node's unique name.
func (n *CallLLMNode) Name() string { return n.NodeName }

// Run appends input (if present) and invokes the executor synchronously.
func (n *CallLLMNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	appendInputMessage(env, input)

	msgs, err := env.LLMExecute(ctx, env.Prompt(), env.DescribeTools())
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		env.Append(m)
	}
	return msgs, nil
}

// CallLLMStreamingNode is the streaming counterpart of CallLLMNode: it
// drains the executor's LazySequence[string], reassembling the fragments
// into a single Assistant message appended to history once the stream ends.
type CallLLMStreamingNode struct {
	NodeName string
}

// NewCallLLMStreamingNode constructs a call_llm_streaming node.
func NewCallLLMStreamingNode(name string) *CallLLMStreamingNode {
	return &CallLLMStreamingNode{NodeName: name}
}

// Name returns the node's unique name.
func (n *CallLLMStreamingNode) Name() string { return n.NodeName }

// Run appends input (if present), streams the response, and appends the
// reassembled Assistant message once the stream ends.
func (n *CallLLMStreamingNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	appendInputMessage(env, input)

	seq, err := env.LLMStream(ctx, env.Prompt())
	if err != nil {
		return nil, err
	}
	text, err := stream.CollectText(ctx, seq)
	if err != nil {
		return nil, err
	}
	msg := agent.NewAssistantMessage(text, nil)
	env.Append(msg)
	return msg, nil
}

func appendInputMessage(env environment.Environment, input any) {
	switch v := input.(type) {
	case nil:
	case string:
		if v != "" {
			env.Append(agent.NewUserMessage(v))
		}
	case agent.Message:
		env.Append(v)
	}
}

// DispatchToolCallsNode resolves every agent.Message of Kind ToolCall in its
// input through the Environment, dispatching tools marked ParallelSafe
// concurrently. ToolResult messages are always appended to history in the
// same order as the originating tool calls, regardless of the order in
// which tool execution actually completes.
type DispatchToolCallsNode struct {
	NodeName string
}

// NewDispatchToolCallsNode constructs a dispatch_tool_calls node.
func NewDispatchToolCallsNode(name string) *DispatchToolCallsNode {
	return &DispatchToolCallsNode{NodeName: name}
}

// Name returns the node's unique name.
func (n *DispatchToolCallsNode) Name() string { return n.NodeName }

// Run dispatches every tool call in input, in call order.
func (n *DispatchToolCallsNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	calls, ok := input.([]agent.Message)
	if !ok {
		return nil, fmt.Errorf("strategy: dispatch_tool_calls expects []agent.Message input, got %T", input)
	}

	results := make([]agent.Message, len(calls))
	var wg sync.WaitGroup
	errs := make([]error, len(calls))

	for i, call := range calls {
		if call.Kind != agent.KindToolCall {
			continue
		}
		descriptor, _ := env.ResolveTool(call.ToolName)
		if descriptor.ParallelSafe {
			wg.Add(1)
			go func(i int, call agent.Message) {
				defer wg.Done()
				results[i], errs[i] = runOneToolCall(ctx, env, call)
			}(i, call)
			continue
		}
		wg.Wait() // drain any parallel-safe calls already in flight before a serial one
		results[i], errs[i] = runOneToolCall(ctx, env, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for _, r := range results {
		env.Append(r)
	}
	return results, nil
}

func runOneToolCall(ctx context.Context, env environment.Environment, call agent.Message) (agent.Message, error) {
	result, err := env.CallTool(ctx, call.ToolName, call.ArgumentsJSON)
	if err != nil {
		return agent.Message{}, err
	}
	return agent.NewToolResultMessage(call.ToolCallID, call.ToolName, result), nil
}

// CompressHistoryNode replaces the oldest messages in history with a single
// summary message once the estimated token count of the full history
// exceeds Budget, using Summarize to produce the replacement text. It never
// touches the most recent KeepRecent messages, so the immediate
// conversational context survives compression.
type CompressHistoryNode struct {
	NodeName   string
	Budget     int
	KeepRecent int
	Summarize  func(ctx context.Context, messages []agent.Message) (string, error)
	Estimate   func(messages []agent.Message) int
}

// NewCompressHistoryNode constructs a compress_history node.
func NewCompressHistoryNode(name string, budget, keepRecent int, summarize func(ctx context.Context, messages []agent.Message) (string, error)) *CompressHistoryNode {
	return &CompressHistoryNode{
		NodeName:   name,
		Budget:     budget,
		KeepRecent: keepRecent,
		Summarize:  summarize,
		Estimate:   EstimateTokens,
	}
}

// Name returns the node's unique name.
func (n *CompressHistoryNode) Name() string { return n.NodeName }

// Run summarizes and replaces the oldest history messages when the budget is
// exceeded; otherwise it is a no-op and passes input through unchanged.
func (n *CompressHistoryNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	history := env.History()
	if len(history) <= n.KeepRecent {
		return input, nil
	}
	estimate := n.Estimate
	if estimate == nil {
		estimate = EstimateTokens
	}
	if estimate(history) <= n.Budget {
		return input, nil
	}

	cut := len(history) - n.KeepRecent
	toSummarize := history[:cut]
	summary, err := n.Summarize(ctx, toSummarize)
	if err != nil {
		return nil, err
	}

	rebuilt := agent.NewPrompt()
	rebuilt = rebuilt.Append(agent.NewSystemMessage(summary))
	rebuilt = rebuilt.AppendAll(history[cut:]...)
	rebuilt = rebuilt.WithParams(env.Prompt().Params)
	env.ReplaceHistory(rebuilt)
	return input, nil
}

// FinishNode is the identity transformer conventionally used as a
// subgraph's finish_node; the interpreter recognizes termination by name
// comparison, not by this node's type, so any node may serve as a finish
// node, but FinishNode documents the common no-op case.
type FinishNode struct {
	NodeName string
}

// NewFinishNode constructs a finish node.
func NewFinishNode(name string) *FinishNode { return &FinishNode{NodeName: name} }

// Name returns the node's unique name.
func (n *FinishNode) Name() string { return n.NodeName }

// Run returns input unchanged.
func (n *FinishNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	return input, nil
}
