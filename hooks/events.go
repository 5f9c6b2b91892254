// Package hooks implements the Feature Pipeline: installable, keyed
// interceptors invoked over the exhaustive lifecycle hook set fired by the
// Strategy Graph interpreter and the Agent Runner. Handlers are invoked in
// feature installation order and may replace the event payload (Continue)
// or terminate the Run (Abort).
package hooks

import (
	"encoding/json"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/tools"
)

// Name identifies one of the exhaustive lifecycle hooks a feature may
// subscribe to.
type Name string

const (
	OnAgentStart          Name = "on_agent_start"
	OnAgentFinish         Name = "on_agent_finish"
	OnAgentError          Name = "on_agent_error"
	OnStrategyStart       Name = "on_strategy_start"
	OnStrategyFinish      Name = "on_strategy_finish"
	OnBeforeNode          Name = "on_before_node"
	OnAfterNode           Name = "on_after_node"
	OnBeforeLLM           Name = "on_before_llm"
	OnAfterLLM            Name = "on_after_llm"
	OnToolCall            Name = "on_tool_call"
	OnToolValidationError Name = "on_tool_validation_error"
	OnToolFailure         Name = "on_tool_failure"
	OnToolResult          Name = "on_tool_result"
)

// AllHooks lists every hook name in a stable order, useful for features that
// want to log or inspect the full lifecycle surface.
var AllHooks = []Name{
	OnAgentStart, OnAgentFinish, OnAgentError,
	OnStrategyStart, OnStrategyFinish,
	OnBeforeNode, OnAfterNode,
	OnBeforeLLM, OnAfterLLM,
	OnToolCall, OnToolValidationError, OnToolFailure, OnToolResult,
}

type (
	// AgentStartEvent is fired once per Run, before the interpreter begins.
	AgentStartEvent struct {
		StrategyName string
		AgentID      string
		RunID        string
	}

	// AgentFinishEvent is fired once per Run, after the interpreter
	// terminates successfully (including cancellation).
	AgentFinishEvent struct {
		StrategyName string
		RunID        string
		Result       any
		Cancelled    bool
	}

	// AgentErrorEvent is fired when a Run terminates with an error, or when a
	// hook handler itself fails unexpectedly.
	AgentErrorEvent struct {
		StrategyName string
		RunID        string
		Err          error
	}

	// StrategyStartEvent is fired when a subgraph begins executing.
	StrategyStartEvent struct {
		StrategyName string
		RunID        string
	}

	// StrategyFinishEvent is fired when a subgraph finishes executing.
	StrategyFinishEvent struct {
		StrategyName string
		RunID        string
		Result       any
	}

	// BeforeNodeEvent is fired immediately before a node executes.
	BeforeNodeEvent struct {
		Node     string
		Subgraph string
		RunID    string
		Context  any
		Input    any
	}

	// AfterNodeEvent is fired immediately after a node executes.
	AfterNodeEvent struct {
		Node     string
		Subgraph string
		RunID    string
		Context  any
		Input    any
		Output   any
	}

	// BeforeLLMEvent is fired before the executor is invoked.
	BeforeLLMEvent struct {
		Prompt agent.Prompt
		Tools  []tools.ToolDescriptor
		Model  llm.LLModel
		RunID  string
	}

	// AfterLLMEvent is fired after the executor returns successfully.
	AfterLLMEvent struct {
		Prompt    agent.Prompt
		Tools     []tools.ToolDescriptor
		Model     llm.LLModel
		Responses []agent.Message
		RunID     string
	}

	// ToolCallEvent is fired before a tool executor runs.
	ToolCallEvent struct {
		Tool  tools.Ident
		Args  json.RawMessage
		RunID string
	}

	// ToolValidationErrorEvent is fired when a tool call's arguments fail
	// schema validation.
	ToolValidationErrorEvent struct {
		Tool    tools.Ident
		Args    json.RawMessage
		Message string
		RunID   string
	}

	// ToolFailureEvent is fired when a tool executor itself fails.
	ToolFailureEvent struct {
		Tool  tools.Ident
		Args  json.RawMessage
		Err   error
		RunID string
	}

	// ToolResultEvent is fired after a tool executor succeeds.
	ToolResultEvent struct {
		Tool   tools.Ident
		Args   json.RawMessage
		Result json.RawMessage
		RunID  string
	}
)
