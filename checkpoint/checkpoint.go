// Package checkpoint defines the Checkpoint wire contract the Agent Runner
// exposes to a storage collaborator: a normative JSON snapshot of a Run
// sufficient to restore it at a node boundary, plus the Storage interface
// the Runner consumes (never implements) to persist and retrieve it.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/tools"
)

// wireMessage is the normative on-wire Message shape: role/content plus the
// optional tool-call fields, matching the checkpoint wire shape's
// serialization note rather than agent.Message's Go-native Kind
// discriminator.
type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Index      int             `json:"index"`
	CreatedAt  time.Time       `json:"created_at"`
}

func roleFor(k agent.Kind) string {
	switch k {
	case agent.KindSystem:
		return "system"
	case agent.KindUser:
		return "user"
	case agent.KindAssistant:
		return "assistant"
	case agent.KindToolCall:
		return "tool_call"
	case agent.KindToolResult:
		return "tool_result"
	default:
		return string(k)
	}
}

func kindFor(role string) agent.Kind {
	switch role {
	case "system":
		return agent.KindSystem
	case "user":
		return agent.KindUser
	case "assistant":
		return agent.KindAssistant
	case "tool_call":
		return agent.KindToolCall
	case "tool_result":
		return agent.KindToolResult
	default:
		return agent.Kind(role)
	}
}

func toWire(m agent.Message) wireMessage {
	w := wireMessage{
		Role:       roleFor(m.Kind),
		Content:    m.Text,
		Index:      m.Index,
		CreatedAt:  m.CreatedAt,
		ToolCallID: m.ToolCallID,
	}
	if m.ToolName != "" {
		w.Name = string(m.ToolName)
	}
	if m.Kind == agent.KindToolCall {
		w.Arguments = m.ArgumentsJSON
	}
	if m.Kind == agent.KindToolResult && m.Content != nil {
		if raw, ok := m.Content.(json.RawMessage); ok {
			w.Result = raw
		} else if encoded, err := json.Marshal(m.Content); err == nil {
			w.Result = encoded
		}
	}
	return w
}

func fromWire(w wireMessage) agent.Message {
	kind := kindFor(w.Role)
	out := agent.Message{
		Kind:          kind,
		Text:          w.Content,
		Index:         w.Index,
		CreatedAt:     w.CreatedAt,
		ToolCallID:    w.ToolCallID,
		ArgumentsJSON: w.Arguments,
	}
	if w.Name != "" {
		out.ToolName = tools.Ident(w.Name)
	}
	if kind == agent.KindToolResult && len(w.Result) > 0 {
		out.Content = w.Result
	}
	return out
}

// Checkpoint is a normative JSON snapshot of a Run sufficient to restore it
// at the boundary of current_node, positioned within current_subgraph, with
// current_input as the value that node would have received.
type Checkpoint struct {
	RunID           string          `json:"run_id"`
	AgentID         string          `json:"agent_id"`
	StrategyName    string          `json:"strategy_name"`
	CurrentSubgraph string          `json:"current_subgraph"`
	CurrentNode     string          `json:"current_node"`
	CurrentInput    json.RawMessage `json:"current_input"`
	Messages        []wireMessage   `json:"messages"`
	FeatureStorage  map[string]json.RawMessage `json:"feature_storage"`
	SavedAt         time.Time       `json:"saved_at"`
}

// New builds a Checkpoint from Run state, JSON-encoding currentInput and
// each feature storage value so the result matches the normative wire
// shape exactly.
func New(runID, agentID, strategyName, currentSubgraph, currentNode string, currentInput any, messages []agent.Message, featureStorage map[string]any, savedAt time.Time) (Checkpoint, error) {
	inputJSON, err := json.Marshal(currentInput)
	if err != nil {
		return Checkpoint{}, err
	}
	wireMsgs := make([]wireMessage, len(messages))
	for i, m := range messages {
		wireMsgs[i] = toWire(m)
	}
	storage := make(map[string]json.RawMessage, len(featureStorage))
	for key, value := range featureStorage {
		encoded, err := json.Marshal(value)
		if err != nil {
			return Checkpoint{}, err
		}
		storage[key] = encoded
	}
	return Checkpoint{
		RunID:           runID,
		AgentID:         agentID,
		StrategyName:    strategyName,
		CurrentSubgraph: currentSubgraph,
		CurrentNode:     currentNode,
		CurrentInput:    inputJSON,
		Messages:        wireMsgs,
		FeatureStorage:  storage,
		SavedAt:         savedAt,
	}, nil
}

// MessagesAsAgent decodes the checkpoint's wire messages back into
// agent.Message values, in order.
func (c Checkpoint) MessagesAsAgent() []agent.Message {
	out := make([]agent.Message, len(c.Messages))
	for i, w := range c.Messages {
		out[i] = fromWire(w)
	}
	return out
}

// DecodeCurrentInput unmarshals current_input into v.
func (c Checkpoint) DecodeCurrentInput(v any) error {
	if len(c.CurrentInput) == 0 {
		return nil
	}
	return json.Unmarshal(c.CurrentInput, v)
}

// DecodeFeatureStorage unmarshals the named feature's stored value into v,
// reporting whether the key was present.
func (c Checkpoint) DecodeFeatureStorage(key string, v any) (bool, error) {
	raw, ok := c.FeatureStorage[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}
