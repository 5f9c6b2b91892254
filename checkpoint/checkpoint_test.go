package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentkit/agentrt/agent"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_RoundTripsMessages(t *testing.T) {
	prompt := agent.NewPrompt()
	prompt = prompt.Append(agent.NewUserMessage("hi"))
	prompt = prompt.Append(agent.NewToolCallMessage("call-1", "add", json.RawMessage(`{"a":1}`)))
	prompt = prompt.Append(agent.NewToolResultMessage("call-1", "add", json.RawMessage(`{"sum":3}`)))

	cp, err := New("run-1", "agent-1", "strategy-1", "main", "call_llm", "some input", prompt.Messages, nil, time.Unix(0, 0).UTC())
	require.NoError(t, err)

	restored := cp.MessagesAsAgent()
	require.Len(t, restored, 3)
	require.Equal(t, agent.KindUser, restored[0].Kind)
	require.Equal(t, agent.KindToolCall, restored[1].Kind)
	require.Equal(t, agent.KindToolResult, restored[2].Kind)
	require.Equal(t, "add", string(restored[1].ToolName))
	require.Equal(t, "call-1", restored[2].ToolCallID)
}

func TestCheckpoint_MarshalsToNormativeWireShape(t *testing.T) {
	prompt := agent.NewPrompt().Append(agent.NewUserMessage("hi"))
	cp, err := New("run-1", "agent-1", "strategy-1", "main", "call_llm", "hi", prompt.Messages, map[string]any{"feat": map[string]int{"count": 1}}, time.Unix(0, 0).UTC())
	require.NoError(t, err)

	encoded, err := json.Marshal(cp)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(encoded, &generic))
	for _, key := range []string{"run_id", "agent_id", "strategy_name", "current_subgraph", "current_node", "current_input", "messages", "feature_storage", "saved_at"} {
		_, ok := generic[key]
		require.True(t, ok, "missing key %q", key)
	}
}

func TestCheckpoint_DecodeCurrentInput(t *testing.T) {
	cp, err := New("run-1", "agent-1", "s", "main", "node", map[string]string{"question": "2+2"}, nil, nil, time.Now())
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, cp.DecodeCurrentInput(&decoded))
	require.Equal(t, "2+2", decoded["question"])
}

func TestCheckpoint_DecodeFeatureStorageMissingKey(t *testing.T) {
	cp, err := New("run-1", "agent-1", "s", "main", "node", nil, nil, map[string]any{"present": 1}, time.Now())
	require.NoError(t, err)

	var v int
	found, err := cp.DecodeFeatureStorage("absent", &v)
	require.NoError(t, err)
	require.False(t, found)

	found, err = cp.DecodeFeatureStorage("present", &v)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, v)
}

func TestMemoryStorage_PutGetLatestListDelete(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	cp1, _ := New("run-1", "a", "s", "main", "n1", nil, nil, nil, time.Unix(100, 0))
	cp2, _ := New("run-2", "a", "s", "main", "n2", nil, nil, nil, time.Unix(200, 0))
	require.NoError(t, s.Put(ctx, "run-1", cp1))
	require.NoError(t, s.Put(ctx, "run-2", cp2))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "n1", got.CurrentNode)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, "run-2", latest.RunID)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"run-1", "run-2"}, ids)

	require.NoError(t, s.Delete(ctx, "run-1"))
	_, err = s.Get(ctx, "run-1")
	require.ErrorIs(t, err, ErrNotFound)
}
