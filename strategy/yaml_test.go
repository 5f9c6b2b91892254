package strategy

import (
	"context"
	"testing"

	"github.com/agentkit/agentrt/environment"
	"github.com/stretchr/testify/require"
)

const echoStrategyYAML = `
name: echo
entry: main
subgraphs:
  - name: main
    start_node: call_llm
    finish_node: finish
    nodes:
      - name: call_llm
        kind: call_llm
      - name: finish
        kind: finish
    edges:
      - from: call_llm
        to: finish
`

func TestLoadYAML_CompilesEchoStrategy(t *testing.T) {
	catalog := NodeCatalog{
		Nodes: map[string]NodeFactory{
			"call_llm": func(name string, config map[string]any) (Node, error) {
				return NewCallLLMNode(name), nil
			},
			"finish": func(name string, config map[string]any) (Node, error) {
				return NewFinishNode(name), nil
			},
		},
	}

	s, err := LoadYAML([]byte(echoStrategyYAML), catalog)
	require.NoError(t, err)
	require.Equal(t, "echo", s.Name)
	sg, ok := s.EntrySubgraph()
	require.True(t, ok)
	require.Equal(t, "call_llm", sg.StartNode)
	require.Equal(t, "finish", sg.FinishNode)
}

func TestLoadYAML_UnknownNodeKindFails(t *testing.T) {
	catalog := NodeCatalog{Nodes: map[string]NodeFactory{}}
	_, err := LoadYAML([]byte(echoStrategyYAML), catalog)
	require.Error(t, err)
}

func TestLoadYAML_UnknownGuardFails(t *testing.T) {
	const doc = `
name: s
entry: main
subgraphs:
  - name: main
    start_node: a
    finish_node: b
    nodes:
      - name: a
        kind: noop
      - name: b
        kind: noop
    edges:
      - from: a
        to: b
        guard: missing_guard
`
	catalog := NodeCatalog{
		Nodes: map[string]NodeFactory{
			"noop": func(name string, config map[string]any) (Node, error) {
				return NodeFunc{NodeName: name, Fn: func(ctx context.Context, env environment.Environment, input any) (any, error) {
					return input, nil
				}}, nil
			},
		},
	}
	_, err := LoadYAML([]byte(doc), catalog)
	require.Error(t, err)
}
