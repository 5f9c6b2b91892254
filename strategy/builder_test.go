package strategy

import (
	"context"
	"testing"

	"github.com/agentkit/agentrt/environment"
	"github.com/stretchr/testify/require"
)

func identityNode(name string) Node {
	return NodeFunc{NodeName: name, Fn: func(ctx context.Context, env environment.Environment, input any) (any, error) {
		return input, nil
	}}
}

func TestSubgraphBuilder_RejectsMissingStartNode(t *testing.T) {
	_, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		Finish("a").
		Build()
	require.Error(t, err)
}

func TestSubgraphBuilder_RejectsUndeclaredFinishNode(t *testing.T) {
	_, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		Start("a").
		Finish("missing").
		Build()
	require.Error(t, err)
}

func TestSubgraphBuilder_RejectsNodeWithNoOutgoingEdge(t *testing.T) {
	_, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		AddNode(identityNode("b")).
		Start("a").
		Finish("b").
		Build()
	require.Error(t, err)
}

func TestSubgraphBuilder_RejectsOrphanNode(t *testing.T) {
	_, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		AddNode(identityNode("b")).
		AddNode(identityNode("orphan")).
		AddEdge(Edge{From: "a", To: "b"}).
		Start("a").
		Finish("b").
		Build()
	require.Error(t, err)
}

func TestSubgraphBuilder_RejectsUnreachableFinishNode(t *testing.T) {
	_, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		AddNode(identityNode("c")).
		AddNode(identityNode("b")).
		AddEdge(Edge{From: "a", To: "c"}).
		AddEdge(Edge{From: "c", To: "c"}).
		Start("a").
		Finish("b").
		Build()
	require.Error(t, err)
}

func TestSubgraphBuilder_AcceptsValidLinearGraph(t *testing.T) {
	sg, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		AddNode(identityNode("b")).
		AddEdge(Edge{From: "a", To: "b"}).
		Start("a").
		Finish("b").
		Build()
	require.NoError(t, err)
	require.Equal(t, "a", sg.StartNode)
	require.Equal(t, "b", sg.FinishNode)
}

func TestSubgraphBuilder_AddNodePanicsOnDuplicateName(t *testing.T) {
	defer func() {
		require.NotNil(t, recover())
	}()
	NewSubgraphBuilder("sg").AddNode(identityNode("a")).AddNode(identityNode("a"))
}

func TestStrategyBuilder_RejectsUndeclaredEntry(t *testing.T) {
	sg, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		Start("a").
		Finish("a").
		Build()
	require.NoError(t, err)

	_, err = NewStrategyBuilder("s").AddSubgraph(sg).Entry("missing").Build()
	require.Error(t, err)
}

func TestStrategyBuilder_AcceptsValidStrategy(t *testing.T) {
	sg, err := NewSubgraphBuilder("sg").
		AddNode(identityNode("a")).
		Start("a").
		Finish("a").
		Build()
	require.NoError(t, err)

	s, err := NewStrategyBuilder("s").AddSubgraph(sg).Entry("sg").Build()
	require.NoError(t, err)
	require.Equal(t, "sg", s.Entry)
}
