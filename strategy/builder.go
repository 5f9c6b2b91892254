package strategy

import "fmt"

// SubgraphBuilder accumulates nodes and edges for a single subgraph and
// validates them on Build.
type SubgraphBuilder struct {
	name       string
	nodes      map[string]Node
	nodesOrder []string
	edges      []Edge
	startNode  string
	finishNode string
}

// NewSubgraphBuilder starts a subgraph builder named name.
func NewSubgraphBuilder(name string) *SubgraphBuilder {
	return &SubgraphBuilder{name: name, nodes: make(map[string]Node)}
}

// AddNode registers a node. Node names must be unique within a subgraph.
func (b *SubgraphBuilder) AddNode(n Node) *SubgraphBuilder {
	if _, dup := b.nodes[n.Name()]; dup {
		panic(fmt.Sprintf("strategy: duplicate node name %q in subgraph %q", n.Name(), b.name))
	}
	b.nodes[n.Name()] = n
	b.nodesOrder = append(b.nodesOrder, n.Name())
	return b
}

// AddEdge registers an edge. Edges are retained in declaration order, which
// is part of the subgraph's runtime contract.
func (b *SubgraphBuilder) AddEdge(e Edge) *SubgraphBuilder {
	b.edges = append(b.edges, e)
	return b
}

// Start designates the subgraph's single entry node.
func (b *SubgraphBuilder) Start(node string) *SubgraphBuilder {
	b.startNode = node
	return b
}

// Finish designates the subgraph's single terminal node.
func (b *SubgraphBuilder) Finish(node string) *SubgraphBuilder {
	b.finishNode = node
	return b
}

// Build validates the accumulated nodes and edges and returns the compiled
// Subgraph. Validation enforces: a start node is declared and exists; a
// finish node is declared and exists; every edge references declared nodes;
// every non-finish node has at least one outgoing edge; and every node is
// reachable from the start node (no orphans).
func (b *SubgraphBuilder) Build() (*Subgraph, error) {
	if b.startNode == "" {
		return nil, fmt.Errorf("strategy: subgraph %q has no start node", b.name)
	}
	if _, ok := b.nodes[b.startNode]; !ok {
		return nil, fmt.Errorf("strategy: subgraph %q start node %q is not declared", b.name, b.startNode)
	}
	if b.finishNode == "" {
		return nil, fmt.Errorf("strategy: subgraph %q has no finish node", b.name)
	}
	if _, ok := b.nodes[b.finishNode]; !ok {
		return nil, fmt.Errorf("strategy: subgraph %q finish node %q is not declared", b.name, b.finishNode)
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, fmt.Errorf("strategy: subgraph %q edge references undeclared node %q", b.name, e.From)
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, fmt.Errorf("strategy: subgraph %q edge references undeclared node %q", b.name, e.To)
		}
	}

	outgoing := make(map[string]int, len(b.nodes))
	for _, e := range b.edges {
		outgoing[e.From]++
	}
	for name := range b.nodes {
		if name == b.finishNode {
			continue
		}
		if outgoing[name] == 0 {
			return nil, fmt.Errorf("strategy: subgraph %q node %q has no outgoing edge and is not the finish node", b.name, name)
		}
	}

	reachable := b.reachableFrom(b.startNode)
	if !reachable[b.finishNode] {
		return nil, fmt.Errorf("strategy: subgraph %q has no path from start node %q to finish node %q", b.name, b.startNode, b.finishNode)
	}
	for name := range b.nodes {
		if !reachable[name] {
			return nil, fmt.Errorf("strategy: subgraph %q node %q is unreachable from start node %q", b.name, name, b.startNode)
		}
	}

	return &Subgraph{
		Name:       b.name,
		Nodes:      b.nodes,
		NodesOrder: append([]string(nil), b.nodesOrder...),
		Edges:      append([]Edge(nil), b.edges...),
		StartNode:  b.startNode,
		FinishNode: b.finishNode,
	}, nil
}

func (b *SubgraphBuilder) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range b.edges {
			if e.From != cur {
				continue
			}
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// StrategyBuilder assembles one or more subgraphs into a Strategy.
type StrategyBuilder struct {
	name      string
	subgraphs map[string]*Subgraph
	entry     string
}

// NewStrategyBuilder starts a strategy builder named name.
func NewStrategyBuilder(name string) *StrategyBuilder {
	return &StrategyBuilder{name: name, subgraphs: make(map[string]*Subgraph)}
}

// AddSubgraph registers a compiled subgraph under its own name.
func (b *StrategyBuilder) AddSubgraph(sg *Subgraph) *StrategyBuilder {
	b.subgraphs[sg.Name] = sg
	return b
}

// Entry designates the strategy's entry subgraph.
func (b *StrategyBuilder) Entry(name string) *StrategyBuilder {
	b.entry = name
	return b
}

// Build validates that the entry subgraph is declared and returns the
// compiled Strategy.
func (b *StrategyBuilder) Build() (*Strategy, error) {
	if b.entry == "" {
		return nil, fmt.Errorf("strategy: %q has no entry subgraph", b.name)
	}
	if _, ok := b.subgraphs[b.entry]; !ok {
		return nil, fmt.Errorf("strategy: %q entry subgraph %q is not declared", b.name, b.entry)
	}
	return &Strategy{Name: b.name, Subgraphs: b.subgraphs, Entry: b.entry}, nil
}
