package strategy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLNode declares one node of a subgraph: Kind names a factory registered
// in a NodeCatalog, and Config is passed to that factory verbatim so
// node-specific parameters (e.g. compress_history's budget) stay out of the
// graph shape itself.
type YAMLNode struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Config map[string]any `yaml:"config,omitempty"`
}

// YAMLEdge declares one edge. Guard and Transform name predicates and
// reshaping functions registered in a NodeCatalog; an empty Guard is always
// eligible and an empty Transform passes the output through unchanged.
type YAMLEdge struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Guard     string `yaml:"guard,omitempty"`
	Transform string `yaml:"transform,omitempty"`
}

// YAMLSubgraph declares one subgraph.
type YAMLSubgraph struct {
	Name       string     `yaml:"name"`
	Nodes      []YAMLNode `yaml:"nodes"`
	Edges      []YAMLEdge `yaml:"edges"`
	StartNode  string     `yaml:"start_node"`
	FinishNode string     `yaml:"finish_node"`
}

// YAMLStrategy is the top-level declarative graph document.
type YAMLStrategy struct {
	Name      string         `yaml:"name"`
	Entry     string         `yaml:"entry"`
	Subgraphs []YAMLSubgraph `yaml:"subgraphs"`
}

// NodeFactory builds a Node from a node's declared name and config.
type NodeFactory func(name string, config map[string]any) (Node, error)

// GuardFunc and TransformFunc back the named predicates a YAML edge may
// reference.
type (
	GuardFunc     func(output any) bool
	TransformFunc func(output any) any
)

// NodeCatalog supplies the code-backed building blocks a declarative
// strategy document cannot itself express: node constructors and the named
// guards/transforms edges reference.
type NodeCatalog struct {
	Nodes      map[string]NodeFactory
	Guards     map[string]GuardFunc
	Transforms map[string]TransformFunc
}

// LoadYAML parses a declarative strategy document and compiles it into a
// Strategy using catalog to resolve node kinds and named guards/transforms.
func LoadYAML(data []byte, catalog NodeCatalog) (*Strategy, error) {
	var doc YAMLStrategy
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("strategy: parsing yaml strategy: %w", err)
	}

	sb := NewStrategyBuilder(doc.Name).Entry(doc.Entry)
	for _, sg := range doc.Subgraphs {
		compiled, err := compileYAMLSubgraph(sg, catalog)
		if err != nil {
			return nil, err
		}
		sb.AddSubgraph(compiled)
	}
	return sb.Build()
}

func compileYAMLSubgraph(sg YAMLSubgraph, catalog NodeCatalog) (*Subgraph, error) {
	gb := NewSubgraphBuilder(sg.Name).Start(sg.StartNode).Finish(sg.FinishNode)

	for _, n := range sg.Nodes {
		factory, ok := catalog.Nodes[n.Kind]
		if !ok {
			return nil, fmt.Errorf("strategy: subgraph %q node %q: unknown node kind %q", sg.Name, n.Name, n.Kind)
		}
		node, err := factory(n.Name, n.Config)
		if err != nil {
			return nil, fmt.Errorf("strategy: subgraph %q node %q: %w", sg.Name, n.Name, err)
		}
		gb.AddNode(node)
	}

	for _, e := range sg.Edges {
		edge := Edge{From: e.From, To: e.To}
		if e.Guard != "" {
			guard, ok := catalog.Guards[e.Guard]
			if !ok {
				return nil, fmt.Errorf("strategy: subgraph %q edge %s->%s: unknown guard %q", sg.Name, e.From, e.To, e.Guard)
			}
			edge.Guard = guard
		}
		if e.Transform != "" {
			transform, ok := catalog.Transforms[e.Transform]
			if !ok {
				return nil, fmt.Errorf("strategy: subgraph %q edge %s->%s: unknown transform %q", sg.Name, e.From, e.To, e.Transform)
			}
			edge.Transform = transform
		}
		gb.AddEdge(edge)
	}

	return gb.Build()
}
