// Package strategy implements the Strategy Graph: typed nodes and edges
// forming subgraphs, compiled once by a validating Builder, and walked by
// an Interpreter that implements the declaration-order step algorithm.
package strategy

import (
	"context"

	"github.com/agentkit/agentrt/environment"
)

// Node is a typed transformer (Input, Environment) → Output, named uniquely
// within its subgraph. Input and Output are carried as `any`; individual
// node constructors document the concrete types they expect and produce.
type Node interface {
	Name() string
	Run(ctx context.Context, env environment.Environment, input any) (any, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc struct {
	NodeName string
	Fn       func(ctx context.Context, env environment.Environment, input any) (any, error)
}

// Name returns the node's unique name within its subgraph.
func (n NodeFunc) Name() string { return n.NodeName }

// Run invokes the wrapped function.
func (n NodeFunc) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	return n.Fn(ctx, env, input)
}
