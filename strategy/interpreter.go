package strategy

import (
	"context"

	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/environment"
	"github.com/agentkit/agentrt/hooks"
)

// DefaultMaxIterations bounds the number of node transitions a single Run
// may take before IterationLimitExceededError fires, guarding against a
// cyclic graph that never reaches a finish node.
const DefaultMaxIterations = 1000

// DefaultMaxSubgraphDepth bounds how deeply subgraphs may nest via
// SubgraphNode before SubgraphDepthExceededError fires.
const DefaultMaxSubgraphDepth = 32

// loopState is threaded through context.Context for the duration of one
// Interpreter.Run call tree, shared across the recursive descent that
// SubgraphNode performs into nested subgraphs. It exists because Node.Run's
// signature is fixed at (ctx, env, input) and cannot itself carry a pointer
// to the enclosing interpreter loop.
type loopState struct {
	strategy      *Strategy
	runID         string
	iterations    *int
	depth         int
	maxIterations int
	maxDepth      int
}

type loopStateKey struct{}

func withLoopState(ctx context.Context, st *loopState) context.Context {
	return context.WithValue(ctx, loopStateKey{}, st)
}

func loopStateFrom(ctx context.Context) (*loopState, bool) {
	st, ok := ctx.Value(loopStateKey{}).(*loopState)
	return st, ok
}

// Interpreter walks a Strategy's subgraphs node by node, implementing the
// before_node → node.Run → after_node → edge evaluation → transition step
// algorithm.
type Interpreter struct {
	Pipeline      *hooks.Pipeline
	MaxIterations int
	MaxDepth      int
}

// NewInterpreter constructs an Interpreter with the default bounds.
func NewInterpreter(pipeline *hooks.Pipeline) *Interpreter {
	return &Interpreter{
		Pipeline:      pipeline,
		MaxIterations: DefaultMaxIterations,
		MaxDepth:      DefaultMaxSubgraphDepth,
	}
}

// Run walks s's entry subgraph to completion, returning the finish node's
// output.
func (in *Interpreter) Run(ctx context.Context, env environment.Environment, s *Strategy, input any) (any, error) {
	entry, ok := s.EntrySubgraph()
	if !ok {
		return nil, agenterrors.NewConfigurationError("strategy has no entry subgraph")
	}
	st := &loopState{
		strategy:      s,
		runID:         env.RequestID(),
		iterations:    new(int),
		depth:         0,
		maxIterations: in.effectiveMaxIterations(),
		maxDepth:      in.effectiveMaxDepth(),
	}
	ctx = withLoopState(ctx, st)
	return in.runSubgraph(ctx, env, entry, entry.StartNode, input)
}

// ResumeAt restores a prior Run at subgraphName's node, with input as the
// value that node will receive. Used by checkpoint restore, where message
// history has already been rebuilt into env's prompt.
func (in *Interpreter) ResumeAt(ctx context.Context, env environment.Environment, s *Strategy, subgraphName, node string, input any) (any, error) {
	sg, ok := s.Subgraph(subgraphName)
	if !ok {
		return nil, agenterrors.NewConfigurationError("strategy: unknown subgraph " + subgraphName)
	}
	if _, ok := sg.Nodes[node]; !ok {
		return nil, agenterrors.NewConfigurationError("strategy: subgraph " + subgraphName + " has no node " + node)
	}
	st := &loopState{
		strategy:      s,
		runID:         env.RequestID(),
		iterations:    new(int),
		depth:         0,
		maxIterations: in.effectiveMaxIterations(),
		maxDepth:      in.effectiveMaxDepth(),
	}
	ctx = withLoopState(ctx, st)
	return in.runSubgraph(ctx, env, sg, node, input)
}

// RunNested runs the named subgraph of the enclosing strategy as a nested
// call, incrementing the shared depth counter. Called by SubgraphNode.
func (in *Interpreter) RunNested(ctx context.Context, env environment.Environment, subgraphName string, input any) (any, error) {
	st, ok := loopStateFrom(ctx)
	if !ok {
		return nil, agenterrors.NewConfigurationError("strategy: nested subgraph invocation outside an interpreter run")
	}
	sg, ok := st.strategy.Subgraph(subgraphName)
	if !ok {
		return nil, agenterrors.NewConfigurationError("strategy: unknown subgraph " + subgraphName)
	}
	if st.depth+1 > st.maxDepth {
		return nil, &agenterrors.SubgraphDepthExceededError{Limit: st.maxDepth}
	}
	nested := &loopState{
		strategy:      st.strategy,
		runID:         st.runID,
		iterations:    st.iterations,
		depth:         st.depth + 1,
		maxIterations: st.maxIterations,
		maxDepth:      st.maxDepth,
	}
	ctx = withLoopState(ctx, nested)
	return in.runSubgraph(ctx, env, sg, sg.StartNode, input)
}

// runSubgraph walks one subgraph from startNode to its finish node,
// firing OnStrategyStart/OnStrategyFinish around the walk: these are the
// interpreter's strategy-level boundary, entered once per subgraph
// invocation (the entry subgraph itself, a resumed subgraph, or a nested
// descent via SubgraphNode).
func (in *Interpreter) runSubgraph(ctx context.Context, env environment.Environment, sg *Subgraph, startNode string, input any) (result any, err error) {
	st, _ := loopStateFrom(ctx)

	if _, err := in.Pipeline.Fire(ctx, hooks.OnStrategyStart, hooks.StrategyStartEvent{StrategyName: sg.Name, RunID: st.runID}); err != nil {
		return nil, err
	}
	defer func() {
		if _, fireErr := in.Pipeline.Fire(ctx, hooks.OnStrategyFinish, hooks.StrategyFinishEvent{StrategyName: sg.Name, RunID: st.runID, Result: result}); fireErr != nil && err == nil {
			err = fireErr
		}
	}()

	current := startNode
	var output any = input

	for {
		if err := ctx.Err(); err != nil {
			return nil, agenterrors.Cancelled
		}
		if env.CancellationRequested() {
			return nil, agenterrors.Cancelled
		}

		node, ok := sg.Nodes[current]
		if !ok {
			return nil, agenterrors.NewConfigurationError("strategy: subgraph " + sg.Name + " references undeclared node " + current)
		}

		// Fired before the iteration bound is checked, so a checkpoint taken
		// from within the hook always reflects the node about to run, even
		// on the iteration that trips IterationLimitExceededError.
		if _, err := in.Pipeline.Fire(ctx, hooks.OnBeforeNode, hooks.BeforeNodeEvent{Node: current, Subgraph: sg.Name, RunID: st.runID, Input: output}); err != nil {
			return nil, err
		}

		*st.iterations++
		if *st.iterations > st.maxIterations {
			return nil, &agenterrors.IterationLimitExceededError{Limit: st.maxIterations}
		}

		result, err := node.Run(ctx, env, output)
		if err != nil {
			return nil, err
		}

		if _, err := in.Pipeline.Fire(ctx, hooks.OnAfterNode, hooks.AfterNodeEvent{Node: current, Subgraph: sg.Name, RunID: st.runID, Input: output, Output: result}); err != nil {
			return nil, err
		}
		output = result

		if current == sg.FinishNode {
			return output, nil
		}

		next, nextOutput, err := in.selectEdge(sg, current, output)
		if err != nil {
			return nil, err
		}
		current = next
		output = nextOutput
	}
}

func (in *Interpreter) selectEdge(sg *Subgraph, node string, output any) (string, any, error) {
	for _, e := range sg.edgesFrom(node) {
		if e.eligible(output) {
			return e.To, e.apply(output), nil
		}
	}
	return "", nil, &agenterrors.NoEligibleEdgeError{Node: node}
}

func (in *Interpreter) effectiveMaxIterations() int {
	if in.MaxIterations > 0 {
		return in.MaxIterations
	}
	return DefaultMaxIterations
}

func (in *Interpreter) effectiveMaxDepth() int {
	if in.MaxDepth > 0 {
		return in.MaxDepth
	}
	return DefaultMaxSubgraphDepth
}
