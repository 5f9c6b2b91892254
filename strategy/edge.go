package strategy

// Edge connects two nodes within a subgraph. Guard decides eligibility given
// the From node's output; Transform (optional) reshapes that output into the
// To node's input. Edges are evaluated in declaration order: the first
// eligible edge out of a node wins, so edge declaration order is part of a
// strategy's contract, not an implementation detail.
type Edge struct {
	From string
	To   string

	// Guard reports whether this edge may be taken given the From node's
	// output. A nil Guard is always eligible.
	Guard func(output any) bool

	// Transform reshapes the From node's output into the To node's input. A
	// nil Transform passes the output through unchanged.
	Transform func(output any) any
}

func (e Edge) eligible(output any) bool {
	if e.Guard == nil {
		return true
	}
	return e.Guard(output)
}

func (e Edge) apply(output any) any {
	if e.Transform == nil {
		return output
	}
	return e.Transform(output)
}
