package strategy

// Strategy is a named collection of subgraphs with a distinguished entry
// point. A strategy with a single subgraph is the common case; multiple
// subgraphs exist so one strategy can define reusable nested subgraphs
// invoked via SubgraphNode.
type Strategy struct {
	Name      string
	Subgraphs map[string]*Subgraph
	Entry     string
}

// EntrySubgraph returns the strategy's entry subgraph.
func (s *Strategy) EntrySubgraph() (*Subgraph, bool) {
	sg, ok := s.Subgraphs[s.Entry]
	return sg, ok
}

// Subgraph looks up a subgraph by name, used by SubgraphNode to resolve its
// nested call target.
func (s *Strategy) Subgraph(name string) (*Subgraph, bool) {
	sg, ok := s.Subgraphs[name]
	return sg, ok
}
