package graph

import (
	"fmt"

	"orgchart/internal/domain"
)

// PairStrategy decides which endpoint pairs count as the same connection
type PairStrategy string

const (
	// PairsUnordered treats a→b and b→a as the same connection
	PairsUnordered PairStrategy = "unordered"
	// PairsDirected treats a→b and b→a as different connections
	PairsDirected PairStrategy = "directed"
)

// ParsePairStrategy converts a string to PairStrategy, defaulting to PairsUnordered
func ParsePairStrategy(s string) (PairStrategy, error) {
	switch s {
	case "", string(PairsUnordered):
		return PairsUnordered, nil
	case string(PairsDirected):
		return PairsDirected, nil
	default:
		return "", fmt.Errorf("unknown pair strategy %q", s)
	}
}

type pair struct {
	a, b string
}

// EdgeIndex answers "is there already an edge between these two nodes"
type EdgeIndex struct {
	strategy PairStrategy
	pairs    map[pair]string
}

// NewEdgeIndex indexes edges under the given strategy
func NewEdgeIndex(strategy PairStrategy, edges []domain.Edge) *EdgeIndex {
	if strategy == "" {
		strategy = PairsUnordered
	}
	idx := &EdgeIndex{
		strategy: strategy,
		pairs:    make(map[pair]string, len(edges)),
	}
	for _, e := range edges {
		idx.Add(e)
	}
	return idx
}

func (x *EdgeIndex) key(source, target string) pair {
	if x.strategy == PairsUnordered && source > target {
		source, target = target, source
	}
	return pair{a: source, b: target}
}

// Has reports whether an edge already joins source and target
func (x *EdgeIndex) Has(source, target string) bool {
	_, ok := x.pairs[x.key(source, target)]
	return ok
}

// Lookup returns the link id of the edge joining source and target
func (x *EdgeIndex) Lookup(source, target string) (string, bool) {
	id, ok := x.pairs[x.key(source, target)]
	return id, ok
}

// Add indexes the edge and reports whether its pair was new
func (x *EdgeIndex) Add(e domain.Edge) bool {
	k := x.key(e.Source, e.Target)
	if _, ok := x.pairs[k]; ok {
		return false
	}
	x.pairs[k] = e.ID
	return true
}

// Len returns the number of indexed pairs
func (x *EdgeIndex) Len() int {
	return len(x.pairs)
}
