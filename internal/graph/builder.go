package graph

import (
	"fmt"

	"go.uber.org/zap"

	"orgchart/internal/domain"
	"orgchart/internal/logging"
)

// SingletonPolicy decides what happens to a node whose link bucket has no partner
type SingletonPolicy string

const (
	// SingletonKeep renders the node without edges
	SingletonKeep SingletonPolicy = "keep"
	// SingletonDrop leaves the node out unless something else anchors it
	SingletonDrop SingletonPolicy = "drop"
)

// ParseSingletonPolicy converts a string to SingletonPolicy, defaulting to SingletonKeep
func ParseSingletonPolicy(s string) (SingletonPolicy, error) {
	switch s {
	case "", string(SingletonKeep):
		return SingletonKeep, nil
	case string(SingletonDrop):
		return SingletonDrop, nil
	default:
		return "", fmt.Errorf("unknown singleton policy %q", s)
	}
}

// Options configures a build
type Options struct {
	Singletons SingletonPolicy
	Pairs      PairStrategy
}

// Result is the built model plus what was left out
type Result struct {
	Graph      *domain.Graph
	Dangling   int // edges with an endpoint outside the node set
	Duplicates int // edges whose pair was already connected
	Singletons int // link buckets with a single member
}

// Builder builds graphs with fixed options
type Builder struct {
	opts   Options
	logger *zap.Logger
}

// NewBuilder creates a builder
func NewBuilder(opts Options, logger *zap.Logger) *Builder {
	return &Builder{
		opts:   opts,
		logger: logging.OrNop(logger).Named("graph"),
	}
}

// Build converts a snapshot into a graph model
func (b *Builder) Build(snapshot *domain.Snapshot) *Result {
	res := Build(snapshot, b.opts)
	if res.Dangling+res.Duplicates+res.Singletons > 0 {
		b.logger.Debug("rows left out of graph",
			zap.Int("dangling", res.Dangling),
			zap.Int("duplicates", res.Duplicates),
			zap.Int("singletons", res.Singletons),
		)
	}
	return res
}

type bucket struct {
	id  string
	ids []string
}

// Build converts a snapshot into a graph model. It never fails: rows without an
// id are skipped and edges that cannot be placed are dropped.
func Build(snapshot *domain.Snapshot, opts Options) *Result {
	res := &Result{Graph: domain.NewGraph()}
	if snapshot == nil {
		return res
	}

	nodes := make([]domain.Node, 0, len(snapshot.Rows))
	seen := make(map[string]bool, len(snapshot.Rows))
	anchored := make(map[string]bool, len(snapshot.Rows))
	var buckets []*bucket
	byLink := make(map[string]*bucket)

	for _, row := range snapshot.Rows {
		if row.ID == "" {
			continue
		}
		if !seen[row.ID] {
			seen[row.ID] = true
			nodes = append(nodes, *row.Node())
		}
		if row.LinkID == "" {
			anchored[row.ID] = true
			continue
		}
		bk, ok := byLink[row.LinkID]
		if !ok {
			bk = &bucket{id: row.LinkID}
			byLink[row.LinkID] = bk
			buckets = append(buckets, bk)
		}
		bk.ids = append(bk.ids, row.ID)
	}

	for _, bk := range buckets {
		if len(bk.ids) < 2 {
			res.Singletons++
			continue
		}
		for _, id := range bk.ids {
			anchored[id] = true
		}
	}
	for _, l := range snapshot.Links {
		anchored[l.ParentID] = true
		anchored[l.ChildID] = true
	}

	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if opts.Singletons == SingletonDrop && !anchored[n.ID] {
			continue
		}
		res.Graph.AddNode(n)
		present[n.ID] = true
	}

	index := NewEdgeIndex(opts.Pairs, nil)
	keys := make(map[string]bool)
	emit := func(e domain.Edge) {
		if !present[e.Source] || !present[e.Target] || e.Source == e.Target {
			res.Dangling++
			return
		}
		if keys[e.Key()] || !index.Add(e) {
			res.Duplicates++
			return
		}
		keys[e.Key()] = true
		res.Graph.AddEdge(e)
	}

	for _, bk := range buckets {
		for i := 1; i < len(bk.ids); i++ {
			emit(domain.Edge{
				ID:      bk.id,
				Segment: i - 1,
				Source:  bk.ids[i-1],
				Target:  bk.ids[i],
			})
		}
	}
	for _, l := range snapshot.Links {
		emit(l.Edge())
	}

	return res
}
