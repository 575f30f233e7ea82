package domain

// ElementKind distinguishes nodes from edges in the flat element collection
type ElementKind string

const (
	ElementNode ElementKind = "node"
	ElementEdge ElementKind = "edge"
)

// Element is one entry of the render collection
type Element struct {
	Kind ElementKind `json:"kind"`
	Key  string      `json:"key"`
	Node *Node       `json:"node,omitempty"`
	Edge *Edge       `json:"edge,omitempty"`
}

// Graph is the renderable model: deduplicated nodes and derived edges
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		Nodes: make([]Node, 0),
		Edges: make([]Edge, 0),
	}
}

// AddNode appends a node
func (g *Graph) AddNode(node Node) {
	g.Nodes = append(g.Nodes, node)
}

// AddEdge appends an edge
func (g *Graph) AddEdge(edge Edge) {
	g.Edges = append(g.Edges, edge)
}

// HasNode reports whether a node with id exists
func (g *Graph) HasNode(id string) bool {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return true
		}
	}
	return false
}

// EdgesByID returns every segment carrying the link id
func (g *Graph) EdgesByID(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

// Elements flattens the graph: nodes first, then edges
func (g *Graph) Elements() []Element {
	out := make([]Element, 0, len(g.Nodes)+len(g.Edges))
	for i := range g.Nodes {
		n := g.Nodes[i]
		out = append(out, Element{Kind: ElementNode, Key: n.ID, Node: &n})
	}
	for i := range g.Edges {
		e := g.Edges[i]
		out = append(out, Element{Kind: ElementEdge, Key: e.Key(), Edge: &e})
	}
	return out
}
