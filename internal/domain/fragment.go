package domain

// GraphFragment is a partial account graph for import/export
type GraphFragment struct {
	Records []Record `json:"records,omitempty" yaml:"records,omitempty" toml:"records,omitempty"`
	Nodes   []Row    `json:"nodes" yaml:"nodes" toml:"nodes"`
	Links   []Link   `json:"links,omitempty" yaml:"links,omitempty" toml:"links,omitempty"`
}

// NewGraphFragment creates an empty graph fragment
func NewGraphFragment() *GraphFragment {
	return &GraphFragment{
		Nodes: make([]Row, 0),
		Links: make([]Link, 0),
	}
}

// AddNode adds a node row to the fragment
func (g *GraphFragment) AddNode(row Row) {
	g.Nodes = append(g.Nodes, row)
}

// AddLink adds a link to the fragment
func (g *GraphFragment) AddLink(link Link) {
	g.Links = append(g.Links, link)
}

// ChainLinks turns rows sharing a link id into link segments in row order.
// Rows without a partner yield nothing.
func (g *GraphFragment) ChainLinks() []Link {
	order := make([]string, 0)
	buckets := make(map[string][]string)
	for _, r := range g.Nodes {
		if r.LinkID == "" {
			continue
		}
		if _, ok := buckets[r.LinkID]; !ok {
			order = append(order, r.LinkID)
		}
		buckets[r.LinkID] = append(buckets[r.LinkID], r.ID)
	}

	var links []Link
	for _, linkID := range order {
		ids := buckets[linkID]
		for i := 1; i < len(ids); i++ {
			links = append(links, Link{
				ID:       linkID,
				Ordinal:  i - 1,
				ParentID: ids[i-1],
				ChildID:  ids[i],
			})
		}
	}
	return links
}
