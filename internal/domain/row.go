package domain

// Row is one unit of the backend's relational answer. Rows sharing a non-empty
// LinkID are chained in row order.
type Row struct {
	ID        string `json:"id" yaml:"id" toml:"id" validate:"required"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty" validate:"max=255"`
	Origin    Origin `json:"origin,omitempty" yaml:"origin,omitempty" toml:"origin,omitempty" validate:"omitempty,oneof=record placeholder"`
	RecordRef string `json:"record_ref,omitempty" yaml:"record_ref,omitempty" toml:"record_ref,omitempty"`
	LinkID    string `json:"link_id,omitempty" yaml:"link_id,omitempty" toml:"link_id,omitempty"`
	Style     `yaml:",inline"`
}

// NewRow validates and returns a row
func NewRow(id, label string, origin Origin) (Row, error) {
	r := Row{ID: id, Label: label, Origin: origin}
	if err := Validate(r); err != nil {
		return Row{}, err
	}
	return r, nil
}

// Node converts the row to a node with fallbacks applied
func (r Row) Node() *Node {
	origin := r.Origin
	if origin == "" {
		origin = OriginPlaceholder
		if r.RecordRef != "" {
			origin = OriginRecord
		}
	}
	n := &Node{
		ID:        r.ID,
		Label:     r.Label,
		Origin:    origin,
		RecordRef: r.RecordRef,
		Style:     r.Style,
	}
	n.applyFallbacks()
	return n
}

// Link is an explicit parent/child relationship record. Ordinal numbers the
// segments of a link that was created from a chained bucket.
type Link struct {
	ID       string `json:"id" yaml:"id" toml:"id" validate:"required"`
	Ordinal  int    `json:"ordinal,omitempty" yaml:"ordinal,omitempty" toml:"ordinal,omitempty" validate:"min=0"`
	ParentID string `json:"parent_id" yaml:"parent_id" toml:"parent_id" validate:"required"`
	ChildID  string `json:"child_id" yaml:"child_id" toml:"child_id" validate:"required,nefield=ParentID"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
}

// Edge converts the link to an edge
func (l Link) Edge() Edge {
	return Edge{
		ID:      l.ID,
		Segment: l.Ordinal,
		Source:  l.ParentID,
		Target:  l.ChildID,
		Label:   l.Label,
	}
}

// Record is a backing entity a node can point at
type Record struct {
	ID         string `json:"id" yaml:"id" toml:"id" validate:"required"`
	AccountID  string `json:"account_id" yaml:"account_id" toml:"account_id"`
	Name       string `json:"name" yaml:"name" toml:"name" validate:"required"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	Department string `json:"department,omitempty" yaml:"department,omitempty" toml:"department,omitempty"`
	Function   string `json:"function,omitempty" yaml:"function,omitempty" toml:"function,omitempty"`
	Priority   string `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`
}

// Snapshot is the authoritative answer of one fetch. Rows may carry link ids,
// Links carry explicit references; either or both may be present.
type Snapshot struct {
	Account string `json:"account"`
	Rows    []Row  `json:"rows"`
	Links   []Link `json:"links,omitempty"`
}
