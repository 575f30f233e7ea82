package domain

// Origin tells whether a node is backed by a real record or is free text
type Origin string

const (
	OriginRecord      Origin = "record"
	OriginPlaceholder Origin = "placeholder"
)

// NoDepartment is shown when a node has no department
const NoDepartment = "No Department"

// Style holds the optional display hints of a node
type Style struct {
	FillColor   string `json:"fill_color,omitempty" yaml:"fill_color,omitempty" toml:"fill_color,omitempty"`
	BorderColor string `json:"border_color,omitempty" yaml:"border_color,omitempty" toml:"border_color,omitempty"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`
	Department  string `json:"department,omitempty" yaml:"department,omitempty" toml:"department,omitempty"`
	Function    string `json:"function,omitempty" yaml:"function,omitempty" toml:"function,omitempty"`
}

// Node represents a person or placeholder in the rendered graph
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Origin    Origin `json:"origin"`
	RecordRef string `json:"record_ref,omitempty"`
	Style     Style  `json:"style"`
}

// NewNode creates a node with display fallbacks applied
func NewNode(id, label string, origin Origin) *Node {
	n := &Node{
		ID:     id,
		Label:  label,
		Origin: origin,
	}
	n.applyFallbacks()
	return n
}

// IsPlaceholder reports whether the node is free text without a backing record
func (n *Node) IsPlaceholder() bool {
	return n.Origin != OriginRecord || n.RecordRef == ""
}

func (n *Node) applyFallbacks() {
	if n.Origin == "" {
		n.Origin = OriginPlaceholder
	}
	if n.Label == "" {
		n.Label = n.ID
	}
	if n.Style.Department == "" {
		n.Style.Department = NoDepartment
	}
}
