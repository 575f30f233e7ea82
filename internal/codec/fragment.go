package codec

import (
	"orgchart/internal/domain"
)

// fileFragment is the on-disk layout shared by every format. Rows is the
// chained form: consecutive rows with the same link_id become link segments.
type fileFragment struct {
	Records []domain.Record `json:"records,omitempty" yaml:"records,omitempty" toml:"records,omitempty"`
	Nodes   []domain.Row    `json:"nodes,omitempty" yaml:"nodes,omitempty" toml:"nodes,omitempty"`
	Rows    []domain.Row    `json:"rows,omitempty" yaml:"rows,omitempty" toml:"rows,omitempty"`
	Links   []domain.Link   `json:"links,omitempty" yaml:"links,omitempty" toml:"links,omitempty"`
}

func newFileFragment(f *domain.GraphFragment) fileFragment {
	return fileFragment{
		Records: f.Records,
		Nodes:   f.Nodes,
		Links:   f.Links,
	}
}

// fragment appends rows after nodes. The importer keeps the first row of each
// node id and chains every row by its link id.
func (ff fileFragment) fragment() *domain.GraphFragment {
	frag := domain.NewGraphFragment()
	frag.Records = ff.Records
	for _, n := range ff.Nodes {
		frag.AddNode(n)
	}
	for _, r := range ff.Rows {
		frag.AddNode(r)
	}
	for _, l := range ff.Links {
		frag.AddLink(l)
	}
	return frag
}
