package domain

import (
	"testing"
)

func TestNewGraph(t *testing.T) {
	graph := NewGraph()

	if graph.Nodes == nil || len(graph.Nodes) != 0 {
		t.Error("expected Nodes to be initialized and empty")
	}
	if graph.Edges == nil || len(graph.Edges) != 0 {
		t.Error("expected Edges to be initialized and empty")
	}
}

func TestGraphElements(t *testing.T) {
	graph := NewGraph()
	graph.AddNode(*NewNode("a", "A", OriginRecord))
	graph.AddNode(*NewNode("b", "B", OriginRecord))
	graph.AddNode(*NewNode("c", "C", OriginRecord))
	graph.AddEdge(Edge{ID: "L1", Source: "a", Target: "b"})
	graph.AddEdge(Edge{ID: "L1", Segment: 1, Source: "b", Target: "c"})

	elements := graph.Elements()

	t.Run("nodes precede edges", func(t *testing.T) {
		if len(elements) != 5 {
			t.Fatalf("expected 5 elements, got %d", len(elements))
		}
		for i := 0; i < 3; i++ {
			if elements[i].Kind != ElementNode {
				t.Errorf("element %d: expected node, got %s", i, elements[i].Kind)
			}
		}
		for i := 3; i < 5; i++ {
			if elements[i].Kind != ElementEdge {
				t.Errorf("element %d: expected edge, got %s", i, elements[i].Kind)
			}
		}
	})

	t.Run("segments get distinct keys", func(t *testing.T) {
		if elements[3].Key == elements[4].Key {
			t.Errorf("expected distinct keys, got %q twice", elements[3].Key)
		}
	})

	t.Run("elements do not alias graph storage", func(t *testing.T) {
		elements[0].Node.Label = "changed"
		if graph.Nodes[0].Label == "changed" {
			t.Error("expected element node to be a copy")
		}
	})
}

func TestGraphLookups(t *testing.T) {
	graph := NewGraph()
	graph.AddNode(*NewNode("a", "A", OriginRecord))
	graph.AddEdge(Edge{ID: "L1", Source: "a", Target: "b"})
	graph.AddEdge(Edge{ID: "L1", Segment: 1, Source: "b", Target: "c"})
	graph.AddEdge(Edge{ID: "L2", Source: "c", Target: "d"})

	if !graph.HasNode("a") || graph.HasNode("z") {
		t.Error("unexpected HasNode result")
	}
	if got := len(graph.EdgesByID("L1")); got != 2 {
		t.Errorf("expected 2 segments for L1, got %d", got)
	}
}

func TestGraphFragmentChainLinks(t *testing.T) {
	fragment := NewGraphFragment()
	fragment.AddNode(Row{ID: "a", LinkID: "L1"})
	fragment.AddNode(Row{ID: "x", LinkID: "L2"})
	fragment.AddNode(Row{ID: "b", LinkID: "L1"})
	fragment.AddNode(Row{ID: "c", LinkID: "L1"})
	fragment.AddNode(Row{ID: "y"})

	links := fragment.ChainLinks()

	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].ParentID != "a" || links[0].ChildID != "b" || links[0].Ordinal != 0 {
		t.Errorf("unexpected first link %+v", links[0])
	}
	if links[1].ParentID != "b" || links[1].ChildID != "c" || links[1].Ordinal != 1 {
		t.Errorf("unexpected second link %+v", links[1])
	}
}
