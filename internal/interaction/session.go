package interaction

import "orgchart/internal/domain"

// DragSession is the state between grabbing and releasing one node
type DragSession struct {
	NodeID string
	Origin domain.Point
	Latest domain.Point
	// Moved is set by the first position event. A release without movement
	// is a click and never proposes edges.
	Moved bool
}

func newDragSession(nodeID string, at domain.Point) *DragSession {
	return &DragSession{NodeID: nodeID, Origin: at, Latest: at}
}

func (s *DragSession) moveTo(p domain.Point) {
	s.Latest = p
	s.Moved = true
}
