package domain

import (
	"strconv"
	"strings"
)

// segmentSeparator joins a link id and a segment ordinal into an element key
const segmentSeparator = "#"

// Edge represents a derived connection between two nodes
type Edge struct {
	ID      string `json:"id"`
	Segment int    `json:"segment,omitempty"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Label   string `json:"label,omitempty"`
}

// NewEdge creates the first segment of a link
func NewEdge(id, source, target string) *Edge {
	return &Edge{ID: id, Source: source, Target: target}
}

// Key returns the render element key. Segments of one link share ID, so every
// segment after the first is suffixed with its ordinal.
func (e Edge) Key() string {
	if e.Segment == 0 {
		return e.ID
	}
	return e.ID + segmentSeparator + strconv.Itoa(e.Segment)
}

// LinkIDFromKey recovers the link id from an element key
func LinkIDFromKey(key string) string {
	if i := strings.LastIndex(key, segmentSeparator); i > 0 {
		if _, err := strconv.Atoi(key[i+1:]); err == nil {
			return key[:i]
		}
	}
	return key
}

// Connects reports whether the edge joins a and b in either direction
func (e Edge) Connects(a, b string) bool {
	return (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a)
}

// Touches reports whether the edge has id as one of its endpoints
func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}
