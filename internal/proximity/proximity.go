// Package proximity decides which nodes are close enough to a dragged node to
// be highlighted and, on release, connected to it.
package proximity

import (
	"sort"

	"orgchart/internal/domain"
	"orgchart/internal/graph"
)

// DefaultThreshold is the near/far boundary in pixels
const DefaultThreshold = 50.0

// Candidate is a visible node and its current position
type Candidate struct {
	ID  string
	Pos domain.Point
}

// Proposal is an edge the heuristic wants created
type Proposal struct {
	Source string
	Target string
}

// Classifier compares squared distances against a fixed threshold
type Classifier struct {
	thresholdSq float64
}

// New creates a classifier. A non-positive threshold falls back to DefaultThreshold.
func New(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Classifier{thresholdSq: threshold * threshold}
}

// Near reports whether p lies strictly within the threshold of dragged
func (c Classifier) Near(dragged, p domain.Point) bool {
	return dragged.DistSq(p) < c.thresholdSq
}

// Classify returns the ids of candidates near the dragged node, in candidate
// order. The dragged node itself is never a candidate.
func (c Classifier) Classify(draggedID string, dragged domain.Point, candidates []Candidate) []string {
	var near []string
	for _, cand := range candidates {
		if cand.ID == draggedID {
			continue
		}
		if c.Near(dragged, cand.Pos) {
			near = append(near, cand.ID)
		}
	}
	return near
}

// Propose returns one proposal per near candidate that is not already connected
// to the dragged node, plus the near candidates that were suppressed as duplicates.
func (c Classifier) Propose(draggedID string, dragged domain.Point, candidates []Candidate, existing *graph.EdgeIndex) (proposals []Proposal, duplicates []string) {
	seen := make(map[string]bool)
	for _, id := range c.Classify(draggedID, dragged, candidates) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if existing != nil && existing.Has(id, draggedID) {
			duplicates = append(duplicates, id)
			continue
		}
		proposals = append(proposals, Proposal{Source: id, Target: draggedID})
	}
	return proposals, duplicates
}

// Diff compares the previously highlighted set with the currently near ids and
// returns which ids enter and which leave the highlight, both sorted.
func Diff(highlighted map[string]bool, near []string) (enter, leave []string) {
	now := make(map[string]bool, len(near))
	for _, id := range near {
		now[id] = true
		if !highlighted[id] {
			enter = append(enter, id)
		}
	}
	for id := range highlighted {
		if !now[id] {
			leave = append(leave, id)
		}
	}
	sort.Strings(enter)
	sort.Strings(leave)
	return enter, leave
}
