// Package surface defines the render surface the controllers drive and a
// headless in-memory Canvas implementing it.
//
// The Canvas stands in for the painter: it keeps the element collection, node
// positions, highlight and lock state and the viewport, and emits the pointer
// and layout events the interaction controller subscribes to. Element changes
// only happen inside Batch so observers never see intermediate states.
package surface

import (
	"context"

	"orgchart/internal/domain"
)

// EventKind identifies a pointer or render event
type EventKind string

const (
	EventGrab       EventKind = "grab"
	EventPosition   EventKind = "position"
	EventRelease    EventKind = "release"
	EventTapNode    EventKind = "tap_node"
	EventTapEdge    EventKind = "tap_edge"
	EventLayoutStop EventKind = "layout_stop"
)

// Event is delivered to handlers registered with On
type Event struct {
	Kind EventKind    `json:"kind"`
	Key  string       `json:"key,omitempty"`
	Pos  domain.Point `json:"pos"`
}

// Handler receives surface events. Handlers run on the goroutine that produced
// the event and must not block.
type Handler func(Event)

// Viewport is the current pan and zoom
type Viewport struct {
	Zoom float64      `json:"zoom"`
	Pan  domain.Point `json:"pan"`
}

// FitOptions controls how Fit frames the elements
type FitOptions struct {
	Padding float64
	MinZoom float64
	MaxZoom float64
}

// LayoutOptions controls a layout run
type LayoutOptions struct {
	// Fit frames the viewport after placement. Reconciliation leaves it off
	// and fits explicitly once the layout has stopped.
	Fit        bool
	FitOptions FitOptions
}

// Tx mutates the surface inside a batch
type Tx interface {
	Add(elements ...domain.Element)
	Remove(keys ...string)
	RemoveLink(linkID string)
	RemoveAll()
	Highlight(key string, on bool)
	Lock(key string)
	Unlock(key string)
	UnlockAll()
}

// Surface is what the reconciliation and interaction controllers need from a
// render surface.
type Surface interface {
	Elements() []domain.Element
	NodePositions() map[string]domain.Point
	Position(key string) (domain.Point, bool)
	Batch(fn func(tx Tx))
	RunLayout(ctx context.Context, opts LayoutOptions) <-chan struct{}
	Fit(opts FitOptions)
	Viewport() Viewport
	On(kind EventKind, h Handler) (off func())
}
