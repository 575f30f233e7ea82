// Package interaction turns pointer events from the render surface into
// highlight updates and mutation intents.
//
// A drag session runs idle → grabbed → (position)* → released → idle. Position
// events are coalesced: only the latest position is kept and at most one
// proximity evaluation is scheduled per frame.
package interaction

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"orgchart/internal/domain"
	"orgchart/internal/graph"
	"orgchart/internal/logging"
	"orgchart/internal/metrics"
	"orgchart/internal/proximity"
	"orgchart/internal/surface"
)

// PendingPrefix marks the keys of optimistic edges awaiting their write
const PendingPrefix = "pending:"

// Mutator receives the intents the controller produces
type Mutator interface {
	CreateEdge(ctx context.Context, source, target string) error
	EditNode(ctx context.Context, nodeID string) error
	DeleteEdge(ctx context.Context, linkID string) error
}

// Options configures the controller
type Options struct {
	Threshold float64
	Pairs     graph.PairStrategy
}

// Controller owns the drag session of one surface
type Controller struct {
	surface    surface.Surface
	frames     surface.FrameScheduler
	mutator    Mutator
	classifier proximity.Classifier
	pairs      graph.PairStrategy
	metrics    *metrics.Collector
	logger     *zap.Logger

	mu          sync.Mutex
	drag        *DragSession
	highlighted map[string]bool
	cancelFrame func()
	offs        []func()
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller and subscribes it to the surface
func New(s surface.Surface, frames surface.FrameScheduler, m Mutator, opts Options, collector *metrics.Collector, logger *zap.Logger) *Controller {
	if frames == nil {
		frames = surface.NewTimerFrames(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		surface:     s,
		frames:      frames,
		mutator:     m,
		classifier:  proximity.New(opts.Threshold),
		pairs:       opts.Pairs,
		metrics:     collector,
		logger:      logging.OrNop(logger).Named("interaction"),
		highlighted: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}

	c.offs = []func(){
		s.On(surface.EventGrab, c.onGrab),
		s.On(surface.EventPosition, c.onPosition),
		s.On(surface.EventRelease, c.onRelease),
		s.On(surface.EventTapNode, c.onTapNode),
		s.On(surface.EventTapEdge, c.onTapEdge),
	}
	return c
}

// Session returns a copy of the active drag session, if any
func (c *Controller) Session() (DragSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return DragSession{}, false
	}
	return *c.drag, true
}

// Wait blocks until every dispatched intent has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close unsubscribes from the surface, drops any pending frame and waits for
// in-flight intents.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, off := range c.offs {
		off()
	}
	c.offs = nil
	c.stopFrame()
	c.drag = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) onGrab(ev surface.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.drag = newDragSession(ev.Key, ev.Pos)
	c.logger.Debug("grab", zap.String("node", ev.Key))
}

func (c *Controller) onPosition(ev surface.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.drag == nil || c.drag.NodeID != ev.Key {
		return
	}
	c.drag.moveTo(ev.Pos)
	if c.cancelFrame == nil {
		c.cancelFrame = c.frames.Request(c.onFrame)
	}
}

func (c *Controller) onFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFrame = nil
	if c.closed || c.drag == nil {
		return
	}

	near := c.classifier.Classify(c.drag.NodeID, c.drag.Latest, candidates(c.surface.NodePositions()))
	enter, leave := proximity.Diff(c.highlighted, near)
	if len(enter) == 0 && len(leave) == 0 {
		return
	}
	c.surface.Batch(func(tx surface.Tx) {
		for _, id := range enter {
			tx.Highlight(id, true)
			c.highlighted[id] = true
		}
		for _, id := range leave {
			tx.Highlight(id, false)
			delete(c.highlighted, id)
		}
	})
}

func (c *Controller) onRelease(ev surface.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	drag := c.drag
	c.drag = nil
	c.stopFrame()
	c.clearHighlights()

	if drag == nil || drag.NodeID != ev.Key {
		return
	}
	if !drag.Moved {
		c.logger.Debug("release without movement", zap.String("node", drag.NodeID))
		return
	}

	idx := graph.NewEdgeIndex(c.pairs, edges(c.surface.Elements()))
	proposals, duplicates := c.classifier.Propose(drag.NodeID, ev.Pos, candidates(c.surface.NodePositions()), idx)
	for range duplicates {
		c.metrics.Proposal("duplicate")
	}
	if len(proposals) == 0 {
		return
	}

	pending := make([]domain.Element, 0, len(proposals))
	for _, p := range proposals {
		e := domain.Edge{ID: pendingKey(p), Source: p.Source, Target: p.Target}
		pending = append(pending, domain.Element{Kind: domain.ElementEdge, Key: e.ID, Edge: &e})
	}
	c.surface.Batch(func(tx surface.Tx) {
		tx.Add(pending...)
		tx.Lock(drag.NodeID)
	})

	c.logger.Info("proposing edges",
		zap.String("node", drag.NodeID),
		zap.Int("proposals", len(proposals)),
		zap.Int("duplicates", len(duplicates)))

	c.spawn(func(ctx context.Context) {
		c.createProposed(ctx, drag.NodeID, proposals)
	})
}

func (c *Controller) createProposed(ctx context.Context, nodeID string, proposals []proximity.Proposal) {
	for _, p := range proposals {
		c.metrics.Proposal("proposed")
		if err := c.mutator.CreateEdge(ctx, p.Source, p.Target); err != nil {
			c.metrics.Proposal("rejected")
			c.logger.Debug("rolling back proposed edge",
				zap.String("source", p.Source),
				zap.String("target", p.Target),
				zap.Error(err))
			key := pendingKey(p)
			c.surface.Batch(func(tx surface.Tx) { tx.Remove(key) })
			continue
		}
		c.metrics.Proposal("created")
	}
	c.surface.Batch(func(tx surface.Tx) { tx.Unlock(nodeID) })
}

func (c *Controller) onTapNode(ev surface.Event) {
	c.dispatch(func(ctx context.Context) {
		if err := c.mutator.EditNode(ctx, ev.Key); err != nil {
			c.logger.Debug("edit node failed", zap.String("node", ev.Key), zap.Error(err))
		}
	})
}

func (c *Controller) onTapEdge(ev surface.Event) {
	if strings.HasPrefix(ev.Key, PendingPrefix) {
		return
	}
	linkID := domain.LinkIDFromKey(ev.Key)
	c.dispatch(func(ctx context.Context) {
		if err := c.mutator.DeleteEdge(ctx, linkID); err != nil {
			c.logger.Debug("delete edge failed", zap.String("link", linkID), zap.Error(err))
		}
	})
}

// dispatch runs fn on its own goroutine unless the controller is closed
func (c *Controller) dispatch(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.spawn(fn)
}

// spawn must be called with c.mu held on an open controller
func (c *Controller) spawn(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// stopFrame must be called with c.mu held
func (c *Controller) stopFrame() {
	if c.cancelFrame != nil {
		c.cancelFrame()
		c.cancelFrame = nil
	}
}

// clearHighlights must be called with c.mu held
func (c *Controller) clearHighlights() {
	if len(c.highlighted) == 0 {
		return
	}
	c.surface.Batch(func(tx surface.Tx) {
		for id := range c.highlighted {
			tx.Highlight(id, false)
		}
	})
	c.highlighted = make(map[string]bool)
}

func pendingKey(p proximity.Proposal) string {
	return PendingPrefix + p.Source + ">" + p.Target
}

func candidates(positions map[string]domain.Point) []proximity.Candidate {
	out := make([]proximity.Candidate, 0, len(positions))
	for id, p := range positions {
		out = append(out, proximity.Candidate{ID: id, Pos: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func edges(elements []domain.Element) []domain.Edge {
	var out []domain.Edge
	for _, el := range elements {
		if el.Kind == domain.ElementEdge && el.Edge != nil {
			out = append(out, *el.Edge)
		}
	}
	return out
}
