package surface

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/logging"
)

// Default canvas geometry and viewport policy
const (
	DefaultWidth   = 1200.0
	DefaultHeight  = 800.0
	DefaultZoom    = 0.5
	DefaultPadding = 30.0
	DefaultMinZoom = 0.1
	DefaultMaxZoom = 2.0
)

// ChangeKind tells observers what part of the canvas changed
type ChangeKind string

const (
	ChangeElements  ChangeKind = "elements"
	ChangePositions ChangeKind = "positions"
	ChangeViewport  ChangeKind = "viewport"
)

// Options configures a Canvas
type Options struct {
	Width    float64
	Height   float64
	Zoom     float64
	Layout   Layout
	OnChange func(ChangeKind)
}

// State is a point-in-time copy of the canvas
type State struct {
	Elements    []domain.Element        `json:"elements"`
	Positions   map[string]domain.Point `json:"positions"`
	Highlighted []string                `json:"highlighted"`
	Locked      []string                `json:"locked"`
	Viewport    Viewport                `json:"viewport"`
}

// Canvas is a headless render surface
type Canvas struct {
	mu        sync.Mutex
	order     []string
	elements  map[string]domain.Element
	positions map[string]domain.Point
	highlight map[string]bool
	locked    map[string]bool
	viewport  Viewport
	width     float64
	height    float64
	layout    Layout
	onChange  func(ChangeKind)

	subMu   sync.Mutex
	subs    map[EventKind]map[int]Handler
	nextSub int

	logger *zap.Logger
}

var _ Surface = (*Canvas)(nil)

// NewCanvas creates an empty canvas
func NewCanvas(opts Options, logger *zap.Logger) *Canvas {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.Layout == nil {
		opts.Layout = NewPreset(nil, 0)
	}
	return &Canvas{
		elements:  make(map[string]domain.Element),
		positions: make(map[string]domain.Point),
		highlight: make(map[string]bool),
		locked:    make(map[string]bool),
		viewport:  Viewport{Zoom: opts.Zoom},
		width:     opts.Width,
		height:    opts.Height,
		layout:    opts.Layout,
		onChange:  opts.OnChange,
		subs:      make(map[EventKind]map[int]Handler),
		logger:    logging.OrNop(logger).Named("surface"),
	}
}

// Elements returns the element collection in insertion order
func (c *Canvas) Elements() []domain.Element {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Element, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.elements[key])
	}
	return out
}

// Len returns the number of elements
func (c *Canvas) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// NodePositions returns the positions of every placed node
func (c *Canvas) NodePositions() map[string]domain.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]domain.Point, len(c.positions))
	for k, v := range c.positions {
		out[k] = v
	}
	return out
}

// Position returns the position of a node
func (c *Canvas) Position(key string) (domain.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.positions[key]
	return p, ok
}

// Highlighted returns the highlighted keys, sorted
func (c *Canvas) Highlighted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.highlight)
}

// Locked reports whether a node is locked
func (c *Canvas) Locked(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked[key]
}

// Viewport returns the current viewport
func (c *Canvas) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// State copies the whole canvas
func (c *Canvas) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Elements:    make([]domain.Element, 0, len(c.order)),
		Positions:   make(map[string]domain.Point, len(c.positions)),
		Highlighted: sortedKeys(c.highlight),
		Locked:      sortedKeys(c.locked),
		Viewport:    c.viewport,
	}
	for _, key := range c.order {
		st.Elements = append(st.Elements, c.elements[key])
	}
	for k, v := range c.positions {
		st.Positions[k] = v
	}
	return st
}

// Batch applies fn atomically. fn must not call back into the canvas.
func (c *Canvas) Batch(fn func(tx Tx)) {
	c.mu.Lock()
	tx := &canvasTx{c: c}
	fn(tx)
	c.mu.Unlock()

	if tx.dirty {
		c.changed(ChangeElements)
	}
}

// RunLayout places nodes on a separate goroutine, emits EventLayoutStop and
// closes the returned channel once positions are applied.
func (c *Canvas) RunLayout(ctx context.Context, opts LayoutOptions) <-chan struct{} {
	done := make(chan struct{})

	c.mu.Lock()
	var nodes []domain.Node
	for _, key := range c.order {
		if el := c.elements[key]; el.Kind == domain.ElementNode {
			nodes = append(nodes, *el.Node)
		}
	}
	current := make(map[string]domain.Point, len(c.positions))
	for k, v := range c.positions {
		current[k] = v
	}
	c.mu.Unlock()

	go func() {
		defer close(done)

		placed, err := c.layout.Place(ctx, nodes, current)
		if err != nil {
			c.logger.Warn("layout failed, keeping positions", zap.Error(err))
		}

		c.mu.Lock()
		for id, p := range placed {
			if _, ok := c.elements[id]; ok {
				c.positions[id] = p
			}
		}
		c.mu.Unlock()
		c.changed(ChangePositions)

		if opts.Fit {
			c.Fit(opts.FitOptions)
		}
		c.emit(Event{Kind: EventLayoutStop})
	}()

	return done
}

// Fit frames every placed node in the viewport
func (c *Canvas) Fit(opts FitOptions) {
	if opts.MinZoom <= 0 {
		opts.MinZoom = DefaultMinZoom
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = DefaultMaxZoom
	}

	c.mu.Lock()
	if len(c.positions) == 0 {
		c.mu.Unlock()
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range c.positions {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	bw := math.Max(maxX-minX, 1)
	bh := math.Max(maxY-minY, 1)
	zoom := math.Min((c.width-2*opts.Padding)/bw, (c.height-2*opts.Padding)/bh)
	zoom = math.Max(opts.MinZoom, math.Min(opts.MaxZoom, zoom))
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	c.viewport = Viewport{
		Zoom: zoom,
		Pan:  domain.Point{X: c.width/2 - cx*zoom, Y: c.height/2 - cy*zoom},
	}
	c.mu.Unlock()

	c.changed(ChangeViewport)
}

// On registers h for events of kind and returns a function removing it
func (c *Canvas) On(kind EventKind, h Handler) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	if c.subs[kind] == nil {
		c.subs[kind] = make(map[int]Handler)
	}
	c.subs[kind][id] = h

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs[kind], id)
	}
}

// Grab starts a pointer gesture on a node
func (c *Canvas) Grab(key string) error {
	c.mu.Lock()
	el, ok := c.elements[key]
	if !ok || el.Kind != domain.ElementNode {
		c.mu.Unlock()
		return errs.NotFound("grab", "node "+key)
	}
	if c.locked[key] {
		c.mu.Unlock()
		return errs.New(errs.KindInvalid, "grab", "node "+key+" is locked")
	}
	pos := c.positions[key]
	c.mu.Unlock()

	c.emit(Event{Kind: EventGrab, Key: key, Pos: pos})
	return nil
}

// Drag moves a grabbed node
func (c *Canvas) Drag(key string, pos domain.Point) error {
	c.mu.Lock()
	if el, ok := c.elements[key]; !ok || el.Kind != domain.ElementNode {
		c.mu.Unlock()
		return errs.NotFound("drag", "node "+key)
	}
	if c.locked[key] {
		c.mu.Unlock()
		return errs.New(errs.KindInvalid, "drag", "node "+key+" is locked")
	}
	c.positions[key] = pos
	c.mu.Unlock()

	c.changed(ChangePositions)
	c.emit(Event{Kind: EventPosition, Key: key, Pos: pos})
	return nil
}

// Release ends a pointer gesture on a node
func (c *Canvas) Release(key string) error {
	c.mu.Lock()
	if el, ok := c.elements[key]; !ok || el.Kind != domain.ElementNode {
		c.mu.Unlock()
		return errs.NotFound("release", "node "+key)
	}
	pos := c.positions[key]
	c.mu.Unlock()

	c.emit(Event{Kind: EventRelease, Key: key, Pos: pos})
	return nil
}

// Tap clicks an element
func (c *Canvas) Tap(key string) error {
	c.mu.Lock()
	el, ok := c.elements[key]
	pos := c.positions[key]
	c.mu.Unlock()
	if !ok {
		return errs.NotFound("tap", "element "+key)
	}

	kind := EventTapNode
	if el.Kind == domain.ElementEdge {
		kind = EventTapEdge
	}
	c.emit(Event{Kind: kind, Key: key, Pos: pos})
	return nil
}

func (c *Canvas) emit(ev Event) {
	c.subMu.Lock()
	ids := make([]int, 0, len(c.subs[ev.Kind]))
	for id := range c.subs[ev.Kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.subs[ev.Kind][id])
	}
	c.subMu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *Canvas) changed(kind ChangeKind) {
	if c.onChange != nil {
		c.onChange(kind)
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// canvasTx runs with the canvas lock held
type canvasTx struct {
	c     *Canvas
	dirty bool
}

func (tx *canvasTx) Add(elements ...domain.Element) {
	c := tx.c
	for _, el := range elements {
		if _, ok := c.elements[el.Key]; ok {
			c.logger.Debug("skipping duplicate element", zap.String("key", el.Key))
			continue
		}
		if el.Kind == domain.ElementEdge {
			if el.Edge == nil || !tx.hasNode(el.Edge.Source) || !tx.hasNode(el.Edge.Target) {
				c.logger.Debug("skipping edge with missing endpoint", zap.String("key", el.Key))
				continue
			}
		} else if el.Node == nil {
			continue
		}
		c.elements[el.Key] = el
		c.order = append(c.order, el.Key)
		tx.dirty = true
	}
}

func (tx *canvasTx) hasNode(id string) bool {
	el, ok := tx.c.elements[id]
	return ok && el.Kind == domain.ElementNode
}

func (tx *canvasTx) Remove(keys ...string) {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := tx.c.elements[k]; ok {
			drop[k] = true
		}
	}
	// removing a node takes its edges with it
	for _, el := range tx.c.elements {
		if el.Kind == domain.ElementEdge && (drop[el.Edge.Source] || drop[el.Edge.Target]) {
			drop[el.Key] = true
		}
	}
	tx.removeSet(drop)
}

func (tx *canvasTx) RemoveLink(linkID string) {
	drop := make(map[string]bool)
	for key, el := range tx.c.elements {
		if el.Kind == domain.ElementEdge && el.Edge.ID == linkID {
			drop[key] = true
		}
	}
	tx.removeSet(drop)
}

func (tx *canvasTx) RemoveAll() {
	c := tx.c
	if len(c.order) == 0 {
		return
	}
	c.order = nil
	c.elements = make(map[string]domain.Element)
	c.positions = make(map[string]domain.Point)
	c.highlight = make(map[string]bool)
	c.locked = make(map[string]bool)
	tx.dirty = true
}

func (tx *canvasTx) removeSet(drop map[string]bool) {
	if len(drop) == 0 {
		return
	}
	c := tx.c
	kept := c.order[:0]
	for _, key := range c.order {
		if drop[key] {
			delete(c.elements, key)
			delete(c.positions, key)
			delete(c.highlight, key)
			delete(c.locked, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
	tx.dirty = true
}

func (tx *canvasTx) Highlight(key string, on bool) {
	if _, ok := tx.c.elements[key]; !ok {
		return
	}
	if tx.c.highlight[key] == on {
		return
	}
	if on {
		tx.c.highlight[key] = true
	} else {
		delete(tx.c.highlight, key)
	}
	tx.dirty = true
}

func (tx *canvasTx) Lock(key string) {
	if _, ok := tx.c.elements[key]; ok && !tx.c.locked[key] {
		tx.c.locked[key] = true
		tx.dirty = true
	}
}

func (tx *canvasTx) Unlock(key string) {
	if tx.c.locked[key] {
		delete(tx.c.locked, key)
		tx.dirty = true
	}
}

func (tx *canvasTx) UnlockAll() {
	if len(tx.c.locked) > 0 {
		tx.c.locked = make(map[string]bool)
		tx.dirty = true
	}
}
