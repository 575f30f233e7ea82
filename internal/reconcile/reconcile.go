// Package reconcile restores the rendered graph to the backend's truth.
//
// A cycle runs strictly in order: refetch, rebuild, swap every element in one
// batch and release pointer locks, lay out without fitting, then fit once the
// layout has stopped. A failed refetch aborts before the surface is touched.
//
// Cycles never overlap. A call made while a cycle runs is folded into a single
// trailing cycle that every such caller waits on.
package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/graph"
	"orgchart/internal/logging"
	"orgchart/internal/metrics"
	"orgchart/internal/repository"
	"orgchart/internal/surface"
)

// Options configures the controller
type Options struct {
	Account string
	Build   graph.Options
	Fit     surface.FitOptions
}

// Controller runs reconciliation cycles against one surface
type Controller struct {
	fetcher repository.Fetcher
	builder *graph.Builder
	surface surface.Surface
	opts    Options
	metrics *metrics.Collector
	logger  *zap.Logger

	mu       sync.Mutex
	running  bool
	current  []chan error
	trailing []chan error
	rebuilt  chan struct{}
	gateOpen bool
	graph    *domain.Graph
	loaded   bool
}

// New creates a controller
func New(fetcher repository.Fetcher, s surface.Surface, opts Options, collector *metrics.Collector, logger *zap.Logger) *Controller {
	logger = logging.OrNop(logger)
	open := make(chan struct{})
	close(open)
	return &Controller{
		fetcher:  fetcher,
		builder:  graph.NewBuilder(opts.Build, logger),
		surface:  s,
		opts:     opts,
		metrics:  collector,
		logger:   logger.Named("reconcile"),
		rebuilt:  open,
		gateOpen: true,
		graph:    domain.NewGraph(),
	}
}

// Reconcile runs a cycle, or joins the trailing cycle when one is in flight,
// and returns that cycle's result. Cancelling ctx stops the wait, not the cycle.
func (c *Controller) Reconcile(ctx context.Context) error {
	done := make(chan error, 1)

	c.mu.Lock()
	if c.running {
		c.trailing = append(c.trailing, done)
		c.mu.Unlock()
		c.logger.Debug("reconcile coalesced into trailing cycle")
	} else {
		c.running = true
		c.current = append(c.current, done)
		c.closeGate()
		c.mu.Unlock()
		go c.run(context.WithoutCancel(ctx))
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitRebuilt blocks until no cycle is between its start and its element swap
func (c *Controller) AwaitRebuilt(ctx context.Context) error {
	c.mu.Lock()
	gate := c.rebuilt
	c.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Graph returns the most recently rebuilt model
func (c *Controller) Graph() *domain.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

// Loaded reports whether any cycle has reached the element swap
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Controller) run(ctx context.Context) {
	for {
		err := c.cycle(ctx)

		c.mu.Lock()
		c.openGate()
		for _, ch := range c.current {
			ch <- err
		}
		c.current = nil
		if len(c.trailing) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.current, c.trailing = c.trailing, nil
		c.closeGate()
		c.mu.Unlock()
	}
}

func (c *Controller) cycle(ctx context.Context) error {
	start := time.Now()

	snapshot, err := c.fetcher.Fetch(ctx, c.opts.Account)
	if err != nil {
		c.logger.Warn("refetch failed, keeping current view",
			zap.String("account", c.opts.Account),
			zap.Error(err))
		c.metrics.ReconcileDone("fetch_error", 0)
		return errs.Fetch("reconcile", err)
	}

	res := c.builder.Build(snapshot)
	elements := res.Graph.Elements()

	c.surface.Batch(func(tx surface.Tx) {
		tx.RemoveAll()
		tx.Add(elements...)
		tx.UnlockAll()
	})

	c.mu.Lock()
	c.graph = res.Graph
	c.loaded = true
	c.openGate()
	c.mu.Unlock()

	<-c.surface.RunLayout(ctx, surface.LayoutOptions{Fit: false})
	c.surface.Fit(c.opts.Fit)

	c.metrics.ReconcileDone("ok", len(elements))
	c.logger.Info("reconciled",
		zap.String("account", c.opts.Account),
		zap.Int("nodes", len(res.Graph.Nodes)),
		zap.Int("edges", len(res.Graph.Edges)),
		zap.Int("dangling", res.Dangling),
		zap.Duration("took", time.Since(start)))
	return nil
}

// closeGate must be called with c.mu held
func (c *Controller) closeGate() {
	if c.gateOpen {
		c.rebuilt = make(chan struct{})
		c.gateOpen = false
	}
}

// openGate must be called with c.mu held
func (c *Controller) openGate() {
	if !c.gateOpen {
		close(c.rebuilt)
		c.gateOpen = true
	}
}
