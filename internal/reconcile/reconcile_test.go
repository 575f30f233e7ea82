package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/surface"
)

type fakeFetcher struct {
	mu       sync.Mutex
	snapshot *domain.Snapshot
	err      error
	calls    int
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, account string) (*domain.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

func (f *fakeFetcher) set(s *domain.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot, f.err = s, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func chainSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Account: "acme",
		Rows: []domain.Row{
			{ID: "A", Label: "Ada", LinkID: "L1"},
			{ID: "B", Label: "Bob", LinkID: "L1"},
			{ID: "C", Label: "Cy", LinkID: "L1"},
		},
	}
}

func newController(f *fakeFetcher) (*Controller, *surface.Canvas) {
	canvas := surface.NewCanvas(surface.Options{}, nil)
	c := New(f, canvas, Options{
		Account: "acme",
		Fit:     surface.FitOptions{Padding: 30, MinZoom: 0.1, MaxZoom: 2},
	}, nil, nil)
	return c, canvas
}

func TestReconcileRebuildsSurface(t *testing.T) {
	f := &fakeFetcher{snapshot: chainSnapshot()}
	c, canvas := newController(f)
	before := canvas.Viewport()

	require.NoError(t, c.Reconcile(context.Background()))

	keys := make([]string, 0)
	for _, el := range canvas.Elements() {
		keys = append(keys, el.Key)
	}
	assert.Equal(t, []string{"A", "B", "C", "L1", "L1#1"}, keys)
	assert.Len(t, c.Graph().EdgesByID("L1"), 2)
	assert.True(t, c.Loaded())
	assert.NotEqual(t, before, canvas.Viewport(), "viewport is fitted after layout")
	assert.Len(t, canvas.NodePositions(), 3)
}

func TestDeletedLinkRemovesEverySegment(t *testing.T) {
	f := &fakeFetcher{snapshot: chainSnapshot()}
	c, canvas := newController(f)
	require.NoError(t, c.Reconcile(context.Background()))

	f.set(&domain.Snapshot{Account: "acme", Rows: []domain.Row{{ID: "A"}, {ID: "B"}, {ID: "C"}}}, nil)
	require.NoError(t, c.Reconcile(context.Background()))

	assert.Equal(t, 3, canvas.Len())
	assert.Empty(t, c.Graph().EdgesByID("L1"))
}

func TestFailedRefetchKeepsView(t *testing.T) {
	f := &fakeFetcher{snapshot: chainSnapshot()}
	c, canvas := newController(f)
	require.NoError(t, c.Reconcile(context.Background()))
	count, viewport := canvas.Len(), canvas.Viewport()

	f.set(nil, errors.New("connection refused"))
	err := c.Reconcile(context.Background())

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindFetch))
	assert.Equal(t, count, canvas.Len())
	assert.Equal(t, viewport, canvas.Viewport())
	assert.Len(t, c.Graph().Nodes, 3)
}

func TestInitialFetchFailureLeavesUnloaded(t *testing.T) {
	f := &fakeFetcher{err: errors.New("unreachable")}
	c, canvas := newController(f)

	assert.Error(t, c.Reconcile(context.Background()))
	assert.False(t, c.Loaded())
	assert.Equal(t, 0, canvas.Len())
}

func TestReconcileReleasesLocks(t *testing.T) {
	f := &fakeFetcher{snapshot: chainSnapshot()}
	c, canvas := newController(f)
	require.NoError(t, c.Reconcile(context.Background()))
	canvas.Batch(func(tx surface.Tx) { tx.Lock("A") })

	require.NoError(t, c.Reconcile(context.Background()))

	assert.False(t, canvas.Locked("A"))
}

func TestConcurrentCallsCoalesce(t *testing.T) {
	f := &fakeFetcher{
		snapshot: chainSnapshot(),
		started:  make(chan struct{}, 4),
		release:  make(chan struct{}),
	}
	c, _ := newController(f)

	results := make(chan error, 4)
	go func() { results <- c.Reconcile(context.Background()) }()
	<-f.started

	for i := 0; i < 3; i++ {
		go func() { results <- c.Reconcile(context.Background()) }()
	}
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.trailing) == 3
	}, time.Second, time.Millisecond)

	close(f.release)
	for i := 0; i < 4; i++ {
		assert.NoError(t, <-results)
	}

	assert.Equal(t, 2, f.callCount(), "one running cycle plus one trailing cycle")
}

func TestAwaitRebuilt(t *testing.T) {
	f := &fakeFetcher{
		snapshot: chainSnapshot(),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	c, _ := newController(f)
	require.NoError(t, c.AwaitRebuilt(context.Background()), "idle controller never blocks")

	go c.Reconcile(context.Background())
	<-f.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AwaitRebuilt(ctx), context.DeadlineExceeded)

	close(f.release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, c.AwaitRebuilt(ctx2))
}

func TestAwaitRebuiltOpensOnFetchFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("down")}
	c, _ := newController(f)

	_ = c.Reconcile(context.Background())

	assert.NoError(t, c.AwaitRebuilt(context.Background()))
}

func TestCallerCancelDoesNotStopCycle(t *testing.T) {
	f := &fakeFetcher{
		snapshot: chainSnapshot(),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	c, canvas := newController(f)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Reconcile(ctx) }()
	<-f.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(f.release)
	assert.Eventually(t, func() bool { return canvas.Len() == 5 }, time.Second, time.Millisecond)
}
