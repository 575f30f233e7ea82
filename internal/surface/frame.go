package surface

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display frame
const DefaultFrameInterval = 16 * time.Millisecond

// FrameScheduler runs callbacks on the next frame
type FrameScheduler interface {
	// Request schedules fn for the next frame and returns a function that
	// cancels it if it has not run yet.
	Request(fn func()) (cancel func())
}

// TimerFrames schedules frames on a fixed interval timer
type TimerFrames struct {
	interval time.Duration
}

// NewTimerFrames creates a timer based scheduler
func NewTimerFrames(interval time.Duration) *TimerFrames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TimerFrames{interval: interval}
}

// Request implements FrameScheduler
func (f *TimerFrames) Request(fn func()) func() {
	t := time.AfterFunc(f.interval, fn)
	return func() { t.Stop() }
}

// ManualFrames runs frames only when Flush is called. Used to drive frame
// throttling deterministically.
type ManualFrames struct {
	mu      sync.Mutex
	next    int
	order   []int
	pending map[int]func()
}

// NewManualFrames creates a manual scheduler
func NewManualFrames() *ManualFrames {
	return &ManualFrames{pending: make(map[int]func())}
}

// Request implements FrameScheduler
func (f *ManualFrames) Request(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	f.order = append(f.order, id)
	f.pending[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.pending, id)
	}
}

// Pending returns the number of scheduled callbacks not yet run or cancelled
func (f *ManualFrames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Flush runs every pending callback in request order and returns how many ran
func (f *ManualFrames) Flush() int {
	f.mu.Lock()
	var fns []func()
	for _, id := range f.order {
		if fn, ok := f.pending[id]; ok {
			fns = append(fns, fn)
			delete(f.pending, id)
		}
	}
	f.order = f.order[:0]
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}
