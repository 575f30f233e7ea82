// Package lookup implements the typeahead used to pick a backing record for a
// node or fall back to free text.
package lookup

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgchart/internal/dialog"
	"orgchart/internal/logging"
)

// Defaults
const (
	DefaultDebounce = 250 * time.Millisecond
	DefaultMinChars = 2
	DefaultLimit    = 10
)

// ErrSuperseded is returned when a newer query replaced this one
var ErrSuperseded = errors.New("query superseded")

// Candidate is one ranked search hit
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Searcher runs the actual record search
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Options configures the typeahead
type Options struct {
	Debounce time.Duration
	MinChars int
	Limit    int
}

// Lookup debounces queries and tracks the current selection
type Lookup struct {
	searcher Searcher
	opts     Options
	logger   *zap.Logger

	mu        sync.Mutex
	gen       uint64
	selected  *dialog.Selection
	listeners []func(*dialog.Selection)
}

// New creates a typeahead
func New(searcher Searcher, opts Options, logger *zap.Logger) *Lookup {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Lookup{
		searcher: searcher,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("lookup"),
	}
}

// Query waits out the debounce window and searches. A query shorter than the
// minimum returns no candidates without searching. If another Query starts
// before this one finishes, this one returns ErrSuperseded.
func (l *Lookup) Query(ctx context.Context, q string) ([]Candidate, error) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	q = strings.TrimSpace(q)
	if len([]rune(q)) < l.opts.MinChars {
		return []Candidate{}, nil
	}

	timer := time.NewTimer(l.opts.Debounce)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !l.current(gen) {
		return nil, ErrSuperseded
	}

	results, err := l.searcher.Search(ctx, q, l.opts.Limit)
	if err != nil {
		l.logger.Warn("search failed", zap.String("query", q), zap.Error(err))
		return nil, err
	}
	if !l.current(gen) {
		return nil, ErrSuperseded
	}
	return results, nil
}

func (l *Lookup) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

// OnSelect registers a listener for selection changes. nil means cleared.
func (l *Lookup) OnSelect(fn func(*dialog.Selection)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Selected returns the current selection
func (l *Lookup) Selected() *dialog.Selection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected
}

// SelectRecord picks a search hit
func (l *Lookup) SelectRecord(c Candidate) dialog.Selection {
	sel := dialog.Selection{ID: c.ID, Name: c.Name, IsRecord: true}
	l.set(&sel)
	return sel
}

// SelectFreeText picks typed text that matches no record. The selection gets
// a fresh surrogate id. Blank text selects nothing and reports false.
func (l *Lookup) SelectFreeText(text string) (dialog.Selection, bool) {
	name := strings.TrimSpace(text)
	if name == "" {
		return dialog.Selection{}, false
	}
	sel := dialog.Selection{ID: uuid.NewString(), Name: name}
	l.set(&sel)
	return sel, true
}

// Clear drops the selection
func (l *Lookup) Clear() {
	l.set(nil)
}

func (l *Lookup) set(sel *dialog.Selection) {
	l.mu.Lock()
	l.selected = sel
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(sel)
	}
}
