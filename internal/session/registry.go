package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgchart/internal/errs"
	"orgchart/internal/logging"
)

// Registry owns the live sessions of a server
type Registry struct {
	opts   Options
	deps   Deps
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. opts are the defaults for new sessions.
func NewRegistry(opts Options, deps Deps, logger *zap.Logger) *Registry {
	return &Registry{
		opts:     opts,
		deps:     deps,
		logger:   logging.OrNop(logger),
		sessions: make(map[string]*Session),
	}
}

// Create opens a session for account (the default account when empty) and
// runs its initial load. The session is registered even when the load fails;
// it then reports StateLoadError.
func (r *Registry) Create(ctx context.Context, account string) (*Session, error) {
	opts := r.opts
	if account != "" {
		opts.Account = account
	}

	s := New(uuid.NewString(), opts, r.deps, r.logger)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.logger.Info("session opened", zap.String("session", s.ID()), zap.String("account", opts.Account))
	return s, s.Load(ctx)
}

// Get returns a live session
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errs.NotFound("get session", "session "+id)
	}
	return s, nil
}

// List returns the live sessions ordered by creation
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Delete closes and forgets a session
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errs.NotFound("delete session", "session "+id)
	}
	s.Close()
	return nil
}

// CloseAll closes every session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
