// Package session wires one headless canvas and its controllers into a remote
// editing session.
//
// A browser drives the session with pointer events and answers the prompts
// the session publishes. Every canvas change, prompt, notice and navigation
// is published tagged with the session id.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"orgchart/internal/dialog"
	"orgchart/internal/domain"
	"orgchart/internal/graph"
	"orgchart/internal/hub"
	"orgchart/internal/interaction"
	"orgchart/internal/logging"
	"orgchart/internal/lookup"
	"orgchart/internal/metrics"
	"orgchart/internal/mutation"
	"orgchart/internal/reconcile"
	"orgchart/internal/repository"
	"orgchart/internal/service"
	"orgchart/internal/surface"
)

// maxNotices bounds the notices kept for the session view
const maxNotices = 20

// State is the lifecycle state of a session
type State string

const (
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateLoadError State = "load_error"
	StateClosed    State = "closed"
)

// Message types published for a session
const (
	MessageState    = "session"
	MessageCanvas   = "canvas"
	MessagePrompt   = "prompt"
	MessageNotice   = "notice"
	MessageNavigate = "navigate"
	MessageSelect   = "selection"
)

// Backend is what a session needs from the service layer
type Backend interface {
	repository.Fetcher
	repository.Writer
	Searcher(account string) lookup.Searcher
	Positions(account string) surface.PositionsFunc
	SavePosition(ctx context.Context, account string, pos domain.NodePosition) error
}

var _ Backend = (*service.GraphService)(nil)

// taggedWriter marks writes with the session id. The session's own
// orchestrator reconciles after them, so follow skips their events.
type taggedWriter struct {
	w      repository.Writer
	origin string
}

func (t taggedWriter) Create(ctx context.Context, kind repository.Kind, fields repository.Fields) (string, error) {
	return t.w.Create(service.WithOrigin(ctx, t.origin), kind, fields)
}

func (t taggedWriter) Update(ctx context.Context, kind repository.Kind, id string, fields repository.Fields) error {
	return t.w.Update(service.WithOrigin(ctx, t.origin), kind, id, fields)
}

func (t taggedWriter) Delete(ctx context.Context, kind repository.Kind, id string) error {
	return t.w.Delete(service.WithOrigin(ctx, t.origin), kind, id)
}

// Options configures a session
type Options struct {
	Account       string
	Build         graph.Options
	Threshold     float64
	FrameInterval time.Duration
	GridSpacing   float64
	Width         float64
	Height        float64
	Zoom          float64
	Fit           surface.FitOptions
	Lookup        lookup.Options
}

// Deps are shared by every session. Bus, Publish and Metrics may be nil.
type Deps struct {
	Backend Backend
	Bus     *service.EventBus
	Publish func(hub.Message)
	Metrics *metrics.Collector
}

// View is a point-in-time copy of a session
type View struct {
	ID        string            `json:"id"`
	Account   string            `json:"account"`
	State     State             `json:"state"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Canvas    surface.State     `json:"canvas"`
	Prompts   []dialog.Prompt   `json:"prompts"`
	Notices   []mutation.Notice `json:"notices"`
	Selection *dialog.Selection `json:"selection,omitempty"`
}

// Session is one remote editing session
type Session struct {
	id        string
	account   string
	createdAt time.Time
	backend   Backend
	publish   func(hub.Message)
	logger    *zap.Logger

	canvas       *surface.Canvas
	broker       *dialog.Broker
	reconciler   *reconcile.Controller
	orchestrator *mutation.Orchestrator
	interaction  *interaction.Controller
	lookup       *lookup.Lookup

	mu      sync.Mutex
	state   State
	loadErr error
	notices []mutation.Notice
	grabbed map[string]domain.Point
	unsub   func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session. Call Load to populate it.
func New(id string, opts Options, deps Deps, logger *zap.Logger) *Session {
	logger = logging.OrNop(logger).With(zap.String("session", id))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		account:   opts.Account,
		createdAt: time.Now(),
		backend:   deps.Backend,
		publish:   deps.Publish,
		logger:    logger.Named("session"),
		state:     StateLoading,
		grabbed:   make(map[string]domain.Point),
		ctx:       ctx,
		cancel:    cancel,
	}
	if s.publish == nil {
		s.publish = func(hub.Message) {}
	}

	s.canvas = surface.NewCanvas(surface.Options{
		Width:  opts.Width,
		Height: opts.Height,
		Zoom:   opts.Zoom,
		Layout: surface.NewPreset(deps.Backend.Positions(opts.Account), opts.GridSpacing),
		OnChange: func(kind surface.ChangeKind) {
			s.emit(MessageCanvas, map[string]string{"change": string(kind)})
		},
	}, logger)

	s.broker = dialog.NewBroker(func(p dialog.Prompt) {
		s.emit(MessagePrompt, p)
	}, logger)

	s.reconciler = reconcile.New(deps.Backend, s.canvas, reconcile.Options{
		Account: opts.Account,
		Build:   opts.Build,
		Fit:     opts.Fit,
	}, deps.Metrics, logger)

	s.orchestrator = mutation.New(mutation.Collaborators{
		Writer:     taggedWriter{w: deps.Backend, origin: id},
		Reconciler: s.reconciler,
		Dialogs:    s.broker,
		Notifier:   mutation.NotifierFunc(s.notify),
		Navigator: mutation.NavigatorFunc(func(recordRef string) {
			s.emit(MessageNavigate, map[string]string{"record_ref": recordRef})
		}),
	}, mutation.Options{Account: opts.Account, Pairs: opts.Build.Pairs}, deps.Metrics, logger)

	s.interaction = interaction.New(s.canvas, surface.NewTimerFrames(opts.FrameInterval), s.orchestrator,
		interaction.Options{Threshold: opts.Threshold, Pairs: opts.Build.Pairs}, deps.Metrics, logger)

	s.lookup = lookup.New(deps.Backend.Searcher(opts.Account), opts.Lookup, logger)
	s.lookup.OnSelect(func(sel *dialog.Selection) {
		s.emit(MessageSelect, sel)
	})

	if deps.Bus != nil {
		events := make(chan service.Event, 16)
		s.unsub = deps.Bus.Subscribe(events)
		s.wg.Add(1)
		go s.follow(events)
	}

	return s
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Account returns the account the session edits
func (s *Session) Account() string { return s.account }

// Load runs the initial reconciliation. A failure leaves the session in
// StateLoadError; Load may be called again to retry.
func (s *Session) Load(ctx context.Context) error {
	s.setState(StateLoading, nil)
	err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.Warn("initial load failed", zap.Error(err))
		s.setState(StateLoadError, err)
		return err
	}
	s.setState(StateReady, nil)
	return nil
}

// Reconcile requests a reconciliation cycle
func (s *Session) Reconcile(ctx context.Context) error {
	err := s.reconciler.Reconcile(ctx)
	if err == nil && s.State() == StateLoadError {
		s.setState(StateReady, nil)
	}
	return err
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a copy of the session
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		ID:        s.id,
		Account:   s.account,
		State:     s.state,
		CreatedAt: s.createdAt,
		Notices:   append([]mutation.Notice(nil), s.notices...),
	}
	if s.loadErr != nil {
		v.Error = s.loadErr.Error()
	}
	s.mu.Unlock()

	v.Canvas = s.canvas.State()
	v.Prompts = s.broker.Pending()
	v.Selection = s.lookup.Selected()
	return v
}

// Canvas returns the session's render surface
func (s *Session) Canvas() *surface.Canvas { return s.canvas }

// Grab starts dragging a node
func (s *Session) Grab(key string) error {
	if err := s.canvas.Grab(key); err != nil {
		return err
	}
	if pos, ok := s.canvas.Position(key); ok {
		s.mu.Lock()
		s.grabbed[key] = pos
		s.mu.Unlock()
	}
	return nil
}

// Drag moves a grabbed node
func (s *Session) Drag(key string, pos domain.Point) error {
	return s.canvas.Drag(key, pos)
}

// Release drops a node. A node that moved has its position stored.
func (s *Session) Release(ctx context.Context, key string) error {
	if err := s.canvas.Release(key); err != nil {
		return err
	}

	s.mu.Lock()
	origin, ok := s.grabbed[key]
	delete(s.grabbed, key)
	s.mu.Unlock()

	pos, placed := s.canvas.Position(key)
	if !ok || !placed || pos == origin {
		return nil
	}
	err := s.backend.SavePosition(ctx, s.account, domain.NodePosition{NodeID: key, X: pos.X, Y: pos.Y})
	if err != nil {
		s.logger.Warn("failed to save position", zap.String("node", key), zap.Error(err))
		s.notify(mutation.Notice{Level: mutation.LevelWarning, Title: "Position not saved", Message: err.Error()})
	}
	return nil
}

// Tap taps a node or an edge
func (s *Session) Tap(key string) error {
	return s.canvas.Tap(key)
}

// AddNode opens the add dialog in the background. The new node appears after
// the prompt is answered.
func (s *Session) AddNode() {
	s.spawn(func(ctx context.Context) {
		if _, err := s.orchestrator.AddNode(ctx); err != nil && !errors.Is(err, dialog.ErrCancelled) {
			s.logger.Debug("add node failed", zap.Error(err))
		}
	})
}

// Resolve answers a pending prompt
func (s *Session) Resolve(promptID string, resp dialog.Response) error {
	return s.broker.Resolve(promptID, resp)
}

// Search runs a typeahead query
func (s *Session) Search(ctx context.Context, q string) ([]lookup.Candidate, error) {
	return s.lookup.Query(ctx, q)
}

// SelectRecord picks a search hit as the current selection
func (s *Session) SelectRecord(c lookup.Candidate) dialog.Selection {
	return s.lookup.SelectRecord(c)
}

// SelectFreeText picks typed text as the current selection. It reports false
// for blank text.
func (s *Session) SelectFreeText(text string) (dialog.Selection, bool) {
	return s.lookup.SelectFreeText(text)
}

// ClearSelection drops the current selection
func (s *Session) ClearSelection() {
	s.lookup.Clear()
}

// Close tears the session down. Open prompts are cancelled and in-flight
// intents are waited for.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	unsub := s.unsub
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.broker.Close()
	s.cancel()
	s.interaction.Close()
	s.wg.Wait()
	s.emit(MessageState, map[string]string{"state": string(StateClosed)})
	s.logger.Info("session closed")
}

// follow reconciles when the account changes behind the session's back
func (s *Session) follow(events <-chan service.Event) {
	defer s.wg.Done()
	for {
		select {
		case ev := <-events:
			if ev.Type != service.EventGraphUpdated && ev.Type != service.EventRecordsUpdated {
				continue
			}
			if ev.Account != "" && ev.Account != s.account {
				continue
			}
			if ev.Origin != "" && ev.Origin == s.id {
				continue
			}
			if err := s.Reconcile(s.ctx); err != nil {
				s.logger.Debug("reconcile after update failed", zap.Error(err))
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) spawn(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) notify(n mutation.Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.mu.Unlock()
	s.emit(MessageNotice, n)
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.loadErr = err
	s.mu.Unlock()

	payload := map[string]string{"state": string(state)}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.emit(MessageState, payload)
}

func (s *Session) emit(typ string, payload interface{}) {
	s.publish(hub.Message{Session: s.id, Type: typ, Payload: payload})
}
