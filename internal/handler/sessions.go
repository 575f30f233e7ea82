package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orgchart/internal/dialog"
	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/lookup"
	"orgchart/internal/session"
)

// Pointer event types
const (
	PointerGrab    = "grab"
	PointerDrag    = "drag"
	PointerRelease = "release"
	PointerTap     = "tap"
)

// CreateSessionRequest opens a session. Account defaults to the configured one.
type CreateSessionRequest struct {
	Account string `json:"account,omitempty"`
}

// PointerRequest is one pointer event on the session canvas. X and Y are
// used by drag.
type PointerRequest struct {
	Type string  `json:"type" validate:"required,oneof=grab drag release tap"`
	Key  string  `json:"key" validate:"required"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// SelectRequest sets the typeahead selection. Record wins over Text.
type SelectRequest struct {
	Record *lookup.Candidate `json:"record,omitempty"`
	Text   string            `json:"text,omitempty" validate:"required_without=Record"`
}

// SessionSummary is one entry of the session list
type SessionSummary struct {
	ID      string        `json:"id"`
	Account string        `json:"account"`
	State   session.State `json:"state"`
}

// CreateSession opens a session and runs its initial load. A failed load
// still answers 201 with the session in load_error.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := h.bind(w, r, &req); err != nil {
			h.writeError(w, r, "Invalid request body", err)
			return
		}
	}
	if req.Account == "" {
		req.Account = h.account(r)
	}

	s, err := h.sessions.Create(r.Context(), req.Account)
	if err != nil {
		h.logger.Warn("session opened without data", zap.String("session", s.ID()), zap.Error(err))
	}
	h.writeJSON(w, s.View(), http.StatusCreated)
}

// ListSessions lists the live sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{ID: s.ID(), Account: s.Account(), State: s.State()})
	}
	h.writeJSON(w, out, http.StatusOK)
}

// GetSession returns the session view: elements, viewport, prompts and notices
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, s.View(), http.StatusOK)
}

// DeleteSession tears a session down
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sid")); err != nil {
		h.writeError(w, r, "Failed to close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReloadSession reruns the load of a session, recovering from load_error
func (h *Handler) ReloadSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var err error
	if s.State() == session.StateReady {
		err = s.Reconcile(r.Context())
	} else {
		err = s.Load(r.Context())
	}
	if err != nil {
		h.writeError(w, r, "Failed to reload session", err)
		return
	}
	h.writeJSON(w, s.View(), http.StatusOK)
}

// Pointer applies one pointer event
func (h *Handler) Pointer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PointerRequest
	if err := h.bind(w, r, &req); err != nil {
		h.writeError(w, r, "Invalid pointer event", err)
		return
	}

	var err error
	switch req.Type {
	case PointerGrab:
		err = s.Grab(req.Key)
	case PointerDrag:
		err = s.Drag(req.Key, domain.Point{X: req.X, Y: req.Y})
	case PointerRelease:
		err = s.Release(r.Context(), req.Key)
	case PointerTap:
		err = s.Tap(req.Key)
	}
	if err != nil {
		h.writeError(w, r, "Pointer event rejected", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// OpenAddDialog starts the add flow. The prompt arrives on the event stream.
func (h *Handler) OpenAddDialog(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.AddNode()
	w.WriteHeader(http.StatusAccepted)
}

// ResolvePrompt answers a pending prompt
func (h *Handler) ResolvePrompt(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var resp dialog.Response
	if err := h.decode(w, r, &resp); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}

	if err := s.Resolve(chi.URLParam(r, "pid"), resp); err != nil {
		h.writeError(w, r, "Failed to resolve prompt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Lookup runs a debounced typeahead query. A superseded query answers 409.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	candidates, err := s.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, lookup.ErrSuperseded) {
			h.writeJSON(w, ErrorResponse{Error: "Query superseded"}, http.StatusConflict)
			return
		}
		h.writeError(w, r, "Lookup failed", err)
		return
	}
	h.writeJSON(w, candidates, http.StatusOK)
}

// Select sets the typeahead selection
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if err := h.bind(w, r, &req); err != nil {
		h.writeError(w, r, "Invalid selection", err)
		return
	}

	var sel dialog.Selection
	if req.Record != nil {
		sel = s.SelectRecord(*req.Record)
	} else {
		var ok bool
		if sel, ok = s.SelectFreeText(req.Text); !ok {
			h.writeError(w, r, "Invalid selection", errs.New(errs.KindInvalid, "select", "text is blank"))
			return
		}
	}
	h.writeJSON(w, sel, http.StatusOK)
}

// ClearSelection drops the typeahead selection
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		h.writeError(w, r, "Session not found", err)
		return nil, false
	}
	return s, true
}
