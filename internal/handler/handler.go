package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/graph"
	"orgchart/internal/logging"
	"orgchart/internal/metrics"
	"orgchart/internal/service"
	"orgchart/internal/session"
)

// maxBodyBytes bounds request bodies, imports included
const maxBodyBytes = 8 << 20

// Options configures the router
type Options struct {
	// Account is used when a request names none
	Account     string
	Build       graph.Options
	CORSOrigins []string
}

// Handler serves the REST API, the session API, the event stream and metrics
type Handler struct {
	svc      *service.GraphService
	sessions *session.Registry
	events   http.Handler
	metrics  *metrics.Collector
	opts     Options
	logger   *zap.Logger
}

// New creates a handler. events serves the SSE stream and metrics may be nil.
func New(svc *service.GraphService, sessions *session.Registry, events http.Handler, collector *metrics.Collector, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		events:   events,
		metrics:  collector,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("http"),
	}
}

// Router builds the route tree
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(requestMetrics(h.metrics))

	origins := h.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if reg := h.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if h.events != nil {
		r.Handle("/events", h.events)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/graph", h.GetGraph)
		r.Get("/snapshot", h.GetSnapshot)

		r.Route("/nodes", func(r chi.Router) {
			r.Post("/", h.CreateNode)
			r.Get("/{id}", h.GetNode)
			r.Put("/{id}", h.UpdateNode)
			r.Delete("/{id}", h.DeleteNode)
		})

		r.Route("/links", func(r chi.Router) {
			r.Post("/", h.CreateLink)
			r.Put("/{id}", h.UpdateLink)
			r.Delete("/{id}", h.DeleteLink)
		})

		r.Get("/records", h.SearchRecords)
		r.Put("/records/{id}", h.UpsertRecord)

		r.Get("/positions", h.GetPositions)
		r.Put("/positions/{id}", h.SavePosition)

		r.Post("/import", h.Import)
		r.Get("/export", h.Export)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/", h.ListSessions)
			r.Route("/{sid}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Post("/reload", h.ReloadSession)
				r.Post("/pointer", h.Pointer)
				r.Post("/nodes", h.OpenAddDialog)
				r.Post("/prompts/{pid}", h.ResolvePrompt)
				r.Get("/lookup", h.Lookup)
				r.Put("/selection", h.Select)
				r.Delete("/selection", h.ClearSelection)
			})
		})
	})

	return r
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) account(r *http.Request) string {
	if a := r.URL.Query().Get("account"); a != "" {
		return a
	}
	return h.opts.Account
}

// decode reads a JSON body
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errs.New(errs.KindInvalid, "decode", "invalid request body: "+err.Error())
	}
	return nil
}

// bind decodes a JSON body into a struct and validates its tags
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := h.decode(w, r, v); err != nil {
		return err
	}
	if err := domain.Validate(v); err != nil {
		return errs.Invalid("validate", err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps err to a status through its kind
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: msg, Details: err.Error()}

	var e *errs.Error
	if errors.As(err, &e) {
		status = e.HTTPStatus()
		resp.Kind = string(e.Kind)
		resp.Details = errs.Reason(err)
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("path", r.URL.Path),
			zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.writeJSON(w, resp, status)
}
