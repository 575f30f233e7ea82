package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orgchart/internal/codec"
	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/repository"
)

// defaultSearchLimit applies when a record search names no limit
const defaultSearchLimit = 10

// GraphResponse is the built model of an account
type GraphResponse struct {
	Account    string        `json:"account"`
	Nodes      []domain.Node `json:"nodes"`
	Edges      []domain.Edge `json:"edges"`
	Dangling   int           `json:"dangling"`
	Duplicates int           `json:"duplicates"`
	Singletons int           `json:"singletons"`
}

// GetGraph returns the graph model built from the account's snapshot
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	account := h.account(r)
	res, err := h.svc.Inspect(r.Context(), account, h.opts.Build)
	if err != nil {
		h.writeError(w, r, "Failed to build graph", err)
		return
	}

	h.writeJSON(w, GraphResponse{
		Account:    account,
		Nodes:      res.Graph.Nodes,
		Edges:      res.Graph.Edges,
		Dangling:   res.Dangling,
		Duplicates: res.Duplicates,
		Singletons: res.Singletons,
	}, http.StatusOK)
}

// GetSnapshot returns the raw backend answer
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Fetch(r.Context(), h.account(r))
	if err != nil {
		h.writeError(w, r, "Failed to fetch snapshot", errs.Fetch("snapshot", err))
		return
	}
	h.writeJSON(w, snap, http.StatusOK)
}

// GetNode returns a single node
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "Failed to get node", err)
		return
	}
	h.writeJSON(w, node, http.StatusOK)
}

// CreateNode creates a node from a field map
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, repository.KindNode)
}

// UpdateNode updates the given fields of a node and returns it
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.update(w, r, repository.KindNode, id) {
		return
	}

	node, err := h.svc.GetNode(r.Context(), id)
	if err != nil {
		h.logger.Debug("updated node vanished")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, node, http.StatusOK)
}

// DeleteNode deletes a node and its links
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, repository.KindNode)
}

// CreateLink creates a link from a field map
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, repository.KindLink)
}

// UpdateLink re-points or relabels a link
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	if h.update(w, r, repository.KindLink, chi.URLParam(r, "id")) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteLink deletes every segment of a link
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, repository.KindLink)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, kind repository.Kind) {
	var fields repository.Fields
	if err := h.decode(w, r, &fields); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	if fields == nil {
		fields = repository.Fields{}
	}
	if fields[repository.FieldAccount] == "" {
		fields[repository.FieldAccount] = h.account(r)
	}

	id, err := h.svc.Create(r.Context(), kind, fields)
	if err != nil {
		h.writeError(w, r, fmt.Sprintf("Failed to create %s", kind), err)
		return
	}
	h.writeJSON(w, map[string]string{"id": id}, http.StatusCreated)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, kind repository.Kind, id string) bool {
	var fields repository.Fields
	if err := h.decode(w, r, &fields); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return false
	}
	if err := h.svc.Update(r.Context(), kind, id, fields); err != nil {
		h.writeError(w, r, fmt.Sprintf("Failed to update %s", kind), err)
		return false
	}
	return true
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, kind repository.Kind) {
	if err := h.svc.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, fmt.Sprintf("Failed to delete %s", kind), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchRecords runs the record search behind the typeahead
func (h *Handler) SearchRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			h.writeError(w, r, "Invalid limit", errs.New(errs.KindInvalid, "search records", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	records, err := h.svc.SearchRecords(r.Context(), h.account(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, r, "Failed to search records", err)
		return
	}
	h.writeJSON(w, records, http.StatusOK)
}

// UpsertRecord creates or replaces a backing record
func (h *Handler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	var rec domain.Record
	if err := h.decode(w, r, &rec); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	rec.ID = chi.URLParam(r, "id")
	rec.AccountID = h.account(r)
	if err := domain.Validate(rec); err != nil {
		h.writeError(w, r, "Invalid record", errs.Invalid("upsert record", err))
		return
	}

	if err := h.svc.UpsertRecord(r.Context(), &rec); err != nil {
		h.writeError(w, r, "Failed to save record", err)
		return
	}
	h.writeJSON(w, rec, http.StatusOK)
}

// GetPositions returns the stored node positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.GetPositions(r.Context(), h.account(r))
	if err != nil {
		h.writeError(w, r, "Failed to get positions", err)
		return
	}
	h.writeJSON(w, positions, http.StatusOK)
}

// SavePosition stores the position of one node
func (h *Handler) SavePosition(w http.ResponseWriter, r *http.Request) {
	var pos domain.NodePosition
	if err := h.decode(w, r, &pos); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	pos.NodeID = chi.URLParam(r, "id")

	if err := h.svc.SavePosition(r.Context(), h.account(r), pos); err != nil {
		h.writeError(w, r, "Failed to save position", err)
		return
	}
	h.writeJSON(w, pos, http.StatusOK)
}

// Import imports a fragment. format defaults to yaml and strategy to merge.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = formatFromContentType(r.Header.Get("Content-Type"))
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	result, err := h.svc.Import(r.Context(), h.account(r), format, body, q.Get("strategy"))
	if err != nil {
		h.writeError(w, r, "Failed to import", err)
		return
	}
	h.writeJSON(w, result, http.StatusOK)
}

// Export writes the account as a downloadable fragment
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "yaml"
	}
	c, err := codec.ForFormat(format)
	if err != nil {
		h.writeError(w, r, "Unsupported format", errs.Invalid("export", err))
		return
	}

	w.Header().Set("Content-Type", contentTypes[c.Format()])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=orgchart.%s", c.Format()))
	if err := h.svc.Export(r.Context(), h.account(r), c.Format(), w); err != nil {
		// headers are out, the body is truncated
		h.logger.Error("export failed", zap.Error(err))
	}
}

var contentTypes = map[string]string{
	"yaml": "application/x-yaml",
	"json": "application/json",
	"toml": "application/toml",
}

func formatFromContentType(ct string) string {
	for format, t := range contentTypes {
		if strings.HasPrefix(ct, t) {
			return format
		}
	}
	return "yaml"
}
