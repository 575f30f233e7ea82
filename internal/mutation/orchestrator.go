// Package mutation maps user intents to backend writes.
//
// Every intent runs the same pipeline: wait until no reconciliation is about
// to discard the model, write, then on success request exactly one
// reconciliation. A failed write is reported through the Notifier and
// triggers none. Proposing an edge between already connected nodes is a
// silent no-op.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orgchart/internal/dialog"
	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/graph"
	"orgchart/internal/logging"
	"orgchart/internal/metrics"
	"orgchart/internal/repository"
)

// DeleteEdgePrompt is the confirmation shown before a link is deleted
const DeleteEdgePrompt = "Are you sure you want to delete this relationship?"

// Reconciler is the part of the reconciliation controller the orchestrator uses
type Reconciler interface {
	Reconcile(ctx context.Context) error
	AwaitRebuilt(ctx context.Context) error
	Graph() *domain.Graph
}

// Collaborators are the orchestrator's dependencies. Notifier and Navigator
// may be nil.
type Collaborators struct {
	Writer     repository.Writer
	Reconciler Reconciler
	Dialogs    dialog.Dialogs
	Notifier   Notifier
	Navigator  Navigator
}

// Options configures the orchestrator
type Options struct {
	Account string
	Pairs   graph.PairStrategy
}

// Orchestrator runs mutation intents
type Orchestrator struct {
	writer     repository.Writer
	reconciler Reconciler
	dialogs    dialog.Dialogs
	notifier   Notifier
	navigator  Navigator
	opts       Options
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New creates an orchestrator
func New(c Collaborators, opts Options, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	if c.Notifier == nil {
		c.Notifier = NotifierFunc(func(Notice) {})
	}
	if c.Navigator == nil {
		c.Navigator = NavigatorFunc(func(string) {})
	}
	return &Orchestrator{
		writer:     c.Writer,
		reconciler: c.Reconciler,
		dialogs:    c.Dialogs,
		notifier:   c.Notifier,
		navigator:  c.Navigator,
		opts:       opts,
		metrics:    collector,
		logger:     logging.OrNop(logger).Named("mutation"),
	}
}

// CreateEdge writes a link from source to target
func (o *Orchestrator) CreateEdge(ctx context.Context, source, target string) error {
	const op = "create_edge"
	if err := checkEndpoints(source, target); err != nil {
		return o.fail(op, errs.Invalid(op, err))
	}

	return o.mutate(ctx, op, func(ctx context.Context) error {
		if o.index().Has(source, target) {
			return errs.New(errs.KindDuplicateEdge, op, source+" and "+target+" are already connected")
		}
		_, err := o.writer.Create(ctx, repository.KindLink, repository.Fields{
			repository.FieldAccount:  o.opts.Account,
			repository.FieldParentID: source,
			repository.FieldChildID:  target,
		})
		return err
	})
}

// UpdateEdge rewrites the endpoints of a link
func (o *Orchestrator) UpdateEdge(ctx context.Context, linkID, source, target string) error {
	const op = "update_edge"
	if err := checkEndpoints(source, target); err != nil {
		return o.fail(op, errs.Invalid(op, err))
	}

	return o.mutate(ctx, op, func(ctx context.Context) error {
		if id, ok := o.index().Lookup(source, target); ok && id != linkID {
			return errs.New(errs.KindDuplicateEdge, op, source+" and "+target+" are already connected by "+id)
		}
		return o.writer.Update(ctx, repository.KindLink, linkID, repository.Fields{
			repository.FieldParentID: source,
			repository.FieldChildID:  target,
		})
	})
}

// DeleteEdge asks for confirmation and deletes every segment of a link
func (o *Orchestrator) DeleteEdge(ctx context.Context, linkID string) error {
	answer, err := o.dialogs.Confirm(ctx, DeleteEdgePrompt)
	if errors.Is(err, dialog.ErrCancelled) || (err == nil && answer != dialog.AnswerConfirm) {
		o.logger.Debug("delete edge cancelled", zap.String("link", linkID))
		return nil
	}
	if err != nil {
		return err
	}

	return o.mutate(ctx, "delete_edge", func(ctx context.Context) error {
		return o.writer.Delete(ctx, repository.KindLink, linkID)
	})
}

// AddNode opens the add dialog and creates what it returns
func (o *Orchestrator) AddNode(ctx context.Context) (string, error) {
	res, err := o.dialogs.AddNode(ctx)
	if errors.Is(err, dialog.ErrCancelled) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return o.CreateNode(ctx, res.Label, res.ParentID)
}

// CreateNode writes a placeholder node and, when parentID is set, a link from
// the parent to it.
func (o *Orchestrator) CreateNode(ctx context.Context, label, parentID string) (string, error) {
	const op = "create_node"
	if err := domain.Validate(dialog.AddResult{Label: label, ParentID: parentID}); err != nil {
		return "", o.fail(op, errs.Invalid(op, err))
	}

	var id string
	err := o.mutate(ctx, op, func(ctx context.Context) error {
		var err error
		id, err = o.writer.Create(ctx, repository.KindNode, repository.Fields{
			repository.FieldAccount: o.opts.Account,
			repository.FieldLabel:   label,
			repository.FieldOrigin:  string(domain.OriginPlaceholder),
		})
		return err
	})
	if err != nil || parentID == "" {
		return id, err
	}
	return id, o.CreateEdge(ctx, parentID, id)
}

// EditNode opens the edit dialog for a node and carries out the chosen method
func (o *Orchestrator) EditNode(ctx context.Context, nodeID string) error {
	const op = "edit_node"
	node := o.node(nodeID)
	if node == nil {
		return o.fail(op, errs.NotFound(op, "node "+nodeID))
	}

	res, err := o.dialogs.EditNode(ctx, dialog.EditRequest{
		NodeID:       node.ID,
		CurrentLabel: node.Label,
		RecordRef:    node.RecordRef,
	})
	if errors.Is(err, dialog.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}

	switch res.Method {
	case dialog.MethodSave:
		if res.Status != dialog.StatusSuccess {
			return o.fail(op, errs.New(errs.KindWriteRejected, op, res.Message))
		}
		fields := saveFields(res)
		if len(fields) == 0 {
			// the form wrote the record itself
			return o.refresh(ctx)
		}
		return o.UpdateNode(ctx, nodeID, fields)
	case dialog.MethodDelete:
		return o.DeleteNode(ctx, nodeID)
	case dialog.MethodReplace:
		if res.Replacement == nil {
			return o.fail(op, errs.New(errs.KindInvalid, op, "replace needs a selection"))
		}
		return o.ReplaceNode(ctx, nodeID, *res.Replacement)
	case dialog.MethodRedirect:
		if node.RecordRef == "" {
			o.notifier.Notify(Notice{Level: LevelInfo, Title: "Nothing to open", Message: "This node is not backed by a record"})
			return nil
		}
		o.navigator.Navigate(node.RecordRef)
		return nil
	default:
		return o.fail(op, errs.New(errs.KindInvalid, op, fmt.Sprintf("unknown method %q", res.Method)))
	}
}

// UpdateNode writes fields to a node
func (o *Orchestrator) UpdateNode(ctx context.Context, nodeID string, fields repository.Fields) error {
	return o.mutate(ctx, "update_node", func(ctx context.Context) error {
		return o.writer.Update(ctx, repository.KindNode, nodeID, fields)
	})
}

// ReplaceNode points a node at another backing record, or detaches it into a
// placeholder when the selection is free text.
func (o *Orchestrator) ReplaceNode(ctx context.Context, nodeID string, sel dialog.Selection) error {
	fields := repository.Fields{
		repository.FieldLabel:     sel.Name,
		repository.FieldOrigin:    string(domain.OriginPlaceholder),
		repository.FieldRecordRef: "",
	}
	if sel.IsRecord {
		fields[repository.FieldOrigin] = string(domain.OriginRecord)
		fields[repository.FieldRecordRef] = sel.ID
	}
	return o.mutate(ctx, "replace_node", func(ctx context.Context) error {
		return o.writer.Update(ctx, repository.KindNode, nodeID, fields)
	})
}

// DeleteNode deletes a node and its links
func (o *Orchestrator) DeleteNode(ctx context.Context, nodeID string) error {
	return o.mutate(ctx, "delete_node", func(ctx context.Context) error {
		return o.writer.Delete(ctx, repository.KindNode, nodeID)
	})
}

// mutate is the single write pipeline every intent goes through
func (o *Orchestrator) mutate(ctx context.Context, op string, write func(ctx context.Context) error) error {
	if err := o.reconciler.AwaitRebuilt(ctx); err != nil {
		return err
	}

	err := write(ctx)
	if errs.Is(err, errs.KindDuplicateEdge) {
		o.logger.Debug("duplicate edge suppressed", zap.String("op", op), zap.Error(err))
		return nil
	}
	o.metrics.WriteDone(op, err)
	if err != nil {
		if !errs.Is(err, errs.KindWriteRejected) {
			err = errs.WriteRejected(op, err)
		}
		return o.fail(op, err)
	}

	o.logger.Debug("write accepted", zap.String("op", op))
	return o.refresh(ctx)
}

func (o *Orchestrator) refresh(ctx context.Context) error {
	if err := o.reconciler.Reconcile(ctx); err != nil {
		o.notifier.Notify(Notice{
			Level:   LevelWarning,
			Title:   "Refresh failed",
			Message: errs.Reason(err),
			Kind:    errs.KindOf(err),
		})
	}
	return nil
}

func (o *Orchestrator) fail(op string, err error) error {
	o.logger.Warn("mutation failed", zap.String("op", op), zap.Error(err))
	o.notifier.Notify(Notice{
		Level:   LevelError,
		Title:   failureTitle(op),
		Message: errs.Reason(err),
		Kind:    errs.KindOf(err),
	})
	return err
}

func (o *Orchestrator) index() *graph.EdgeIndex {
	return graph.NewEdgeIndex(o.opts.Pairs, o.reconciler.Graph().Edges)
}

func (o *Orchestrator) node(id string) *domain.Node {
	g := o.reconciler.Graph()
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			n := g.Nodes[i]
			return &n
		}
	}
	return nil
}

func checkEndpoints(source, target string) error {
	if source == "" || target == "" {
		return fmt.Errorf("source and target are required")
	}
	if source == target {
		return fmt.Errorf("a node cannot be linked to itself")
	}
	return nil
}

func saveFields(res dialog.EditResult) repository.Fields {
	fields := repository.Fields{}
	if res.Label != "" {
		fields[repository.FieldLabel] = res.Label
	}
	if s := res.Style; s != nil {
		for k, v := range map[string]string{
			repository.FieldFillColor:   s.FillColor,
			repository.FieldBorderColor: s.BorderColor,
			repository.FieldPriority:    s.Priority,
			repository.FieldDepartment:  s.Department,
			repository.FieldFunction:    s.Function,
		} {
			if v != "" {
				fields[k] = v
			}
		}
	}
	return fields
}

func failureTitle(op string) string {
	switch op {
	case "create_edge", "create_node":
		return "Error creating record"
	case "delete_edge", "delete_node":
		return "Error deleting record"
	default:
		return "Error updating record"
	}
}
