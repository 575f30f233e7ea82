package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"orgchart/internal/codec"
	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/graph"
	"orgchart/internal/logging"
	"orgchart/internal/lookup"
	"orgchart/internal/repository"
	"orgchart/internal/surface"
)

// Import strategies
const (
	StrategyMerge   = "merge"
	StrategyReplace = "replace"
)

// GraphService provides business logic for graph operations. Every write is
// announced on the event bus so live editing sessions can reconcile.
type GraphService struct {
	repo     repository.Repository
	eventBus *EventBus
	logger   *zap.Logger
}

var (
	_ repository.Fetcher = (*GraphService)(nil)
	_ repository.Writer  = (*GraphService)(nil)
)

// NewGraphService creates a new graph service
func NewGraphService(repo repository.Repository, eventBus *EventBus, logger *zap.Logger) *GraphService {
	return &GraphService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logging.OrNop(logger).Named("service"),
	}
}

// Fetch returns the authoritative snapshot of an account
func (s *GraphService) Fetch(ctx context.Context, account string) (*domain.Snapshot, error) {
	return s.repo.Fetch(ctx, account)
}

// Inspect fetches the account and builds its graph model
func (s *GraphService) Inspect(ctx context.Context, account string, opts graph.Options) (*graph.Result, error) {
	snap, err := s.repo.Fetch(ctx, account)
	if err != nil {
		return nil, errs.Fetch("inspect", err)
	}
	return graph.Build(snap, opts), nil
}

// GetNode retrieves a single node by ID
func (s *GraphService) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, errs.NotFound("get node", "node "+id)
	}
	return node, nil
}

// Create creates a node or link
func (s *GraphService) Create(ctx context.Context, kind repository.Kind, fields repository.Fields) (string, error) {
	id, err := s.repo.Create(ctx, kind, fields)
	if err != nil {
		return "", err
	}

	s.logger.Debug("created", zap.String("kind", string(kind)), zap.String("id", id))
	s.eventBus.Publish(Event{
		Type:    EventGraphUpdated,
		Account: fields[repository.FieldAccount],
		Origin:  OriginFrom(ctx),
		Payload: map[string]string{"action": "created", "kind": string(kind), "id": id},
	})

	return id, nil
}

// Update updates an existing node or link
func (s *GraphService) Update(ctx context.Context, kind repository.Kind, id string, fields repository.Fields) error {
	account, err := s.accountOf(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, kind, id, fields); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventGraphUpdated,
		Account: account,
		Origin:  OriginFrom(ctx),
		Payload: map[string]string{"action": "updated", "kind": string(kind), "id": id},
	})

	return nil
}

// Delete removes a node (with its links) or a link
func (s *GraphService) Delete(ctx context.Context, kind repository.Kind, id string) error {
	// looked up first, the row is gone afterwards
	account, err := s.accountOf(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventGraphUpdated,
		Account: account,
		Origin:  OriginFrom(ctx),
		Payload: map[string]string{"action": "deleted", "kind": string(kind), "id": id},
	})

	return nil
}

func (s *GraphService) accountOf(ctx context.Context, kind repository.Kind, id string) (string, error) {
	account, err := s.repo.AccountOf(ctx, kind, id)
	if err != nil {
		return "", fmt.Errorf("failed to resolve account of %s %s: %w", kind, id, err)
	}
	return account, nil
}

// SearchRecords returns backing records whose name matches query
func (s *GraphService) SearchRecords(ctx context.Context, account, query string, limit int) ([]domain.Record, error) {
	return s.repo.SearchRecords(ctx, account, query, limit)
}

// UpsertRecord creates or updates a backing record
func (s *GraphService) UpsertRecord(ctx context.Context, rec *domain.Record) error {
	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return err
	}

	// record names feed node labels
	s.eventBus.Publish(Event{
		Type:    EventRecordsUpdated,
		Account: rec.AccountID,
		Payload: map[string]string{"record_id": rec.ID},
	})

	return nil
}

// Searcher adapts record search of one account to the typeahead
func (s *GraphService) Searcher(account string) lookup.Searcher {
	return recordSearcher{svc: s, account: account}
}

type recordSearcher struct {
	svc     *GraphService
	account string
}

func (r recordSearcher) Search(ctx context.Context, query string, limit int) ([]lookup.Candidate, error) {
	records, err := r.svc.repo.SearchRecords(ctx, r.account, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]lookup.Candidate, 0, len(records))
	for _, rec := range records {
		out = append(out, lookup.Candidate{ID: rec.ID, Name: rec.Name})
	}
	return out, nil
}

// GetPositions returns the stored node positions of an account
func (s *GraphService) GetPositions(ctx context.Context, account string) (map[string]domain.NodePosition, error) {
	return s.repo.GetPositions(ctx, account)
}

// Positions returns the stored positions of an account for the preset layout
func (s *GraphService) Positions(account string) surface.PositionsFunc {
	return func(ctx context.Context) (map[string]domain.Point, error) {
		stored, err := s.repo.GetPositions(ctx, account)
		if err != nil {
			return nil, err
		}
		out := make(map[string]domain.Point, len(stored))
		for id, pos := range stored {
			out[id] = pos.Point()
		}
		return out, nil
	}
}

// SavePosition saves a single node position
func (s *GraphService) SavePosition(ctx context.Context, account string, pos domain.NodePosition) error {
	if err := s.repo.SavePosition(ctx, pos); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventPositionsUpdated,
		Account: account,
		Payload: map[string]string{"node_id": pos.NodeID},
	})

	return nil
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Records  int    `json:"records"`
	Nodes    int    `json:"nodes"`
	Links    int    `json:"links"`
	Strategy string `json:"strategy"`
}

// Import parses a fragment in the given format and imports it
func (s *GraphService) Import(ctx context.Context, account, format string, r io.Reader, strategy string) (*ImportResult, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, errs.Invalid("import", err)
	}
	fragment, err := c.Parse(r)
	if err != nil {
		return nil, errs.Invalid("import", err)
	}

	return s.importFragment(ctx, account, fragment, strategy)
}

// ImportFile imports a fragment file, picking the format from its extension
func (s *GraphService) ImportFile(ctx context.Context, account, path, strategy string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	c, err := codec.ForPath(path)
	if err != nil {
		return nil, errs.Invalid("import", err)
	}
	return s.Import(ctx, account, c.Format(), f, strategy)
}

// importFragment imports a graph fragment with the specified strategy
func (s *GraphService) importFragment(ctx context.Context, account string, fragment *domain.GraphFragment, strategy string) (*ImportResult, error) {
	if strategy == "" {
		strategy = StrategyMerge
	}

	if strategy != StrategyMerge && strategy != StrategyReplace {
		return nil, errs.New(errs.KindInvalid, "import",
			fmt.Sprintf("invalid strategy %s, must be '%s' or '%s'", strategy, StrategyMerge, StrategyReplace))
	}

	if err := s.repo.ImportFragment(ctx, account, fragment, strategy == StrategyReplace); err != nil {
		return nil, err
	}

	result := &ImportResult{
		Records:  len(fragment.Records),
		Nodes:    len(fragment.Nodes),
		Links:    len(fragment.Links) + len(fragment.ChainLinks()),
		Strategy: strategy,
	}

	s.eventBus.Publish(Event{
		Type:    EventGraphUpdated,
		Account: account,
		Payload: result,
	})

	return result, nil
}

// Export writes the account as a fragment in the given format
func (s *GraphService) Export(ctx context.Context, account, format string, w io.Writer) error {
	c, err := codec.ForFormat(strings.TrimPrefix(format, "."))
	if err != nil {
		return errs.Invalid("export", err)
	}

	fragment, err := s.repo.ExportFragment(ctx, account)
	if err != nil {
		return err
	}

	return c.Export(fragment, w)
}
