package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/logging"
	"orgchart/internal/repository"
)

// Options configures the repository
type Options struct {
	// Shape selects how Fetch lays out its answer
	Shape repository.Shape
}

// Repository implements repository.Repository using SQLite
type Repository struct {
	db     *sql.DB
	shape  repository.Shape
	logger *zap.Logger
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string, opts Options, logger *zap.Logger) (*Repository, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases and pragmas consistent
	db.SetMaxOpenConns(1)

	if opts.Shape == "" {
		opts.Shape = repository.ShapeSeparated
	}
	repo := &Repository{
		db:     db,
		shape:  opts.Shape,
		logger: logging.OrNop(logger).Named("sqlite"),
	}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		title TEXT,
		department TEXT,
		function TEXT,
		priority TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT 'placeholder',
		record_ref TEXT,
		department TEXT,
		function TEXT,
		priority TEXT,
		fill_color TEXT,
		border_color TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (record_ref) REFERENCES records(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS links (
		id TEXT NOT NULL,
		ordinal INTEGER NOT NULL DEFAULT 0,
		account_id TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		label TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id, ordinal),
		FOREIGN KEY (parent_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (child_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS positions (
		node_id TEXT PRIMARY KEY,
		x REAL NOT NULL,
		y REAL NOT NULL,
		pinned INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_account ON records(account_id, name);
	CREATE INDEX IF NOT EXISTS idx_nodes_account ON nodes(account_id);
	CREATE INDEX IF NOT EXISTS idx_links_account ON links(account_id);
	CREATE INDEX IF NOT EXISTS idx_links_parent ON links(parent_id);
	CREATE INDEX IF NOT EXISTS idx_links_child ON links(child_id);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ============================================================================
// Fetch
// ============================================================================

// Fetch loads the account snapshot in the configured shape
func (r *Repository) Fetch(ctx context.Context, account string) (*domain.Snapshot, error) {
	nodes, err := r.queryNodes(ctx, account)
	if err != nil {
		return nil, err
	}
	links, err := r.queryLinks(ctx, account)
	if err != nil {
		return nil, err
	}

	if r.shape == repository.ShapeRows {
		return membershipSnapshot(account, nodes, links), nil
	}
	return &domain.Snapshot{Account: account, Rows: nodes, Links: links}, nil
}

func (r *Repository) queryNodes(ctx context.Context, account string) ([]domain.Row, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` `+nodeFrom+`
		WHERE n.account_id = ?
		ORDER BY n.created_at, n.rowid
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Row, 0)
	for rows.Next() {
		var nr nodeRow
		if err := rows.Scan(nr.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, nr.toRow())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return out, nil
}

func (r *Repository) queryLinks(ctx context.Context, account string) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE account_id = ?
		ORDER BY rowid
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Link, 0)
	for rows.Next() {
		var lr linkRow
		if err := rows.Scan(lr.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, lr.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return out, nil
}

// membershipSnapshot lays links out as chained rows: one row per member of a
// link in chain order, then one row per node outside every link. Links whose
// segments do not form a single chain stay explicit.
func membershipSnapshot(account string, nodes []domain.Row, links []domain.Link) *domain.Snapshot {
	byID := make(map[string]domain.Row, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var order []string
	segments := make(map[string][]domain.Link)
	for _, l := range links {
		if _, ok := segments[l.ID]; !ok {
			order = append(order, l.ID)
		}
		segments[l.ID] = append(segments[l.ID], l)
	}

	snap := &domain.Snapshot{Account: account, Rows: make([]domain.Row, 0, len(nodes))}
	linked := make(map[string]bool)
	for _, id := range order {
		segs := segments[id]
		sort.Slice(segs, func(i, j int) bool { return segs[i].Ordinal < segs[j].Ordinal })
		members, ok := chainMembers(segs)
		if !ok {
			snap.Links = append(snap.Links, segs...)
			continue
		}
		for _, m := range members {
			row := byID[m]
			row.ID = m
			row.LinkID = id
			snap.Rows = append(snap.Rows, row)
			linked[m] = true
		}
	}
	for _, n := range nodes {
		if !linked[n.ID] {
			snap.Rows = append(snap.Rows, n)
		}
	}
	return snap
}

// chainMembers returns parent₀, child₀, child₁ … when every segment starts
// where the previous one ended.
func chainMembers(segs []domain.Link) ([]string, bool) {
	members := []string{segs[0].ParentID}
	for i, s := range segs {
		if i > 0 && s.ParentID != segs[i-1].ChildID {
			return nil, false
		}
		members = append(members, s.ChildID)
	}
	return members, true
}

// ============================================================================
// Nodes and links
// ============================================================================

// GetNode retrieves a single node by ID
func (r *Repository) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	var nr nodeRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` `+nodeFrom+` WHERE n.id = ?
	`, id).Scan(nr.scanArgs()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	return nr.toRow().Node(), nil
}

// AccountOf returns the account owning a node or link, or "" if there is none
func (r *Repository) AccountOf(ctx context.Context, kind repository.Kind, id string) (string, error) {
	var query string
	switch kind {
	case repository.KindNode:
		query = `SELECT account_id FROM nodes WHERE id = ?`
	case repository.KindLink:
		query = `SELECT account_id FROM links WHERE id = ? LIMIT 1`
	default:
		return "", errs.New(errs.KindInvalid, "account of", "unknown kind")
	}

	var account string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&account)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// Create inserts a node or a link and returns its id
func (r *Repository) Create(ctx context.Context, kind repository.Kind, fields repository.Fields) (string, error) {
	op := "create " + string(kind)
	account := fields[repository.FieldAccount]
	if account == "" {
		return "", errs.New(errs.KindInvalid, op, "account_id is required")
	}
	id := fields[repository.FieldID]
	if id == "" {
		id = uuid.NewString()
	}

	switch kind {
	case repository.KindNode:
		return id, r.createNode(ctx, op, account, id, fields)
	case repository.KindLink:
		return id, r.createLink(ctx, op, account, id, fields)
	default:
		return "", errs.New(errs.KindInvalid, op, "unknown kind")
	}
}

func (r *Repository) createNode(ctx context.Context, op, account, id string, fields repository.Fields) error {
	row := domain.Row{
		ID:        id,
		Label:     fields[repository.FieldLabel],
		Origin:    domain.Origin(fields[repository.FieldOrigin]),
		RecordRef: fields[repository.FieldRecordRef],
		Style: domain.Style{
			FillColor:   fields[repository.FieldFillColor],
			BorderColor: fields[repository.FieldBorderColor],
			Priority:    fields[repository.FieldPriority],
			Department:  fields[repository.FieldDepartment],
			Function:    fields[repository.FieldFunction],
		},
	}
	if err := domain.Validate(row); err != nil {
		return errs.Invalid(op, err)
	}
	if row.RecordRef != "" {
		if ok, err := r.exists(ctx, `SELECT 1 FROM records WHERE id = ?`, row.RecordRef); err != nil {
			return err
		} else if !ok {
			return errs.NotFound(op, "record "+row.RecordRef)
		}
	}
	if ok, err := r.exists(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id); err != nil {
		return err
	} else if ok {
		return errs.New(errs.KindWriteRejected, op, "node "+id+" already exists")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nodes (id, account_id, label, origin, record_ref, department, function, priority, fill_color, border_color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nodeInsertArgs(account, row)...)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

func (r *Repository) createLink(ctx context.Context, op, account, id string, fields repository.Fields) error {
	link := domain.Link{
		ID:       id,
		ParentID: fields[repository.FieldParentID],
		ChildID:  fields[repository.FieldChildID],
		Label:    fields[repository.FieldLabel],
	}
	if err := domain.Validate(link); err != nil {
		return errs.Invalid(op, err)
	}
	if ok, err := r.exists(ctx, `SELECT 1 FROM links WHERE id = ?`, id); err != nil {
		return err
	} else if ok {
		return errs.New(errs.KindWriteRejected, op, "link "+id+" already exists")
	}
	if err := r.requireNodes(ctx, op, link.ParentID, link.ChildID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO links (id, ordinal, account_id, parent_id, child_id, label)
		VALUES (?, 0, ?, ?, ?, ?)
	`, link.ID, account, link.ParentID, link.ChildID, stringToNull(link.Label))
	if err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// Update writes fields to a node or to every segment of a link
func (r *Repository) Update(ctx context.Context, kind repository.Kind, id string, fields repository.Fields) error {
	op := "update " + string(kind)
	if len(fields) == 0 {
		return nil
	}

	var (
		table   string
		columns map[string]string
	)
	switch kind {
	case repository.KindNode:
		table, columns = "nodes", nodeFields
		if origin, ok := fields[repository.FieldOrigin]; ok && origin != string(domain.OriginRecord) && origin != string(domain.OriginPlaceholder) {
			return errs.New(errs.KindInvalid, op, "origin must be record or placeholder")
		}
		if ref := fields[repository.FieldRecordRef]; ref != "" {
			if ok, err := r.exists(ctx, `SELECT 1 FROM records WHERE id = ?`, ref); err != nil {
				return err
			} else if !ok {
				return errs.NotFound(op, "record "+ref)
			}
		}
	case repository.KindLink:
		table, columns = "links", linkFields
		if err := r.checkLinkUpdate(ctx, op, id, fields); err != nil {
			return err
		}
	default:
		return errs.New(errs.KindInvalid, op, "unknown kind")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := columns[name]; !ok {
			return errs.New(errs.KindInvalid, op, "unknown field "+name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)+1)
	for _, name := range names {
		sets = append(sets, columns[name]+" = ?")
		if name == repository.FieldLabel && kind == repository.KindNode {
			args = append(args, fields[name])
		} else {
			args = append(args, stringToNull(fields[name]))
		}
	}
	if kind == repository.KindNode {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound(op, string(kind)+" "+id)
	}
	return nil
}

func (r *Repository) checkLinkUpdate(ctx context.Context, op, id string, fields repository.Fields) error {
	_, parent := fields[repository.FieldParentID]
	_, child := fields[repository.FieldChildID]
	if !parent && !child {
		return nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to query link: %w", err)
	}
	var segs []domain.Link
	for rows.Next() {
		var lr linkRow
		if err := rows.Scan(lr.scanArgs()...); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan link: %w", err)
		}
		segs = append(segs, lr.toDomain())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating link: %w", err)
	}

	switch {
	case len(segs) == 0:
		return errs.NotFound(op, "link "+id)
	case len(segs) > 1:
		return errs.New(errs.KindWriteRejected, op, "cannot re-point the endpoints of chained link "+id)
	}

	updated := segs[0]
	if parent {
		updated.ParentID = fields[repository.FieldParentID]
	}
	if child {
		updated.ChildID = fields[repository.FieldChildID]
	}
	if err := domain.Validate(updated); err != nil {
		return errs.Invalid(op, err)
	}
	return r.requireNodes(ctx, op, updated.ParentID, updated.ChildID)
}

// Delete removes a node with its links and position, or every segment of a link
func (r *Repository) Delete(ctx context.Context, kind repository.Kind, id string) error {
	op := "delete " + string(kind)

	var query string
	switch kind {
	case repository.KindNode:
		// links and positions go by CASCADE
		query = `DELETE FROM nodes WHERE id = ?`
	case repository.KindLink:
		query = `DELETE FROM links WHERE id = ?`
	default:
		return errs.New(errs.KindInvalid, op, "unknown kind")
	}

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound(op, string(kind)+" "+id)
	}
	return nil
}

func (r *Repository) requireNodes(ctx context.Context, op string, ids ...string) error {
	for _, id := range ids {
		ok, err := r.exists(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound(op, "node "+id)
		}
	}
	return nil
}

func (r *Repository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// ============================================================================
// Records
// ============================================================================

// UpsertRecord inserts or updates a backing record
func (r *Repository) UpsertRecord(ctx context.Context, rec *domain.Record) error {
	if err := domain.Validate(rec); err != nil {
		return errs.Invalid("upsert record", err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records (id, account_id, name, title, department, function, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			name = excluded.name,
			title = excluded.title,
			department = excluded.department,
			function = excluded.function,
			priority = excluded.priority,
			updated_at = CURRENT_TIMESTAMP
	`, recordInsertArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// SearchRecords returns records of the account whose name contains query.
// Prefix matches rank before other matches, then by name.
func (r *Repository) SearchRecords(ctx context.Context, account, query string, limit int) ([]domain.Record, error) {
	q := escapeLike(strings.TrimSpace(query))
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE account_id = ? AND name LIKE ? ESCAPE '\'
		ORDER BY CASE WHEN name LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, name COLLATE NOCASE
		LIMIT ?
	`, account, "%"+q+"%", q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Record, 0)
	for rows.Next() {
		var rr recordRow
		if err := rows.Scan(rr.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rr.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// ============================================================================
// Positions
// ============================================================================

// GetPositions returns the stored positions of the account's nodes
func (r *Repository) GetPositions(ctx context.Context, account string) (map[string]domain.NodePosition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.node_id, p.x, p.y, p.pinned
		FROM positions p JOIN nodes n ON n.id = p.node_id
		WHERE n.account_id = ?
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.NodePosition)
	for rows.Next() {
		var (
			pos    domain.NodePosition
			pinned sql.NullInt64
		)
		if err := rows.Scan(&pos.NodeID, &pos.X, &pos.Y, &pinned); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.Pinned = nullToBool(pinned)
		out[pos.NodeID] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return out, nil
}

// SavePosition stores the position of one node
func (r *Repository) SavePosition(ctx context.Context, pos domain.NodePosition) error {
	if err := r.requireNodes(ctx, "save position", pos.NodeID); err != nil {
		return err
	}
	pinned := 0
	if pos.Pinned {
		pinned = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (node_id, x, y, pinned, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(node_id) DO UPDATE SET
			x = excluded.x,
			y = excluded.y,
			pinned = excluded.pinned,
			updated_at = CURRENT_TIMESTAMP
	`, pos.NodeID, pos.X, pos.Y, pinned)
	if err != nil {
		return fmt.Errorf("failed to save position for %s: %w", pos.NodeID, err)
	}
	return nil
}

// ============================================================================
// Import / export
// ============================================================================

// ImportFragment writes a fragment into the account. With replace set, the
// account's records and nodes are cleared first. Links whose endpoints are not
// in the account after the import are skipped.
func (r *Repository) ImportFragment(ctx context.Context, account string, fragment *domain.GraphFragment, replace bool) error {
	const op = "import"
	if fragment == nil {
		return errs.New(errs.KindInvalid, op, "empty fragment")
	}
	for _, row := range fragment.Nodes {
		if err := domain.Validate(row); err != nil {
			return errs.Invalid(op, fmt.Errorf("node %q: %w", row.ID, err))
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		// links and positions go by CASCADE
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE account_id = ?`, account); err != nil {
			return fmt.Errorf("failed to clear nodes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE account_id = ?`, account); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}
	}

	recordStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, account_id, name, title, department, function, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			department = excluded.department,
			function = excluded.function,
			priority = excluded.priority,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record statement: %w", err)
	}
	defer recordStmt.Close()

	for i := range fragment.Records {
		rec := fragment.Records[i]
		rec.AccountID = account
		if err := domain.Validate(rec); err != nil {
			return errs.Invalid(op, fmt.Errorf("record %q: %w", rec.ID, err))
		}
		if _, err := recordStmt.ExecContext(ctx, recordInsertArgs(&rec)...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, account_id, label, origin, record_ref, department, function, priority, fill_color, border_color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			origin = excluded.origin,
			record_ref = excluded.record_ref,
			department = excluded.department,
			function = excluded.function,
			priority = excluded.priority,
			fill_color = excluded.fill_color,
			border_color = excluded.border_color,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node statement: %w", err)
	}
	defer nodeStmt.Close()

	seen := make(map[string]bool, len(fragment.Nodes))
	for _, row := range fragment.Nodes {
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		if _, err := nodeStmt.ExecContext(ctx, nodeInsertArgs(account, row)...); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", row.ID, err)
		}
	}

	linkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO links (id, ordinal, account_id, parent_id, child_id, label)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM nodes WHERE id = ? AND account_id = ?)
		  AND EXISTS (SELECT 1 FROM nodes WHERE id = ? AND account_id = ?)
		ON CONFLICT(id, ordinal) DO UPDATE SET
			parent_id = excluded.parent_id,
			child_id = excluded.child_id,
			label = excluded.label
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare link statement: %w", err)
	}
	defer linkStmt.Close()

	links := append(append([]domain.Link(nil), fragment.Links...), fragment.ChainLinks()...)
	skipped := 0
	for _, l := range links {
		if err := domain.Validate(l); err != nil {
			return errs.Invalid(op, fmt.Errorf("link %q: %w", l.ID, err))
		}
		res, err := linkStmt.ExecContext(ctx,
			l.ID, l.Ordinal, account, l.ParentID, l.ChildID, stringToNull(l.Label),
			l.ParentID, account, l.ChildID, account)
		if err != nil {
			return fmt.Errorf("failed to insert link %s: %w", l.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			skipped++
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, lastImportKey(account), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to store import timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("imported fragment",
		zap.String("account", account),
		zap.Int("records", len(fragment.Records)),
		zap.Int("nodes", len(seen)),
		zap.Int("links", len(links)-skipped),
		zap.Int("skipped_links", skipped),
		zap.Bool("replace", replace))
	return nil
}

// ExportFragment returns the account as a fragment with explicit links
func (r *Repository) ExportFragment(ctx context.Context, account string) (*domain.GraphFragment, error) {
	frag := domain.NewGraphFragment()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE account_id = ? ORDER BY name
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	for rows.Next() {
		var rr recordRow
		if err := rows.Scan(rr.scanArgs()...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		frag.Records = append(frag.Records, rr.toDomain())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT id, label, origin, record_ref, department, function, priority, fill_color, border_color
		FROM nodes WHERE account_id = ? ORDER BY created_at, rowid
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	for nodeRows.Next() {
		var (
			row                               domain.Row
			origin                            string
			ref, dept, fn, prio, fill, border sql.NullString
		)
		if err := nodeRows.Scan(&row.ID, &row.Label, &origin, &ref, &dept, &fn, &prio, &fill, &border); err != nil {
			nodeRows.Close()
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		row.Origin = domain.Origin(origin)
		row.RecordRef = nullToString(ref)
		row.Style = domain.Style{
			FillColor:   nullToString(fill),
			BorderColor: nullToString(border),
			Priority:    nullToString(prio),
			Department:  nullToString(dept),
			Function:    nullToString(fn),
		}
		frag.AddNode(row)
	}
	nodeRows.Close()
	if err := nodeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	links, err := r.queryLinks(ctx, account)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		frag.AddLink(l)
	}

	return frag, nil
}

// LastImport returns when the account was last imported
func (r *Repository) LastImport(ctx context.Context, account string) (time.Time, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, lastImportKey(account)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last import: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse last import: %w", err)
	}
	return t, true, nil
}

func lastImportKey(account string) string {
	return "last_import:" + account
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
