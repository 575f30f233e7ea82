package sqlite

import (
	"database/sql"
	"strings"

	"orgchart/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// firstNonEmpty returns the first non-empty string
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// escapeLike escapes LIKE wildcards so user input matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to nodes table:
// 1. Add field to nodeRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update nodeColumns constant - APPEND to end
// 4. Update toRow() to map new field to domain.Row
// 5. Add the column to nodeFields if Update should accept it
// 6. Add migration in sqlite.go migrate() using addColumnIfNotExists()
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - nodeColumns constant
// - scanArgs() return slice
// - All SELECT queries using nodeColumns
//
// Same pattern applies to links and records.

// ============================================================================
// Node Row Scanner
// ============================================================================

// nodeRow holds the columns of a node joined with its backing record
type nodeRow struct {
	ID               string
	AccountID        string
	Label            string
	Origin           string
	RecordRef        sql.NullString
	Department       sql.NullString
	Function         sql.NullString
	Priority         sql.NullString
	FillColor        sql.NullString
	BorderColor      sql.NullString
	RecordName       sql.NullString
	RecordDepartment sql.NullString
	RecordFunction   sql.NullString
	RecordPriority   sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match nodeColumns order exactly:
// id, account_id, label, origin, record_ref, department, function, priority,
// fill_color, border_color, record name, record department, record function,
// record priority
func (r *nodeRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,               // 1
		&r.AccountID,        // 2
		&r.Label,            // 3
		&r.Origin,           // 4
		&r.RecordRef,        // 5
		&r.Department,       // 6
		&r.Function,         // 7
		&r.Priority,         // 8
		&r.FillColor,        // 9
		&r.BorderColor,      // 10
		&r.RecordName,       // 11
		&r.RecordDepartment, // 12
		&r.RecordFunction,   // 13
		&r.RecordPriority,   // 14
	}
}

// toRow converts the scanned row to a domain.Row. Record-backed nodes take
// their label from the record name, and style hints fall back to the record.
func (r *nodeRow) toRow() domain.Row {
	return domain.Row{
		ID:        r.ID,
		Label:     firstNonEmpty(nullToString(r.RecordName), r.Label),
		Origin:    domain.Origin(r.Origin),
		RecordRef: nullToString(r.RecordRef),
		Style: domain.Style{
			FillColor:   nullToString(r.FillColor),
			BorderColor: nullToString(r.BorderColor),
			Priority:    firstNonEmpty(nullToString(r.Priority), nullToString(r.RecordPriority)),
			Department:  firstNonEmpty(nullToString(r.Department), nullToString(r.RecordDepartment)),
			Function:    firstNonEmpty(nullToString(r.Function), nullToString(r.RecordFunction)),
		},
	}
}

// nodeColumns returns the SELECT column list for node queries. Queries must
// alias nodes as n and LEFT JOIN records as r.
const nodeColumns = `n.id, n.account_id, n.label, n.origin, n.record_ref,
	n.department, n.function, n.priority, n.fill_color, n.border_color,
	r.name, r.department, r.function, r.priority`

// nodeFrom is the FROM clause matching nodeColumns
const nodeFrom = `FROM nodes n LEFT JOIN records r ON r.id = n.record_ref`

// nodeFields maps writable field names to node columns
var nodeFields = map[string]string{
	"label":        "label",
	"origin":       "origin",
	"record_ref":   "record_ref",
	"department":   "department",
	"function":     "function",
	"priority":     "priority",
	"fill_color":   "fill_color",
	"border_color": "border_color",
}

// nodeInsertArgs prepares arguments for node INSERT/UPSERT
// Returns: id, account_id, label, origin, record_ref, department, function,
//          priority, fill_color, border_color
func nodeInsertArgs(account string, row domain.Row) []interface{} {
	n := row.Node()
	return []interface{}{
		row.ID,
		account,
		row.Label,
		string(n.Origin),
		stringToNull(row.RecordRef),
		stringToNull(row.Department),
		stringToNull(row.Function),
		stringToNull(row.Priority),
		stringToNull(row.FillColor),
		stringToNull(row.BorderColor),
	}
}

// ============================================================================
// Link Row Scanner
// ============================================================================

// linkRow holds all columns from a link query for scanning
type linkRow struct {
	ID       string
	Ordinal  int
	ParentID string
	ChildID  string
	Label    sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match linkColumns order exactly:
// id, ordinal, parent_id, child_id, label
func (r *linkRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,       // 1
		&r.Ordinal,  // 2
		&r.ParentID, // 3
		&r.ChildID,  // 4
		&r.Label,    // 5
	}
}

// toDomain converts the scanned row to a domain.Link
func (r *linkRow) toDomain() domain.Link {
	return domain.Link{
		ID:       r.ID,
		Ordinal:  r.Ordinal,
		ParentID: r.ParentID,
		ChildID:  r.ChildID,
		Label:    nullToString(r.Label),
	}
}

// linkColumns returns the SELECT column list for link queries
const linkColumns = `id, ordinal, parent_id, child_id, label`

// linkFields maps writable field names to link columns
var linkFields = map[string]string{
	"parent_id": "parent_id",
	"child_id":  "child_id",
	"label":     "label",
}

// ============================================================================
// Record Row Scanner
// ============================================================================

// recordRow holds all columns from a record query for scanning
type recordRow struct {
	ID         string
	AccountID  string
	Name       string
	Title      sql.NullString
	Department sql.NullString
	Function   sql.NullString
	Priority   sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match recordColumns order exactly:
// id, account_id, name, title, department, function, priority
func (r *recordRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,         // 1
		&r.AccountID,  // 2
		&r.Name,       // 3
		&r.Title,      // 4
		&r.Department, // 5
		&r.Function,   // 6
		&r.Priority,   // 7
	}
}

// toDomain converts the scanned row to a domain.Record
func (r *recordRow) toDomain() domain.Record {
	return domain.Record{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Name:       r.Name,
		Title:      nullToString(r.Title),
		Department: nullToString(r.Department),
		Function:   nullToString(r.Function),
		Priority:   nullToString(r.Priority),
	}
}

// recordColumns returns the SELECT column list for record queries
const recordColumns = `id, account_id, name, title, department, function, priority`

// recordInsertArgs prepares arguments for record INSERT/UPSERT
// Returns: id, account_id, name, title, department, function, priority
func recordInsertArgs(rec *domain.Record) []interface{} {
	return []interface{}{
		rec.ID,
		rec.AccountID,
		rec.Name,
		stringToNull(rec.Title),
		stringToNull(rec.Department),
		stringToNull(rec.Function),
		stringToNull(rec.Priority),
	}
}
