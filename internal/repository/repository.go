package repository

import (
	"context"

	"orgchart/internal/domain"
)

// Kind names a writable record type
type Kind string

const (
	KindNode Kind = "node"
	KindLink Kind = "link"
)

// Field names understood by Create and Update
const (
	FieldAccount     = "account_id"
	FieldID          = "id"
	FieldLabel       = "label"
	FieldOrigin      = "origin"
	FieldRecordRef   = "record_ref"
	FieldDepartment  = "department"
	FieldFunction    = "function"
	FieldPriority    = "priority"
	FieldFillColor   = "fill_color"
	FieldBorderColor = "border_color"
	FieldParentID    = "parent_id"
	FieldChildID     = "child_id"
)

// Fields carries the columns of a write
type Fields map[string]string

// Shape is the layout of a fetch answer
type Shape string

const (
	// ShapeSeparated answers with node rows plus explicit links
	ShapeSeparated Shape = "separated"
	// ShapeRows answers with one row per link membership, chained by link id
	ShapeRows Shape = "rows"
)

// Fetcher loads the authoritative snapshot of an account
type Fetcher interface {
	Fetch(ctx context.Context, account string) (*domain.Snapshot, error)
}

// Writer creates, updates and deletes nodes and links
type Writer interface {
	Create(ctx context.Context, kind Kind, fields Fields) (string, error)
	Update(ctx context.Context, kind Kind, id string, fields Fields) error
	Delete(ctx context.Context, kind Kind, id string) error
}

// Repository defines the interface for org chart data access
type Repository interface {
	Fetcher
	Writer

	// Read operations
	GetNode(ctx context.Context, id string) (*domain.Node, error)
	AccountOf(ctx context.Context, kind Kind, id string) (string, error)
	SearchRecords(ctx context.Context, account, query string, limit int) ([]domain.Record, error)

	// Records
	UpsertRecord(ctx context.Context, record *domain.Record) error

	// Layout persistence
	GetPositions(ctx context.Context, account string) (map[string]domain.NodePosition, error)
	SavePosition(ctx context.Context, pos domain.NodePosition) error

	// Bulk operations
	ImportFragment(ctx context.Context, account string, fragment *domain.GraphFragment, replace bool) error
	ExportFragment(ctx context.Context, account string) (*domain.GraphFragment, error)

	// Close releases resources
	Close() error
}
