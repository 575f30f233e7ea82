// Package dialog defines the modal collaborators the mutation orchestrator
// waits on, and a Broker that serves them to a remote client.
package dialog

import (
	"context"
	"errors"

	"orgchart/internal/domain"
)

// ErrCancelled is returned when the user dismisses a dialog
var ErrCancelled = errors.New("dialog cancelled")

// EditMethod is what the user chose in the edit dialog
type EditMethod string

const (
	MethodSave     EditMethod = "save"
	MethodDelete   EditMethod = "delete"
	MethodReplace  EditMethod = "replace"
	MethodRedirect EditMethod = "redirect"
)

// SaveStatus is the outcome the edit form reports for a save
type SaveStatus string

const (
	StatusSuccess SaveStatus = "success"
	StatusError   SaveStatus = "error"
)

// Answer resolves a confirmation
type Answer string

const (
	AnswerConfirm Answer = "confirm"
	AnswerCancel  Answer = "cancel"
)

// EditRequest opens the edit dialog
type EditRequest struct {
	NodeID       string `json:"node_id"`
	CurrentLabel string `json:"current_label"`
	RecordRef    string `json:"record_ref,omitempty"`
}

// Selection is a typeahead pick. IsRecord is false for free text.
type Selection struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	IsRecord bool   `json:"is_record"`
}

// EditResult resolves the edit dialog
type EditResult struct {
	Method EditMethod `json:"method" validate:"required,oneof=save delete replace redirect"`

	// save
	Status  SaveStatus    `json:"status,omitempty" validate:"omitempty,oneof=success error"`
	Message string        `json:"message,omitempty"`
	Label   string        `json:"label,omitempty" validate:"max=255"`
	Style   *domain.Style `json:"style,omitempty"`

	// replace
	Replacement *Selection `json:"replacement,omitempty" validate:"required_if=Method replace,omitempty"`
}

// AddResult resolves the add dialog
type AddResult struct {
	Label    string `json:"label" validate:"required,max=255"`
	ParentID string `json:"parent_id,omitempty"`
}

// Editor opens the edit dialog for one node
type Editor interface {
	EditNode(ctx context.Context, req EditRequest) (EditResult, error)
}

// Adder opens the add dialog
type Adder interface {
	AddNode(ctx context.Context) (AddResult, error)
}

// Confirmer asks a yes/no question
type Confirmer interface {
	Confirm(ctx context.Context, message string) (Answer, error)
}

// Dialogs bundles every collaborator
type Dialogs interface {
	Editor
	Adder
	Confirmer
}
