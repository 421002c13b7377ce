package invoices

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SummaryProductKey marks a line item as a manually authored approval-summary
// line, as opposed to a catalog-sourced product line.
const SummaryProductKey = "__summary__"

// LineItemType enumerates line item kinds.
type LineItemType int

const (
	LineItemProduct LineItemType = iota + 1
	LineItemTask
	LineItemUnpaidFee
	LineItemPaidFee
	LineItemLateFee
)

// LineItem is a single invoice line. Order within Invoice.LineItems matters for
// display only; workflow logic addresses lines by ID.
type LineItem struct {
	ID               uuid.UUID
	TypeID           LineItemType
	ProductKey       string
	Notes            string
	Cost             float64
	Quantity         float64
	TaxName1         string
	TaxRate1         float64
	TaxName2         string
	TaxRate2         float64
	TaxName3         string
	TaxRate3         float64
	IsAmountDiscount bool
}

// ApprovalRecord holds reviewer-supplied approval metadata.
type ApprovalRecord struct {
	ApproverName         string
	ApprovedAt           *time.Time
	RejectedAt           *time.Time
	RejectionReason      string
	SubmitToSZDate       *time.Time
	ApprovedDocumentHash string
}

// Invoice is the workflow-relevant subset of an invoice. ID is uuid.Nil for a
// not-yet-persisted invoice.
type Invoice struct {
	ID                 uuid.UUID
	Number             string
	ClientID           uuid.UUID
	IsInternal         bool
	RequiresApproval   bool
	ApprovalStatus     ApprovalStatus
	UploadedDocumentID *uuid.UUID
	ApprovalRecord     *ApprovalRecord
	LineItems          []LineItem
}

// Persisted reports whether the invoice has been stored.
func (inv *Invoice) Persisted() bool {
	return inv != nil && inv.ID != uuid.Nil
}

// HasUploadedDocument reports whether a source document is attached.
func (inv *Invoice) HasUploadedDocument() bool {
	return inv != nil && inv.UploadedDocumentID != nil && *inv.UploadedDocumentID != uuid.Nil
}

// Client is the workflow-relevant subset of a client.
type Client struct {
	ID           uuid.UUID
	Name         string
	IsInternal   bool
	ContactEmail string
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("invoices: not found")
	// ErrInvalidState occurs when an action violates the approval workflow.
	ErrInvalidState = errors.New("invoices: invalid state transition")
	// ErrValidation indicates invalid input; wrapped messages are safe to show.
	ErrValidation = errors.New("invoices: invalid input")
	// ErrLocked occurs when content edits hit an approved internal invoice.
	ErrLocked = errors.New("invoices: editing locked")
	// ErrCooldownActive occurs when a resend is attempted during its cooldown.
	ErrCooldownActive = errors.New("invoices: resend cooldown active")
	// ErrBusy occurs when the same action is already in flight for an invoice.
	ErrBusy = errors.New("invoices: action already in flight")
)
