package invoices

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IsSummaryLine reports whether a line item is a manually authored
// approval-summary line.
func IsSummaryLine(item LineItem) bool {
	return item.TypeID == LineItemProduct && item.ProductKey == SummaryProductKey
}

// NormalizeSummaryDefaults forces the neutral defaults a summary line must
// carry: no taxes, no discount semantics, quantity 1, a non-empty description.
// Idempotent.
func NormalizeSummaryDefaults(item LineItem) LineItem {
	item.TypeID = LineItemProduct
	item.ProductKey = SummaryProductKey
	item.Quantity = 1
	if math.IsNaN(item.Cost) || math.IsInf(item.Cost, 0) {
		item.Cost = 0
	}
	if strings.TrimSpace(item.Notes) == "" {
		item.Notes = "Total"
	}
	item.TaxName1, item.TaxRate1 = "", 0
	item.TaxName2, item.TaxRate2 = "", 0
	item.TaxName3, item.TaxRate3 = "", 0
	item.IsAmountDiscount = false
	return item
}

// SummaryItemErrors collects field validation errors for one summary line.
type SummaryItemErrors struct {
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// Empty reports whether the line validated cleanly.
func (e SummaryItemErrors) Empty() bool {
	return e.Description == "" && e.Amount == ""
}

// ValidateSummaryItem checks the user-editable fields of a summary line.
func ValidateSummaryItem(item LineItem) SummaryItemErrors {
	var errs SummaryItemErrors
	if strings.TrimSpace(item.Notes) == "" {
		errs.Description = "internal_invoice_summary_invalid_description"
	}
	if !(item.Cost > 0) || math.IsInf(item.Cost, 0) {
		errs.Amount = "internal_invoice_summary_invalid_amount"
	}
	return errs
}

// SummaryItems returns the summary lines of the invoice in display order.
func SummaryItems(inv *Invoice) []LineItem {
	if inv == nil {
		return nil
	}
	var items []LineItem
	for _, item := range inv.LineItems {
		if IsSummaryLine(item) {
			items = append(items, item)
		}
	}
	return items
}

// SummaryEditor owns the per-session summary state for one invoice: the
// one-shot auto-create flag and the per-line validation error map. Line edits
// resolve the backing slice position by line-item ID, never by position, so
// edits elsewhere in the list cannot corrupt summary indices.
type SummaryEditor struct {
	invoiceKey string
	created    bool
	errors     map[int]SummaryItemErrors
}

// NewSummaryEditor constructs an editor with no tracked invoice.
func NewSummaryEditor() *SummaryEditor {
	return &SummaryEditor{errors: make(map[int]SummaryItemErrors)}
}

const newInvoiceKey = "__new__"

func invoiceKey(inv *Invoice) string {
	if inv == nil || inv.ID == uuid.Nil {
		return newInvoiceKey
	}
	return inv.ID.String()
}

// Track resets the one-shot auto-create flag when the edited invoice identity
// changes.
func (e *SummaryEditor) Track(inv *Invoice) {
	key := invoiceKey(inv)
	if key != e.invoiceKey {
		e.invoiceKey = key
		e.created = false
		e.errors = make(map[int]SummaryItemErrors)
	}
}

// EnsureSummaryLine appends one normalized summary line when the invoice has
// none, editing is not locked, and none has been auto-created for this invoice
// session yet. Deleting the sole summary line afterwards does not re-trigger
// creation. Returns true when a line was added.
func (e *SummaryEditor) EnsureSummaryLine(inv *Invoice, locked bool) bool {
	e.Track(inv)
	if inv == nil || locked || e.created {
		return false
	}
	if len(SummaryItems(inv)) > 0 {
		return false
	}
	e.created = true
	line := NormalizeSummaryDefaults(LineItem{ID: uuid.New(), Cost: 0})
	inv.LineItems = append(inv.LineItems, line)
	e.Revalidate(inv)
	return true
}

// lineIndexByID maps a summary-local index back to the absolute position in
// LineItems via the line's identity.
func (e *SummaryEditor) lineIndexByID(inv *Invoice, summaryIndex int) int {
	items := SummaryItems(inv)
	if summaryIndex < 0 || summaryIndex >= len(items) {
		return -1
	}
	id := items[summaryIndex].ID
	for i, item := range inv.LineItems {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// SetDescription updates the description of the summary line at summaryIndex
// and recomputes that line's description error. Other line items are never
// touched.
func (e *SummaryEditor) SetDescription(inv *Invoice, summaryIndex int, value string, locked bool) {
	if locked {
		return
	}
	idx := e.lineIndexByID(inv, summaryIndex)
	if idx < 0 {
		return
	}
	inv.LineItems[idx].Notes = value
	// Validate the stored value, not a normalized copy: normalization would
	// backfill a blank description and hide the error.
	errs := e.errors[summaryIndex]
	errs.Description = ValidateSummaryItem(inv.LineItems[idx]).Description
	e.setErrors(summaryIndex, errs)
}

// SetAmount parses and applies a new amount for the summary line at
// summaryIndex. An unparseable amount records an amount error and leaves the
// underlying cost unchanged. An empty input means zero, which validates as an
// amount error but is stored.
func (e *SummaryEditor) SetAmount(inv *Invoice, summaryIndex int, raw string, locked bool) {
	if locked {
		return
	}
	idx := e.lineIndexByID(inv, summaryIndex)
	if idx < 0 {
		return
	}
	amount := 0.0
	if strings.TrimSpace(raw) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			errs := e.errors[summaryIndex]
			errs.Amount = "internal_invoice_summary_invalid_amount"
			e.setErrors(summaryIndex, errs)
			return
		}
		amount = parsed
	}
	inv.LineItems[idx].Cost = amount
	errs := e.errors[summaryIndex]
	errs.Amount = ValidateSummaryItem(inv.LineItems[idx]).Amount
	e.setErrors(summaryIndex, errs)
}

// Delete removes the summary line at summaryIndex. Permitted only when not
// locked; the absolute index is resolved by line identity.
func (e *SummaryEditor) Delete(inv *Invoice, summaryIndex int, locked bool) bool {
	if locked {
		return false
	}
	idx := e.lineIndexByID(inv, summaryIndex)
	if idx < 0 {
		return false
	}
	inv.LineItems = append(inv.LineItems[:idx], inv.LineItems[idx+1:]...)
	e.Revalidate(inv)
	return true
}

// AddSummaryLine appends a fresh normalized summary line on explicit user
// request, independent of the one-shot auto-create flag.
func (e *SummaryEditor) AddSummaryLine(inv *Invoice, locked bool) bool {
	if inv == nil || locked {
		return false
	}
	line := NormalizeSummaryDefaults(LineItem{ID: uuid.New()})
	inv.LineItems = append(inv.LineItems, line)
	e.Revalidate(inv)
	return true
}

// Revalidate recomputes the whole error map from the current summary lines.
func (e *SummaryEditor) Revalidate(inv *Invoice) {
	next := make(map[int]SummaryItemErrors)
	for i, item := range SummaryItems(inv) {
		if errs := ValidateSummaryItem(item); !errs.Empty() {
			next[i] = errs
		}
	}
	e.errors = next
}

// Errors returns the current summary-index keyed validation errors.
func (e *SummaryEditor) Errors() map[int]SummaryItemErrors {
	return e.errors
}

func (e *SummaryEditor) setErrors(summaryIndex int, errs SummaryItemErrors) {
	if e.errors == nil {
		e.errors = make(map[int]SummaryItemErrors)
	}
	if errs.Empty() {
		delete(e.errors, summaryIndex)
		return
	}
	e.errors[summaryIndex] = errs
}

// SummaryComplete reports whether the invoice satisfies the "summary required
// with upload" rule: when a source document is attached, at least one summary
// line must exist and every summary line must validate. Without a document the
// rule is vacuously satisfied.
func SummaryComplete(inv *Invoice) bool {
	if inv == nil || !inv.HasUploadedDocument() {
		return true
	}
	items := SummaryItems(inv)
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !ValidateSummaryItem(item).Empty() {
			return false
		}
	}
	return true
}
