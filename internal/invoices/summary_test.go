package invoices

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func summaryInvoice(id uuid.UUID, items ...LineItem) *Invoice {
	return &Invoice{
		ID:               id,
		IsInternal:       true,
		RequiresApproval: true,
		LineItems:        items,
	}
}

func TestNormalizeSummaryDefaults(t *testing.T) {
	in := LineItem{
		ID:               uuid.New(),
		TypeID:           LineItemTask,
		ProductKey:       "widget",
		Notes:            "   ",
		Cost:             12.5,
		Quantity:         7,
		TaxName1:         "VAT",
		TaxRate1:         21,
		IsAmountDiscount: true,
	}
	out := NormalizeSummaryDefaults(in)
	require.Equal(t, LineItemProduct, out.TypeID)
	require.Equal(t, SummaryProductKey, out.ProductKey)
	require.Equal(t, float64(1), out.Quantity)
	require.Equal(t, "Total", out.Notes)
	require.Equal(t, 12.5, out.Cost)
	require.Empty(t, out.TaxName1)
	require.Zero(t, out.TaxRate1)
	require.False(t, out.IsAmountDiscount)

	// Idempotent: a second pass changes nothing.
	require.Equal(t, out, NormalizeSummaryDefaults(out))

	nan := NormalizeSummaryDefaults(LineItem{Cost: math.NaN()})
	require.Zero(t, nan.Cost)
}

func TestValidateSummaryItem(t *testing.T) {
	ok := NormalizeSummaryDefaults(LineItem{Notes: "Consulting", Cost: 100})
	require.True(t, ValidateSummaryItem(ok).Empty())

	blank := LineItem{Notes: "  ", Cost: 100}
	require.NotEmpty(t, ValidateSummaryItem(blank).Description)

	for _, cost := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		errs := ValidateSummaryItem(LineItem{Notes: "x", Cost: cost})
		require.NotEmptyf(t, errs.Amount, "cost %v must be invalid", cost)
	}
}

func TestEnsureSummaryLineOneShot(t *testing.T) {
	ed := NewSummaryEditor()
	inv := summaryInvoice(uuid.New())

	require.True(t, ed.EnsureSummaryLine(inv, false))
	require.Len(t, SummaryItems(inv), 1)
	require.Equal(t, "Total", SummaryItems(inv)[0].Notes)

	// The auto-created line starts at zero and reports an amount error until
	// a valid amount is entered.
	require.NotEmpty(t, ed.Errors()[0].Amount)
	ed.SetAmount(inv, 0, "100", false)
	_, present := ed.Errors()[0]
	require.False(t, present)

	// Second call with the line present is a no-op.
	require.False(t, ed.EnsureSummaryLine(inv, false))
	require.Len(t, SummaryItems(inv), 1)

	// Deleting the sole summary line does not re-trigger auto-create.
	require.True(t, ed.Delete(inv, 0, false))
	require.Empty(t, SummaryItems(inv))
	require.False(t, ed.EnsureSummaryLine(inv, false))
	require.Empty(t, SummaryItems(inv))
}

func TestEnsureSummaryLineResetsPerInvoice(t *testing.T) {
	ed := NewSummaryEditor()

	first := summaryInvoice(uuid.New())
	require.True(t, ed.EnsureSummaryLine(first, false))
	require.True(t, ed.Delete(first, 0, false))

	// A different invoice identity gets its own auto-create shot.
	second := summaryInvoice(uuid.New())
	require.True(t, ed.EnsureSummaryLine(second, false))
}

func TestEnsureSummaryLineRespectsLock(t *testing.T) {
	ed := NewSummaryEditor()
	inv := summaryInvoice(uuid.New())
	inv.ApprovalStatus = ApprovalApproved

	require.False(t, ed.EnsureSummaryLine(inv, true))
	require.Empty(t, inv.LineItems)
	require.False(t, ed.AddSummaryLine(inv, true))
	require.False(t, ed.Delete(inv, 0, true))
}

func TestSummaryEditsResolveByIdentity(t *testing.T) {
	ed := NewSummaryEditor()
	product := LineItem{ID: uuid.New(), TypeID: LineItemProduct, ProductKey: "widget", Notes: "Widget", Cost: 10, Quantity: 2}
	summary := NormalizeSummaryDefaults(LineItem{ID: uuid.New(), Notes: "Total", Cost: 50})
	inv := summaryInvoice(uuid.New(), product, summary)
	ed.Track(inv)

	// Summary index 0 refers to the summary line even though it sits at
	// absolute position 1.
	ed.SetDescription(inv, 0, "Monthly retainer", false)
	require.Equal(t, "Monthly retainer", inv.LineItems[1].Notes)
	require.Equal(t, "Widget", inv.LineItems[0].Notes)

	ed.SetAmount(inv, 0, "99.50", false)
	require.Equal(t, 99.50, inv.LineItems[1].Cost)
	require.Equal(t, float64(10), inv.LineItems[0].Cost)

	// Inserting a regular line ahead of the summary does not break the
	// mapping.
	extra := LineItem{ID: uuid.New(), TypeID: LineItemTask, Notes: "Setup", Cost: 5, Quantity: 1}
	inv.LineItems = append([]LineItem{extra}, inv.LineItems...)
	ed.SetAmount(inv, 0, "120", false)
	require.Equal(t, float64(120), inv.LineItems[2].Cost)

	require.True(t, ed.Delete(inv, 0, false))
	require.Len(t, inv.LineItems, 2)
	require.Empty(t, SummaryItems(inv))
}

func TestSetDescriptionBlankSurfacesError(t *testing.T) {
	ed := NewSummaryEditor()
	summary := NormalizeSummaryDefaults(LineItem{ID: uuid.New(), Notes: "Consulting", Cost: 300})
	docID := uuid.New()
	inv := summaryInvoice(uuid.New(), summary)
	inv.UploadedDocumentID = &docID
	ed.Track(inv)

	// Blanking the description stores the blank value and records the error.
	ed.SetDescription(inv, 0, "   ", false)
	require.Equal(t, "   ", inv.LineItems[0].Notes)
	require.NotEmpty(t, ed.Errors()[0].Description)
	require.False(t, SummaryComplete(inv))

	// A real description clears it again.
	ed.SetDescription(inv, 0, "Consulting Q3", false)
	_, present := ed.Errors()[0]
	require.False(t, present)
	require.True(t, SummaryComplete(inv))
}

func TestSetAmountRejectsUnparseable(t *testing.T) {
	ed := NewSummaryEditor()
	summary := NormalizeSummaryDefaults(LineItem{ID: uuid.New(), Notes: "Total", Cost: 42})
	inv := summaryInvoice(uuid.New(), summary)
	ed.Track(inv)

	ed.SetAmount(inv, 0, "not-a-number", false)
	require.Equal(t, float64(42), inv.LineItems[0].Cost)
	require.NotEmpty(t, ed.Errors()[0].Amount)

	// Empty input stores zero; zero is not a valid amount, so the error
	// stays.
	ed.SetAmount(inv, 0, "", false)
	require.Zero(t, inv.LineItems[0].Cost)
	require.NotEmpty(t, ed.Errors()[0].Amount)

	// A valid amount clears the error for the line.
	ed.SetAmount(inv, 0, "17.25", false)
	require.Equal(t, 17.25, inv.LineItems[0].Cost)
	_, present := ed.Errors()[0]
	require.False(t, present)
}

func TestSummaryComplete(t *testing.T) {
	docID := uuid.New()

	// No document attached: the rule does not apply.
	require.True(t, SummaryComplete(summaryInvoice(uuid.New())))

	// Document without any summary line fails.
	noSummary := summaryInvoice(uuid.New())
	noSummary.UploadedDocumentID = &docID
	require.False(t, SummaryComplete(noSummary))

	// Document plus an invalid summary line fails.
	invalid := summaryInvoice(uuid.New(), NormalizeSummaryDefaults(LineItem{ID: uuid.New(), Notes: "Total", Cost: 0}))
	invalid.UploadedDocumentID = &docID
	require.False(t, SummaryComplete(invalid))

	// Document plus one valid summary line passes.
	valid := summaryInvoice(uuid.New(), NormalizeSummaryDefaults(LineItem{ID: uuid.New(), Notes: "Total", Cost: 250}))
	valid.UploadedDocumentID = &docID
	require.True(t, SummaryComplete(valid))
}
