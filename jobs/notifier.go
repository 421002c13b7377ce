package jobs

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/invoices"
)

// Notifier queues approval workflow emails for the reviewer contact. It
// implements the workflow's notifier port; enqueueing failures surface to the
// caller, who treats delivery as best effort.
type Notifier struct {
	client       *Client
	reviewerAddr string
}

// NewNotifier constructs a Notifier. reviewerAddr is the fallback recipient
// when the client record has no contact email.
func NewNotifier(client *Client, reviewerAddr string) *Notifier {
	return &Notifier{client: client, reviewerAddr: reviewerAddr}
}

// Notify enqueues one workflow email.
func (n *Notifier) Notify(ctx context.Context, kind invoices.NotificationKind, inv invoices.Invoice, client invoices.Client) error {
	if n == nil || n.client == nil {
		return nil
	}
	to := client.ContactEmail
	if to == "" {
		to = n.reviewerAddr
	}
	var total float64
	for _, item := range inv.LineItems {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		total += item.Cost * qty
	}
	_, err := n.client.EnqueueApprovalEmail(ctx, ApprovalEmailPayload{
		To:            to,
		Kind:          string(kind),
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.Number,
		ClientName:    client.Name,
		Amount:        total,
	})
	return err
}
