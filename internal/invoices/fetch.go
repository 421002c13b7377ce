package invoices

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Fetcher deduplicates concurrent reads of the same invoice. Every mutation is
// followed by a re-fetch rather than an optimistic patch, so bursts of
// refreshes for one invoice collapse into a single repository query.
type Fetcher struct {
	repo  RepositoryPort
	group singleflight.Group
}

// NewFetcher constructs a Fetcher over the repository.
func NewFetcher(repo RepositoryPort) *Fetcher {
	return &Fetcher{repo: repo}
}

// Invoice returns the current server view of the invoice.
func (f *Fetcher) Invoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	v, err, _ := f.group.Do(id.String(), func() (any, error) {
		return f.repo.GetInvoice(ctx, id)
	})
	if err != nil {
		return Invoice{}, err
	}
	return v.(Invoice), nil
}

// Forget drops any in-flight coalescing for the invoice, used after mutations
// so the next read observes post-mutation state.
func (f *Fetcher) Forget(id uuid.UUID) {
	f.group.Forget(id.String())
}
