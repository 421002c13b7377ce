package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateInvoice(ctx context.Context, inv Invoice) (uuid.UUID, error)
	ReplaceLineItems(ctx context.Context, invoiceID uuid.UUID, items []LineItem) error
	UpdateApprovalStatus(ctx context.Context, id uuid.UUID, status ApprovalStatus) error
	SetApproval(ctx context.Context, id uuid.UUID, approver string, at time.Time, documentHash string) error
	SetRejection(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
	ClearRejection(ctx context.Context, id uuid.UUID) error
	SetUploadedDocument(ctx context.Context, id uuid.UUID, documentID uuid.UUID) error
	SetSubmitToSZDate(ctx context.Context, id uuid.UUID, date time.Time) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetInvoice returns the invoice with its line items in display order.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var (
		inv       Invoice
		status    *string
		docID     *uuid.UUID
		rec       ApprovalRecord
		approver  *string
		reason    *string
		hash      *string
		hasRecord bool
	)
	err := r.pool.QueryRow(ctx, `SELECT id, number, client_id, is_internal, requires_approval,
approval_status, uploaded_document_id,
approver_name, approved_at, rejected_at, rejection_reason, submit_to_sz_date, approved_document_hash
FROM invoices WHERE id=$1`, id).
		Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.IsInternal, &inv.RequiresApproval,
			&status, &docID,
			&approver, &rec.ApprovedAt, &rec.RejectedAt, &reason, &rec.SubmitToSZDate, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	if status != nil {
		inv.ApprovalStatus = ApprovalStatus(*status)
	}
	inv.UploadedDocumentID = docID
	if approver != nil {
		rec.ApproverName = *approver
		hasRecord = true
	}
	if reason != nil {
		rec.RejectionReason = *reason
	}
	if hash != nil {
		rec.ApprovedDocumentHash = *hash
	}
	if hasRecord || rec.ApprovedAt != nil || rec.RejectedAt != nil || rec.SubmitToSZDate != nil || rec.RejectionReason != "" {
		inv.ApprovalRecord = &rec
	}

	rows, err := r.pool.Query(ctx, `SELECT id, type_id, product_key, notes, cost, quantity,
tax_name1, tax_rate1, tax_name2, tax_rate2, tax_name3, tax_rate3, is_amount_discount
FROM line_items WHERE invoice_id=$1 ORDER BY position`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.TypeID, &item.ProductKey, &item.Notes, &item.Cost, &item.Quantity,
			&item.TaxName1, &item.TaxRate1, &item.TaxName2, &item.TaxRate2, &item.TaxName3, &item.TaxRate3,
			&item.IsAmountDiscount); err != nil {
			return Invoice{}, err
		}
		inv.LineItems = append(inv.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetClient returns the workflow-relevant client fields.
func (r *Repository) GetClient(ctx context.Context, id uuid.UUID) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, is_internal, COALESCE(contact_email, '')
FROM clients WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.IsInternal, &c.ContactEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (t *txRepo) CreateInvoice(ctx context.Context, inv Invoice) (uuid.UUID, error) {
	id := inv.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO invoices (id, number, client_id, is_internal, requires_approval, approval_status, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW())`,
		id, inv.Number, inv.ClientID, inv.IsInternal, inv.RequiresApproval, string(inv.ApprovalStatus))
	if err != nil {
		return uuid.Nil, err
	}
	if err := t.ReplaceLineItems(ctx, id, inv.LineItems); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (t *txRepo) ReplaceLineItems(ctx context.Context, invoiceID uuid.UUID, items []LineItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM line_items WHERE invoice_id=$1`, invoiceID); err != nil {
		return err
	}
	for position, item := range items {
		id := item.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := t.tx.Exec(ctx, `INSERT INTO line_items (id, invoice_id, position, type_id, product_key, notes, cost, quantity,
tax_name1, tax_rate1, tax_name2, tax_rate2, tax_name3, tax_rate3, is_amount_discount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			id, invoiceID, position, item.TypeID, item.ProductKey, item.Notes, item.Cost, item.Quantity,
			item.TaxName1, item.TaxRate1, item.TaxName2, item.TaxRate2, item.TaxName3, item.TaxRate3,
			item.IsAmountDiscount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) UpdateApprovalStatus(ctx context.Context, id uuid.UUID, status ApprovalStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET approval_status=NULLIF($2, '') WHERE id=$1`, id, string(status))
	return err
}

func (t *txRepo) SetApproval(ctx context.Context, id uuid.UUID, approver string, at time.Time, documentHash string) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET approver_name=$2, approved_at=$3, approved_document_hash=$4 WHERE id=$1`,
		id, approver, at, documentHash)
	return err
}

func (t *txRepo) SetRejection(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET rejected_at=$2, rejection_reason=$3 WHERE id=$1`, id, at, reason)
	return err
}

func (t *txRepo) ClearRejection(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET rejected_at=NULL, rejection_reason=NULL WHERE id=$1`, id)
	return err
}

func (t *txRepo) SetUploadedDocument(ctx context.Context, id uuid.UUID, documentID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET uploaded_document_id=$2 WHERE id=$1`, id, documentID)
	return err
}

func (t *txRepo) SetSubmitToSZDate(ctx context.Context, id uuid.UUID, date time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET submit_to_sz_date=$2 WHERE id=$1`, id, date)
	return err
}
