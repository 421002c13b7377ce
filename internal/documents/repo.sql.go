package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed document metadata persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores document metadata.
func (r *Repository) Insert(ctx context.Context, doc Document) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO documents (id, invoice_id, name, size, sha256, object_key, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.InvoiceID, doc.Name, doc.Size, doc.SHA256, doc.ObjectKey, doc.UploadedAt)
	return err
}

// Get returns document metadata by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_id, name, size, sha256, object_key, uploaded_at
FROM documents WHERE id=$1`, id).
		Scan(&doc.ID, &doc.InvoiceID, &doc.Name, &doc.Size, &doc.SHA256, &doc.ObjectKey, &doc.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}
