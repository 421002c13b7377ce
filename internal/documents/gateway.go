package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxUploadBytes caps uploaded documents at 10 MiB.
const MaxUploadBytes = 10 << 20

var (
	// ErrNotFound indicates document missing.
	ErrNotFound = errors.New("documents: not found")
	// ErrUploadRejected indicates the file failed client-side pre-validation
	// (wrong type or size) and no upload was attempted.
	ErrUploadRejected = errors.New("documents: upload rejected")
)

// File is an upload candidate held in memory until validated and stored.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Document is stored upload metadata. SHA256 is the hex content digest that
// becomes the approved document hash when a reviewer approves with this file.
type Document struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	Name       string
	Size       int64
	SHA256     string
	ObjectKey  string
	UploadedAt time.Time
}

// Gateway uploads a document scoped to an invoice and returns its identifier.
type Gateway interface {
	Upload(ctx context.Context, invoiceID uuid.UUID, file File) (Document, error)
	Get(ctx context.Context, id uuid.UUID) (Document, error)
}

// ValidateUpload applies the pre-submit rules: PDF only, at most 10 MiB.
// Rejections happen before any network or storage call.
func ValidateUpload(file File) error {
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrUploadRejected)
	}
	isPDF := file.ContentType == "application/pdf" ||
		strings.HasSuffix(strings.ToLower(file.Name), ".pdf")
	if !isPDF {
		return fmt.Errorf("%w: wrong_file_extension", ErrUploadRejected)
	}
	if int64(len(file.Data)) > MaxUploadBytes {
		return fmt.Errorf("%w: file exceeds 10MB", ErrUploadRejected)
	}
	return nil
}

// ObjectStore persists document bytes under a key.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}

// MetadataPort persists document rows.
type MetadataPort interface {
	Insert(ctx context.Context, doc Document) error
	Get(ctx context.Context, id uuid.UUID) (Document, error)
}

// Service implements Gateway over an object store plus metadata repository.
type Service struct {
	store  ObjectStore
	repo   MetadataPort
	logger *slog.Logger
}

// NewService constructs the gateway.
func NewService(store ObjectStore, repo MetadataPort, logger *slog.Logger) *Service {
	return &Service{store: store, repo: repo, logger: logger}
}

// Upload validates, stores, and records one document for an invoice. Uploading
// again for the same invoice stores a new document; callers decide whether it
// replaces the invoice's current attachment.
func (s *Service) Upload(ctx context.Context, invoiceID uuid.UUID, file File) (Document, error) {
	if invoiceID == uuid.Nil {
		return Document{}, fmt.Errorf("%w: invoice id required", ErrUploadRejected)
	}
	if err := ValidateUpload(file); err != nil {
		return Document{}, err
	}

	digest := sha256.Sum256(file.Data)
	doc := Document{
		ID:         uuid.New(),
		InvoiceID:  invoiceID,
		Name:       file.Name,
		Size:       int64(len(file.Data)),
		SHA256:     hex.EncodeToString(digest[:]),
		UploadedAt: time.Now().UTC(),
	}
	doc.ObjectKey = fmt.Sprintf("invoices/%s/%s.pdf", invoiceID, doc.ID)

	if err := s.store.Put(ctx, doc.ObjectKey, "application/pdf", file.Data); err != nil {
		s.logger.Error("store document", slog.Any("error", err), slog.String("invoice_id", invoiceID.String()))
		return Document{}, err
	}
	if err := s.repo.Insert(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Get returns stored document metadata.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.repo.Get(ctx, id)
}
