package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// ApprovalModule is the approval-log module name for invoices.
const ApprovalModule = "INVOICE"

// ResendCooldown is the minimum interval between approval-request resends for
// one invoice. Prevents notification spam.
const ResendCooldown = 60 * time.Second

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetClient(ctx context.Context, id uuid.UUID) (Client, error)
}

// DocumentPort exposes the document upload gateway.
type DocumentPort interface {
	Upload(ctx context.Context, invoiceID uuid.UUID, file documents.File) (documents.Document, error)
}

// NotificationKind classifies workflow notifications sent to the reviewer
// contact.
type NotificationKind string

const (
	NotifySubmitted   NotificationKind = "submitted"
	NotifyResent      NotificationKind = "resent"
	NotifyResubmitted NotificationKind = "resubmitted"
)

// NotifierPort delivers workflow notifications. Delivery is best effort; the
// workflow never fails because a notification could not be queued.
type NotifierPort interface {
	Notify(ctx context.Context, kind NotificationKind, inv Invoice, client Client) error
}

// CooldownPort throttles repeats of an action.
type CooldownPort interface {
	Start(ctx context.Context, key string, ttl time.Duration) error
	Remaining(ctx context.Context, key string) (time.Duration, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the internal-invoice approval workflow.
type Service struct {
	repo        RepositoryPort
	docs        DocumentPort
	notifier    NotifierPort
	cooldown    CooldownPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService constructs the workflow service.
func NewService(repo RepositoryPort, docs DocumentPort, notifier NotifierPort, cooldown CooldownPort,
	approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		docs:        docs,
		notifier:    notifier,
		cooldown:    cooldown,
		approvals:   approvals,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		inflight:    make(map[string]struct{}),
	}
}

// acquire marks an action in flight for one invoice. Only one resend or
// resubmit may run at a time per invoice from this instance.
func (s *Service) acquire(action string, id uuid.UUID) error {
	key := action + ":" + id.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return ErrBusy
	}
	s.inflight[key] = struct{}{}
	return nil
}

func (s *Service) release(action string, id uuid.UUID) {
	key := action + ":" + id.String()
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// CreateInvoiceInput describes creation payload.
type CreateInvoiceInput struct {
	Number    string
	ClientID  uuid.UUID
	LineItems []LineItem
}

// CreateInternalInvoice persists a new invoice for a client. Invoices against
// an internal client enter the approval workflow with no status yet; the
// pending status appears when the invoice is submitted for approval.
func (s *Service) CreateInternalInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if input.ClientID == uuid.Nil {
		return Invoice{}, fmt.Errorf("%w: client required", ErrValidation)
	}
	client, err := s.repo.GetClient(ctx, input.ClientID)
	if err != nil {
		return Invoice{}, err
	}
	if input.Number == "" {
		input.Number = generateNumber("INV")
	}
	inv := Invoice{
		Number:           input.Number,
		ClientID:         client.ID,
		IsInternal:       client.IsInternal,
		RequiresApproval: client.IsInternal,
		LineItems:        input.LineItems,
	}
	for i := range inv.LineItems {
		if inv.LineItems[i].ID == uuid.Nil {
			inv.LineItems[i].ID = uuid.New()
		}
		if IsSummaryLine(inv.LineItems[i]) {
			inv.LineItems[i] = NormalizeSummaryDefaults(inv.LineItems[i])
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, "INVOICE_CREATE", inv.ID, map[string]any{"number": inv.Number, "internal": inv.IsInternal})
	return inv, nil
}

// UpdateLineItems replaces invoice content, refusing when the lock policy
// reports locked.
func (s *Service) UpdateLineItems(ctx context.Context, invoiceID uuid.UUID, items []LineItem) (Invoice, error) {
	inv, client, err := s.invoiceWithClient(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if EditingLocked(&inv, client) {
		return Invoice{}, ErrLocked
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		if IsSummaryLine(items[i]) {
			items[i] = NormalizeSummaryDefaults(items[i])
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ReplaceLineItems(ctx, invoiceID, items)
	})
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.GetInvoice(ctx, invoiceID)
}

// UploadCustomDocument uploads a source document for the invoice, replacing
// any existing attachment. Refused while editing is locked.
func (s *Service) UploadCustomDocument(ctx context.Context, invoiceID uuid.UUID, file documents.File) (documents.Document, error) {
	inv, client, err := s.invoiceWithClient(ctx, invoiceID)
	if err != nil {
		return documents.Document{}, err
	}
	if EditingLocked(&inv, client) {
		return documents.Document{}, ErrLocked
	}
	doc, err := s.docs.Upload(ctx, invoiceID, file)
	if err != nil {
		return documents.Document{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetUploadedDocument(ctx, invoiceID, doc.ID)
	})
	if err != nil {
		return documents.Document{}, err
	}
	s.recordAudit(ctx, "INVOICE_DOCUMENT_UPLOAD", invoiceID, map[string]any{"document_id": doc.ID.String(), "sha256": doc.SHA256})
	return doc, nil
}

// SubmitForApproval initiates the approval workflow: no status -> pending.
func (s *Service) SubmitForApproval(ctx context.Context, invoiceID uuid.UUID, actor string) error {
	inv, client, err := s.invoiceWithClient(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !inv.IsInternal {
		return fmt.Errorf("%w: only internal invoices require approval", ErrValidation)
	}
	if !CanTransition(inv.ApprovalStatus, ApprovalPending) || inv.ApprovalStatus == ApprovalRejected {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateApprovalStatus(ctx, invoiceID, ApprovalPending); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.EnsureSubmit(ctx, ApprovalModule, invoiceID, actor, fmt.Sprintf("invoice %s submitted for approval", inv.Number))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, NotifySubmitted, inv, client)
	s.recordAudit(ctx, "INVOICE_SUBMIT_APPROVAL", invoiceID, map[string]any{"number": inv.Number})
	return nil
}

// Approve records a reviewer approval. The reviewer document is mandatory;
// its content hash becomes the approved document hash.
func (s *Service) Approve(ctx context.Context, invoiceID uuid.UUID, approver string, file documents.File) error {
	if strings.TrimSpace(approver) == "" {
		return fmt.Errorf("%w: approver name required", ErrValidation)
	}
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: select_file", ErrValidation)
	}
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !CanTransition(inv.ApprovalStatus, ApprovalApproved) {
		return ErrInvalidState
	}
	doc, err := s.docs.Upload(ctx, invoiceID, file)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("APPROVE:%s", invoiceID)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "invoices.approve"); err != nil {
			return err
		}
		inserted = true
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateApprovalStatus(ctx, invoiceID, ApprovalApproved); err != nil {
			return err
		}
		if err := tx.SetApproval(ctx, invoiceID, approver, now, doc.SHA256); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.Record(ctx, shared.ApprovalLog{
				Module: ApprovalModule, RefID: invoiceID, Actor: approver,
				Action: shared.ApprovalApprove, Note: fmt.Sprintf("invoice %s approved", inv.Number),
			})
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	s.recordAudit(ctx, "INVOICE_APPROVE", invoiceID, map[string]any{"approver": approver, "document_hash": doc.SHA256})
	return nil
}

// Reject records a reviewer rejection with a mandatory reason.
func (s *Service) Reject(ctx context.Context, invoiceID uuid.UUID, actor string, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: rejection reason required", ErrValidation)
	}
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !CanTransition(inv.ApprovalStatus, ApprovalRejected) {
		return ErrInvalidState
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateApprovalStatus(ctx, invoiceID, ApprovalRejected); err != nil {
			return err
		}
		if err := tx.SetRejection(ctx, invoiceID, now, reason); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.Record(ctx, shared.ApprovalLog{
				Module: ApprovalModule, RefID: invoiceID, Actor: actor,
				Action: shared.ApprovalReject, Note: reason,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "INVOICE_REJECT", invoiceID, map[string]any{"reason": reason})
	return nil
}

// ResendApproval re-sends the approval request for a pending invoice with an
// uploaded document, rate-limited by the resend cooldown. An attempt during
// cooldown returns ErrCooldownActive without any side effect.
func (s *Service) ResendApproval(ctx context.Context, invoiceID uuid.UUID) error {
	if invoiceID == uuid.Nil {
		return fmt.Errorf("%w: invoice not persisted", ErrValidation)
	}
	if err := s.acquire("resend", invoiceID); err != nil {
		return err
	}
	defer s.release("resend", invoiceID)

	inv, client, err := s.invoiceWithClient(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !CanResend(inv.ApprovalStatus, inv.HasUploadedDocument()) {
		return ErrInvalidState
	}
	key := shared.ResendCooldownKey(invoiceID.String())
	if s.cooldown != nil {
		remaining, err := s.cooldown.Remaining(ctx, key)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return fmt.Errorf("%w: %ds remaining", ErrCooldownActive, int(remaining.Seconds()))
		}
	}
	s.notify(ctx, NotifyResent, inv, client)
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: ApprovalModule, RefID: invoiceID,
			Action: shared.ApprovalResend, Note: fmt.Sprintf("approval request for %s re-sent", inv.Number),
		})
	}
	if s.cooldown != nil {
		if err := s.cooldown.Start(ctx, key, ResendCooldown); err != nil {
			s.logger.Warn("start resend cooldown", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, "INVOICE_RESEND_APPROVAL", invoiceID, map[string]any{"number": inv.Number})
	return nil
}

// Resubmit rolls a rejected invoice back to pending, optionally replacing the
// uploaded document first. An upload failure aborts the resubmission before
// any invoice state changes. The refreshed invoice is returned so callers see
// the server's view strictly after the mutation is durable.
func (s *Service) Resubmit(ctx context.Context, invoiceID uuid.UUID, file *documents.File) (Invoice, error) {
	if invoiceID == uuid.Nil {
		return Invoice{}, fmt.Errorf("%w: invoice not persisted", ErrValidation)
	}
	if err := s.acquire("resubmit", invoiceID); err != nil {
		return Invoice{}, err
	}
	defer s.release("resubmit", invoiceID)

	inv, client, err := s.invoiceWithClient(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if !CanResubmit(inv.ApprovalStatus) {
		return Invoice{}, ErrInvalidState
	}

	// Step 1: optional replacement document. Failure aborts the resubmit.
	var newDocID *uuid.UUID
	if file != nil {
		doc, err := s.docs.Upload(ctx, invoiceID, *file)
		if err != nil {
			return Invoice{}, err
		}
		newDocID = &doc.ID
	}

	// Step 2: rejected -> pending, rejection fields cleared. A nil document id
	// preserves the existing attachment.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if newDocID != nil {
			if err := tx.SetUploadedDocument(ctx, invoiceID, *newDocID); err != nil {
				return err
			}
		}
		if err := tx.UpdateApprovalStatus(ctx, invoiceID, ApprovalPending); err != nil {
			return err
		}
		if err := tx.ClearRejection(ctx, invoiceID); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.Record(ctx, shared.ApprovalLog{
				Module: ApprovalModule, RefID: invoiceID,
				Action: shared.ApprovalResubmit, Note: fmt.Sprintf("invoice %s resubmitted", inv.Number),
			})
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.notify(ctx, NotifyResubmitted, inv, client)
	s.recordAudit(ctx, "INVOICE_RESUBMIT", invoiceID, map[string]any{"number": inv.Number, "new_document": newDocID != nil})
	return s.repo.GetInvoice(ctx, invoiceID)
}

// SetSubmitToSZDate validates and stores the date the invoice was submitted to
// the SZ authority. The date must not lie in the future; validation happens
// before any write.
func (s *Service) SetSubmitToSZDate(ctx context.Context, invoiceID uuid.UUID, date string) error {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("%w: please_select_a_date", ErrValidation)
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if parsed.After(today) {
		return fmt.Errorf("%w: date_cannot_be_in_future", ErrValidation)
	}
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetSubmitToSZDate(ctx, invoiceID, parsed)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "INVOICE_SET_SZ_DATE", invoiceID, map[string]any{"date": date})
	return nil
}

// ApprovalHistory returns the recorded approval log for the invoice.
func (s *Service) ApprovalHistory(ctx context.Context, invoiceID uuid.UUID) ([]shared.ApprovalLog, error) {
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, ApprovalModule, invoiceID)
}

// StatusView is the UI-facing projection derived purely from invoice state.
type StatusView struct {
	InvoiceID             uuid.UUID      `json:"invoice_id"`
	ApprovalStatus        ApprovalStatus `json:"approval_status"`
	Badge                 Badge          `json:"badge"`
	Locked                bool           `json:"locked"`
	CanResend             bool           `json:"can_resend"`
	CanResubmit           bool           `json:"can_resubmit"`
	CanUploadDocument     bool           `json:"can_upload_document"`
	SummaryComplete       bool           `json:"summary_complete"`
	RejectionReason       string         `json:"rejection_reason,omitempty"`
	MissingApprovedHash   bool           `json:"missing_approved_hash"`
	ResendCooldownSeconds int            `json:"resend_cooldown_seconds"`
}

// Status derives the badge, gates, and lock state for one invoice.
func (s *Service) Status(ctx context.Context, invoiceID uuid.UUID) (StatusView, error) {
	inv, client, err := s.invoiceWithClient(ctx, invoiceID)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{
		InvoiceID:       inv.ID,
		ApprovalStatus:  inv.ApprovalStatus,
		Badge:           BadgeFor(inv.ApprovalStatus),
		Locked:          EditingLocked(&inv, client),
		CanResend:       CanResend(inv.ApprovalStatus, inv.HasUploadedDocument()),
		CanResubmit:     CanResubmit(inv.ApprovalStatus),
		SummaryComplete: SummaryComplete(&inv),
	}
	view.CanUploadDocument = !view.Locked
	if inv.ApprovalRecord != nil {
		view.RejectionReason = inv.ApprovalRecord.RejectionReason
		view.MissingApprovedHash = inv.ApprovalStatus == ApprovalApproved && inv.ApprovalRecord.ApprovedDocumentHash == ""
	} else {
		view.MissingApprovedHash = inv.ApprovalStatus == ApprovalApproved
	}
	if s.cooldown != nil && view.CanResend {
		if remaining, err := s.cooldown.Remaining(ctx, shared.ResendCooldownKey(invoiceID.String())); err == nil {
			view.ResendCooldownSeconds = int(remaining.Seconds())
		}
	}
	return view, nil
}

func (s *Service) invoiceWithClient(ctx context.Context, invoiceID uuid.UUID) (Invoice, *Client, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, nil, err
	}
	var client *Client
	if inv.ClientID != uuid.Nil {
		c, err := s.repo.GetClient(ctx, inv.ClientID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Invoice{}, nil, err
		}
		if err == nil {
			client = &c
		}
	}
	return inv, client, nil
}

func (s *Service) notify(ctx context.Context, kind NotificationKind, inv Invoice, client *Client) {
	if s.notifier == nil {
		return
	}
	var c Client
	if client != nil {
		c = *client
	}
	if err := s.notifier.Notify(ctx, kind, inv, c); err != nil {
		s.logger.Warn("queue workflow notification", slog.Any("error", err), slog.String("kind", string(kind)))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "invoice", EntityID: entityID.String(), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
