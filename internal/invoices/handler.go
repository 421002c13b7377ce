package invoices

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes the approval workflow over JSON HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	fetcher  *Fetcher
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, fetcher *Fetcher) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		fetcher:  fetcher,
		validate: validator.New(),
	}
}

// MountRoutes registers invoice workflow routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createInvoice)
	r.Get("/{id}", h.getInvoice)
	r.Get("/{id}/status", h.getStatus)
	r.Get("/{id}/approvals", h.listApprovals)
	r.Put("/{id}/line-items", h.updateLineItems)
	r.Post("/{id}/upload_custom_document", h.uploadDocument)
	r.Post("/{id}/submit-approval", h.submitApproval)
	r.Post("/{id}/resend-approval", h.resendApproval)
	r.Post("/{id}/resubmit", h.resubmit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/set-submit-to-sz-date", h.setSubmitToSZDate)
}

type lineItemPayload struct {
	TypeID     int     `json:"type_id" validate:"required,min=1,max=5"`
	ProductKey string  `json:"product_key"`
	Notes      string  `json:"notes"`
	Cost       float64 `json:"cost" validate:"min=0"`
	Quantity   float64 `json:"quantity"`
}

type createInvoiceRequest struct {
	Number    string            `json:"number"`
	ClientID  string            `json:"client_id" validate:"required,uuid4"`
	LineItems []lineItemPayload `json:"line_items" validate:"dive"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "invalid client id")
		return
	}
	items := make([]LineItem, 0, len(req.LineItems))
	for _, p := range req.LineItems {
		items = append(items, LineItem{
			TypeID:     LineItemType(p.TypeID),
			ProductKey: p.ProductKey,
			Notes:      p.Notes,
			Cost:       p.Cost,
			Quantity:   p.Quantity,
		})
	}
	inv, err := h.service.CreateInternalInvoice(r.Context(), CreateInvoiceInput{
		Number:    req.Number,
		ClientID:  clientID,
		LineItems: items,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, invoiceResponse(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.fetcher.Invoice(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": logs})
}

type updateLineItemsRequest struct {
	LineItems []lineItemPayload `json:"line_items" validate:"dive"`
}

func (h *Handler) updateLineItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req updateLineItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	items := make([]LineItem, 0, len(req.LineItems))
	for _, p := range req.LineItems {
		items = append(items, LineItem{
			TypeID:     LineItemType(p.TypeID),
			ProductKey: p.ProductKey,
			Notes:      p.Notes,
			Cost:       p.Cost,
			Quantity:   p.Quantity,
		})
	}
	inv, err := h.service.UpdateLineItems(r.Context(), id, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	file, err := fileFromRequest(r, "document")
	if err != nil || file == nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "document file required")
		return
	}
	doc, err := h.service.UploadCustomDocument(r.Context(), id, *file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":     doc.ID.String(),
		"sha256": doc.SHA256,
	})
}

type submitApprovalRequest struct {
	Actor string `json:"actor"`
}

func (h *Handler) submitApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req submitApprovalRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.service.SubmitForApproval(r.Context(), id, req.Actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "pending"})
}

func (h *Handler) resendApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := h.service.ResendApproval(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "resent_approval_email"})
}

func (h *Handler) resubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	// Replacement document is optional; absence keeps the existing one.
	file, err := fileFromRequest(r, "document")
	if err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "invalid document upload")
		return
	}
	inv, err := h.service.Resubmit(r.Context(), id, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	file, err := fileFromRequest(r, "document")
	if err != nil || file == nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "select_file")
		return
	}
	approver := r.FormValue("approver_name")
	if err := h.service.Approve(r.Context(), id, approver, *file); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "approved"})
}

type rejectRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "please_enter_a_value")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "please_enter_a_value")
		return
	}
	if err := h.service.Reject(r.Context(), id, req.Actor, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "rejected"})
}

type szDateRequest struct {
	SubmitToSZDate string `json:"submit_to_sz_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) setSubmitToSZDate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req szDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "please_select_a_date")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeMessage(w, http.StatusUnprocessableEntity, "please_select_a_date")
		return
	}
	if err := h.service.SetSubmitToSZDate(r.Context(), id, req.SubmitToSZDate); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.fetcher.Forget(id)
	h.writeJSON(w, http.StatusOK, map[string]any{"submit_to_sz_date": req.SubmitToSZDate})
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeMessage(w, http.StatusNotFound, "invoice not found")
		return uuid.Nil, false
	}
	return id, true
}

// fileFromRequest reads an optional multipart file field. Returns nil when the
// field is absent.
func fileFromRequest(r *http.Request, field string) (*documents.File, error) {
	if err := r.ParseMultipartForm(documents.MaxUploadBytes + 1<<20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	f, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &documents.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func invoiceResponse(inv Invoice) map[string]any {
	resp := map[string]any{
		"id":                inv.ID.String(),
		"number":            inv.Number,
		"client_id":         inv.ClientID.String(),
		"is_internal":       inv.IsInternal,
		"requires_approval": inv.RequiresApproval,
		"approval_status":   string(inv.ApprovalStatus),
	}
	if inv.UploadedDocumentID != nil {
		resp["uploaded_document_id"] = inv.UploadedDocumentID.String()
	}
	if inv.ApprovalRecord != nil {
		rec := map[string]any{
			"approver_name":          inv.ApprovalRecord.ApproverName,
			"rejection_reason":       inv.ApprovalRecord.RejectionReason,
			"approved_document_hash": inv.ApprovalRecord.ApprovedDocumentHash,
		}
		if inv.ApprovalRecord.ApprovedAt != nil {
			rec["approved_at"] = inv.ApprovalRecord.ApprovedAt
		}
		if inv.ApprovalRecord.RejectedAt != nil {
			rec["rejected_at"] = inv.ApprovalRecord.RejectedAt
		}
		if inv.ApprovalRecord.SubmitToSZDate != nil {
			rec["submit_to_sz_date"] = inv.ApprovalRecord.SubmitToSZDate.Format("2006-01-02")
		}
		resp["approval_record"] = rec
	}
	items := make([]map[string]any, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		items = append(items, map[string]any{
			"id":          item.ID.String(),
			"type_id":     int(item.TypeID),
			"product_key": item.ProductKey,
			"notes":       item.Notes,
			"cost":        item.Cost,
			"quantity":    item.Quantity,
		})
	}
	resp["line_items"] = items
	return map[string]any{"data": resp}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeMessage(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"message": message})
}

// writeError maps workflow errors to the API error contract: validation
// failures surface their message with 422, everything else collapses to a
// fixed generic message so internals never leak.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		h.writeMessage(w, http.StatusUnprocessableEntity, detailOf(err, ErrValidation))
	case errors.Is(err, documents.ErrUploadRejected):
		h.writeMessage(w, http.StatusUnprocessableEntity, detailOf(err, documents.ErrUploadRejected))
	case errors.Is(err, ErrNotFound), errors.Is(err, documents.ErrNotFound):
		h.writeMessage(w, http.StatusNotFound, "invoice not found")
	case errors.Is(err, ErrCooldownActive):
		h.writeMessage(w, http.StatusTooManyRequests, detailOf(err, ErrCooldownActive))
	case errors.Is(err, ErrBusy), errors.Is(err, shared.ErrIdempotencyConflict):
		h.writeMessage(w, http.StatusConflict, "action already in progress")
	case errors.Is(err, ErrInvalidState):
		h.writeMessage(w, http.StatusConflict, "action not available in current approval state")
	case errors.Is(err, ErrLocked):
		h.writeMessage(w, http.StatusLocked, "invoice is approved and locked")
	default:
		h.logger.Error("invoice workflow", slog.Any("error", err), slog.String("path", r.URL.Path))
		h.writeMessage(w, http.StatusInternalServerError, "error_title")
	}
}

// detailOf strips the sentinel prefix from a wrapped error, leaving the
// user-safe detail.
func detailOf(err error, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return msg
}
