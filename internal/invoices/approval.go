package invoices

// Approval workflow statuses. The empty value means the invoice does not
// participate in the workflow (external invoice, or approval not yet
// initiated).
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether the status is one of the known workflow states.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalNone, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// approvalTransitions is the single source of truth for legal status moves.
// Approved is terminal: no client-initiated transition leaves it.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalNone:     {ApprovalPending},
	ApprovalPending:  {ApprovalApproved, ApprovalRejected},
	ApprovalRejected: {ApprovalPending},
	ApprovalApproved: {},
}

// CanTransition reports whether the workflow permits moving from one status to
// another.
func CanTransition(from, to ApprovalStatus) bool {
	for _, next := range approvalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BadgeVariant names the badge color class shown for a status.
type BadgeVariant string

const (
	BadgeGreen  BadgeVariant = "green"
	BadgeYellow BadgeVariant = "yellow"
	BadgeRed    BadgeVariant = "red"
	BadgeNone   BadgeVariant = ""
)

// Badge is the display contract derived purely from approval status.
type Badge struct {
	Variant     BadgeVariant `json:"variant"`
	Icon        string       `json:"icon"`
	Description string       `json:"description"`
}

// BadgeFor maps a status to its badge. Total over the enum; unknown values
// render as not-applicable rather than panicking.
func BadgeFor(status ApprovalStatus) Badge {
	switch status {
	case ApprovalApproved:
		return Badge{Variant: BadgeGreen, Icon: "check-circle", Description: "approval_status_approved_help"}
	case ApprovalPending:
		return Badge{Variant: BadgeYellow, Icon: "clock", Description: "approval_status_pending_help"}
	case ApprovalRejected:
		return Badge{Variant: BadgeRed, Icon: "x-circle", Description: "approval_status_rejected_help"}
	default:
		return Badge{Variant: BadgeNone, Icon: "", Description: "approval_status_not_applicable"}
	}
}

// CanResend gates the resend-approval action: only pending invoices that
// already carry an uploaded document may have the request re-sent.
func CanResend(status ApprovalStatus, hasDocument bool) bool {
	return status == ApprovalPending && hasDocument
}

// CanResubmit gates the resubmit action: only rejected invoices go back to
// pending.
func CanResubmit(status ApprovalStatus) bool {
	return status == ApprovalRejected
}
