package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newCaptureMailer(t *testing.T) (*Mailer, *[]capturedMail) {
	t.Helper()
	var sent []capturedMail
	m := NewMailer("smtp.test", 25, "noreply@ledgerline.test", slog.Default())
	m.send = func(addr string, from string, to []string, msg []byte) error {
		sent = append(sent, capturedMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return m, &sent
}

func approvalTask(t *testing.T, payload ApprovalEmailPayload) *asynq.Task {
	t.Helper()
	task, err := NewApprovalEmailTask(payload)
	require.NoError(t, err)
	return task
}

func TestHandleApprovalEmail(t *testing.T) {
	m, sent := newCaptureMailer(t)

	task := approvalTask(t, ApprovalEmailPayload{
		To:            "reviewer@acme.test",
		Kind:          "submitted",
		InvoiceNumber: "INV-1001",
		ClientName:    "Acme Internal BV",
		Amount:        12500.50,
	})
	require.NoError(t, m.HandleApprovalEmail(context.Background(), task))
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	require.Equal(t, "smtp.test:25", mail.addr)
	require.Equal(t, []string{"reviewer@acme.test"}, mail.to)
	require.Contains(t, mail.msg, "Subject: Approval requested for invoice INV-1001")
	require.Contains(t, mail.msg, "Acme Internal BV")
	// English number formatting groups thousands.
	require.Contains(t, mail.msg, "12,500.50")
}

func TestHandleApprovalEmailSubjectPerKind(t *testing.T) {
	m, sent := newCaptureMailer(t)
	for kind, want := range map[string]string{
		"resent":      "Reminder: invoice INV-2 awaits your approval",
		"resubmitted": "Invoice INV-2 was resubmitted for approval",
	} {
		task := approvalTask(t, ApprovalEmailPayload{To: "r@x.test", Kind: kind, InvoiceNumber: "INV-2"})
		require.NoError(t, m.HandleApprovalEmail(context.Background(), task))
		mail := (*sent)[len(*sent)-1]
		require.Contains(t, mail.msg, "Subject: "+want)
	}
}

func TestHandleApprovalEmailSkipsBadPayload(t *testing.T) {
	m, sent := newCaptureMailer(t)
	ctx := context.Background()

	bad := asynq.NewTask(TaskTypeApprovalEmail, []byte("{not json"))
	require.ErrorIs(t, m.HandleApprovalEmail(ctx, bad), asynq.SkipRetry)

	noRecipient, err := json.Marshal(ApprovalEmailPayload{Kind: "submitted", InvoiceNumber: "INV-3"})
	require.NoError(t, err)
	require.ErrorIs(t, m.HandleApprovalEmail(ctx, asynq.NewTask(TaskTypeApprovalEmail, noRecipient)), asynq.SkipRetry)

	unknownKind := approvalTask(t, ApprovalEmailPayload{To: "r@x.test", Kind: "archived", InvoiceNumber: "INV-4"})
	require.ErrorIs(t, m.HandleApprovalEmail(ctx, unknownKind), asynq.SkipRetry)

	require.Empty(t, *sent)
}
