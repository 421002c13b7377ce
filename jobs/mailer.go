package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Mailer sends approval workflow emails over SMTP.
type Mailer struct {
	addr   string
	from   string
	logger *slog.Logger
	send   func(addr string, from string, to []string, msg []byte) error
}

// NewMailer constructs a Mailer for the given SMTP endpoint.
func NewMailer(host string, port int, from string, logger *slog.Logger) *Mailer {
	return &Mailer{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		logger: logger,
		send: func(addr string, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

var emailSubjects = map[string]string{
	"submitted":   "Approval requested for invoice %s",
	"resent":      "Reminder: invoice %s awaits your approval",
	"resubmitted": "Invoice %s was resubmitted for approval",
}

// HandleApprovalEmail processes TaskTypeApprovalEmail tasks.
func (m *Mailer) HandleApprovalEmail(ctx context.Context, t *asynq.Task) error {
	var payload ApprovalEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		m.logger.Warn("approval email without recipient", slog.String("invoice", payload.InvoiceNumber))
		return asynq.SkipRetry
	}
	subjectTmpl, ok := emailSubjects[payload.Kind]
	if !ok {
		return asynq.SkipRetry
	}
	subject := fmt.Sprintf(subjectTmpl, payload.InvoiceNumber)

	p := message.NewPrinter(language.English)
	var body strings.Builder
	body.WriteString(p.Sprintf("Invoice %s", payload.InvoiceNumber))
	if payload.ClientName != "" {
		body.WriteString(p.Sprintf(" for %s", payload.ClientName))
	}
	if payload.Amount > 0 {
		body.WriteString(p.Sprintf(", total %.2f", payload.Amount))
	}
	body.WriteString(", requires your review.\r\n")

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.from, payload.To, subject, body.String())
	if err := m.send(m.addr, m.from, []string{payload.To}, []byte(msg)); err != nil {
		m.logger.Error("send approval email", slog.Any("error", err), slog.String("to", payload.To))
		return err
	}
	return nil
}
