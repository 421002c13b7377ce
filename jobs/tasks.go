package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeApprovalEmail is the task type for approval workflow emails.
	TaskTypeApprovalEmail = "approval:email"
)

// ApprovalEmailPayload describes one approval workflow notification.
type ApprovalEmailPayload struct {
	To            string  `json:"to"`
	Kind          string  `json:"kind"`
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	ClientName    string  `json:"client_name"`
	Amount        float64 `json:"amount"`
}

// NewApprovalEmailTask constructs an Asynq task.
func NewApprovalEmailTask(payload ApprovalEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeApprovalEmail, data), nil
}
