package jobqueue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeReconcilePayment JobType = "reconcile_payment"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ErrPermanent marks a handler failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// ReconcilePaymentPayload identifies the payment to reconcile and the ledger
// entry that should receive the outcome. EventID is 0 for operator runs.
type ReconcilePaymentPayload struct {
	PaymentID string `json:"payment_id"`
	EventID   uint   `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p ReconcilePaymentPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"payment_id": p.PaymentID,
		"event_id":   p.EventID,
	}
}

// ReconcilePaymentPayloadFromMap decodes a stored payload.
func ReconcilePaymentPayloadFromMap(data map[string]interface{}) (*ReconcilePaymentPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ReconcilePaymentPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	payload.PaymentID = strings.TrimSpace(payload.PaymentID)
	if payload.PaymentID == "" {
		return nil, errors.New("payment_id is required")
	}
	return &payload, nil
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
