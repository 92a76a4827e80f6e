package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeBillNotification JobType = "bill_notification"
	JobTypeMirrorInvoice    JobType = "mirror_invoice"
	JobTypeSendInvoice      JobType = "send_invoice"
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

// BillJobPayload identifies the bill a job works on and who asked for it.
type BillJobPayload struct {
	BillID uint `json:"bill_id"`
	Actor  uint `json:"actor"`
}

// ToMap converts the payload to a map for storage
func (p BillJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"bill_id": p.BillID,
		"actor":   p.Actor,
	}
}

// BillJobPayloadFromMap creates a payload from a stored map
func BillJobPayloadFromMap(data map[string]interface{}) (*BillJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload BillJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// maxRetriesFor returns how often a failed job of the type is retried.
// Notifications are never retried so a talent is not emailed twice; mirror
// and send calls carry idempotency keys and are safe to repeat.
func maxRetriesFor(t JobType) int {
	switch t {
	case JobTypeBillNotification:
		return 0
	default:
		return DefaultMaxRetries
	}
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount <= j.MaxRetries && j.MaxRetries > 0
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
