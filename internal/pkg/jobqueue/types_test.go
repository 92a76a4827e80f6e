package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		failures int
		want     bool
	}{
		{"notification never retries", JobTypeBillNotification, 1, false},
		{"mirror retries after first failure", JobTypeMirrorInvoice, 1, true},
		{"mirror retries up to the limit", JobTypeMirrorInvoice, DefaultMaxRetries, true},
		{"mirror stops after the limit", JobTypeMirrorInvoice, DefaultMaxRetries + 1, false},
		{"send retries", JobTypeSendInvoice, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Type: tt.jobType, MaxRetries: maxRetriesFor(tt.jobType)}
			for i := 0; i < tt.failures; i++ {
				job.MarkAsFailed("boom")
			}
			assert.Equal(t, tt.want, job.IsRetryable())
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	job := &Job{Status: JobStatusPending}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "boom", job.ErrorMsg)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestBillJobPayloadFromMap(t *testing.T) {
	// values read back from Redis JSON are float64
	p, err := BillJobPayloadFromMap(map[string]interface{}{"bill_id": float64(12), "actor": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, uint(12), p.BillID)
	assert.Equal(t, uint(3), p.Actor)
}
