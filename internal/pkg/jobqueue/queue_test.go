package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.False(t, queue.running)
		})
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("boom")
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))

	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "boom", err.Error())
}

func TestEnqueueAndProcess(t *testing.T) {
	client := newIsolatedRedisClient(t)
	ctx := context.Background()

	q := NewQueue(client, 1)
	var got atomic.Uint64
	q.Register(JobTypeMirrorInvoice, func(ctx context.Context, job *Job) error {
		p, err := BillJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		got.Store(uint64(p.BillID))
		return nil
	})

	job, err := q.EnqueueBillJob(ctx, JobTypeMirrorInvoice, 42, 7)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	q.Start()
	defer q.Stop()

	require.Eventually(t, func() bool { return got.Load() == 42 }, 5*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		stats, err := q.GetJobStats(ctx)
		return err == nil && stats[JobStatusCompleted] == 1
	}, 5*time.Second, 50*time.Millisecond)

	// completed jobs are removed
	_, err = q.GetJob(ctx, job.ID)
	assert.Error(t, err)
}

func TestNotificationJobsAreNotRetried(t *testing.T) {
	client := newIsolatedRedisClient(t)
	ctx := context.Background()

	q := NewQueue(client, 1)
	q.retryDelay = 10 * time.Millisecond
	var calls atomic.Int32
	q.Register(JobTypeBillNotification, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return errors.New("smtp down")
	})

	job, err := q.EnqueueBillJob(ctx, JobTypeBillNotification, 1, 0)
	require.NoError(t, err)

	q.Start()
	defer q.Stop()

	require.Eventually(t, func() bool {
		stats, err := q.GetJobStats(ctx)
		return err == nil && stats[JobStatusFailed] == 1
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, "smtp down", stored.ErrorMsg)
}

func TestRecoverStuckSkipsAtMostOnceJobs(t *testing.T) {
	client := newIsolatedRedisClient(t)
	ctx := context.Background()
	q := NewQueue(client, 1)

	mirror, err := q.EnqueueBillJob(ctx, JobTypeMirrorInvoice, 1, 0)
	require.NoError(t, err)
	notify, err := q.EnqueueBillJob(ctx, JobTypeBillNotification, 2, 0)
	require.NoError(t, err)

	started := time.Now().Add(-time.Hour)
	for _, j := range []*Job{mirror, notify} {
		dequeued, err := q.dequeueJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, dequeued)
		j.Status = JobStatusProcessing
		j.ProcessedAt = &started
		q.updateJob(ctx, j)
	}

	n, err := q.recoverStuck(ctx, 10*time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := client.LRange(ctx, JobQueueKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{mirror.ID}, pending)

	stored, err := q.GetJob(ctx, notify.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
}
