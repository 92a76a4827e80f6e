package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/invoicing"
)

type fakeBills struct{ err error }

func (f fakeBills) GetBill(ctx context.Context, id uint) (*models.Bill, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Bill{ID: id}, nil
}

type fakeNotifier struct {
	sent []uint
	ok   bool
}

func (f *fakeNotifier) SendBillNotification(ctx context.Context, bill *models.Bill) bool {
	f.sent = append(f.sent, bill.ID)
	return f.ok
}

type fakeMirror struct {
	mirrorErr error
	sendErr   error
	mirrored  []uint
}

func (f *fakeMirror) MirrorInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	f.mirrored = append(f.mirrored, billID)
	return &models.ExternalInvoice{BillID: billID}, f.mirrorErr
}

func (f *fakeMirror) SendInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	return &models.ExternalInvoice{BillID: billID}, f.sendErr
}

func billJob(jobType JobType, billID uint) *Job {
	return &Job{Type: jobType, Payload: BillJobPayload{BillID: billID}.ToMap(), MaxRetries: maxRetriesFor(jobType)}
}

func TestRegisterBillingHandlersSkipsMissingIntegrations(t *testing.T) {
	q := NewQueue(nil, 1)
	RegisterBillingHandlers(q, fakeBills{}, nil, nil)
	assert.False(t, q.Handles(JobTypeBillNotification))
	assert.False(t, q.Handles(JobTypeMirrorInvoice))

	RegisterBillingHandlers(q, fakeBills{}, &fakeNotifier{}, &fakeMirror{})
	assert.True(t, q.Handles(JobTypeBillNotification))
	assert.True(t, q.Handles(JobTypeMirrorInvoice))
	assert.True(t, q.Handles(JobTypeSendInvoice))
}

func TestNotificationHandler(t *testing.T) {
	n := &fakeNotifier{ok: true}
	h := notificationHandler(fakeBills{}, n)
	require.NoError(t, h(context.Background(), billJob(JobTypeBillNotification, 5)))
	assert.Equal(t, []uint{5}, n.sent)

	n.ok = false
	err := h(context.Background(), billJob(JobTypeBillNotification, 6))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	err = notificationHandler(fakeBills{err: billing.ErrBillNotFound}, n)(context.Background(), billJob(JobTypeBillNotification, 7))
	assert.True(t, IsPermanent(err))
}

func TestMirrorHandlerClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		permanent bool
	}{
		{"success", nil, false, false},
		{"already mirrored counts as done", invoicing.ErrAlreadyMirrored, false, false},
		{"in progress retries", invoicing.ErrMirrorInProgress, true, false},
		{"provider failure retries", billing.NewError(billing.KindExternal, "stripe timeout"), true, false},
		{"fault retries", errors.New("db down"), true, false},
		{"cancelled bill stops", invoicing.ErrNotMirrorable, true, true},
		{"missing bill stops", billing.ErrBillNotFound, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMirror{mirrorErr: tt.err}
			err := mirrorHandler(m)(context.Background(), billJob(JobTypeMirrorInvoice, 9))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

type countingMarker struct{ calls int }

func (c *countingMarker) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	c.calls++
	return 2, nil
}

func TestManagerRunOverdueSweepOnce(t *testing.T) {
	marker := &countingMarker{}
	m := NewManager(NewQueue(nil, 1), marker, 0)
	assert.Equal(t, time.Hour, m.sweepInterval)

	n, err := m.RunOverdueSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, marker.calls)

	n, err = NewManager(NewQueue(nil, 1), nil, time.Minute).RunOverdueSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
