package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/invoicing"
)

// BillSource loads bills by id.
type BillSource interface {
	GetBill(ctx context.Context, id uint) (*models.Bill, error)
}

// Notifier emails one bill to its owner.
type Notifier interface {
	SendBillNotification(ctx context.Context, bill *models.Bill) bool
}

// InvoiceMirror creates and sends external invoices.
type InvoiceMirror interface {
	MirrorInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error)
	SendInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error)
}

// RegisterBillingHandlers installs the handlers for the configured
// integrations. notifier and mirror may be nil.
func RegisterBillingHandlers(q *Queue, bills BillSource, notifier Notifier, mirror InvoiceMirror) {
	if notifier != nil {
		q.Register(JobTypeBillNotification, notificationHandler(bills, notifier))
	}
	if mirror != nil {
		q.Register(JobTypeMirrorInvoice, mirrorHandler(mirror))
		q.Register(JobTypeSendInvoice, sendHandler(mirror))
	}
}

func notificationHandler(bills BillSource, notifier Notifier) Handler {
	return func(ctx context.Context, job *Job) error {
		p, err := BillJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(err)
		}
		bill, err := bills.GetBill(ctx, p.BillID)
		if err != nil {
			return classify(err)
		}
		if !notifier.SendBillNotification(ctx, bill) {
			return Permanent(fmt.Errorf("notification for bill %d was not sent", bill.ID))
		}
		return nil
	}
}

func mirrorHandler(mirror InvoiceMirror) Handler {
	return func(ctx context.Context, job *Job) error {
		p, err := BillJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(err)
		}
		_, err = mirror.MirrorInvoice(ctx, p.BillID)
		if errors.Is(err, invoicing.ErrAlreadyMirrored) {
			log.Infof("[JobQueue] Bill %d already mirrored", p.BillID)
			return nil
		}
		return classify(err)
	}
}

func sendHandler(mirror InvoiceMirror) Handler {
	return func(ctx context.Context, job *Job) error {
		p, err := BillJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(err)
		}
		_, err = mirror.SendInvoice(ctx, p.BillID)
		return classify(err)
	}
}

// classify lets faults, provider failures and in-progress conflicts retry and
// stops on everything the caller has to fix first.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, invoicing.ErrMirrorInProgress) {
		return err
	}
	switch billing.KindOf(err) {
	case billing.KindFault, billing.KindExternal:
		return err
	default:
		return Permanent(err)
	}
}
