package invoicing

import "github.com/ManuelReschke/TalentDesk/internal/pkg/billing"

var (
	ErrOwnershipMismatch = billing.NewError(billing.KindValidation, "external customer belongs to a different user")
	ErrMissingEmail      = billing.NewError(billing.KindValidation, "user has no email address")
	ErrAlreadyMirrored   = billing.NewError(billing.KindConflict, "bill already has an external invoice")
	ErrMirrorInProgress  = billing.NewError(billing.KindConflict, "bill is being mirrored by another request")
	ErrBatchInProgress   = billing.NewError(billing.KindConflict, "a mirror batch for this period is already running")
	ErrNotMirrored       = billing.NewError(billing.KindValidation, "bill has no finalized external invoice")
	ErrNotMirrorable     = billing.NewError(billing.KindValidation, "cancelled bills cannot be mirrored")
	ErrBatchTooLarge     = billing.NewError(billing.KindValidation, "mirror batch exceeds the maximum size")
	ErrInvalidSignature  = billing.NewError(billing.KindValidation, "invalid webhook signature")
	ErrInvoiceNotFound   = billing.NewError(billing.KindNotFound, "external invoice not found")
)
