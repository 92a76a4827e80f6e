package billing

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies errors by how callers should react to them.
type Kind int

const (
	// KindFault is an unexpected failure such as a lost database connection.
	KindFault Kind = iota
	// KindConflict reports that the requested record already exists.
	KindConflict
	// KindValidation reports input rejected before any mutation.
	KindValidation
	// KindNotFound reports a missing bill, document or link.
	KindNotFound
	// KindExternal reports a failed call to a third-party service.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external"
	default:
		return "fault"
	}
}

// kinded is implemented by every classified error in the billing workflow.
type kinded interface {
	error
	ErrorKind() Kind
}

// Error is a classified billing error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string   { return e.Msg }
func (e *Error) ErrorKind() Kind { return e.Kind }

// NewError creates a classified error. Other packages use it for their own sentinels.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrBillExists         = NewError(KindConflict, "a bill already exists for this period")
	ErrLinkExists         = NewError(KindConflict, "document is already linked to this bill")
	ErrRunInProgress      = NewError(KindConflict, "a billing run for this period is already in progress")
	ErrBillMirrored       = NewError(KindConflict, "bill has an external invoice; void it at the provider first")
	ErrInvalidPeriod      = NewError(KindValidation, "invalid billing period")
	ErrInvalidInput       = NewError(KindValidation, "invalid input")
	ErrInvalidStatus      = NewError(KindValidation, "unknown bill status")
	ErrInvalidTransition  = NewError(KindValidation, "bill status transition not allowed")
	ErrInvalidCredit      = NewError(KindValidation, "invalid credit amount")
	ErrBillSettled        = NewError(KindValidation, "bill is already settled")
	ErrCrossTenantLink    = NewError(KindValidation, "document belongs to a different user than the bill")
	ErrInvalidInvoiceType = NewError(KindValidation, "invalid invoice type")
	ErrBillNotFound       = NewError(KindNotFound, "bill not found")
	ErrDocumentNotFound   = NewError(KindNotFound, "document not found")
	ErrLinkNotFound       = NewError(KindNotFound, "invoice link not found")
	ErrUserNotFound       = NewError(KindNotFound, "user not found")

	// ErrLinkAfterUpload matches a LinkAfterUploadError with errors.Is.
	ErrLinkAfterUpload = errors.New("document stored but linking to the bill failed")
)

// ExternalError wraps a failed third-party call.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string   { return e.Op + ": " + e.Err.Error() }
func (e *ExternalError) Unwrap() error   { return e.Err }
func (e *ExternalError) ErrorKind() Kind { return KindExternal }

// External wraps err as an external-dependency failure of op.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Op: op, Err: err}
}

// KindOf classifies err. Record-not-found is NotFound; anything unclassified is a fault.
func KindOf(err error) Kind {
	if err == nil {
		return KindFault
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	return KindFault
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
