package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/documents"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Link actions reported by LinkDocument.
const (
	LinkActionCreated  = "created"
	LinkActionRepaired = "repaired"
)

// DocumentUploader stores a document for a user.
type DocumentUploader interface {
	Upload(ctx context.Context, in documents.UploadInput) (*models.Document, error)
}

// Linker attaches stored documents to bills as typed invoices.
type Linker struct {
	repo     Repository
	docs     repository.DocumentRepository
	tx       repository.TransactionManager
	uploader DocumentUploader
}

// NewLinker creates a linker. uploader may be nil when uploads are not offered.
func NewLinker(repo Repository, docs repository.DocumentRepository, tx repository.TransactionManager, uploader DocumentUploader) *Linker {
	return &Linker{repo: repo, docs: docs, tx: tx, uploader: uploader}
}

// LinkInput describes a document to link to a bill.
type LinkInput struct {
	BillID        uint
	DocumentID    uint
	InvoiceType   string
	InvoiceNumber string
	Amount        decimal.NullDecimal
	IsPrimary     bool
	Actor         uint
}

// LinkOutcome reports the link and whether it was created or repaired.
type LinkOutcome struct {
	Link   *models.InvoiceDocument `json:"link"`
	Action string                  `json:"action"`
}

func normalizeInvoiceType(t string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(t))
	if v == "" {
		return models.InvoiceTypeGenerated, nil
	}
	if !models.IsValidInvoiceType(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidInvoiceType, t)
	}
	return v, nil
}

// LinkDocument links a document to a bill in one transaction. The document
// must belong to the bill's user. An existing link with a valid type is a
// conflict; one with an invalid type is repaired to "generated". Marking the
// link primary clears any previous primary of the bill first.
func (l *Linker) LinkDocument(ctx context.Context, in LinkInput) (*LinkOutcome, error) {
	invoiceType, err := normalizeInvoiceType(in.InvoiceType)
	if err != nil {
		return nil, err
	}
	if in.BillID == 0 || in.DocumentID == 0 {
		return nil, fmt.Errorf("%w: bill id and document id are required", ErrInvalidInput)
	}
	if in.Amount.Valid && in.Amount.Decimal.IsNegative() {
		return nil, fmt.Errorf("%w: invoice amount must not be negative", ErrInvalidInput)
	}

	var out *LinkOutcome
	err = l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// the bill row lock serializes primary changes per bill
		bill, err := l.repo.GetBillForUpdate(txCtx, in.BillID)
		if err != nil {
			return notFound(err, ErrBillNotFound)
		}
		doc, err := l.docs.GetByID(txCtx, in.DocumentID)
		if err != nil {
			return notFound(err, ErrDocumentNotFound)
		}
		if doc.UserID != bill.UserID {
			log.Warnf("[InvoiceLinker] Rejected linking document %d of user %d to bill %d of user %d",
				doc.ID, doc.UserID, bill.ID, bill.UserID)
			return ErrCrossTenantLink
		}

		existing, err := l.repo.FindLink(txCtx, bill.ID, doc.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			if models.IsValidInvoiceType(existing.InvoiceType) {
				return fmt.Errorf("%w: link %d", ErrLinkExists, existing.ID)
			}
			out, err = l.repair(txCtx, existing, in.IsPrimary)
			return err
		}

		if in.IsPrimary {
			if err := l.repo.ClearPrimary(txCtx, bill.ID); err != nil {
				return err
			}
		}
		link := &models.InvoiceDocument{
			BillID:           bill.ID,
			DocumentID:       doc.ID,
			InvoiceType:      invoiceType,
			InvoiceNumber:    strings.TrimSpace(in.InvoiceNumber),
			InvoiceAmount:    in.Amount,
			IsPrimaryInvoice: in.IsPrimary,
			PrimarySlot:      models.PrimarySlotFor(in.IsPrimary),
			UploadedBy:       in.Actor,
		}
		if err := l.repo.CreateLink(txCtx, link); err != nil {
			if IsDuplicateKey(err) {
				return fmt.Errorf("%w: %v", ErrLinkExists, err)
			}
			return err
		}
		out = &LinkOutcome{Link: link, Action: LinkActionCreated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Default().InvoiceLinks.WithLabelValues(out.Action).Inc()
	log.Infof("[InvoiceLinker] Document %d %s as %s invoice on bill %d (primary=%t)",
		in.DocumentID, out.Action, out.Link.InvoiceType, in.BillID, out.Link.IsPrimaryInvoice)
	return out, nil
}

func (l *Linker) repair(ctx context.Context, link *models.InvoiceDocument, primary bool) (*LinkOutcome, error) {
	log.Warnf("[InvoiceLinker] Repairing link %d: invalid invoice type %q set to %q",
		link.ID, link.InvoiceType, models.InvoiceTypeGenerated)
	link.InvoiceType = models.InvoiceTypeGenerated
	if primary && !link.IsPrimaryInvoice {
		if err := l.repo.ClearPrimary(ctx, link.BillID); err != nil {
			return nil, err
		}
		link.IsPrimaryInvoice = true
	}
	link.PrimarySlot = models.PrimarySlotFor(link.IsPrimaryInvoice)
	if err := l.repo.SaveLink(ctx, link); err != nil {
		return nil, err
	}
	return &LinkOutcome{Link: link, Action: LinkActionRepaired}, nil
}

// SetPrimary makes linkID the bill's only primary invoice.
func (l *Linker) SetPrimary(ctx context.Context, billID, linkID uint) (*models.InvoiceDocument, error) {
	var out *models.InvoiceDocument
	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := l.repo.GetBillForUpdate(txCtx, billID); err != nil {
			return notFound(err, ErrBillNotFound)
		}
		link, err := l.repo.GetLink(txCtx, billID, linkID)
		if err != nil {
			return notFound(err, ErrLinkNotFound)
		}
		if err := l.repo.ClearPrimary(txCtx, billID); err != nil {
			return err
		}
		link.IsPrimaryInvoice = true
		link.PrimarySlot = models.PrimarySlotFor(true)
		if !models.IsValidInvoiceType(link.InvoiceType) {
			link.InvoiceType = models.InvoiceTypeGenerated
			metrics.Default().InvoiceLinks.WithLabelValues(LinkActionRepaired).Inc()
		}
		out = link
		return l.repo.SaveLink(txCtx, link)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[InvoiceLinker] Link %d is now the primary invoice of bill %d", linkID, billID)
	return out, nil
}

// Unlink removes a link. The document itself stays stored.
func (l *Linker) Unlink(ctx context.Context, billID, linkID uint) error {
	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := l.repo.GetLink(txCtx, billID, linkID); err != nil {
			return notFound(err, ErrLinkNotFound)
		}
		return l.repo.DeleteLink(txCtx, linkID)
	})
	if err != nil {
		return err
	}
	log.Infof("[InvoiceLinker] Removed link %d from bill %d", linkID, billID)
	return nil
}

// UploadLinkInput describes a file to upload and link to a bill.
type UploadLinkInput struct {
	BillID        uint
	Filename      string
	Content       io.Reader
	Description   string
	InvoiceType   string
	InvoiceNumber string
	Amount        decimal.NullDecimal
	IsPrimary     bool
	UploadedBy    uint
}

// UploadLinkOutcome is the stored document and its link.
type UploadLinkOutcome struct {
	Document *models.Document `json:"document"`
	LinkOutcome
}

// LinkAfterUploadError reports a document that was stored but could not be
// linked. The document stays as an ordinary unlinked document.
type LinkAfterUploadError struct {
	Document *models.Document
	Err      error
}

func (e *LinkAfterUploadError) Error() string {
	return fmt.Sprintf("%s (document %d): %v", ErrLinkAfterUpload.Error(), e.Document.ID, e.Err)
}

func (e *LinkAfterUploadError) Unwrap() error { return e.Err }

func (e *LinkAfterUploadError) Is(target error) bool { return target == ErrLinkAfterUpload }

func (e *LinkAfterUploadError) ErrorKind() Kind { return KindOf(e.Err) }

// UploadAndLink stores the file for the bill's user and links it. Input is
// validated before anything is stored. Upload and link are not atomic: when
// linking fails the document remains stored and a *LinkAfterUploadError is
// returned. ListUnlinkedInvoiceDocuments finds such documents later.
func (l *Linker) UploadAndLink(ctx context.Context, in UploadLinkInput) (*UploadLinkOutcome, error) {
	if l.uploader == nil {
		return nil, errors.New("document uploads are not configured")
	}
	invoiceType, err := normalizeInvoiceType(in.InvoiceType)
	if err != nil {
		return nil, err
	}
	bill, err := l.repo.GetBill(ctx, in.BillID)
	if err != nil {
		return nil, notFound(err, ErrBillNotFound)
	}

	doc, err := l.uploader.Upload(ctx, documents.UploadInput{
		UserID:       bill.UserID,
		Filename:     in.Filename,
		Content:      in.Content,
		DocumentType: documentTypeFor(invoiceType),
		Description:  in.Description,
		UploadedBy:   in.UploadedBy,
	})
	if err != nil {
		if documents.IsValidationError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, External("upload document", err)
	}

	outcome, err := l.LinkDocument(ctx, LinkInput{
		BillID:        bill.ID,
		DocumentID:    doc.ID,
		InvoiceType:   invoiceType,
		InvoiceNumber: in.InvoiceNumber,
		Amount:        in.Amount,
		IsPrimary:     in.IsPrimary,
		Actor:         in.UploadedBy,
	})
	if err != nil {
		log.Warnf("[InvoiceLinker] Document %d stored but not linked to bill %d: %v", doc.ID, bill.ID, err)
		return nil, &LinkAfterUploadError{Document: doc, Err: err}
	}
	return &UploadLinkOutcome{Document: doc, LinkOutcome: *outcome}, nil
}

func documentTypeFor(invoiceType string) string {
	if invoiceType == models.InvoiceTypePaymentReceipt {
		return models.DocumentTypeReceipt
	}
	return models.DocumentTypeInvoice
}

// GetInvoicesForBill returns the bill's invoice links, primary first, then by
// upload time.
func (l *Linker) GetInvoicesForBill(ctx context.Context, billID uint) ([]models.InvoiceDocument, error) {
	if _, err := l.repo.GetBill(ctx, billID); err != nil {
		return nil, notFound(err, ErrBillNotFound)
	}
	return l.repo.ListLinks(ctx, billID)
}

// ListUnlinkedInvoiceDocuments finds invoice and receipt documents created
// before olderThan that no bill links to.
func (l *Linker) ListUnlinkedInvoiceDocuments(ctx context.Context, olderThan time.Time) ([]models.Document, error) {
	return l.docs.ListUnlinkedInvoices(ctx, olderThan)
}
