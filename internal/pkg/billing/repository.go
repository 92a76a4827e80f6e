package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing ledger and linker.
// Every method joins the transaction carried by ctx, if any.
type Repository interface {
	FindBillForPeriod(ctx context.Context, userID uint, start, end time.Time) (*models.Bill, error)
	CreateBill(ctx context.Context, bill *models.Bill) error
	GetBill(ctx context.Context, id uint) (*models.Bill, error)
	GetBillForUpdate(ctx context.Context, id uint) (*models.Bill, error)
	SaveBill(ctx context.Context, bill *models.Bill) error
	DeleteBill(ctx context.Context, id uint) error
	ListBillsByUser(ctx context.Context, userID uint) ([]models.Bill, error)
	ListBillsForPeriod(ctx context.Context, start, end time.Time) ([]models.Bill, error)
	ListSentPastDue(ctx context.Context, today time.Time) ([]models.Bill, error)

	FindLink(ctx context.Context, billID, documentID uint) (*models.InvoiceDocument, error)
	GetLink(ctx context.Context, billID, linkID uint) (*models.InvoiceDocument, error)
	CreateLink(ctx context.Context, link *models.InvoiceDocument) error
	SaveLink(ctx context.Context, link *models.InvoiceDocument) error
	ClearPrimary(ctx context.Context, billID uint) error
	DeleteLink(ctx context.Context, linkID uint) error
	DeleteLinksForBill(ctx context.Context, billID uint) (int64, error)
	ListLinks(ctx context.Context, billID uint) ([]models.InvoiceDocument, error)

	FindExternalInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error)
	DeleteExternalInvoice(ctx context.Context, billID uint) (int64, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) conn(ctx context.Context) *gorm.DB {
	return repository.GetDB(ctx, r.db)
}

func (r *gormRepository) FindBillForPeriod(ctx context.Context, userID uint, start, end time.Time) (*models.Bill, error) {
	var b models.Bill
	err := r.conn(ctx).
		Where("user_id = ? AND billing_period_start = ? AND billing_period_end = ?", userID, start, end).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) CreateBill(ctx context.Context, bill *models.Bill) error {
	return r.conn(ctx).Create(bill).Error
}

func (r *gormRepository) GetBill(ctx context.Context, id uint) (*models.Bill, error) {
	var b models.Bill
	if err := r.conn(ctx).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) GetBillForUpdate(ctx context.Context, id uint) (*models.Bill, error) {
	var b models.Bill
	err := r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) SaveBill(ctx context.Context, bill *models.Bill) error {
	return r.conn(ctx).Omit(clause.Associations).Save(bill).Error
}

func (r *gormRepository) DeleteBill(ctx context.Context, id uint) error {
	tx := r.conn(ctx).Delete(&models.Bill{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) ListBillsByUser(ctx context.Context, userID uint) ([]models.Bill, error) {
	var bills []models.Bill
	err := r.conn(ctx).Where("user_id = ?", userID).
		Order("billing_period_start DESC, id DESC").
		Find(&bills).Error
	return bills, err
}

func (r *gormRepository) ListBillsForPeriod(ctx context.Context, start, end time.Time) ([]models.Bill, error) {
	var bills []models.Bill
	err := r.conn(ctx).Where("billing_period_start = ? AND billing_period_end = ?", start, end).
		Order("user_id ASC, id ASC").
		Find(&bills).Error
	return bills, err
}

func (r *gormRepository) ListSentPastDue(ctx context.Context, today time.Time) ([]models.Bill, error) {
	var bills []models.Bill
	err := r.conn(ctx).Where("bill_status = ? AND due_date < ?", models.BillStatusSent, today).
		Order("due_date ASC, id ASC").
		Find(&bills).Error
	return bills, err
}

func (r *gormRepository) FindExternalInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	var inv models.ExternalInvoice
	if err := r.conn(ctx).Where("bill_id = ?", billID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) DeleteExternalInvoice(ctx context.Context, billID uint) (int64, error) {
	tx := r.conn(ctx).Where("bill_id = ?", billID).Delete(&models.ExternalInvoice{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) FindLink(ctx context.Context, billID, documentID uint) (*models.InvoiceDocument, error) {
	var link models.InvoiceDocument
	err := r.conn(ctx).Where("bill_id = ? AND document_id = ?", billID, documentID).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *gormRepository) GetLink(ctx context.Context, billID, linkID uint) (*models.InvoiceDocument, error) {
	var link models.InvoiceDocument
	err := r.conn(ctx).Where("id = ? AND bill_id = ?", linkID, billID).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *gormRepository) CreateLink(ctx context.Context, link *models.InvoiceDocument) error {
	return r.conn(ctx).Omit(clause.Associations).Create(link).Error
}

func (r *gormRepository) SaveLink(ctx context.Context, link *models.InvoiceDocument) error {
	return r.conn(ctx).Omit(clause.Associations).Save(link).Error
}

func (r *gormRepository) ClearPrimary(ctx context.Context, billID uint) error {
	updates := map[string]interface{}{
		"is_primary_invoice": false,
		"primary_slot":       nil,
	}
	return r.conn(ctx).Model(&models.InvoiceDocument{}).
		Where("bill_id = ? AND (is_primary_invoice = ? OR primary_slot IS NOT NULL)", billID, true).
		Updates(updates).Error
}

func (r *gormRepository) DeleteLink(ctx context.Context, linkID uint) error {
	return r.conn(ctx).Delete(&models.InvoiceDocument{}, linkID).Error
}

func (r *gormRepository) DeleteLinksForBill(ctx context.Context, billID uint) (int64, error) {
	tx := r.conn(ctx).Where("bill_id = ?", billID).Delete(&models.InvoiceDocument{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) ListLinks(ctx context.Context, billID uint) ([]models.InvoiceDocument, error) {
	var links []models.InvoiceDocument
	err := r.conn(ctx).Preload("Document").
		Where("bill_id = ?", billID).
		Order("is_primary_invoice DESC, created_at ASC, id ASC").
		Find(&links).Error
	return links, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.conn(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.conn(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
