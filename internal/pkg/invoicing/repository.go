package invoicing

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
)

// Repository persists provider customers and invoice mirrors.
type Repository interface {
	FindCustomer(ctx context.Context, userID uint, provider string) (*models.ExternalCustomer, error)
	UpsertCustomer(ctx context.Context, customer *models.ExternalCustomer) error
	GetInvoiceByBill(ctx context.Context, billID uint) (*models.ExternalInvoice, error)
	GetInvoiceByExternalID(ctx context.Context, externalID string) (*models.ExternalInvoice, error)
	CreateInvoice(ctx context.Context, inv *models.ExternalInvoice) error
	SaveInvoice(ctx context.Context, inv *models.ExternalInvoice) error
	ListInvoicesByUser(ctx context.Context, userID uint) ([]models.ExternalInvoice, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed invoicing repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) conn(ctx context.Context) *gorm.DB {
	return repository.GetDB(ctx, r.db)
}

func (r *gormRepository) FindCustomer(ctx context.Context, userID uint, provider string) (*models.ExternalCustomer, error) {
	var c models.ExternalCustomer
	err := r.conn(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) UpsertCustomer(ctx context.Context, customer *models.ExternalCustomer) error {
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"external_customer_id", "email", "updated_at"}),
	}).Create(customer).Error
	if err != nil {
		return err
	}
	stored, err := r.FindCustomer(ctx, customer.UserID, customer.Provider)
	if err != nil {
		return err
	}
	*customer = *stored
	return nil
}

func (r *gormRepository) GetInvoiceByBill(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	var inv models.ExternalInvoice
	if err := r.conn(ctx).Where("bill_id = ?", billID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) GetInvoiceByExternalID(ctx context.Context, externalID string) (*models.ExternalInvoice, error) {
	var inv models.ExternalInvoice
	if err := r.conn(ctx).Where("external_invoice_id = ?", externalID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) CreateInvoice(ctx context.Context, inv *models.ExternalInvoice) error {
	return r.conn(ctx).Create(inv).Error
}

func (r *gormRepository) SaveInvoice(ctx context.Context, inv *models.ExternalInvoice) error {
	return r.conn(ctx).Save(inv).Error
}

func (r *gormRepository) ListInvoicesByUser(ctx context.Context, userID uint) ([]models.ExternalInvoice, error) {
	var invs []models.ExternalInvoice
	err := r.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&invs).Error
	return invs, err
}
