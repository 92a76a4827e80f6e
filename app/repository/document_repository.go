package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"gorm.io/gorm"
)

// documentRepository implements the DocumentRepository interface
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository instance
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create inserts document metadata
func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

// GetByID retrieves a document by its ID
func (r *documentRepository) GetByID(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := GetDB(ctx, r.db).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByUserID returns a user's documents, newest first
func (r *documentRepository) ListByUserID(ctx context.Context, userID uint) ([]models.Document, error) {
	var docs []models.Document
	err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&docs).Error
	return docs, err
}

// Delete removes a document row
func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	return GetDB(ctx, r.db).Delete(&models.Document{}, id).Error
}

// ListUnlinkedInvoices returns invoice and receipt documents created before
// olderThan that no bill links to.
func (r *documentRepository) ListUnlinkedInvoices(ctx context.Context, olderThan time.Time) ([]models.Document, error) {
	var docs []models.Document
	linked := GetDB(ctx, r.db).Model(&models.InvoiceDocument{}).Select("document_id")
	err := GetDB(ctx, r.db).
		Where("document_type IN ?", []string{models.DocumentTypeInvoice, models.DocumentTypeReceipt}).
		Where("created_at < ?", olderThan).
		Where("id NOT IN (?)", linked).
		Order("created_at ASC, id ASC").
		Find(&docs).Error
	return docs, err
}
