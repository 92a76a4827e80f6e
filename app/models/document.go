package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Document types stored by the document subsystem.
const (
	DocumentTypeInvoice  = "invoice"
	DocumentTypeReceipt  = "receipt"
	DocumentTypeContract = "contract"
	DocumentTypeOther    = "other"
)

// Document is a file kept in object storage and owned by a single user.
type Document struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id" validate:"required"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename" validate:"required,max=255"`
	ObjectKey    string    `gorm:"type:varchar(500);not null;uniqueIndex" json:"-" validate:"required,max=500"`
	Size         int64     `gorm:"not null;default:0" json:"size" validate:"gte=0"`
	MimeType     string    `gorm:"type:varchar(100);not null" json:"mime_type" validate:"required"`
	DocumentType string    `gorm:"type:varchar(32);not null;default:'other';index" json:"document_type" validate:"oneof=invoice receipt contract other"`
	Description  string    `gorm:"type:varchar(500);default:''" json:"description" validate:"max=500"`
	UploadedBy   uint      `gorm:"not null;default:0" json:"uploaded_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *Document) Validate() error {
	v := validator.New()

	return v.Struct(d)
}
