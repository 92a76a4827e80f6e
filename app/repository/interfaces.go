package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	ListApproved(ctx context.Context) ([]models.User, error)
	List(ctx context.Context, offset, limit int) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string) ([]models.User, error)
}

// ProviderAccountRepository stores OAuth identities linked to users
type ProviderAccountRepository interface {
	GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*models.ProviderAccount, error)
	Save(ctx context.Context, account *models.ProviderAccount) error
}

// DocumentRepository defines the interface for stored document metadata
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uint) (*models.Document, error)
	ListByUserID(ctx context.Context, userID uint) ([]models.Document, error)
	Delete(ctx context.Context, id uint) error
	ListUnlinkedInvoices(ctx context.Context, olderThan time.Time) ([]models.Document, error)
}

// MessageRepository defines read and write access to processed messages and SMS
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	CreateSMS(ctx context.Context, sms *models.SMSMessage) error
	ListBillableMessages(ctx context.Context, userID uint, from, to time.Time) ([]models.Message, error)
	CountSentSMS(ctx context.Context, userID uint, from, to time.Time) (int, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Tx              TransactionManager
	User            UserRepository
	ProviderAccount ProviderAccountRepository
	Document        DocumentRepository
	Message         MessageRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tx:              NewTransactionManager(db),
		User:            NewUserRepository(db),
		ProviderAccount: NewProviderAccountRepository(db),
		Document:        NewDocumentRepository(db),
		Message:         NewMessageRepository(db),
	}
}
