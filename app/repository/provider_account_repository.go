package repository

import (
	"context"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"gorm.io/gorm"
)

type providerAccountRepository struct {
	db *gorm.DB
}

// NewProviderAccountRepository creates a provider account repository instance
func NewProviderAccountRepository(db *gorm.DB) ProviderAccountRepository {
	return &providerAccountRepository{db: db}
}

// GetByProviderUserID finds the identity a provider reported for a login
func (r *providerAccountRepository) GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*models.ProviderAccount, error) {
	var pa models.ProviderAccount
	err := GetDB(ctx, r.db).Where("provider = ? AND provider_user_id = ?", provider, providerUserID).First(&pa).Error
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

// Save creates or updates the identity row
func (r *providerAccountRepository) Save(ctx context.Context, account *models.ProviderAccount) error {
	return GetDB(ctx, r.db).Save(account).Error
}
