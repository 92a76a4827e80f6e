package repository

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := GetDB(ctx, r.db).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := GetDB(ctx, r.db).Where("email = ?", strings.TrimSpace(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return GetDB(ctx, r.db).Save(user).Error
}

// TouchLastLogin stores the time of the latest successful login
func (r *userRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return GetDB(ctx, r.db).Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// ListApproved returns all active users approved for billing, ordered by id
func (r *userRepository) ListApproved(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := GetDB(ctx, r.db).
		Where("approval_status = ? AND status = ?", models.APPROVAL_APPROVED, models.STATUS_ACTIVE).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// List retrieves a paginated list of users
func (r *userRepository) List(ctx context.Context, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := GetDB(ctx, r.db).Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&models.User{}).Count(&count).Error
	return count, err
}

// Search searches for users by name or email
func (r *userRepository) Search(ctx context.Context, query string) ([]models.User, error) {
	var users []models.User
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := GetDB(ctx, r.db).Where("name LIKE ? OR email LIKE ?", searchPattern, searchPattern).Find(&users).Error
	return users, err
}
