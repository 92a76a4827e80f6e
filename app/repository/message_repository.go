package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"gorm.io/gorm"
)

// messageRepository implements the MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create stores a processed message
func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return GetDB(ctx, r.db).Create(msg).Error
}

// CreateSMS stores an outbound SMS record
func (r *messageRepository) CreateSMS(ctx context.Context, sms *models.SMSMessage) error {
	return GetDB(ctx, r.db).Create(sms).Error
}

// ListBillableMessages returns a user's messages processed in [from, to), oldest first
func (r *messageRepository) ListBillableMessages(ctx context.Context, userID uint, from, to time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := GetDB(ctx, r.db).
		Where("user_id = ? AND processed_at >= ? AND processed_at < ?", userID, from.UTC(), to.UTC()).
		Order("processed_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}

// CountSentSMS counts SMS that left the gateway in [from, to)
func (r *messageRepository) CountSentSMS(ctx context.Context, userID uint, from, to time.Time) (int, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&models.SMSMessage{}).
		Where("user_id = ? AND sent_at >= ? AND sent_at < ?", userID, from.UTC(), to.UTC()).
		Where("status IN ?", []string{models.SMSStatusSent, models.SMSStatusDelivered}).
		Count(&count).Error
	return int(count), err
}
