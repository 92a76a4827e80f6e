package models

import "time"

// SMS delivery states.
const (
	SMSStatusQueued    = "queued"
	SMSStatusSent      = "sent"
	SMSStatusDelivered = "delivered"
	SMSStatusFailed    = "failed"
)

// SMSMessage records one outbound text message sent on behalf of a user.
type SMSMessage struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index:idx_sms_messages_user_sent,priority:1" json:"user_id"`
	ToNumber    string     `gorm:"type:varchar(32);not null" json:"to_number"`
	CountryCode string     `gorm:"type:varchar(2);not null;default:''" json:"country_code"`
	Body        string     `gorm:"type:text" json:"body"`
	Status      string     `gorm:"type:varchar(16);not null;default:'queued';index" json:"status"`
	SentAt      *time.Time `gorm:"type:timestamp;default:null;index:idx_sms_messages_user_sent,priority:2" json:"sent_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsBillable reports whether the message left the gateway.
func (s *SMSMessage) IsBillable() bool {
	return s.SentAt != nil && (s.Status == SMSStatusSent || s.Status == SMSStatusDelivered)
}
