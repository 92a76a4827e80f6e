package models

import (
	"time"

	"gorm.io/gorm"
)

// Message sources.
const (
	MessageSourceExternal = "external"
	MessageSourceInternal = "internal"
)

// Message is a processed inbound or internally triggered communication.
// ThreadKey is the normalized subject used to group replies into one thread.
type Message struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index:idx_messages_user_processed,priority:1" json:"user_id"`
	Subject          string    `gorm:"type:varchar(500);not null;default:''" json:"subject"`
	ThreadKey        string    `gorm:"type:varchar(500);not null;default:'';index" json:"thread_key"`
	Source           string    `gorm:"type:varchar(16);not null;default:'external'" json:"source"`
	ExpectationCheck bool      `gorm:"not null;default:false" json:"expectation_check"`
	ManualReview     bool      `gorm:"not null;default:false" json:"manual_review"`
	ProcessedAt      time.Time `gorm:"not null;index:idx_messages_user_processed,priority:2" json:"processed_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave stores processing instants in UTC.
func (m *Message) BeforeSave(tx *gorm.DB) error {
	if !m.ProcessedAt.IsZero() {
		m.ProcessedAt = m.ProcessedAt.UTC()
	}
	return nil
}

// IsExternal reports whether the message arrived from outside the agency.
func (m *Message) IsExternal() bool {
	return m.Source == MessageSourceExternal
}
