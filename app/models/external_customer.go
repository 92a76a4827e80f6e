package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// ExternalCustomer stores the provider customer mirrored for a user.
type ExternalCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;index:ux_external_customers_user_provider,unique,priority:1" json:"user_id"`
	Provider           string    `gorm:"type:varchar(20);not null;index:ux_external_customers_user_provider,unique,priority:2;index:ux_external_customers_provider_customer,unique,priority:1" json:"provider"`
	ExternalCustomerID string    `gorm:"type:varchar(191);not null;index:ux_external_customers_provider_customer,unique,priority:2" json:"external_customer_id"`
	Email              string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
