package payments

import "time"

// Payment is the local copy of a provider payment reference. The provider
// stays authoritative for status; ProviderStatus is the last value seen.
type Payment struct {
	ID             string      `gorm:"type:char(36);primaryKey"`
	OrderID        string      `gorm:"type:char(36);not null;index:ix_payments_order_active,priority:1"`
	Active         bool        `gorm:"not null;index:ix_payments_order_active,priority:2"`
	Provider       string      `gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_provider_ref,priority:1"`
	ProviderRef    string      `gorm:"type:varchar(128);not null;uniqueIndex:ux_payments_provider_ref,priority:2"`
	CustomerRef    string      `gorm:"type:varchar(128);not null"`
	BillingType    BillingType `gorm:"type:varchar(16);not null"`
	ProviderStatus string      `gorm:"type:varchar(32);not null"`
	AmountCents    int64       `gorm:"not null"`
	DueDate        string      `gorm:"type:varchar(10)"`
	PixExpiresAt   *time.Time  `gorm:"precision:3"`
	CreatedAt      time.Time   `gorm:"precision:3;not null"`
	UpdatedAt      time.Time   `gorm:"precision:3;not null"`
}

func (Payment) TableName() string { return "payments" }
