package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grant states of a payment record. Granted is terminal.
const (
	GrantStatusCreated  = "created"
	GrantStatusGranting = "granting"
	GrantStatusGranted  = "granted"
)

// MaxOrderNumberLength is the gateway limit for order numbers.
const MaxOrderNumberLength = 64

// Payment is the pending or settled gateway payment for one order number.
// Metadata is the only channel through which confirmation learns what to grant.
type Payment struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrderNumber    string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_number"`
	CustomerNumber string         `gorm:"type:varchar(64);not null" json:"customer_number"`
	OrderAmount    int            `gorm:"not null" json:"order_amount"`
	ShopAmount     *float64       `gorm:"default:null" json:"shop_amount,omitempty"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	Metadata       datatypes.JSON `gorm:"not null" json:"metadata"`
	IsPaid         bool           `gorm:"default:false;index" json:"is_paid"`
	PerformedAt    *time.Time     `gorm:"type:timestamp;default:null" json:"performed_at,omitempty"`
	GrantStatus    string         `gorm:"type:varchar(16);not null;default:'created';index" json:"grant_status"`
	GrantedAt      *time.Time     `gorm:"type:timestamp;default:null" json:"granted_at,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsGranted reports whether entitlements for this order were already written.
func (p Payment) IsGranted() bool {
	return p.GrantStatus == GrantStatusGranted
}
