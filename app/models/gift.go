package models

import "time"

// GiftPaymentInfo tracks a gift purchase from sender to receiver.
// HasPaid is flipped by payment confirmation, HasNotified by the notifier.
type GiftPaymentInfo struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SenderID    uint       `gorm:"not null;index:idx_gift_payment_infos_match,priority:2" json:"sender_id"`
	ReceiverID  uint       `gorm:"not null;index:idx_gift_payment_infos_match,priority:1" json:"receiver_id"`
	TargetType  TargetKind `gorm:"type:varchar(16);not null;index:idx_gift_payment_infos_match,priority:3" json:"target_type"`
	TargetID    uint       `gorm:"not null;index:idx_gift_payment_infos_match,priority:4" json:"target_id"`
	NotifyAt    *time.Time `gorm:"type:timestamp;default:null" json:"notify_at,omitempty"`
	GiftText    string     `gorm:"type:text" json:"gift_text"`
	ProductTag  string     `gorm:"type:varchar(64);default:''" json:"product_tag"`
	HasPaid     bool       `gorm:"default:false;index" json:"has_paid"`
	HasNotified bool       `gorm:"default:false" json:"has_notified"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
