package models

import "time"

// PromoCode is a discount code with a bounded number of uses.
// DiscountPrice is an absolute amount taken off the product price and wins
// over DiscountPercent when both are set.
type PromoCode struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Code            string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	DiscountPercent *int       `gorm:"default:null" json:"discount_percent,omitempty"`
	DiscountPrice   *int       `gorm:"default:null" json:"discount_price,omitempty"`
	MaxUse          int        `gorm:"not null;default:0" json:"max_use"`
	Used            int        `gorm:"not null;default:0" json:"used"`
	ActiveTill      *time.Time `gorm:"type:timestamp;default:null" json:"active_till,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Targets []PromoCodeTarget `gorm:"foreignKey:PromoCodeID" json:"targets,omitempty"`
}

// Exhausted reports whether a limited code has no uses left.
func (p PromoCode) Exhausted() bool {
	return p.MaxUse > 0 && p.Used >= p.MaxUse
}

// Expired reports whether the code's validity window is over.
func (p PromoCode) Expired(now time.Time) bool {
	return p.ActiveTill != nil && now.After(*p.ActiveTill)
}

// AppliesTo reports whether the code may be used for the target. A code
// without targets applies to every product.
func (p PromoCode) AppliesTo(ref TargetRef) bool {
	if len(p.Targets) == 0 {
		return true
	}
	for _, t := range p.Targets {
		if t.TargetType == ref.Kind && t.TargetID == ref.ID {
			return true
		}
	}
	return false
}

// PromoCodeTarget restricts a promo code to a product.
type PromoCodeTarget struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PromoCodeID uint       `gorm:"not null;index:ux_promo_code_targets_key,unique,priority:1" json:"promo_code_id"`
	TargetType  TargetKind `gorm:"type:varchar(16);not null;index:ux_promo_code_targets_key,unique,priority:2" json:"target_type"`
	TargetID    uint       `gorm:"not null;index:ux_promo_code_targets_key,unique,priority:3" json:"target_id"`
}

// PromoCodeRedemption records that an order consumed a promo code. The unique
// key makes the usage increment happen once per order.
type PromoCodeRedemption struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PromoCodeID uint      `gorm:"not null;index:ux_promo_code_redemptions_order,unique,priority:1" json:"promo_code_id"`
	OrderNumber string    `gorm:"type:varchar(64);not null;index:ux_promo_code_redemptions_order,unique,priority:2" json:"order_number"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
