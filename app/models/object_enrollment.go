package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Object enrollment types.
const (
	EnrollmentTypeFree = "free"
	EnrollmentTypePaid = "paid"
)

// ObjectEnrollment grants a user one UpsaleLink. (user, link) is unique so
// repeated grants update the same row.
type ObjectEnrollment struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UserID              uint           `gorm:"not null;index:ux_object_enrollments_user_link,unique,priority:1" json:"user_id"`
	UpsaleLinkID        uint           `gorm:"not null;index:ux_object_enrollments_user_link,unique,priority:2;index" json:"upsale_link_id"`
	EnrollmentType      string         `gorm:"type:varchar(8);not null" json:"enrollment_type"`
	PaymentType         string         `gorm:"type:varchar(16);not null" json:"payment_type"`
	PaymentOrderID      string         `gorm:"type:varchar(64);default:''" json:"payment_order_id"`
	PaymentDescriptions string         `gorm:"type:text" json:"payment_descriptions"`
	IsActive            bool           `gorm:"not null" json:"is_active"`
	Payload             datatypes.JSON `gorm:"default:null" json:"payload,omitempty"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ObjectEnrollmentPayload is the structured content of Payload.
type ObjectEnrollmentPayload struct {
	PromoCode string `json:"promo_code,omitempty"`
}

// DecodePayload returns the structured payload; an empty payload is valid.
func (e ObjectEnrollment) DecodePayload() (ObjectEnrollmentPayload, error) {
	var p ObjectEnrollmentPayload
	if len(e.Payload) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// IssuedPromoCode returns the promo code stashed on the enrollment, if any.
func (e ObjectEnrollment) IssuedPromoCode() string {
	p, err := e.DecodePayload()
	if err != nil {
		return ""
	}
	return p.PromoCode
}
