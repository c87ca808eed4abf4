package models

import "time"

// Payment types recorded on entitlements and enrollment reasons.
const (
	PaymentTypeNone     = "none"
	PaymentTypeExternal = "external"
	PaymentTypeOther    = "other"
)

// Participant enrolls a user into a course session.
type Participant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index:ux_participants_session_user,unique,priority:1" json:"session_id"`
	UserID    uint      `gorm:"not null;index:ux_participants_session_user,unique,priority:2;index" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// EnrollmentReason justifies a participant's enrollment into a session mode.
// The unique key doubles as the idempotency gate for the learning system push.
type EnrollmentReason struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	ParticipantID           uint      `gorm:"not null;index:ux_enrollment_reasons_key,unique,priority:1" json:"participant_id"`
	SessionEnrollmentTypeID uint      `gorm:"not null;index:ux_enrollment_reasons_key,unique,priority:2" json:"session_enrollment_type_id"`
	PaymentType             string    `gorm:"type:varchar(16);not null;index:ux_enrollment_reasons_key,unique,priority:3" json:"payment_type"`
	PaymentOrderID          string    `gorm:"type:varchar(64);not null;default:'';index:ux_enrollment_reasons_key,unique,priority:4" json:"payment_order_id"`
	PaymentDescription      string    `gorm:"type:text" json:"payment_description"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ModuleEnrollment grants a user access to an educational module.
type ModuleEnrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:ux_module_enrollments_user_module,unique,priority:1" json:"user_id"`
	ModuleID  uint      `gorm:"not null;index:ux_module_enrollments_user_module,unique,priority:2" json:"module_id"`
	IsPaid    bool      `gorm:"default:false" json:"is_paid"`
	IsActive  bool      `gorm:"default:false" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ModuleEnrollmentReason is the ledger row for a module purchase. FullPaid
// separates a whole-module purchase from a first-course-only purchase.
type ModuleEnrollmentReason struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ModuleEnrollmentID     uint      `gorm:"not null;index:ux_module_enrollment_reasons_key,unique,priority:1" json:"module_enrollment_id"`
	ModuleEnrollmentTypeID uint      `gorm:"not null;index:ux_module_enrollment_reasons_key,unique,priority:2" json:"module_enrollment_type_id"`
	PaymentType            string    `gorm:"type:varchar(16);not null;index:ux_module_enrollment_reasons_key,unique,priority:3" json:"payment_type"`
	PaymentOrderID         string    `gorm:"type:varchar(64);not null;default:'';index:ux_module_enrollment_reasons_key,unique,priority:4" json:"payment_order_id"`
	FullPaid               bool      `gorm:"not null;index:ux_module_enrollment_reasons_key,unique,priority:5" json:"full_paid"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
}
