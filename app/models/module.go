package models

import "time"

// EducationalModule is a bundle of course sessions sold together.
type EducationalModule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"code"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ModuleSession places a session inside a module at a position.
type ModuleSession struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ModuleID  uint `gorm:"not null;index:ux_module_sessions_module_session,unique,priority:1" json:"module_id"`
	SessionID uint `gorm:"not null;index:ux_module_sessions_module_session,unique,priority:2" json:"session_id"`
	Position  int  `gorm:"not null;default:0" json:"position"`
}

// ModuleEnrollmentType is a purchasable enrollment mode of a module.
type ModuleEnrollmentType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ModuleID  uint      `gorm:"not null;index:ux_module_enrollment_types_mode,unique,priority:1" json:"module_id"`
	Mode      string    `gorm:"type:varchar(32);not null;index:ux_module_enrollment_types_mode,unique,priority:2" json:"mode"`
	Price     int       `gorm:"not null;default:0" json:"price"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
