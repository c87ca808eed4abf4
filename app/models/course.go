package models

import "time"

// Session enrollment modes.
const (
	ModeVerified = "verified"
	ModeHonor    = "honor"
	ModeAudit    = "audit"
)

// CourseSession is one run of a course in the external learning system.
type CourseSession struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Slug      string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"slug"`
	Title     string     `gorm:"type:varchar(255);not null" json:"title"`
	CourseRef string     `gorm:"type:varchar(255);not null;default:''" json:"course_ref"`
	StartsAt  *time.Time `gorm:"type:timestamp;default:null" json:"starts_at,omitempty"`
	EndsAt    *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SessionEnrollmentType is a purchasable enrollment mode of a session.
type SessionEnrollmentType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index:ux_session_enrollment_types_mode,unique,priority:1" json:"session_id"`
	Mode      string    `gorm:"type:varchar(32);not null;index:ux_session_enrollment_types_mode,unique,priority:2" json:"mode"`
	Price     int       `gorm:"not null;default:0" json:"price"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DaysSinceStart returns the whole days elapsed since the session start, or
// -1 when the session has no start date or has not started yet.
func (s CourseSession) DaysSinceStart(now time.Time) int {
	if s.StartsAt == nil || now.Before(*s.StartsAt) {
		return -1
	}
	return int(now.Sub(*s.StartsAt).Hours() / 24)
}
