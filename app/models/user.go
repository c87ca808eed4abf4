package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// User mirrors an account of the single sign-on service. ID is the SSO id.
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username  string    `gorm:"type:varchar(150);not null;uniqueIndex" json:"username" validate:"required,max=150"`
	Email     string    `gorm:"type:varchar(200);not null;index" json:"email" validate:"required,email,max=200"`
	FirstName string    `gorm:"type:varchar(150);default:''" json:"first_name" validate:"max=150"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}
