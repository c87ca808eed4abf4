package models

import (
	"time"

	"gorm.io/datatypes"
)

// OuterPayment is the verbatim, write-once audit record of a purchase pushed
// by an alternate sales channel.
type OuterPayment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Reference string         `gorm:"type:char(36);not null;uniqueIndex" json:"reference"`
	Data      datatypes.JSON `gorm:"not null" json:"data"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
