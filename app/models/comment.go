package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment is a buyer or listener note on a pack. Content is stored already
// stripped of HTML.
type Comment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	User      *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PackID    string         `gorm:"type:varchar(36);not null;index" json:"pack_id"`
	Content   string         `gorm:"type:text;not null" json:"content" validate:"required,min=1,max=1000"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
