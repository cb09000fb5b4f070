package models

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	Base
	UserID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Title   string     `gorm:"not null" json:"title"`
	Message string     `json:"message"`
	Link    string     `json:"link,omitempty"`
	ReadAt  *time.Time `json:"read_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}
