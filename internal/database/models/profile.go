package models

import "github.com/google/uuid"

// Profile is the public-facing companion row for a user, reconciled from
// the users table by the worker's profile sync job.
type Profile struct {
	Base
	UserID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Plan        string    `gorm:"default:'free'" json:"plan"` // free, pro, studio
	IsActive    bool      `gorm:"default:true" json:"is_active"`
}

func (Profile) TableName() string {
	return "profiles"
}
