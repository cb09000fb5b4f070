package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a platform key issued to a user for calling the Visuluxe API.
// Only the SHA-256 hash is stored; MaskedKey is the display form.
type APIKey struct {
	Base
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Label      string     `json:"label"`
	KeyHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	MaskedKey  string     `gorm:"not null" json:"masked_key"` // e.g. "••••••••abcd"
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}
