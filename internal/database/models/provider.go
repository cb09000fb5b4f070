package models

import "time"

// Provider is an upstream image-generation service the platform calls with
// a stored API key.
//
// APIKey holds either a legacy plaintext key or a base64-encoded
// nonce||ciphertext||tag blob; KeyEncryptedAt is set iff the value is the
// encrypted form. Call sites go through vault.StateOf rather than checking
// KeyEncryptedAt directly. The vault never deletes providers; that belongs
// to provider management.
type Provider struct {
	Base
	Name       string `gorm:"not null" json:"name"`
	Slug       string `gorm:"uniqueIndex;not null" json:"slug"`
	BaseURL    string `gorm:"not null" json:"base_url"`
	ModelsPath string `gorm:"default:'/v1/models'" json:"models_path"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`

	APIKey         string     `json:"-"`
	KeyEncryptedAt *time.Time `json:"-"`
}

func (Provider) TableName() string {
	return "providers"
}
