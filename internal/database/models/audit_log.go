package models

import "github.com/google/uuid"

type AuditAction string

const (
	AuditKeyDecrypted AuditAction = "provider_key_decrypted"
	AuditKeyEncrypted AuditAction = "provider_key_encrypted"
)

// AuditLog rows are insert-only: written once per successful decrypt or
// encrypt/migrate action, never updated or deleted.
type AuditLog struct {
	Base
	ActorID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"actor_id"`
	Action     AuditAction `gorm:"index;not null" json:"action"`
	ProviderID uuid.UUID   `gorm:"type:uuid;index" json:"provider_id"`
	Details    string      `gorm:"type:text;default:'{}'" json:"details"` // JSON: provider name, IP, user agent, migration type

	Actor *User `gorm:"foreignKey:ActorID" json:"-"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
