package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/visuluxe/visuluxe/internal/database/models"
)

const decryptNotificationLink = "/admin/providers"

// recordAudit writes one audit row. Best-effort: a failed write is logged
// and swallowed so it never downgrades the operation it describes.
func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action models.AuditAction, providerID uuid.UUID, details map[string]string) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	entry := models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		ProviderID: providerID,
		Details:    string(payload),
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("failed to write audit entry",
			"action", action,
			"actor_id", actorID,
			"provider_id", providerID,
			"error", err,
		)
	}
}

// notifyOwners alerts every active owner that a provider key was decrypted,
// skipping the actor so admins are not notified of their own actions.
// Failures are logged and swallowed; the decrypt already succeeded.
func (s *Service) notifyOwners(ctx context.Context, actor *models.User, provider *models.Provider) {
	var owners []models.User
	if err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ? AND id != ?", models.RoleOwner, true, actor.ID).
		Find(&owners).Error; err != nil {
		s.logger.Error("failed to load owners for decrypt notification", "error", err)
		return
	}

	for _, owner := range owners {
		notification := models.Notification{
			UserID:  owner.ID,
			Title:   "Provider API key decrypted",
			Message: fmt.Sprintf("%s decrypted the API key for provider %q", actor.Email, provider.Name),
			Link:    decryptNotificationLink,
		}
		if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
			s.logger.Error("failed to create decrypt notification",
				"recipient_id", owner.ID,
				"error", err,
			)
		}
	}
}
