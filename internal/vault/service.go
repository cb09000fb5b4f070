package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/pkg/crypto"
	"gorm.io/gorm"
)

// PasswordVerifier re-checks an actor's current password for step-up
// authentication. Implemented by auth.Service.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID uuid.UUID, password string) error
}

// Service is the provider credential vault: it masks, encrypts and
// selectively reveals the API keys the platform uses to call upstream
// image-generation providers.
type Service struct {
	db       *gorm.DB
	cipher   *crypto.Cipher // nil when no encryption key is configured
	verifier PasswordVerifier
	logger   *slog.Logger

	decryptLimit  int
	decryptWindow time.Duration
}

func NewService(db *gorm.DB, cipher *crypto.Cipher, verifier PasswordVerifier, logger *slog.Logger, decryptLimit int, decryptWindow time.Duration) *Service {
	if decryptLimit <= 0 {
		decryptLimit = 10
	}
	if decryptWindow <= 0 {
		decryptWindow = time.Hour
	}
	return &Service{
		db:            db,
		cipher:        cipher,
		verifier:      verifier,
		logger:        logger,
		decryptLimit:  decryptLimit,
		decryptWindow: decryptWindow,
	}
}

// Configured reports whether an encryption key is loaded.
func (s *Service) Configured() bool {
	return s.cipher != nil
}

// DecryptLimit returns the per-actor decrypt cap over the trailing window.
func (s *Service) DecryptLimit() int {
	return s.decryptLimit
}

// MaskedView is the display-safe state of a provider credential.
type MaskedView struct {
	HasKey      bool
	IsEncrypted bool
	MaskedKey   *string
}

// GetMaskedView returns the masked form of a provider's key without
// revealing it. An encrypted value that fails to decrypt is reported as an
// unencrypted legacy value and masked from the raw blob rather than failing
// the request; genuine corruption is indistinguishable from legacy data
// here, so it is logged for operators instead.
func (s *Service) GetMaskedView(ctx context.Context, providerID uuid.UUID) (*MaskedView, error) {
	provider, err := s.getProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	switch StateOf(provider) {
	case KeyStateNone:
		return &MaskedView{HasKey: false}, nil

	case KeyStatePlaintext:
		masked := crypto.Mask(provider.APIKey)
		return &MaskedView{HasKey: true, IsEncrypted: false, MaskedKey: &masked}, nil

	case KeyStateEncrypted:
		if s.cipher != nil {
			if plain, err := s.cipher.Decrypt(provider.APIKey); err == nil {
				masked := crypto.Mask(plain)
				return &MaskedView{HasKey: true, IsEncrypted: true, MaskedKey: &masked}, nil
			}
		}
		s.logger.Warn("stored key marked encrypted but failed to decrypt, masking raw value",
			"provider_id", provider.ID,
		)
		masked := crypto.Mask(provider.APIKey)
		return &MaskedView{HasKey: true, IsEncrypted: false, MaskedKey: &masked}, nil
	}

	return nil, fmt.Errorf("unreachable key state")
}

// EncryptKey encrypts an API key and returns the blob and its masked form.
// It does not persist anything; writing the blob into the provider record
// belongs to provider management.
func (s *Service) EncryptKey(ctx context.Context, apiKey string) (blob, masked string, err error) {
	if s.cipher == nil {
		return "", "", ErrNotConfigured
	}
	blob, err = s.cipher.Encrypt(apiKey)
	if err != nil {
		return "", "", err
	}
	return blob, crypto.Mask(apiKey), nil
}

// DecryptRequest carries everything the decrypt gate needs. Actor has
// already passed bearer authentication and the role check.
type DecryptRequest struct {
	Actor      *models.User
	ProviderID uuid.UUID
	Password   string
	IP         string
	UserAgent  string
}

// Decrypt reveals a provider's live API key. The gate runs in order: rate
// limit, then step-up password verification, then the decrypt itself. A
// successful decrypt is audited and fanned out to every owner except the
// actor; both are best-effort and never fail the response.
func (s *Service) Decrypt(ctx context.Context, req DecryptRequest) (apiKey, masked string, err error) {
	if s.cipher == nil {
		return "", "", ErrNotConfigured
	}

	count, err := s.decryptCount(ctx, req.Actor.ID)
	if err != nil {
		return "", "", fmt.Errorf("checking decrypt allowance: %w", err)
	}
	if count >= int64(s.decryptLimit) {
		s.logger.Warn("decrypt rate limit hit",
			"actor_id", req.Actor.ID,
			"ip", orUnknown(req.IP),
		)
		return "", "", ErrRateLimited
	}

	if err := s.verifier.VerifyPassword(ctx, req.Actor.ID, req.Password); err != nil {
		return "", "", ErrStepUpFailed
	}

	provider, err := s.getProvider(ctx, req.ProviderID)
	if err != nil {
		return "", "", err
	}

	var plain string
	switch StateOf(provider) {
	case KeyStateNone:
		return "", "", ErrNoKey
	case KeyStatePlaintext:
		// Legacy key stored before encryption at rest; returned as-is
		plain = provider.APIKey
	case KeyStateEncrypted:
		plain, err = s.cipher.Decrypt(provider.APIKey)
		if err != nil {
			return "", "", err
		}
	}

	s.recordAudit(ctx, req.Actor.ID, models.AuditKeyDecrypted, provider.ID, map[string]string{
		"provider_name": provider.Name,
		"ip":            orUnknown(req.IP),
		"user_agent":    req.UserAgent,
	})
	s.notifyOwners(ctx, req.Actor, provider)

	return plain, crypto.Mask(plain), nil
}

// MigrateLegacy re-encrypts a legacy plaintext key in place. Returns false
// without side effects when the key is already encrypted, so repeated calls
// are idempotent and audit at most once.
func (s *Service) MigrateLegacy(ctx context.Context, actor *models.User, providerID uuid.UUID) (migrated bool, err error) {
	if s.cipher == nil {
		return false, ErrNotConfigured
	}

	provider, err := s.getProvider(ctx, providerID)
	if err != nil {
		return false, err
	}

	switch StateOf(provider) {
	case KeyStateEncrypted:
		return false, nil
	case KeyStateNone:
		return false, ErrNoKey
	}

	blob, err := s.cipher.Encrypt(provider.APIKey)
	if err != nil {
		return false, fmt.Errorf("encrypting legacy key: %w", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(provider).Updates(map[string]interface{}{
		"api_key":          blob,
		"key_encrypted_at": now,
	}).Error; err != nil {
		return false, fmt.Errorf("persisting encrypted key: %w", err)
	}

	s.recordAudit(ctx, actor.ID, models.AuditKeyEncrypted, provider.ID, map[string]string{
		"provider_name":  provider.Name,
		"migration_type": "legacy_to_encrypted",
	})

	return true, nil
}

// SystemKey resolves a provider's plaintext key for the platform's own
// upstream calls (worker jobs). It bypasses step-up and writes no audit
// row; the audit trail covers the administrative actions only. Never
// exposed over HTTP.
func (s *Service) SystemKey(ctx context.Context, providerID uuid.UUID) (string, error) {
	provider, err := s.getProvider(ctx, providerID)
	if err != nil {
		return "", err
	}

	switch StateOf(provider) {
	case KeyStateNone:
		return "", ErrNoKey
	case KeyStatePlaintext:
		return provider.APIKey, nil
	default:
		if s.cipher == nil {
			return "", ErrNotConfigured
		}
		return s.cipher.Decrypt(provider.APIKey)
	}
}

// decryptCount counts the actor's decrypt audit rows inside the trailing
// window. Derived from the audit log rather than a dedicated counter, so
// concurrent decrypts may overshoot the limit by a small margin.
func (s *Service) decryptCount(ctx context.Context, actorID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("actor_id = ? AND action = ? AND created_at >= ?",
			actorID, models.AuditKeyDecrypted, time.Now().Add(-s.decryptWindow)).
		Count(&count).Error
	return count, err
}

func (s *Service) getProvider(ctx context.Context, providerID uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := s.db.WithContext(ctx).First(&provider, providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &provider, nil
}

func orUnknown(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return ip
}
