package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/internal/providers"
	"github.com/visuluxe/visuluxe/internal/vault"
	"gorm.io/gorm"
)

const (
	modelCacheKeyPrefix = "models:catalog:"
	modelCacheTTL       = 2 * time.Hour
)

// Handler processes background jobs. It resolves provider credentials
// through the vault's internal path, never over HTTP.
type Handler struct {
	db     *gorm.DB
	redis  *redis.Client
	vault  *vault.Service
	client *providers.Client
	logger *slog.Logger
}

func NewHandler(db *gorm.DB, redisClient *redis.Client, vaultService *vault.Service, client *providers.Client, logger *slog.Logger) *Handler {
	return &Handler{
		db:     db,
		redis:  redisClient,
		vault:  vaultService,
		client: client,
		logger: logger,
	}
}

// Register wires the handler into an asynq mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeModelCacheRefresh, h.HandleModelCacheRefresh)
	mux.HandleFunc(TypeProfileSync, h.HandleProfileSync)
}

// HandleModelCacheRefresh fetches upstream model catalogs and caches them
// in Redis. Providers without a usable key are skipped, not failed, so one
// misconfigured provider does not poison the whole refresh.
func (h *Handler) HandleModelCacheRefresh(ctx context.Context, t *asynq.Task) error {
	var payload ModelCacheRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling payload: %v: %w", err, asynq.SkipRetry)
	}

	query := h.db.WithContext(ctx).Where("is_active = ?", true)
	if payload.ProviderID != nil {
		query = query.Where("id = ?", *payload.ProviderID)
	}

	var provs []models.Provider
	if err := query.Find(&provs).Error; err != nil {
		return fmt.Errorf("loading providers: %w", err)
	}

	refreshed := 0
	for i := range provs {
		if err := h.refreshOne(ctx, &provs[i]); err != nil {
			h.logger.Warn("model cache refresh skipped provider",
				"provider", provs[i].Slug,
				"error", err,
			)
			continue
		}
		refreshed++
	}

	h.logger.Info("model cache refresh complete", "providers", len(provs), "refreshed", refreshed)
	return nil
}

func (h *Handler) refreshOne(ctx context.Context, provider *models.Provider) error {
	apiKey, err := h.vault.SystemKey(ctx, provider.ID)
	if err != nil {
		if errors.Is(err, vault.ErrNoKey) {
			return fmt.Errorf("no API key configured")
		}
		return fmt.Errorf("resolving key: %w", err)
	}

	catalog, err := h.client.ListModels(ctx, provider.BaseURL, provider.ModelsPath, apiKey)
	if err != nil {
		return fmt.Errorf("fetching catalog: %w", err)
	}

	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}

	key := modelCacheKeyPrefix + provider.Slug
	if err := h.redis.Set(ctx, key, data, modelCacheTTL).Err(); err != nil {
		return fmt.Errorf("caching catalog: %w", err)
	}

	return nil
}

// HandleProfileSync reconciles profile rows with their users: creates the
// missing ones and deactivates profiles of deactivated users.
func (h *Handler) HandleProfileSync(ctx context.Context, t *asynq.Task) error {
	var users []models.User
	if err := h.db.WithContext(ctx).Preload("Profile").Find(&users).Error; err != nil {
		return fmt.Errorf("loading users: %w", err)
	}

	created := 0
	deactivated := 0
	for i := range users {
		user := &users[i]

		if user.Profile == nil {
			profile := models.Profile{
				UserID:      user.ID,
				DisplayName: user.Name,
				Plan:        "free",
				IsActive:    user.IsActive,
			}
			if err := h.db.WithContext(ctx).Create(&profile).Error; err != nil {
				h.logger.Warn("failed to create missing profile", "user_id", user.ID, "error", err)
				continue
			}
			created++
			continue
		}

		if !user.IsActive && user.Profile.IsActive {
			if err := h.db.WithContext(ctx).
				Model(user.Profile).
				Update("is_active", false).Error; err != nil {
				h.logger.Warn("failed to deactivate profile", "user_id", user.ID, "error", err)
				continue
			}
			deactivated++
		}
	}

	h.logger.Info("profile sync complete", "users", len(users), "created", created, "deactivated", deactivated)
	return nil
}
