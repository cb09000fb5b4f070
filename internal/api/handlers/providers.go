package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/visuluxe/visuluxe/internal/api/dto"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/internal/providers"
	"github.com/visuluxe/visuluxe/internal/tasks"
	"github.com/visuluxe/visuluxe/internal/vault"
	"gorm.io/gorm"
)

type ProviderHandler struct {
	db     *gorm.DB
	vault  *vault.Service
	queue  *asynq.Client // nil disables catalog refresh enqueues
	logger *slog.Logger
}

func NewProviderHandler(db *gorm.DB, vaultService *vault.Service, queueClient *asynq.Client, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{db: db, vault: vaultService, queue: queueClient, logger: logger}
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	var rows []models.Provider
	if err := h.db.WithContext(r.Context()).Order("name asc").Find(&rows).Error; err != nil {
		h.logger.Error("failed to list providers", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list providers"})
		return
	}

	out := make([]dto.ProviderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, h.toDTO(r, &rows[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *ProviderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid provider ID"})
		return
	}

	var provider models.Provider
	if err := h.db.WithContext(r.Context()).First(&provider, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Provider not found"})
			return
		}
		h.logger.Error("failed to load provider", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load provider"})
		return
	}

	writeJSON(w, http.StatusOK, h.toDTO(r, &provider))
}

// Create registers an upstream provider. A supplied API key is encrypted
// before it touches the database; plaintext keys only exist for rows that
// predate encryption at rest.
func (h *ProviderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	provider := models.Provider{
		Name:     req.Name,
		Slug:     req.Slug,
		BaseURL:  req.BaseURL,
		IsActive: true,
	}
	if req.ModelsPath != "" {
		provider.ModelsPath = req.ModelsPath
	}

	if req.APIKey != "" {
		if err := providers.ValidateKeyFormat(req.APIKey); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		blob, _, err := h.vault.EncryptKey(r.Context(), req.APIKey)
		if err != nil {
			if errors.Is(err, vault.ErrNotConfigured) {
				writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Encryption key not configured"})
				return
			}
			h.logger.Error("failed to encrypt provider key", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encrypt key"})
			return
		}
		now := time.Now()
		provider.APIKey = blob
		provider.KeyEncryptedAt = &now
	}

	if err := h.db.WithContext(r.Context()).Create(&provider).Error; err != nil {
		h.logger.Error("failed to create provider", "error", err)
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Provider with this slug already exists"})
		return
	}

	if provider.APIKey != "" {
		h.enqueueCatalogRefresh(provider.ID)
	}

	writeJSON(w, http.StatusCreated, h.toDTO(r, &provider))
}

func (h *ProviderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid provider ID"})
		return
	}

	var req dto.UpdateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	var provider models.Provider
	if err := h.db.WithContext(r.Context()).First(&provider, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Provider not found"})
			return
		}
		h.logger.Error("failed to load provider", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load provider"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.BaseURL != nil {
		updates["base_url"] = *req.BaseURL
	}
	if req.ModelsPath != nil {
		updates["models_path"] = *req.ModelsPath
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.APIKey != nil && *req.APIKey != "" {
		if err := providers.ValidateKeyFormat(*req.APIKey); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		blob, _, err := h.vault.EncryptKey(r.Context(), *req.APIKey)
		if err != nil {
			if errors.Is(err, vault.ErrNotConfigured) {
				writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Encryption key not configured"})
				return
			}
			h.logger.Error("failed to encrypt provider key", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encrypt key"})
			return
		}
		updates["api_key"] = blob
		updates["key_encrypted_at"] = time.Now()
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(r.Context()).Model(&provider).Updates(updates).Error; err != nil {
			h.logger.Error("failed to update provider", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update provider"})
			return
		}
	}

	if _, ok := updates["api_key"]; ok {
		h.enqueueCatalogRefresh(provider.ID)
	}

	writeJSON(w, http.StatusOK, h.toDTO(r, &provider))
}

func (h *ProviderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid provider ID"})
		return
	}

	result := h.db.WithContext(r.Context()).Delete(&models.Provider{}, id)
	if result.Error != nil {
		h.logger.Error("failed to delete provider", "error", result.Error)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete provider"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Provider not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "Provider deleted"})
}

// enqueueCatalogRefresh warms the model catalog cache after a key change.
// Best-effort: the hourly schedule picks the provider up regardless.
func (h *ProviderHandler) enqueueCatalogRefresh(providerID uuid.UUID) {
	if h.queue == nil {
		return
	}

	task, err := tasks.NewModelCacheRefreshTask(&providerID)
	if err != nil {
		h.logger.Warn("failed to build catalog refresh task", "provider_id", providerID, "error", err)
		return
	}
	if _, err := h.queue.Enqueue(task); err != nil {
		h.logger.Warn("failed to enqueue catalog refresh", "provider_id", providerID, "error", err)
	}
}

func (h *ProviderHandler) toDTO(r *http.Request, p *models.Provider) dto.ProviderDTO {
	out := dto.ProviderDTO{
		ID:         p.ID.String(),
		Name:       p.Name,
		Slug:       p.Slug,
		BaseURL:    p.BaseURL,
		ModelsPath: p.ModelsPath,
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339),
	}

	view, err := h.vault.GetMaskedView(r.Context(), p.ID)
	if err != nil {
		h.logger.Warn("failed to build masked key view", "provider_id", p.ID, "error", err)
		return out
	}

	out.HasKey = view.HasKey
	out.IsEncrypted = view.IsEncrypted
	out.MaskedKey = view.MaskedKey
	return out
}
