package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/visuluxe/visuluxe/internal/api/dto"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/pkg/crypto"
	"gorm.io/gorm"
)

// APIKeyHandler manages the platform's own API keys (the keys users call
// Visuluxe with, not the upstream provider credentials the vault holds).
// Keys are stored as SHA-256 hashes; the plaintext is shown exactly once,
// in the create response.
type APIKeyHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewAPIKeyHandler(db *gorm.DB, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{db: db, logger: logger}
}

type CreateAPIKeyRequest struct {
	Label string `json:"label"`
}

type CreateAPIKeyResponse struct {
	Success   bool   `json:"success"`
	ID        string `json:"id"`
	Key       string `json:"key"`
	MaskedKey string `json:"masked_key"`
	Label     string `json:"label"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Label is required"})
		return
	}
	if len(req.Label) > 64 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Label must be at most 64 characters"})
		return
	}

	plaintext, err := crypto.GenerateAPIKey()
	if err != nil {
		h.logger.Error("failed to generate api key", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create API key"})
		return
	}

	key := models.APIKey{
		UserID:    userID,
		Label:     req.Label,
		KeyHash:   crypto.HashToken(plaintext),
		MaskedKey: crypto.Mask(plaintext),
	}

	if err := h.db.WithContext(r.Context()).Create(&key).Error; err != nil {
		h.logger.Error("failed to store api key", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create API key"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		Success:   true,
		ID:        key.ID.String(),
		Key:       plaintext,
		MaskedKey: key.MaskedKey,
		Label:     key.Label,
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var keys []models.APIKey
	if err := h.db.WithContext(r.Context()).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&keys).Error; err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list API keys"})
		return
	}

	writeJSON(w, http.StatusOK, keys)
}

// Revoke disables a key without deleting it, so the audit history keeps
// its row. Revoking an already revoked key succeeds.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid key ID"})
		return
	}

	var key models.APIKey
	if err := h.db.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "API key not found"})
			return
		}
		h.logger.Error("failed to load api key", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load API key"})
		return
	}

	if !key.IsRevoked() {
		now := time.Now()
		if err := h.db.WithContext(r.Context()).
			Model(&key).
			Update("revoked_at", now).Error; err != nil {
			h.logger.Error("failed to revoke api key", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to revoke API key"})
			return
		}
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "API key revoked"})
}
