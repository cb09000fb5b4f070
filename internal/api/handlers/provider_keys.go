package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/visuluxe/visuluxe/internal/api/dto"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/api/validation"
	"github.com/visuluxe/visuluxe/internal/auth"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/internal/providers"
	"github.com/visuluxe/visuluxe/internal/vault"
)

// ProviderKeyHandler serves the action-dispatched provider key endpoint.
// Callers reach it through the Auth and RequireAdmin middleware; the
// step-up password check for decrypt happens inside the vault.
type ProviderKeyHandler struct {
	vault       *vault.Service
	authService *auth.Service
	logger      *slog.Logger
}

func NewProviderKeyHandler(vaultService *vault.Service, authService *auth.Service, logger *slog.Logger) *ProviderKeyHandler {
	return &ProviderKeyHandler{vault: vaultService, authService: authService, logger: logger}
}

// ManageKeysRequest is the action-dispatched request body. Only action is
// always required; each action validates its own fields.
type ManageKeysRequest struct {
	Action     string `json:"action"`
	ProviderID string `json:"provider_id,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	Password   string `json:"password,omitempty"`
}

type EncryptKeyResponse struct {
	Success      bool   `json:"success"`
	EncryptedKey string `json:"encrypted_key"`
	MaskedKey    string `json:"masked_key"`
}

type DecryptKeyResponse struct {
	Success   bool   `json:"success"`
	APIKey    string `json:"api_key"`
	MaskedKey string `json:"masked_key"`
}

type MaskedKeyResponse struct {
	Success     bool    `json:"success"`
	MaskedKey   *string `json:"masked_key"`
	HasKey      bool    `json:"has_key"`
	IsEncrypted bool    `json:"is_encrypted"`
}

// Manage handles POST /api/v1/provider-keys (and the legacy
// /manage-provider-keys path).
func (h *ProviderKeyHandler) Manage(w http.ResponseWriter, r *http.Request) {
	if !h.vault.Configured() {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Encryption key not configured"})
		return
	}

	var req ManageKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	action, err := vault.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	actor, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	switch action {
	case vault.ActionEncrypt:
		h.encrypt(w, r, req)
	case vault.ActionDecrypt:
		h.decrypt(w, r, req, actor)
	case vault.ActionGetMasked:
		h.getMasked(w, r, req)
	case vault.ActionReEncryptLegacy:
		h.reEncryptLegacy(w, r, req, actor)
	}
}

func (h *ProviderKeyHandler) encrypt(w http.ResponseWriter, r *http.Request, req ManageKeysRequest) {
	if req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "api_key is required"})
		return
	}
	if err := providers.ValidateKeyFormat(req.APIKey); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	blob, masked, err := h.vault.EncryptKey(r.Context(), req.APIKey)
	if err != nil {
		h.logger.Error("encrypt action failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encrypt key"})
		return
	}

	writeJSON(w, http.StatusOK, EncryptKeyResponse{
		Success:      true,
		EncryptedKey: blob,
		MaskedKey:    masked,
	})
}

func (h *ProviderKeyHandler) decrypt(w http.ResponseWriter, r *http.Request, req ManageKeysRequest, actor *models.User) {
	if req.ProviderID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "provider_id is required"})
		return
	}
	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "password is required"})
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid provider_id"})
		return
	}

	ip := clientIP(r)
	apiKey, masked, err := h.vault.Decrypt(r.Context(), vault.DecryptRequest{
		Actor:      actor,
		ProviderID: providerID,
		Password:   req.Password,
		IP:         ip,
		UserAgent:  validation.TruncateString(validation.SanitizeString(r.UserAgent()), 256),
	})

	if err != nil {
		switch {
		case errors.Is(err, vault.ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{
				Error: fmt.Sprintf("Decrypt limit of %d per hour reached (request from %s)", h.vault.DecryptLimit(), ip),
			})
		case errors.Is(err, vault.ErrStepUpFailed):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid password"})
		case errors.Is(err, vault.ErrProviderNotFound), errors.Is(err, vault.ErrNoKey):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Provider key not found"})
		case errors.Is(err, vault.ErrDecryptionFailed):
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to decrypt provider key"})
		default:
			h.logger.Error("decrypt action failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to decrypt provider key"})
		}
		return
	}

	writeJSON(w, http.StatusOK, DecryptKeyResponse{
		Success:   true,
		APIKey:    apiKey,
		MaskedKey: masked,
	})
}

func (h *ProviderKeyHandler) getMasked(w http.ResponseWriter, r *http.Request, req ManageKeysRequest) {
	if req.ProviderID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "provider_id is required"})
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid provider_id"})
		return
	}

	view, err := h.vault.GetMaskedView(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, vault.ErrProviderNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Provider not found"})
			return
		}
		h.logger.Error("get_masked action failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load key"})
		return
	}

	writeJSON(w, http.StatusOK, MaskedKeyResponse{
		Success:     true,
		MaskedKey:   view.MaskedKey,
		HasKey:      view.HasKey,
		IsEncrypted: view.IsEncrypted,
	})
}

func (h *ProviderKeyHandler) reEncryptLegacy(w http.ResponseWriter, r *http.Request, req ManageKeysRequest, actor *models.User) {
	if req.ProviderID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "provider_id is required"})
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid provider_id"})
		return
	}

	migrated, err := h.vault.MigrateLegacy(r.Context(), actor, providerID)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrNoKey):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "No API key to encrypt"})
		case errors.Is(err, vault.ErrProviderNotFound):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Provider not found"})
		default:
			h.logger.Error("re_encrypt_legacy action failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encrypt key"})
		}
		return
	}

	message := "Provider key already encrypted"
	if migrated {
		message = "Provider key encrypted"
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: message})
}

// clientIP extracts the requester IP from forwarding headers, best-effort.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (original client)
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndexByte(ip, ':'); idx >= 0 {
		return ip[:idx]
	}
	return ip
}
