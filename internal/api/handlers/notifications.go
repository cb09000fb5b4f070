package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/visuluxe/visuluxe/internal/api/dto"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewNotificationHandler(db *gorm.DB, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{db: db, logger: logger}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	params := dto.PaginationParams{
		Page:    intQuery(r, "page", 1),
		PerPage: intQuery(r, "per_page", 20),
	}
	params.Normalize()

	var total int64
	query := h.db.WithContext(r.Context()).
		Model(&models.Notification{}).
		Where("user_id = ?", userID)

	if r.URL.Query().Get("unread") == "true" {
		query = query.Where("read_at IS NULL")
	}

	if err := query.Count(&total).Error; err != nil {
		h.logger.Error("failed to count notifications", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list notifications"})
		return
	}

	var notifications []models.Notification
	if err := query.
		Order("created_at desc").
		Limit(params.PerPage).
		Offset(params.Offset()).
		Find(&notifications).Error; err != nil {
		h.logger.Error("failed to list notifications", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list notifications"})
		return
	}

	totalPages := int((total + int64(params.PerPage) - 1) / int64(params.PerPage))
	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       notifications,
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
	})
}

// MarkRead marks a single notification as read. Marking twice is a no-op.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid notification ID"})
		return
	}

	var notification models.Notification
	if err := h.db.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Notification not found"})
			return
		}
		h.logger.Error("failed to load notification", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load notification"})
		return
	}

	if notification.ReadAt == nil {
		now := time.Now()
		if err := h.db.WithContext(r.Context()).
			Model(&notification).
			Update("read_at", now).Error; err != nil {
			h.logger.Error("failed to mark notification read", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update notification"})
			return
		}
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "Notification marked as read"})
}

// MarkAllRead marks every unread notification for the caller.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	now := time.Now()
	if err := h.db.WithContext(r.Context()).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", now).Error; err != nil {
		h.logger.Error("failed to mark notifications read", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update notifications"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "All notifications marked as read"})
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
		if n > 1_000_000 {
			return fallback
		}
	}
	return n
}
