package handlers

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// Health is a liveness probe; it answers as long as the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the service can reach its dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	status := http.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
