package tasks_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/internal/providers"
	"github.com/visuluxe/visuluxe/internal/tasks"
	"github.com/visuluxe/visuluxe/internal/testutil"
	"github.com/visuluxe/visuluxe/internal/vault"
	"gorm.io/gorm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTasks(t *testing.T) (*tasks.Handler, *gorm.DB, *redis.Client) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	rdb := testutil.SetupTestRedis(t)
	cipher := testutil.CreateTestCipher(t)
	vaultService := vault.NewService(db, cipher, nil, discardLogger(), 10, time.Hour)
	handler := tasks.NewHandler(db, rdb, vaultService, providers.NewClient(), discardLogger())

	return handler, db, rdb
}

func TestHandleModelCacheRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("caches the upstream catalog", func(t *testing.T) {
		handler, db, rdb := setupTasks(t)

		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer sk-legacy-123", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":[{"id":"sdxl-turbo","name":"SDXL Turbo"}]}`))
		}))
		defer upstream.Close()

		provider := &models.Provider{
			Name:       "Upstream",
			Slug:       "upstream",
			BaseURL:    upstream.URL,
			ModelsPath: "/v1/models",
			IsActive:   true,
			APIKey:     "sk-legacy-123",
		}
		require.NoError(t, db.Create(provider).Error)

		task, err := tasks.NewModelCacheRefreshTask(&provider.ID)
		require.NoError(t, err)
		require.NoError(t, handler.HandleModelCacheRefresh(ctx, task))

		cached, err := rdb.Get(ctx, "models:catalog:upstream").Result()
		require.NoError(t, err)
		assert.Contains(t, cached, "sdxl-turbo")
	})

	t.Run("skips providers without keys", func(t *testing.T) {
		handler, db, rdb := setupTasks(t)

		provider := &models.Provider{
			Name:       "Keyless",
			Slug:       "keyless",
			BaseURL:    "http://127.0.0.1:1",
			ModelsPath: "/v1/models",
			IsActive:   true,
		}
		require.NoError(t, db.Create(provider).Error)

		task, err := tasks.NewModelCacheRefreshTask(nil)
		require.NoError(t, err)

		// Keyless or unreachable providers are skipped, not fatal
		assert.NoError(t, handler.HandleModelCacheRefresh(ctx, task))

		_, err = rdb.Get(ctx, "models:catalog:keyless").Result()
		assert.ErrorIs(t, err, redis.Nil)
	})

	t.Run("ignores inactive providers", func(t *testing.T) {
		handler, db, rdb := setupTasks(t)

		provider := &models.Provider{
			Name:       "Dormant",
			Slug:       "dormant",
			BaseURL:    "http://127.0.0.1:1",
			ModelsPath: "/v1/models",
			IsActive:   false,
			APIKey:     "sk-legacy-123",
		}
		require.NoError(t, db.Create(provider).Error)

		task, err := tasks.NewModelCacheRefreshTask(nil)
		require.NoError(t, err)
		require.NoError(t, handler.HandleModelCacheRefresh(ctx, task))

		_, err = rdb.Get(ctx, "models:catalog:dormant").Result()
		assert.ErrorIs(t, err, redis.Nil)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		handler, _, _ := setupTasks(t)

		task := asynq.NewTask(tasks.TypeModelCacheRefresh, []byte("not json"))
		err := handler.HandleModelCacheRefresh(ctx, task)
		assert.Error(t, err)
	})
}

func TestHandleProfileSync(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing profiles", func(t *testing.T) {
		handler, db, _ := setupTasks(t)

		user := testutil.CreateTestUser(t, db, models.RoleMember)

		task, err := tasks.NewProfileSyncTask()
		require.NoError(t, err)
		require.NoError(t, handler.HandleProfileSync(ctx, task))

		var profile models.Profile
		require.NoError(t, db.Where("user_id = ?", user.ID).First(&profile).Error)
		assert.Equal(t, user.Name, profile.DisplayName)
		assert.Equal(t, "free", profile.Plan)
	})

	t.Run("deactivates profiles of inactive users", func(t *testing.T) {
		handler, db, _ := setupTasks(t)

		user := testutil.CreateTestUser(t, db, models.RoleMember)
		profile := models.Profile{UserID: user.ID, DisplayName: user.Name, Plan: "free", IsActive: true}
		require.NoError(t, db.Create(&profile).Error)
		require.NoError(t, db.Model(user).Update("is_active", false).Error)

		task, err := tasks.NewProfileSyncTask()
		require.NoError(t, err)
		require.NoError(t, handler.HandleProfileSync(ctx, task))

		var updated models.Profile
		require.NoError(t, db.First(&updated, profile.ID).Error)
		assert.False(t, updated.IsActive)
	})

	t.Run("is idempotent", func(t *testing.T) {
		handler, db, _ := setupTasks(t)

		user := testutil.CreateTestUser(t, db, models.RoleMember)

		task, err := tasks.NewProfileSyncTask()
		require.NoError(t, err)
		require.NoError(t, handler.HandleProfileSync(ctx, task))
		require.NoError(t, handler.HandleProfileSync(ctx, task))

		var count int64
		require.NoError(t, db.Model(&models.Profile{}).
			Where("user_id = ?", user.ID).
			Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})
}
