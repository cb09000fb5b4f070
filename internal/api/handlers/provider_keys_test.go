package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visuluxe/visuluxe/internal/api/handlers"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/auth"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/internal/testutil"
	"github.com/visuluxe/visuluxe/internal/vault"
	"github.com/visuluxe/visuluxe/pkg/crypto"
)

type keysFixture struct {
	tc     *testutil.TestSetup
	cipher *crypto.Cipher
	vault  *vault.Service
	router *chi.Mux
}

func setupKeysRouter(t *testing.T) *keysFixture {
	t.Helper()

	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cipher := testutil.CreateTestCipher(t)
	authService := auth.NewService(tc.DB, tc.JWTService)
	vaultService := vault.NewService(tc.DB, cipher, authService, logger, 10, time.Hour)
	handler := handlers.NewProviderKeyHandler(vaultService, authService, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Use(middleware.RequireAdmin)
		r.Post("/api/v1/provider-keys", handler.Manage)
	})

	return &keysFixture{tc: tc, cipher: cipher, vault: vaultService, router: r}
}

func (f *keysFixture) do(t *testing.T, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/provider-keys", body, token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestProviderKeyHandler_Access(t *testing.T) {
	f := setupKeysRouter(t)

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		rr := f.do(t, map[string]string{"action": "encrypt", "api_key": "sk-live-abcd1234"}, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("rejects members", func(t *testing.T) {
		member := testutil.CreateTestUser(t, f.tc.DB, models.RoleMember)
		token := testutil.GenerateTestToken(t, f.tc.JWTService, member)

		rr := f.do(t, map[string]string{"action": "encrypt", "api_key": "sk-live-abcd1234"}, token)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("allows owners", func(t *testing.T) {
		owner := testutil.CreateTestUser(t, f.tc.DB, models.RoleOwner)
		token := testutil.GenerateTestToken(t, f.tc.JWTService, owner)

		rr := f.do(t, map[string]string{"action": "encrypt", "api_key": "sk-live-abcd1234"}, token)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("rejects unknown actions", func(t *testing.T) {
		rr := f.do(t, map[string]string{"action": "export"}, f.tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "valid actions")
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/provider-keys", nil, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestProviderKeyHandler_Encrypt(t *testing.T) {
	f := setupKeysRouter(t)

	t.Run("returns blob and mask", func(t *testing.T) {
		rr := f.do(t, map[string]string{"action": "encrypt", "api_key": "sk-live-abcd1234"}, f.tc.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp handlers.EncryptKeyResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "••••••••1234", resp.MaskedKey)

		plain, err := f.cipher.Decrypt(resp.EncryptedKey)
		require.NoError(t, err)
		assert.Equal(t, "sk-live-abcd1234", plain)
	})

	t.Run("requires api_key", func(t *testing.T) {
		rr := f.do(t, map[string]string{"action": "encrypt"}, f.tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects implausible keys", func(t *testing.T) {
		rr := f.do(t, map[string]string{"action": "encrypt", "api_key": "short"}, f.tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestProviderKeyHandler_GetMasked(t *testing.T) {
	f := setupKeysRouter(t)

	t.Run("legacy key", func(t *testing.T) {
		p := testutil.CreateTestProvider(t, f.tc.DB, "Legacy", "sk-legacy-123", nil)

		rr := f.do(t, map[string]string{"action": "get_masked", "provider_id": p.ID.String()}, f.tc.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp handlers.MaskedKeyResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.HasKey)
		assert.False(t, resp.IsEncrypted)
		require.NotNil(t, resp.MaskedKey)
		assert.Equal(t, "••••••••-123", *resp.MaskedKey)
	})

	t.Run("encrypted key", func(t *testing.T) {
		blob, err := f.cipher.Encrypt("sk-live-abcd1234")
		require.NoError(t, err)
		now := time.Now()
		p := testutil.CreateTestProvider(t, f.tc.DB, "Encrypted", blob, &now)

		rr := f.do(t, map[string]string{"action": "get_masked", "provider_id": p.ID.String()}, f.tc.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp handlers.MaskedKeyResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.HasKey)
		assert.True(t, resp.IsEncrypted)
		require.NotNil(t, resp.MaskedKey)
		assert.Equal(t, "••••••••1234", *resp.MaskedKey)
	})

	t.Run("requires provider_id", func(t *testing.T) {
		rr := f.do(t, map[string]string{"action": "get_masked"}, f.tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown provider", func(t *testing.T) {
		rr := f.do(t, map[string]string{
			"action":      "get_masked",
			"provider_id": "11111111-2222-3333-4444-555555555555",
		}, f.tc.Token)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestProviderKeyHandler_Decrypt(t *testing.T) {
	f := setupKeysRouter(t)

	newEncryptedProvider := func(t *testing.T) *models.Provider {
		t.Helper()
		blob, err := f.cipher.Encrypt("sk-live-abcd1234")
		require.NoError(t, err)
		now := time.Now()
		return testutil.CreateTestProvider(t, f.tc.DB, "Encrypted", blob, &now)
	}

	t.Run("reveals the key with the correct password", func(t *testing.T) {
		p := newEncryptedProvider(t)

		rr := f.do(t, map[string]string{
			"action":      "decrypt",
			"provider_id": p.ID.String(),
			"password":    testutil.TestPassword,
		}, f.tc.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp handlers.DecryptKeyResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "sk-live-abcd1234", resp.APIKey)
		assert.Equal(t, "••••••••1234", resp.MaskedKey)
	})

	t.Run("wrong password yields 401", func(t *testing.T) {
		p := newEncryptedProvider(t)

		rr := f.do(t, map[string]string{
			"action":      "decrypt",
			"provider_id": p.ID.String(),
			"password":    "wrong-password",
		}, f.tc.Token)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing password yields 400", func(t *testing.T) {
		p := newEncryptedProvider(t)

		rr := f.do(t, map[string]string{
			"action":      "decrypt",
			"provider_id": p.ID.String(),
		}, f.tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rate limit yields 429", func(t *testing.T) {
		p := newEncryptedProvider(t)

		actor := testutil.CreateTestUser(t, f.tc.DB, models.RoleAdmin)
		token := testutil.GenerateTestToken(t, f.tc.JWTService, actor)
		for i := 0; i < 10; i++ {
			log := models.AuditLog{ActorID: actor.ID, Action: models.AuditKeyDecrypted, Details: "{}"}
			require.NoError(t, f.tc.DB.Create(&log).Error)
		}

		rr := f.do(t, map[string]string{
			"action":      "decrypt",
			"provider_id": p.ID.String(),
			"password":    testutil.TestPassword,
		}, token)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Contains(t, rr.Body.String(), "limit")
	})

	t.Run("provider without key yields 404", func(t *testing.T) {
		p := testutil.CreateTestProvider(t, f.tc.DB, "Empty", "", nil)

		rr := f.do(t, map[string]string{
			"action":      "decrypt",
			"provider_id": p.ID.String(),
			"password":    testutil.TestPassword,
		}, f.tc.Token)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("corrupt blob yields 500", func(t *testing.T) {
		now := time.Now()
		p := testutil.CreateTestProvider(t, f.tc.DB, "Corrupt", "not-a-valid-blob", &now)

		rr := f.do(t, map[string]string{
			"action":      "decrypt",
			"provider_id": p.ID.String(),
			"password":    testutil.TestPassword,
		}, f.tc.Token)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestProviderKeyHandler_ReEncryptLegacy(t *testing.T) {
	f := setupKeysRouter(t)

	t.Run("migrates a legacy key", func(t *testing.T) {
		p := testutil.CreateTestProvider(t, f.tc.DB, "Legacy", "sk-legacy-123", nil)

		rr := f.do(t, map[string]string{
			"action":      "re_encrypt_legacy",
			"provider_id": p.ID.String(),
		}, f.tc.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var updated models.Provider
		require.NoError(t, f.tc.DB.First(&updated, p.ID).Error)
		assert.NotEqual(t, "sk-legacy-123", updated.APIKey)
		assert.NotNil(t, updated.KeyEncryptedAt)
	})

	t.Run("already encrypted is a successful no-op", func(t *testing.T) {
		blob, err := f.cipher.Encrypt("sk-live-abcd1234")
		require.NoError(t, err)
		now := time.Now()
		p := testutil.CreateTestProvider(t, f.tc.DB, "Encrypted", blob, &now)

		rr := f.do(t, map[string]string{
			"action":      "re_encrypt_legacy",
			"provider_id": p.ID.String(),
		}, f.tc.Token)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "already encrypted")
	})

	t.Run("no key yields 400", func(t *testing.T) {
		p := testutil.CreateTestProvider(t, f.tc.DB, "Empty", "", nil)

		rr := f.do(t, map[string]string{
			"action":      "re_encrypt_legacy",
			"provider_id": p.ID.String(),
		}, f.tc.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestProviderKeyHandler_NotConfigured(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authService := auth.NewService(tc.DB, tc.JWTService)
	vaultService := vault.NewService(tc.DB, nil, authService, logger, 10, time.Hour)
	handler := handlers.NewProviderKeyHandler(vaultService, authService, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Use(middleware.RequireAdmin)
		r.Post("/api/v1/provider-keys", handler.Manage)
	})

	req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/provider-keys",
		map[string]string{"action": "encrypt", "api_key": "sk-live-abcd1234"}, tc.Token)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Encryption key not configured")
}
