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
	"github.com/visuluxe/visuluxe/internal/api/dto"
	"github.com/visuluxe/visuluxe/internal/api/handlers"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/auth"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/internal/testutil"
	"github.com/visuluxe/visuluxe/internal/vault"
	"github.com/visuluxe/visuluxe/pkg/crypto"
)

type providersFixture struct {
	tc     *testutil.TestSetup
	cipher *crypto.Cipher
	router *chi.Mux
}

func setupProvidersRouter(t *testing.T) *providersFixture {
	t.Helper()

	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cipher := testutil.CreateTestCipher(t)
	authService := auth.NewService(tc.DB, tc.JWTService)
	vaultService := vault.NewService(tc.DB, cipher, authService, logger, 10, time.Hour)
	handler := handlers.NewProviderHandler(tc.DB, vaultService, nil, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Use(middleware.RequireAdmin)
		r.Get("/api/v1/providers", handler.List)
		r.Post("/api/v1/providers", handler.Create)
		r.Get("/api/v1/providers/{id}", handler.Get)
		r.Patch("/api/v1/providers/{id}", handler.Update)
		r.Delete("/api/v1/providers/{id}", handler.Delete)
	})

	return &providersFixture{tc: tc, cipher: cipher, router: r}
}

func TestProviderHandler_Create(t *testing.T) {
	f := setupProvidersRouter(t)

	t.Run("encrypts the key at rest", func(t *testing.T) {
		body := map[string]string{
			"name":     "Stability AI",
			"slug":     "stability",
			"base_url": "https://api.stability.ai",
			"api_key":  "sk-live-abcd1234",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/providers", body, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.ProviderDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.HasKey)
		assert.True(t, resp.IsEncrypted)
		require.NotNil(t, resp.MaskedKey)
		assert.Equal(t, "••••••••1234", *resp.MaskedKey)

		// The stored value must not be the plaintext
		var stored models.Provider
		require.NoError(t, f.tc.DB.Where("slug = ?", "stability").First(&stored).Error)
		assert.NotEqual(t, "sk-live-abcd1234", stored.APIKey)
		require.NotNil(t, stored.KeyEncryptedAt)

		plain, err := f.cipher.Decrypt(stored.APIKey)
		require.NoError(t, err)
		assert.Equal(t, "sk-live-abcd1234", plain)
	})

	t.Run("creates without a key", func(t *testing.T) {
		body := map[string]string{
			"name":     "Flux",
			"slug":     "flux",
			"base_url": "https://api.flux.example.com",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/providers", body, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.ProviderDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.False(t, resp.HasKey)
		assert.Nil(t, resp.MaskedKey)
	})

	t.Run("rejects invalid slugs", func(t *testing.T) {
		body := map[string]string{
			"name":     "Bad Slug",
			"slug":     "Bad Slug!",
			"base_url": "https://api.example.com",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/providers", body, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects duplicate slugs", func(t *testing.T) {
		body := map[string]string{
			"name":     "First",
			"slug":     "duped",
			"base_url": "https://api.example.com",
		}

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/providers", body, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)

		req = testutil.AuthenticatedRequest(t, "POST", "/api/v1/providers", body, f.tc.Token)
		rr = httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestProviderHandler_List(t *testing.T) {
	f := setupProvidersRouter(t)

	testutil.CreateTestProvider(t, f.tc.DB, "Legacy", "sk-legacy-123", nil)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/providers", nil, f.tc.Token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp []dto.ProviderDTO
	testutil.ParseJSONResponse(t, rr, &resp)
	require.Len(t, resp, 1)
	assert.True(t, resp[0].HasKey)
	assert.False(t, resp[0].IsEncrypted)
	require.NotNil(t, resp[0].MaskedKey)
	assert.Equal(t, "••••••••-123", *resp[0].MaskedKey)

	// The raw key never appears in the response
	assert.NotContains(t, rr.Body.String(), "sk-legacy-123")
}

func TestProviderHandler_Get(t *testing.T) {
	f := setupProvidersRouter(t)

	p := testutil.CreateTestProvider(t, f.tc.DB, "Target", "sk-legacy-123", nil)

	t.Run("returns the masked provider", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/providers/"+p.ID.String(), nil, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ProviderDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, p.ID.String(), resp.ID)
		assert.NotContains(t, rr.Body.String(), "sk-legacy-123")
	})

	t.Run("unknown provider", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/providers/11111111-2222-3333-4444-555555555555", nil, f.tc.Token)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestProviderHandler_Delete(t *testing.T) {
	f := setupProvidersRouter(t)

	p := testutil.CreateTestProvider(t, f.tc.DB, "Doomed", "", nil)

	req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/providers/"+p.ID.String(), nil, f.tc.Token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/providers/"+p.ID.String(), nil, f.tc.Token)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
