package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewatch/pkg/middleware"
	"tradewatch/pkg/response"
)

func TestGenerateTokenRoundTrip(t *testing.T) {
	service := NewService("signing-secret", "my-key", "my-secret", time.Hour)

	token, err := service.GenerateToken(Credentials{APIKey: "my-key", APISecret: "my-secret"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiration, 5*time.Second)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "my-key", claims.ClientID)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	service := NewService("signing-secret", "my-key", "my-secret", time.Hour)

	for name, creds := range map[string]Credentials{
		"wrong key":    {APIKey: "other-key", APISecret: "my-secret"},
		"wrong secret": {APIKey: "my-key", APISecret: "guess"},
		"empty":        {},
	} {
		_, err := service.GenerateToken(creds)
		assert.ErrorIs(t, err, ErrInvalidCredentials, name)
	}
}

func TestUnconfiguredCredentialsRejectEverything(t *testing.T) {
	service := NewService("signing-secret", "", "", time.Hour)

	_, err := service.GenerateToken(Credentials{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := NewService("secret-a", "my-key", "my-secret", time.Hour)
	verifier := NewService("secret-b", "my-key", "my-secret", time.Hour)

	token, err := issuer.GenerateToken(Credentials{APIKey: "my-key", APISecret: "my-secret"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token.Token)
	assert.Error(t, err)
}

func setupAuthAPI(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := NewService("signing-secret", "my-key", "my-secret", time.Hour)
	h := NewGinHandlers(service)

	router := gin.New()
	router.POST("/api/v1/auth/token", h.GenerateTokenHandler())

	protected := router.Group("/api/v1", middleware.JWTAuth([]byte("signing-secret")))
	protected.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"pong": true})
	})
	return router, service
}

func TestTokenEndpoint(t *testing.T) {
	router, _ := setupAuthAPI(t)

	body, _ := json.Marshal(Credentials{APIKey: "my-key", APISecret: "my-secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Success bool          `json:"success"`
		Data    TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, envelope.Data.Token)

	body, _ = json.Marshal(Credentials{APIKey: "my-key", APISecret: "nope"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssuedTokenPassesMiddleware(t *testing.T) {
	router, service := setupAuthAPI(t)

	token, err := service.GenerateToken(Credentials{APIKey: "my-key", APISecret: "my-secret"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
