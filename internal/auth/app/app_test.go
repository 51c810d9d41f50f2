package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Issuer:                   "http://localhost:8080",
		BaseURL:                  "http://localhost:8080",
		Port:                     8080,
		DatabaseFile:             filepath.Join(dir, "auth.db"),
		PepperFile:               filepath.Join(dir, "pepper"),
		Env:                      "test",
		LogLevel:                 "error",
		LogFormat:                "text",
		ShutdownGracePeriod:      time.Second,
		HousekeepingInterval:     time.Hour,
		Algorithm:                "EdDSA",
		NumKeys:                  1,
		IdentityPolicy:           "loginname",
		TokenLength:              32,
		AuthTokensEnabled:        true,
		AuthTokenValidity:        time.Hour,
		AuthTokenUpdateEnabled:   true,
		EmailTokenValidity:       time.Hour,
		EmailVerificationEnabled: true,
		ThrottlingEnabled:        true,
		SessionTTL:               time.Hour,
		OIDC:                     OIDCProviderConfig{Name: "oidc"},
		CodeValidity:             time.Minute,
		AccessTokenValidity:      time.Hour,
		RateLimits:               httpx.DefaultRateLimits(),
	}
}

func newTestApp(t *testing.T, cfg Config) *Application {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func readyz(t *testing.T, a *Application) authsdk.HealthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authsdk.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestNewWithSQLite(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	resp := readyz(t, a)
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "ok", resp.Checks.Database)
	require.Empty(t, resp.Checks.Redis)

	require.FileExists(t, cfg.PepperFile)
	require.Empty(t, a.providers)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	a := newTestApp(t, cfg)

	resp := readyz(t, a)
	require.Equal(t, "ok", resp.Checks.Redis)

	// Issued tokens now live in Redis.
	id, err := a.db.IssuedTokens().Add(context.Background(), domain.IssuedToken{
		ValueHash:   "fp",
		Purpose:     domain.PurposeAuthorizationCode,
		Scope:       "openid",
		RedirectURI: "https://app.example/cb",
		Expires:     time.Now().Add(time.Minute),
		UserID:      "user-1",
		ClientID:    "client-1",
		AuthTime:    time.Now(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NotEmpty(t, mr.Keys())
}

func TestNewRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + addr
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.OAuthStateSecret = "state-secret-0123456789"
	cfg.Google = ProviderConfig{ClientID: "g-id", ClientSecret: "g-secret"}
	cfg.Facebook = ProviderConfig{ClientID: "fb-id", ClientSecret: "fb-secret"}
	cfg.OIDC = OIDCProviderConfig{
		ProviderConfig:        ProviderConfig{ClientID: "o-id", ClientSecret: "o-secret"},
		Name:                  "corp",
		AuthorizationEndpoint: "https://op.example/authorize",
		TokenEndpoint:         "https://op.example/token",
		Scope:                 "openid email",
	}
	a := newTestApp(t, cfg)

	require.Len(t, a.providers, 3)
	require.Contains(t, a.providers, "google")
	require.Contains(t, a.providers, "facebook")
	corp := a.providers["corp"]
	require.NotNil(t, corp)
	require.Equal(t, "http://localhost:8080/v1/auth/oauth/corp/callback", corp.Config().RedirectEndpoint)
	require.Equal(t, domain.HTTPAuthorizationHeader, corp.Config().ClientSecretMethod)
}

func TestAdminCommands(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	id, err := a.AddUser(ctx, service.Registration{LoginName: "alice", Password: "correct horse battery"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = a.AddUser(ctx, service.Registration{LoginName: "alice", Password: "another good secret"})
	require.ErrorIs(t, err, service.ErrIdentityTaken)

	c, secret, err := a.AddClient(ctx, service.NewClient{
		Name:         "wiki",
		RedirectURIs: []string{"https://wiki.example/cb"},
		Confidential: true,
		AuthMethod:   domain.RequestBodyParameter,
	})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEmpty(t, c.ClientID)

	clients, err := a.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.Equal(t, "wiki", clients[0].Name)
}
