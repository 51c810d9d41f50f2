package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	unsetEnv(t, "AUTH_ISSUER", "AUTH_BASE_URL", "PORT", "AUTH_IDENTITY_POLICY", "LOG_LEVEL", "LOG_FORMAT",
		"AUTH_OIDC_CLIENT_ID", "AUTH_EMAIL_VERIFICATION_REQUIRED", "AUTH_ALGORITHM", "AUTH_NUM_KEYS")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.Issuer)
	require.Equal(t, cfg.Issuer, cfg.BaseURL)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "EdDSA", cfg.Algorithm)
	require.Equal(t, "loginname", cfg.IdentityPolicy)
	require.True(t, cfg.AuthTokensEnabled)
	require.True(t, cfg.ThrottlingEnabled)
	require.Equal(t, 600*time.Second, cfg.CodeValidity)
	require.Equal(t, 5, cfg.RateLimits.Strict.Requests)
	require.False(t, cfg.Google.Enabled())
}

func TestLoadConfigEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"AUTH_ISSUER=https://id.example\n"+
			"AUTH_IDENTITY_POLICY=email\n"+
			"AUTH_TOKEN_VALIDITY=48h\n"+
			"AUTH_EMAIL_TOKEN_VALIDITY=3600\n"+
			"AUTH_GOOGLE_CLIENT_ID=google-client\n"+
			"PORT=9000\n",
	), 0o600))

	t.Setenv("AUTH_ENV_FILE", path)
	unsetEnv(t, "AUTH_ISSUER", "AUTH_BASE_URL", "AUTH_IDENTITY_POLICY", "AUTH_TOKEN_VALIDITY",
		"AUTH_EMAIL_TOKEN_VALIDITY", "AUTH_GOOGLE_CLIENT_ID")
	// The real environment wins over the file.
	t.Setenv("PORT", "9100")
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://id.example", cfg.Issuer)
	require.Equal(t, "https://id.example", cfg.BaseURL)
	require.Equal(t, "email", cfg.IdentityPolicy)
	require.Equal(t, 48*time.Hour, cfg.AuthTokenValidity)
	require.Equal(t, time.Hour, cfg.EmailTokenValidity)
	require.Equal(t, 9100, cfg.Port)
	require.Equal(t, 7, cfg.RateLimits.Strict.Requests)
	require.True(t, cfg.Google.Enabled())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "bad policy", mutate: func(c *Config) { c.IdentityPolicy = "nickname" }, wantErr: true},
		{name: "bad algorithm", mutate: func(c *Config) { c.Algorithm = "HS256" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "short state secret", mutate: func(c *Config) { c.OAuthStateSecret = "short" }, wantErr: true},
		{name: "zero code validity", mutate: func(c *Config) { c.CodeValidity = 0 }, wantErr: true},
		{
			name: "verification required without verification",
			mutate: func(c *Config) {
				c.EmailVerificationEnabled = false
				c.EmailVerificationRequired = true
			},
			wantErr: true,
		},
		{
			name: "oidc without endpoints",
			mutate: func(c *Config) {
				c.OIDC.ClientID = "client"
				c.OIDC.TokenEndpoint = ""
			},
			wantErr: true,
		},
		{
			name: "oidc with endpoints",
			mutate: func(c *Config) {
				c.OIDC.ClientID = "client"
				c.OIDC.AuthorizationEndpoint = "https://op.example/authorize"
				c.OIDC.TokenEndpoint = "https://op.example/token"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("AUTHKIT_TEST_DURATION", "90")
	t.Setenv("AUTHKIT_TEST_BOOL", "false")
	t.Setenv("AUTHKIT_TEST_INT", "nope")

	require.Equal(t, 90*time.Second, getEnvDurationOrDefault("AUTHKIT_TEST_DURATION", time.Minute))
	require.False(t, getEnvBoolOrDefault("AUTHKIT_TEST_BOOL", true))
	require.Equal(t, 3, getEnvIntOrDefault("AUTHKIT_TEST_INT", 3))
	require.Equal(t, "fallback", getEnvOrDefault("AUTHKIT_TEST_UNSET", "fallback"))
}
