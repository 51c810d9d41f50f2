package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/authkit/pkg/httpx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProviderConfig holds the client registration with an external provider.
// A provider is enabled when ClientID is set.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
}

func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

// OIDCProviderConfig describes a generic OpenID Connect provider.
type OIDCProviderConfig struct {
	ProviderConfig

	Name                  string `validate:"omitempty,alphanum"`
	Description           string
	AuthorizationEndpoint string `validate:"omitempty,url"`
	TokenEndpoint         string `validate:"omitempty,url"`
	UserInfoEndpoint      string `validate:"omitempty,url"`
	Scope                 string
}

type Config struct {
	Issuer  string `validate:"required"`          // issuer claim and base of discovery endpoints
	BaseURL string `validate:"required,http_url"` // public URL used in mailed links and OAuth callbacks
	Port    int    `validate:"min=1,max=65535"`   // HTTP server port (default: 8080)

	DatabaseFile string `validate:"required"`      // SQLite database file (default: auth.db)
	PepperFile   string `validate:"required"`      // pepper for argon2id password hashes (default: pepper)
	RedisURL     string `validate:"omitempty,url"` // optional: keep issued codes and tokens in Redis

	Env       string `validate:"required"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`

	ShutdownGracePeriod  time.Duration `validate:"gt=0"`
	HousekeepingInterval time.Duration `validate:"gt=0"`

	Algorithm string `validate:"oneof=EdDSA RS256"` // ID token signing algorithm (default: EdDSA)
	RSABits   int    `validate:"gte=0"`             // RS256 only (default: 2048)
	NumKeys   int    `validate:"min=1,max=10"`      // number of signing keys (default: 2)

	IdentityPolicy            string        `validate:"oneof=loginname email optional"`
	TokenLength               int           `validate:"min=16,max=128"`
	AuthTokensEnabled         bool
	AuthTokenValidity         time.Duration `validate:"gt=0"`
	AuthTokenUpdateEnabled    bool
	EmailTokenValidity        time.Duration `validate:"gt=0"`
	EmailVerificationEnabled  bool
	EmailVerificationRequired bool
	ThrottlingEnabled         bool

	SessionTTL    time.Duration `validate:"gt=0"`
	SecureCookies bool

	// OAuthStateSecret signs the state parameter of external logins. When
	// empty a random secret is used, so pending logins do not survive a
	// restart.
	OAuthStateSecret string `validate:"omitempty,min=16"`
	OIDC             OIDCProviderConfig
	Google           ProviderConfig
	Facebook         ProviderConfig

	CodeValidity        time.Duration `validate:"gt=0"`
	AccessTokenValidity time.Duration `validate:"gt=0"`

	RateLimits httpx.RateLimits
}

// LoadConfig reads the configuration from the environment. Variables from
// the file named by AUTH_ENV_FILE (default .env) are loaded first; the real
// environment wins over the file.
func LoadConfig() (Config, error) {
	envFile := getEnvOrDefault("AUTH_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	issuer := getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080")
	limits := httpx.DefaultRateLimits()

	cfg := Config{
		Issuer:  issuer,
		BaseURL: strings.TrimRight(getEnvOrDefault("AUTH_BASE_URL", issuer), "/"),
		Port:    getEnvIntOrDefault("PORT", 8080),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		RedisURL:     os.Getenv("AUTH_REDIS_URL"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		Algorithm: getEnvOrDefault("AUTH_ALGORITHM", "EdDSA"),
		RSABits:   getEnvIntOrDefault("AUTH_RSA_BITS", 0),
		NumKeys:   getEnvIntOrDefault("AUTH_NUM_KEYS", 2),

		IdentityPolicy:            getEnvOrDefault("AUTH_IDENTITY_POLICY", "loginname"),
		TokenLength:               getEnvIntOrDefault("AUTH_TOKEN_LENGTH", 32),
		AuthTokensEnabled:         getEnvBoolOrDefault("AUTH_TOKENS_ENABLED", true),
		AuthTokenValidity:         getEnvDurationOrDefault("AUTH_TOKEN_VALIDITY", 14*24*time.Hour),
		AuthTokenUpdateEnabled:    getEnvBoolOrDefault("AUTH_TOKEN_UPDATE_ENABLED", true),
		EmailTokenValidity:        getEnvDurationOrDefault("AUTH_EMAIL_TOKEN_VALIDITY", 3*24*time.Hour),
		EmailVerificationEnabled:  getEnvBoolOrDefault("AUTH_EMAIL_VERIFICATION_ENABLED", false),
		EmailVerificationRequired: getEnvBoolOrDefault("AUTH_EMAIL_VERIFICATION_REQUIRED", false),
		ThrottlingEnabled:         getEnvBoolOrDefault("AUTH_THROTTLING_ENABLED", true),

		SessionTTL:    getEnvDurationOrDefault("AUTH_SESSION_TTL", 24*time.Hour),
		SecureCookies: getEnvBoolOrDefault("AUTH_SECURE_COOKIES", false),

		OAuthStateSecret: os.Getenv("AUTH_OAUTH_STATE_SECRET"),
		OIDC: OIDCProviderConfig{
			ProviderConfig: ProviderConfig{
				ClientID:     os.Getenv("AUTH_OIDC_CLIENT_ID"),
				ClientSecret: os.Getenv("AUTH_OIDC_CLIENT_SECRET"),
			},
			Name:                  getEnvOrDefault("AUTH_OIDC_NAME", "oidc"),
			Description:           getEnvOrDefault("AUTH_OIDC_DESCRIPTION", "OpenID Connect"),
			AuthorizationEndpoint: os.Getenv("AUTH_OIDC_AUTHORIZATION_ENDPOINT"),
			TokenEndpoint:         os.Getenv("AUTH_OIDC_TOKEN_ENDPOINT"),
			UserInfoEndpoint:      os.Getenv("AUTH_OIDC_USERINFO_ENDPOINT"),
			Scope:                 getEnvOrDefault("AUTH_OIDC_SCOPE", "openid profile email"),
		},
		Google: ProviderConfig{
			ClientID:     os.Getenv("AUTH_GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("AUTH_GOOGLE_CLIENT_SECRET"),
		},
		Facebook: ProviderConfig{
			ClientID:     os.Getenv("AUTH_FACEBOOK_APP_ID"),
			ClientSecret: os.Getenv("AUTH_FACEBOOK_APP_SECRET"),
		},

		CodeValidity:        getEnvDurationOrDefault("AUTH_CODE_VALIDITY", 600*time.Second),
		AccessTokenValidity: getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_VALIDITY", 3600*time.Second),

		RateLimits: httpx.RateLimits{
			Strict:   httpx.ParseRateLimit("STRICT", limits.Strict, os.Getenv),
			Moderate: httpx.ParseRateLimit("MODERATE", limits.Moderate, os.Getenv),
			Public:   httpx.ParseRateLimit("PUBLIC", limits.Public, os.Getenv),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the struct tags and the settings that depend on each
// other.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.EmailVerificationRequired && !c.EmailVerificationEnabled {
		return errors.New("config: AUTH_EMAIL_VERIFICATION_REQUIRED needs AUTH_EMAIL_VERIFICATION_ENABLED")
	}
	if c.OIDC.Enabled() && (c.OIDC.AuthorizationEndpoint == "" || c.OIDC.TokenEndpoint == "") {
		return errors.New("config: the OIDC provider needs authorization and token endpoints")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
