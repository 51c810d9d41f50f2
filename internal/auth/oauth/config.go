package oauth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
)

const (
	DefaultHTTPTimeout     = 15 * time.Second
	DefaultRedirectTimeout = 600 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes one external authorization server.
type Config struct {
	// Name identifies the provider in identities and URLs, e.g. "google".
	Name        string `validate:"required,alphanum"`
	Description string

	AuthorizationEndpoint string `validate:"required,url"`
	TokenEndpoint         string `validate:"required,url"`
	UserInfoEndpoint      string `validate:"omitempty,url"`

	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`

	// RedirectEndpoint is our callback URL as registered with the provider.
	RedirectEndpoint string `validate:"required,url"`

	// Scope requested by NewProcess when none is given.
	Scope string

	// ClientSecretMethod and TokenRequestMethod are dictated by the provider.
	ClientSecretMethod domain.ClientSecretMethod
	TokenRequestMethod string `validate:"oneof=GET POST"`

	HTTPTimeout     time.Duration `validate:"gte=0"`
	RedirectTimeout time.Duration `validate:"gte=0"`

	// StateSecret keys the HMAC protecting the state parameter.
	StateSecret string `validate:"required,min=16"`
}

func (c *Config) setDefaults() {
	if c.TokenRequestMethod == "" {
		c.TokenRequestMethod = http.MethodPost
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.RedirectTimeout == 0 {
		c.RedirectTimeout = DefaultRedirectTimeout
	}
}

// Validate applies defaults and checks the configuration.
func (c *Config) Validate() error {
	c.setDefaults()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("oauth provider %q: %w", c.Name, err)
	}
	return nil
}

// GoogleConfig presets the Google endpoints.
func GoogleConfig(clientID, clientSecret, redirect, stateSecret string) Config {
	return Config{
		Name:                  "google",
		Description:           "Google Account",
		AuthorizationEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:         "https://oauth2.googleapis.com/token",
		UserInfoEndpoint:      "https://openidconnect.googleapis.com/v1/userinfo",
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		RedirectEndpoint:      redirect,
		Scope:                 "openid profile email",
		ClientSecretMethod:    domain.RequestBodyParameter,
		TokenRequestMethod:    http.MethodPost,
		StateSecret:           stateSecret,
	}
}

// FacebookConfig presets the Facebook endpoints. Facebook wants the secret
// in the URL of a GET token request.
func FacebookConfig(appID, appSecret, redirect, stateSecret string) Config {
	return Config{
		Name:                  "facebook",
		Description:           "Facebook Account",
		AuthorizationEndpoint: "https://www.facebook.com/dialog/oauth",
		TokenEndpoint:         "https://graph.facebook.com/oauth/access_token",
		UserInfoEndpoint:      "https://graph.facebook.com/me?fields=name,id,email,verified",
		ClientID:              appID,
		ClientSecret:          appSecret,
		RedirectEndpoint:      redirect,
		Scope:                 "email",
		ClientSecretMethod:    domain.PlainURLParameter,
		TokenRequestMethod:    http.MethodGet,
		StateSecret:           stateSecret,
	}
}
