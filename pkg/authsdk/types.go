package authsdk

import "github.com/aussiebroadwan/authkit/pkg/jwtx"

// ErrorResponse is the JSON body of an RFC 6749 error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Identity provider
// ============================================================================

// TokenResponse is returned by POST /v1/oauth2/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"Bearer"`
	ExpiresIn   int    `json:"expires_in" example:"3600"`

	// IDToken is present when the granted scope contains "openid".
	IDToken string `json:"id_token,omitempty"`
}

// UserInfoResponse is returned by /v1/oauth2/userinfo. Only claims covered by
// the token's scope are set.
type UserInfoResponse struct {
	Sub           string `json:"sub"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

// DiscoveryResponse is the OpenID provider metadata document.
type DiscoveryResponse struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
}

type JWKSResponse jwtx.JWKS

// ============================================================================
// Account endpoints
// ============================================================================

// SessionResponse describes the login state of the caller's session.
type SessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	State    string `json:"state" example:"strong"`
	UserID   string `json:"user_id,omitempty"`
}

// EmailTokenResponse is returned when a mailed link is followed.
type EmailTokenResponse struct {
	State  string `json:"state" example:"email_confirmed"`
	UserID string `json:"user_id,omitempty"`
}

// MFAEnrollResponse carries a fresh TOTP secret. It is only active once a
// code generated from it has been confirmed.
type MFAEnrollResponse struct {
	Secret string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	URL    string `json:"url" example:"otpauth://totp/authkit:alice?secret=JBSWY3DPEHPK3PXP&issuer=authkit"`
}

// MFACodeRequest carries a code from the user's authenticator app.
type MFACodeRequest struct {
	Code string `json:"code" example:"123456"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	Redis    string `json:"redis,omitempty"`
}
