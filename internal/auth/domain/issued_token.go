package domain

import "time"

const (
	PurposeAuthorizationCode = "authorization_code"
	PurposeAccessToken       = "access_token"
	PurposeIDToken           = "id_token"
)

// IssuedToken is a code or token handed out by the identity provider. Only
// the fingerprint of its value is stored.
type IssuedToken struct {
	ID          string
	ValueHash   string
	Purpose     string
	Scope       string
	RedirectURI string
	Expires     time.Time
	UserID      string
	ClientID    string // domain.Client.ID
	AuthTime    time.Time
}
