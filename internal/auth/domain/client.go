package domain

import "time"

// Client is a relying party registered with the identity provider.
type Client struct {
	ID           string
	ClientID     string
	Name         string
	SecretHash   string // hashed with ClientService.SecretHash
	RedirectURIs []string
	Confidential bool
	AuthMethod   ClientSecretMethod
	CreatedAt    time.Time
}
