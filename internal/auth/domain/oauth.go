package domain

import (
	"fmt"
	"time"
)

// OAuthAccessToken is what a provider's token endpoint returned. An empty
// AccessToken marks the invalid token. Expires is zero when unknown.
type OAuthAccessToken struct {
	AccessToken  string
	Expires      time.Time
	RefreshToken string
	IDToken      string
}

func (t OAuthAccessToken) Valid() bool { return t.AccessToken != "" }

// ClientSecretMethod is how a client authenticates at a token endpoint.
type ClientSecretMethod int

const (
	HTTPAuthorizationHeader ClientSecretMethod = iota
	PlainURLParameter
	RequestBodyParameter
)

func (m ClientSecretMethod) String() string {
	switch m {
	case PlainURLParameter:
		return "client_secret_url"
	case RequestBodyParameter:
		return "client_secret_post"
	default:
		return "client_secret_basic"
	}
}

func ParseClientSecretMethod(s string) (ClientSecretMethod, error) {
	switch s {
	case "client_secret_basic", "basic":
		return HTTPAuthorizationHeader, nil
	case "client_secret_url", "url":
		return PlainURLParameter, nil
	case "client_secret_post", "post":
		return RequestBodyParameter, nil
	}
	return 0, fmt.Errorf("unknown client secret method %q", s)
}
