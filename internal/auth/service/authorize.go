package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	DefaultCodeTTL = 600 * time.Second

	// issuedValueLength is the number of random characters in codes and
	// access tokens.
	issuedValueLength = 32
)

// AuthorizeService issues authorization codes to logged in users.
type AuthorizeService struct {
	Store   store.Store
	CodeTTL time.Duration
	Metrics *metrics.Metrics
}

// AuthorizeRequest holds the query parameters of an authorization request.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Prompt       string
}

// Authorize returns the URL to redirect the browser to, carrying either a
// code or an error. ErrUnauthorizedRedirect means the client or redirect_uri
// is unknown and nothing may be sent to it. ErrLoginRequired means the user
// must log in first and then retry.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest, login *Login) (string, error) {
	l := slogx.FromContext(ctx).With("client_id", req.ClientID)

	if req.RedirectURI == "" || req.ClientID == "" {
		l.Warn("authorize: missing client_id or redirect_uri")
		return "", ErrUnauthorizedRedirect
	}

	clientRowID, err := s.Store.Clients().FindWithClientID(ctx, req.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		l.Warn("authorize: unknown client")
		return "", ErrUnauthorizedRedirect
	}
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	client := NewOAuthClient(s.Store, clientRowID)

	uris, err := client.RedirectURIs(ctx)
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	if !slices.Contains(uris, req.RedirectURI) {
		l.Warn("authorize: redirect_uri not registered", "redirect_uri", req.RedirectURI)
		return "", ErrUnauthorizedRedirect
	}

	if req.Scope == "" || req.ResponseType != "code" {
		l.Info("authorize: invalid request", "response_type", req.ResponseType)
		return errorRedirect(req, ErrInvalidRequest), nil
	}

	if login == nil || !login.LoggedIn() {
		if req.Prompt == "none" {
			return errorRedirect(req, ErrLoginRequired), nil
		}
		return "", ErrLoginRequired
	}

	u := login.User().In(s.Store)
	authTime, err := u.LastLoginAttempt(ctx)
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	if authTime.IsZero() {
		authTime = time.Now()
	}

	code, err := cryptox.RandomID(issuedValueLength)
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	_, err = s.Store.IssuedTokens().Add(ctx, domain.IssuedToken{
		ValueHash:   cryptox.FingerprintToken(code),
		Purpose:     domain.PurposeAuthorizationCode,
		Scope:       req.Scope,
		RedirectURI: req.RedirectURI,
		Expires:     time.Now().Add(s.codeTTL()),
		UserID:      u.ID(),
		ClientID:    clientRowID,
		AuthTime:    authTime,
	})
	if err != nil {
		return "", fmt.Errorf("authorize: store code: %w", err)
	}
	s.Metrics.TokenIssued(domain.PurposeAuthorizationCode)
	l.Info("authorization code issued", "user_id", u.ID())

	return redirectWith(req, url.Values{"code": {code}}), nil
}

func (s *AuthorizeService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

func errorRedirect(req AuthorizeRequest, err error) string {
	return redirectWith(req, url.Values{"error": {err.Error()}})
}

func redirectWith(req AuthorizeRequest, params url.Values) string {
	if req.State != "" {
		params.Set("state", req.State)
	}
	return httpx.AppendQuery(req.RedirectURI, params)
}
