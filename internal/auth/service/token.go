package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const DefaultAccessTTL = 3600 * time.Second

// ChallengeError is an invalid_client failure for a request that sent an
// Authorization header. Scheme goes into the WWW-Authenticate response.
type ChallengeError struct {
	Scheme string
}

func (e *ChallengeError) Error() string { return ErrInvalidClient.Error() }
func (e *ChallengeError) Unwrap() error { return ErrInvalidClient }

// TokenRequest holds the parameters of a token endpoint request. When
// Authorization carries Basic credentials ClientID and ClientSecret are
// ignored.
type TokenRequest struct {
	GrantType   string
	Code        string
	RedirectURI string

	Authorization string

	ClientID     string
	ClientSecret string

	// ParamMethod tells whether ClientID and ClientSecret came from the URL
	// or the body.
	ParamMethod domain.ClientSecretMethod
}

type TokenService struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager
	Issuer     string
	AccessTTL  time.Duration
	IDTokenTTL time.Duration

	// SecretHash verifies client secrets.
	SecretHash cryptox.HashFunction

	Metrics *metrics.Metrics
}

// Exchange redeems an authorization code for an access token, and an ID
// token when the scope includes openid. The code is consumed in the same
// transaction that mints the access token.
func (s *TokenService) Exchange(ctx context.Context, req TokenRequest) (*authsdk.TokenResponse, error) {
	l := slogx.FromContext(ctx)

	clientID, secret, method, err := clientCredentials(req)
	if err != nil {
		return nil, err
	}
	if req.Code == "" || clientID == "" || secret == "" || req.GrantType == "" || req.RedirectURI == "" {
		l.Info("token: missing parameter", "client_id", clientID)
		return nil, ErrInvalidRequest
	}

	client, err := s.authenticateClient(ctx, clientID, secret, method)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) && req.Authorization != "" {
			return nil, &ChallengeError{Scheme: s.challengeScheme(ctx, clientID)}
		}
		return nil, err
	}

	if req.GrantType != "authorization_code" {
		return nil, ErrUnsupportedGrantType
	}

	access, err := cryptox.RandomID(issuedValueLength)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	now := time.Now()
	var userID, scope string
	var authTime time.Time
	rejected := false
	err = withTx(ctx, s.Store, func(tx store.Store) error {
		// Taking the code removes it, so a replayed or concurrent request
		// finds nothing even when the issued tokens live outside tx.
		code, err := tx.IssuedTokens().Take(ctx, domain.PurposeAuthorizationCode, cryptox.FingerprintToken(req.Code))
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidGrant
		}
		if err != nil {
			return err
		}

		if code.RedirectURI != req.RedirectURI || now.After(code.Expires) || code.ClientID != client.ID() {
			l.Info("token: code rejected",
				"client_id", clientID,
				"redirect_match", code.RedirectURI == req.RedirectURI,
				"expired", now.After(code.Expires),
			)
			// Commit so a misused code stays consumed.
			rejected = true
			return nil
		}

		userID = code.UserID
		scope = code.Scope
		authTime = code.AuthTime

		_, err = tx.IssuedTokens().Add(ctx, domain.IssuedToken{
			ValueHash:   cryptox.FingerprintToken(access),
			Purpose:     domain.PurposeAccessToken,
			Scope:       scope,
			RedirectURI: code.RedirectURI,
			Expires:     now.Add(s.accessTTL()),
			UserID:      userID,
			ClientID:    client.ID(),
			AuthTime:    authTime,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			return nil, err
		}
		return nil, fmt.Errorf("token: %w", err)
	}
	if rejected {
		return nil, ErrInvalidGrant
	}
	s.Metrics.TokenIssued(domain.PurposeAccessToken)

	resp := &authsdk.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.accessTTL() / time.Second),
	}

	if slices.Contains(strings.Fields(scope), "openid") {
		idToken, err := s.signIDToken(ctx, NewUser(s.Store, userID), clientID, scope, authTime, now)
		if err != nil {
			return nil, fmt.Errorf("token: id token: %w", err)
		}
		resp.IDToken = idToken
		s.Metrics.TokenIssued(domain.PurposeIDToken)
	}

	l.Info("access token issued", "client_id", clientID, "user_id", userID)
	return resp, nil
}

// clientCredentials reads client_id and client_secret from a Basic
// Authorization header, falling back to the request parameters.
func clientCredentials(req TokenRequest) (id, secret string, method domain.ClientSecretMethod, err error) {
	raw, ok := strings.CutPrefix(req.Authorization, "Basic ")
	if !ok {
		return req.ClientID, req.ClientSecret, req.ParamMethod, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return "", "", 0, ErrInvalidRequest
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", 0, ErrInvalidRequest
	}
	if id, err = url.QueryUnescape(parts[0]); err != nil {
		return "", "", 0, ErrInvalidRequest
	}
	if secret, err = url.QueryUnescape(parts[1]); err != nil {
		return "", "", 0, ErrInvalidRequest
	}
	return id, secret, domain.HTTPAuthorizationHeader, nil
}

// authenticateClient requires the secret to match and the client to use
// exactly its registered method.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, secret string, method domain.ClientSecretMethod) (OAuthClient, error) {
	l := slogx.FromContext(ctx).With("client_id", clientID)

	id, err := s.Store.Clients().FindWithClientID(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		l.Info("token: unknown client")
		return OAuthClient{}, ErrInvalidClient
	}
	if err != nil {
		return OAuthClient{}, fmt.Errorf("token: %w", err)
	}
	client := NewOAuthClient(s.Store, id)

	hash, err := client.Secret(ctx)
	if err != nil {
		return OAuthClient{}, fmt.Errorf("token: %w", err)
	}
	registered, err := client.AuthMethod(ctx)
	if err != nil {
		return OAuthClient{}, fmt.Errorf("token: %w", err)
	}

	if hash == "" || !s.SecretHash.Verify(secret, "", hash) {
		l.Info("token: client secret mismatch")
		return OAuthClient{}, ErrInvalidClient
	}
	if registered != method {
		l.Info("token: client auth method mismatch", "registered", registered.String(), "used", method.String())
		return OAuthClient{}, ErrInvalidClient
	}
	return client, nil
}

func (s *TokenService) challengeScheme(ctx context.Context, clientID string) string {
	id, err := s.Store.Clients().FindWithClientID(ctx, clientID)
	if err != nil {
		return "Basic"
	}
	m, err := NewOAuthClient(s.Store, id).AuthMethod(ctx)
	if err != nil || m == domain.HTTPAuthorizationHeader {
		return "Basic"
	}
	return m.String()
}

func (s *TokenService) signIDToken(ctx context.Context, u User, clientID, scope string, authTime, now time.Time) (string, error) {
	ttl := s.IDTokenTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultIDTokenTTL
	}
	claims := jwtx.NewIDTokenClaims(s.Issuer, u.ID(), clientID, authTime, now, ttl)
	claims.ID = uuid.NewString()

	for _, sc := range strings.Fields(scope) {
		switch sc {
		case "profile":
			if v, err := u.JSONClaim(ctx, "name"); err == nil {
				claims.Name, _ = v.(string)
			}
		case "email":
			if v, err := u.JSONClaim(ctx, "email"); err == nil {
				claims.Email, _ = v.(string)
			}
			if v, err := u.JSONClaim(ctx, "email_verified"); err == nil {
				if b, ok := v.(bool); ok {
					claims.EmailVerified = &b
				}
			}
		}
	}

	return s.KeyManager.Signer().Sign(claims)
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}
