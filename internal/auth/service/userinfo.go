package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// DefaultScopeClaims maps OpenID scopes to the claims they release.
var DefaultScopeClaims = map[string][]string{
	"profile": {"name"},
	"email":   {"email", "email_verified"},
}

type UserInfoService struct {
	Store store.Store

	// ScopeClaims overrides DefaultScopeClaims.
	ScopeClaims map[string][]string
}

// Claims returns sub and the claims granted to the access token. A missing
// token is ErrInvalidRequest, an unknown or expired one ErrInvalidToken.
// Claims without a value are left out.
func (s *UserInfoService) Claims(ctx context.Context, accessToken string) (map[string]any, error) {
	if accessToken == "" {
		return nil, ErrInvalidRequest
	}

	id, err := s.Store.IssuedTokens().FindWithValue(ctx, domain.PurposeAccessToken, cryptox.FingerprintToken(accessToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	tok := NewIssuedToken(s.Store, id)

	expires, err := tok.ExpirationTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	if time.Now().After(expires) {
		slogx.FromContext(ctx).Info("userinfo: access token expired")
		return nil, ErrInvalidToken
	}

	u, err := tok.User(ctx)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	scope, err := tok.Scope(ctx)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	mapping := s.ScopeClaims
	if mapping == nil {
		mapping = DefaultScopeClaims
	}

	out := map[string]any{"sub": u.ID()}
	for _, sc := range strings.Fields(scope) {
		for _, claim := range mapping[sc] {
			v, err := u.JSONClaim(ctx, claim)
			if err != nil {
				return nil, fmt.Errorf("userinfo: claim %s: %w", claim, err)
			}
			if v != nil {
				out[claim] = v
			}
		}
	}
	return out, nil
}
