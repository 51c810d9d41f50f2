package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// userInfo covers the field names used by OIDC, Google v1 and Facebook.
type userInfo struct {
	Sub           string `json:"sub"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	VerifiedEmail *bool  `json:"verified_email"`
	Verified      *bool  `json:"verified"`
}

func (u userInfo) identity() domain.Identity {
	id := u.Sub
	if id == "" {
		id = u.ID
	}
	return domain.Identity{
		ID:            id,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: firstBool(u.EmailVerified, u.VerifiedEmail),
	}
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}

func parseUserInfo(body []byte) (userInfo, error) {
	var u userInfo
	if err := json.Unmarshal(body, &u); err != nil {
		return userInfo{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return u, nil
}

// OidcFetcher reads the claims of the ID token returned with the access
// token, or asks the userinfo endpoint when there is none.
type OidcFetcher struct{}

func (OidcFetcher) FetchIdentity(ctx context.Context, s *Service, token domain.OAuthAccessToken) (domain.Identity, error) {
	if token.IDToken != "" {
		if id, ok := idTokenIdentity(ctx, s, token.IDToken); ok {
			return id, nil
		}
	}
	if s.cfg.UserInfoEndpoint == "" {
		return domain.Identity{}, fmt.Errorf("oauth %s: no id_token and no userinfo endpoint", s.cfg.Name)
	}

	body, err := s.get(ctx, s.cfg.UserInfoEndpoint, http.Header{"Authorization": {"Bearer " + token.AccessToken}})
	if err != nil {
		return domain.Identity{}, err
	}
	u, err := parseUserInfo(body)
	if err != nil {
		return domain.Identity{}, err
	}
	return u.identity(), nil
}

// idTokenIdentity trusts the signature by virtue of the direct TLS call to
// the token endpoint, but still requires the token to be meant for us.
func idTokenIdentity(ctx context.Context, s *Service, raw string) (domain.Identity, bool) {
	l := slogx.FromContext(ctx).With("provider", s.cfg.Name)

	claims, err := jwtx.DecodeUnverified(raw)
	if err != nil {
		l.Warn("ignoring malformed id_token", "error", err)
		return domain.Identity{}, false
	}
	if err := claims.ValidateAudience([]string{s.cfg.ClientID}); err != nil {
		l.Warn("ignoring id_token for another audience", "aud", claims.Audience)
		return domain.Identity{}, false
	}
	if claims.Subject == "" {
		return domain.Identity{}, false
	}
	return domain.Identity{
		ID:            claims.Subject,
		Name:          claims.Name,
		Email:         claims.Email,
		EmailVerified: firstBool(claims.EmailVerified),
	}, true
}

// GoogleFetcher understands both the OIDC userinfo endpoint and the older
// v1 API that reports id and verified_email.
type GoogleFetcher struct{}

func (GoogleFetcher) FetchIdentity(ctx context.Context, s *Service, token domain.OAuthAccessToken) (domain.Identity, error) {
	return OidcFetcher{}.FetchIdentity(ctx, s, token)
}

// FacebookFetcher queries the Graph API "me" node. The email counts as
// verified only when the response says so.
type FacebookFetcher struct{}

func (FacebookFetcher) FetchIdentity(ctx context.Context, s *Service, token domain.OAuthAccessToken) (domain.Identity, error) {
	endpoint := httpx.AppendQuery(s.cfg.UserInfoEndpoint, url.Values{"access_token": {token.AccessToken}})
	body, err := s.get(ctx, endpoint, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	u, err := parseUserInfo(body)
	if err != nil {
		return domain.Identity{}, err
	}

	id := u.identity()
	id.EmailVerified = u.Email != "" && firstBool(u.Verified, u.EmailVerified)
	return id, nil
}

