package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

func authorizeQuery(clientID string, extra url.Values) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {rpRedirect},
		"scope":         {"openid profile"},
		"state":         {"xyz"},
	}
	for k, v := range extra {
		q[k] = v
	}
	return "/v1/oauth2/authorize?" + q.Encode()
}

// authorizeCode runs the authorization endpoint for a logged in browser
// and returns the code handed to the relying party.
func (e *testEnv) authorizeCode(t *testing.T, c *http.Client, clientID string) string {
	t.Helper()
	resp := e.get(t, c, authorizeQuery(clientID, nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "rp.example", loc.Host)
	require.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (e *testEnv) exchange(t *testing.T, form url.Values, basicUser, basicPass string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) userinfo(t *testing.T, accessToken string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/v1/oauth2/userinfo", nil)
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// Not logged in: the browser is sent to the login page and back.
	anon := env.browser(t)
	resp := env.get(t, anon, authorizeQuery("rp", nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, DefaultLoginPath, loc.Path)
	require.True(t, strings.HasPrefix(loc.Query().Get("return"), "/v1/oauth2/authorize?"))

	c := env.register(t, "judy", "")
	code := env.authorizeCode(t, c, "rp")

	resp = env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {rpRedirect},
		"client_id":     {"rp"},
		"client_secret": {env.clientSecret},
	}, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := decode[authsdk.TokenResponse](t, resp)
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)
	require.Positive(t, tok.ExpiresIn)
	require.NotEmpty(t, tok.IDToken)

	claims, err := env.keys.Verifier.Verify(tok.IDToken)
	require.NoError(t, err)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Contains(t, claims.Audience, "rp")
	require.Equal(t, env.session(t, c).UserID, claims.Subject)
	require.Equal(t, "judy", claims.Name)

	resp = env.userinfo(t, tok.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[authsdk.UserInfoResponse](t, resp)
	require.Equal(t, claims.Subject, info.Sub)
	require.Equal(t, "judy", info.Name)

	// Codes are single use.
	resp = env.exchange(t, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {rpRedirect},
		"client_id":     {"rp"},
		"client_secret": {env.clientSecret},
	}, "", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, decode[authsdk.ErrorResponse](t, resp).Error)
}

func TestAuthorizeErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	t.Run("unknown client", func(t *testing.T) {
		resp := env.get(t, env.browser(t), authorizeQuery("nope", nil))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, resp.Header.Get("Location"))
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		resp := env.get(t, env.browser(t), authorizeQuery("rp", url.Values{
			"redirect_uri": {"https://evil.example/cb"},
		}))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, resp.Header.Get("Location"))
	})

	t.Run("prompt none while logged out", func(t *testing.T) {
		resp := env.get(t, env.browser(t), authorizeQuery("rp", url.Values{"prompt": {"none"}}))
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "rp.example", loc.Host)
		require.Equal(t, "login_required", loc.Query().Get("error"))
		require.Equal(t, "xyz", loc.Query().Get("state"))
	})

	t.Run("unsupported response type", func(t *testing.T) {
		resp := env.get(t, env.browser(t), authorizeQuery("rp", url.Values{"response_type": {"token"}}))
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "invalid_request", loc.Query().Get("error"))
	})
}

func TestTokenClientAuthentication(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	clients := &service.ClientService{Store: env.store, SecretHash: cryptox.BCrypt{Cost: 4}}
	basic, secret, err := clients.CreateClient(context.Background(), service.NewClient{
		ClientID:     "basic-rp",
		Name:         "basic relying party",
		RedirectURIs: []string{rpRedirect},
		Confidential: true,
		AuthMethod:   domain.HTTPAuthorizationHeader,
	})
	require.NoError(t, err)

	c := env.register(t, "ken", "")

	t.Run("wrong secret gets a challenge", func(t *testing.T) {
		code := env.authorizeCode(t, c, basic.ClientID)
		resp := env.exchange(t, url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {code},
			"redirect_uri": {rpRedirect},
		}, basic.ClientID, "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "Basic", resp.Header.Get("WWW-Authenticate"))
		require.Equal(t, authsdk.ErrorCodeInvalidClient, decode[authsdk.ErrorResponse](t, resp).Error)
	})

	t.Run("registered method is enforced", func(t *testing.T) {
		code := env.authorizeCode(t, c, basic.ClientID)
		resp := env.exchange(t, url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {rpRedirect},
			"client_id":     {basic.ClientID},
			"client_secret": {secret},
		}, "", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("code bound to its client", func(t *testing.T) {
		code := env.authorizeCode(t, c, "rp")
		resp := env.exchange(t, url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {code},
			"redirect_uri": {rpRedirect},
		}, basic.ClientID, secret)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, authsdk.ErrorCodeInvalidGrant, decode[authsdk.ErrorResponse](t, resp).Error)
	})

	t.Run("basic credentials", func(t *testing.T) {
		code := env.authorizeCode(t, c, basic.ClientID)
		resp := env.exchange(t, url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {code},
			"redirect_uri": {rpRedirect},
		}, basic.ClientID, secret)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, decode[authsdk.TokenResponse](t, resp).AccessToken)
	})

	t.Run("missing parameters", func(t *testing.T) {
		resp := env.exchange(t, url.Values{"grant_type": {"authorization_code"}}, "", "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, authsdk.ErrorCodeInvalidRequest, decode[authsdk.ErrorResponse](t, resp).Error)
	})
}

func TestUserInfoErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.userinfo(t, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), `error="invalid_request"`)

	resp = env.userinfo(t, "not-issued")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), `error="invalid_token"`)
}
