package service

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	redisstore "github.com/aussiebroadwan/authkit/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/authkit/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

type idpFixture struct {
	db        *sqlite.Store
	user      User
	login     *Login
	authorize *AuthorizeService
	token     *TokenService
	userinfo  *UserInfoService
	clients   *ClientService

	postClient   domain.Client
	postSecret   string
	basicClient  domain.Client
	basicSecret  string
	keyManager   *jwtx.KeyManager
	redirectPost string
}

func newIDPFixture(t *testing.T) *idpFixture {
	t.Helper()
	ctx := context.Background()

	db := newTestStore(t)
	hash := cryptox.Argon2id{Pepper: "pepper"}
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "https://auth.test",
		NumKeys:   1,
	})
	require.NoError(t, err)

	f := &idpFixture{
		db:           db,
		keyManager:   km,
		redirectPost: "https://app.example.com/cb",
		authorize:    &AuthorizeService{Store: db},
		token:        &TokenService{Store: db, KeyManager: km, Issuer: "https://auth.test", SecretHash: hash},
		userinfo:     &UserInfoService{Store: db},
		clients:      &ClientService{Store: db, SecretHash: hash},
	}

	f.postClient, f.postSecret, err = f.clients.CreateClient(ctx, NewClient{
		Name:         "post app",
		RedirectURIs: []string{f.redirectPost, "https://app.example.com/other?x=1"},
		Confidential: true,
		AuthMethod:   domain.RequestBodyParameter,
	})
	require.NoError(t, err)
	f.basicClient, f.basicSecret, err = f.clients.CreateClient(ctx, NewClient{
		ClientID:     "basic app",
		Name:         "basic app",
		RedirectURIs: []string{"https://basic.example.com/cb"},
		Confidential: true,
		AuthMethod:   domain.HTTPAuthorizationHeader,
	})
	require.NoError(t, err)

	f.user = newTestUser(t, db, "alice")
	require.NoError(t, f.user.SetEmail(ctx, "alice@example.com"))
	require.NoError(t, f.user.SetAuthenticated(ctx, true))

	f.login = &Login{}
	require.NoError(t, f.login.Login(ctx, f.user, domain.StrongLogin))
	return f
}

func (f *idpFixture) code(t *testing.T, clientID, redirect, scope string) string {
	t.Helper()
	target, err := f.authorize.Authorize(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     clientID,
		RedirectURI:  redirect,
		Scope:        scope,
		State:        "st&ate",
	}, f.login)
	require.NoError(t, err)

	u, err := url.Parse(target)
	require.NoError(t, err)
	require.Equal(t, "st&ate", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.Len(t, code, issuedValueLength)
	return code
}

func basicHeader(id, secret string) string {
	raw := url.QueryEscape(id) + ":" + url.QueryEscape(secret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestAuthorizeRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newIDPFixture(t)

	req := AuthorizeRequest{ResponseType: "code", ClientID: f.postClient.ClientID, RedirectURI: f.redirectPost, Scope: "openid", State: "s1"}

	t.Run("unknown client or redirect is never redirected to", func(t *testing.T) {
		for _, mod := range []func(r *AuthorizeRequest){
			func(r *AuthorizeRequest) { r.ClientID = "" },
			func(r *AuthorizeRequest) { r.RedirectURI = "" },
			func(r *AuthorizeRequest) { r.ClientID = "nope" },
			func(r *AuthorizeRequest) { r.RedirectURI = "https://evil.example.com/cb" },
		} {
			r := req
			mod(&r)
			_, err := f.authorize.Authorize(ctx, r, f.login)
			require.ErrorIs(t, err, ErrUnauthorizedRedirect)
		}
	})

	t.Run("bad response type", func(t *testing.T) {
		r := req
		r.ResponseType = "token"
		target, err := f.authorize.Authorize(ctx, r, f.login)
		require.NoError(t, err)
		require.Equal(t, f.redirectPost+"?error=invalid_request&state=s1", target)
	})

	t.Run("missing scope keeps existing query", func(t *testing.T) {
		r := req
		r.Scope = ""
		r.State = ""
		r.RedirectURI = "https://app.example.com/other?x=1"
		target, err := f.authorize.Authorize(ctx, r, f.login)
		require.NoError(t, err)
		require.Equal(t, "https://app.example.com/other?x=1&error=invalid_request", target)
	})

	t.Run("not logged in", func(t *testing.T) {
		_, err := f.authorize.Authorize(ctx, req, &Login{})
		require.ErrorIs(t, err, ErrLoginRequired)

		r := req
		r.Prompt = "none"
		target, err := f.authorize.Authorize(ctx, r, &Login{})
		require.NoError(t, err)
		require.Equal(t, f.redirectPost+"?error=login_required&state=s1", target)
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newIDPFixture(t)

	code := f.code(t, f.postClient.ClientID, f.redirectPost, "openid profile email")

	resp, err := f.token.Exchange(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  f.redirectPost,
		ClientID:     f.postClient.ClientID,
		ClientSecret: f.postSecret,
		ParamMethod:  domain.RequestBodyParameter,
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.IDToken)

	claims, err := f.keyManager.Verifier.Verify(resp.IDToken)
	require.NoError(t, err)
	require.Equal(t, "https://auth.test", claims.Issuer)
	require.Equal(t, f.user.ID(), claims.Subject)
	require.Contains(t, claims.Audience, f.postClient.ClientID)
	require.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.AuthTime)
	require.Equal(t, "alice", claims.Name)
	require.Equal(t, "alice@example.com", claims.Email)
	require.NotNil(t, claims.EmailVerified)
	require.True(t, *claims.EmailVerified)

	t.Run("code is single use", func(t *testing.T) {
		_, err := f.token.Exchange(ctx, TokenRequest{
			GrantType: "authorization_code", Code: code, RedirectURI: f.redirectPost,
			ClientID: f.postClient.ClientID, ClientSecret: f.postSecret, ParamMethod: domain.RequestBodyParameter,
		})
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("userinfo", func(t *testing.T) {
		info, err := f.userinfo.Claims(ctx, resp.AccessToken)
		require.NoError(t, err)
		require.Equal(t, map[string]any{
			"sub":            f.user.ID(),
			"name":           "alice",
			"email":          "alice@example.com",
			"email_verified": true,
		}, info)

		_, err = f.userinfo.Claims(ctx, "")
		require.ErrorIs(t, err, ErrInvalidRequest)
		_, err = f.userinfo.Claims(ctx, "unknown")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenWithoutOpenID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newIDPFixture(t)

	code := f.code(t, f.basicClient.ClientID, "https://basic.example.com/cb", "email")
	resp, err := f.token.Exchange(ctx, TokenRequest{
		GrantType:     "authorization_code",
		Code:          code,
		RedirectURI:   "https://basic.example.com/cb",
		Authorization: basicHeader(f.basicClient.ClientID, f.basicSecret),
	})
	require.NoError(t, err)
	require.Empty(t, resp.IDToken)

	info, err := f.userinfo.Claims(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.NotContains(t, info, "name")
	require.Equal(t, "alice@example.com", info["email"])
}

func TestTokenClientAuthentication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newIDPFixture(t)

	code := f.code(t, f.postClient.ClientID, f.redirectPost, "openid")
	base := TokenRequest{GrantType: "authorization_code", Code: code, RedirectURI: f.redirectPost}

	t.Run("missing parameters", func(t *testing.T) {
		_, err := f.token.Exchange(ctx, base)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("wrong secret", func(t *testing.T) {
		r := base
		r.ClientID, r.ClientSecret, r.ParamMethod = f.postClient.ClientID, "wrong", domain.RequestBodyParameter
		_, err := f.token.Exchange(ctx, r)
		require.ErrorIs(t, err, ErrInvalidClient)
		var ce *ChallengeError
		require.NotErrorAs(t, err, &ce, "no challenge without an Authorization header")
	})

	t.Run("method mismatch answers with a challenge", func(t *testing.T) {
		r := base
		r.Authorization = basicHeader(f.postClient.ClientID, f.postSecret)
		_, err := f.token.Exchange(ctx, r)
		var ce *ChallengeError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, "client_secret_post", ce.Scheme)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("url parameters for a body client", func(t *testing.T) {
		r := base
		r.ClientID, r.ClientSecret, r.ParamMethod = f.postClient.ClientID, f.postSecret, domain.PlainURLParameter
		_, err := f.token.Exchange(ctx, r)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("malformed basic header", func(t *testing.T) {
		r := base
		r.Authorization = "Basic !!!"
		_, err := f.token.Exchange(ctx, r)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unsupported grant", func(t *testing.T) {
		r := base
		r.GrantType = "password"
		r.ClientID, r.ClientSecret, r.ParamMethod = f.postClient.ClientID, f.postSecret, domain.RequestBodyParameter
		_, err := f.token.Exchange(ctx, r)
		require.ErrorIs(t, err, ErrUnsupportedGrantType)
	})

	t.Run("code bound to its client", func(t *testing.T) {
		r := base
		r.Authorization = basicHeader(f.basicClient.ClientID, f.basicSecret)
		_, err := f.token.Exchange(ctx, r)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		r := base
		r.RedirectURI = "https://app.example.com/other?x=1"
		r.ClientID, r.ClientSecret, r.ParamMethod = f.postClient.ClientID, f.postSecret, domain.RequestBodyParameter
		_, err := f.token.Exchange(ctx, r)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestTokenExpiredCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newIDPFixture(t)

	_, err := f.db.IssuedTokens().Add(ctx, domain.IssuedToken{
		ValueHash:   cryptox.FingerprintToken("stale-code"),
		Purpose:     domain.PurposeAuthorizationCode,
		Scope:       "openid",
		RedirectURI: f.redirectPost,
		Expires:     time.Now().Add(-time.Second),
		UserID:      f.user.ID(),
		ClientID:    f.postClient.ID,
		AuthTime:    time.Now(),
	})
	require.NoError(t, err)

	_, err = f.token.Exchange(ctx, TokenRequest{
		GrantType: "authorization_code", Code: "stale-code", RedirectURI: f.redirectPost,
		ClientID: f.postClient.ClientID, ClientSecret: f.postSecret, ParamMethod: domain.RequestBodyParameter,
	})
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeRedeemsCodeOnceWithRedis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base := newTestStore(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	db := store.WithIssuedTokens(base, redisstore.NewIssuedTokens(rdb, ""))

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "https://auth.test",
		NumKeys:   1,
	})
	require.NoError(t, err)

	hash := cryptox.BCrypt{Cost: 4}
	clients := &ClientService{Store: db, SecretHash: hash}
	client, secret, err := clients.CreateClient(ctx, NewClient{
		Name:         "app",
		RedirectURIs: []string{"https://app.example.com/cb"},
		Confidential: true,
		AuthMethod:   domain.RequestBodyParameter,
	})
	require.NoError(t, err)
	user := newTestUser(t, base, "alice")

	_, err = db.IssuedTokens().Add(ctx, domain.IssuedToken{
		ValueHash:   cryptox.FingerprintToken("shared-code"),
		Purpose:     domain.PurposeAuthorizationCode,
		Scope:       "openid",
		RedirectURI: "https://app.example.com/cb",
		Expires:     time.Now().Add(time.Minute),
		UserID:      user.ID(),
		ClientID:    client.ID,
		AuthTime:    time.Now(),
	})
	require.NoError(t, err)

	svc := &TokenService{Store: db, KeyManager: km, Issuer: "https://auth.test", SecretHash: hash}
	req := TokenRequest{
		GrantType:    "authorization_code",
		Code:         "shared-code",
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: secret,
		ParamMethod:  domain.RequestBodyParameter,
	}

	const callers = 8
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		issued   atomic.Int32
		rejected atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Exchange(ctx, req)
			switch {
			case err == nil:
				issued.Add(1)
			case errors.Is(err, ErrInvalidGrant):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), issued.Load())
	require.Equal(t, int32(callers-1), rejected.Load())
}

func TestExchangeBurnsMisusedCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newIDPFixture(t)

	code := f.code(t, f.postClient.ClientID, f.redirectPost, "openid")
	req := TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://app.example.com/other?x=1",
		ClientID:     f.postClient.ClientID,
		ClientSecret: f.postSecret,
		ParamMethod:  domain.RequestBodyParameter,
	}
	_, err := f.token.Exchange(ctx, req)
	require.ErrorIs(t, err, ErrInvalidGrant)

	req.RedirectURI = f.redirectPost
	_, err = f.token.Exchange(ctx, req)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestCreateClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := newTestStore(t)
	svc := &ClientService{Store: db, SecretHash: cryptox.MD5{}}

	c, secret, err := svc.CreateClient(ctx, NewClient{Name: "x", RedirectURIs: []string{"https://x.example.com/cb"}})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.NotEmpty(t, c.ClientID)
	require.NotEmpty(t, secret)
	require.NotEqual(t, secret, c.SecretHash)
	require.True(t, svc.SecretHash.Verify(secret, "", c.SecretHash))

	_, _, err = svc.CreateClient(ctx, NewClient{ClientID: c.ClientID, RedirectURIs: []string{"https://x.example.com/cb"}})
	require.ErrorIs(t, err, ErrClientExists)

	for _, bad := range [][]string{nil, {"not a url"}, {"https://x.example.com/cb#frag"}, {"/relative"}} {
		_, _, err = svc.CreateClient(ctx, NewClient{RedirectURIs: bad})
		require.ErrorIs(t, err, ErrInvalidRequest)
	}

	all, err := svc.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
