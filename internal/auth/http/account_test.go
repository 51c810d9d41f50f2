package http

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
)

func TestRegisterLoginLogout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	c := env.browser(t)
	resp := env.post(t, c, "/v1/auth/register", url.Values{
		"login_name": {"alice"},
		"email":      {"alice@example.com"},
		"password":   {testPassword},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[authsdk.SessionResponse](t, resp)
	require.True(t, reg.LoggedIn)
	require.Equal(t, "strong", reg.State)
	require.NotEmpty(t, reg.UserID)
	require.NotNil(t, cookie(resp, SessionCookie))

	require.Equal(t, "alice@example.com", env.mailer.lastConfirm(t).to)
	require.Equal(t, reg.UserID, env.session(t, c).UserID)

	t.Run("duplicate login name", func(t *testing.T) {
		resp := env.post(t, env.browser(t), "/v1/auth/register", url.Values{
			"login_name": {"alice"},
			"password":   {"another decent secret"},
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		require.Equal(t, "identity_taken", decode[authsdk.ErrorResponse](t, resp).Error)
	})

	t.Run("weak password", func(t *testing.T) {
		resp := env.post(t, env.browser(t), "/v1/auth/register", url.Values{
			"login_name": {"bob"},
			"password":   {"bob"},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "weak_password", decode[authsdk.ErrorResponse](t, resp).Error)
	})

	resp = env.post(t, c, "/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "logged_out", decode[authsdk.SessionResponse](t, resp).State)
	require.False(t, env.session(t, c).LoggedIn)

	other := env.browser(t)
	resp = env.post(t, other, "/v1/auth/login", url.Values{
		"identity": {"alice"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[authsdk.SessionResponse](t, resp)
	require.Equal(t, "strong", login.State)
	require.Equal(t, reg.UserID, login.UserID)
	require.Nil(t, cookie(resp, RememberCookie))
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "carol", "")

	t.Run("missing fields", func(t *testing.T) {
		resp := env.post(t, env.browser(t), "/v1/auth/login", url.Values{"identity": {"carol"}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := env.post(t, env.browser(t), "/v1/auth/login", url.Values{
			"identity": {"nobody"},
			"password": {testPassword},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_credentials", decode[authsdk.ErrorResponse](t, resp).Error)
	})

	t.Run("throttled after a wrong password", func(t *testing.T) {
		c := env.browser(t)
		resp := env.post(t, c, "/v1/auth/login", url.Values{
			"identity": {"carol"},
			"password": {"wrong password entirely"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = env.post(t, c, "/v1/auth/login", url.Values{
			"identity": {"carol"},
			"password": {testPassword},
		})
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("Retry-After"))
		require.Equal(t, "login_throttled", decode[authsdk.ErrorResponse](t, resp).Error)
		require.False(t, env.session(t, c).LoggedIn)
	})
}

func TestRememberMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "dave", "")

	c := env.browser(t)
	resp := env.post(t, c, "/v1/auth/login", url.Values{
		"identity": {"dave"},
		"password": {testPassword},
		"remember": {"true"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	remember := cookie(resp, RememberCookie)
	require.NotNil(t, remember)
	require.NotEmpty(t, remember.Value)

	// A new browser session carrying only the remember-me cookie.
	fresh := env.browser(t)
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: RememberCookie, Value: remember.Value})
	resp, err = fresh.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	restored := decode[authsdk.SessionResponse](t, resp)
	require.True(t, restored.LoggedIn)
	require.Equal(t, "weak", restored.State)

	rotated := cookie(resp, RememberCookie)
	require.NotNil(t, rotated)
	require.NotEqual(t, remember.Value, rotated.Value)

	// The replaced token no longer logs anyone in and its cookie is dropped.
	req, err = http.NewRequest(http.MethodGet, env.server.URL+"/v1/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: RememberCookie, Value: remember.Value})
	resp, err = env.browser(t).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.False(t, decode[authsdk.SessionResponse](t, resp).LoggedIn)
	cleared := cookie(resp, RememberCookie)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
}

func TestConfirmEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "erin", "erin@example.com")
	mail := env.mailer.lastConfirm(t)

	c := env.browser(t)
	resp := env.get(t, c, service.DefaultEmailRedirectPath+mail.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[authsdk.EmailTokenResponse](t, resp)
	require.Equal(t, "email_confirmed", res.State)
	require.NotEmpty(t, res.UserID)
	require.Equal(t, "strong", env.session(t, c).State)

	// Tokens are single use.
	resp = env.post(t, env.browser(t), "/v1/auth/verify-email", url.Values{"token": {mail.token}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid", decode[authsdk.EmailTokenResponse](t, resp).State)
}

func TestLostPasswordReset(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "frank", "frank@example.com")
	confirm := env.mailer.lastConfirm(t)
	resp := env.get(t, env.browser(t), service.DefaultEmailRedirectPath+confirm.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	c := env.browser(t)
	resp = env.post(t, c, "/v1/auth/lost-password", url.Values{"email": {"frank@example.com"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	reset := env.mailer.lastReset(t)
	require.Equal(t, "frank@example.com", reset.to)

	// Unknown addresses get the same answer and no mail.
	resp = env.post(t, c, "/v1/auth/lost-password", url.Values{"email": {"ghost@example.com"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, reset, env.mailer.lastReset(t))

	resp = env.post(t, c, "/v1/auth/verify-email", url.Values{"token": {reset.token}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "update_password", decode[authsdk.EmailTokenResponse](t, resp).State)

	resp = env.post(t, c, "/v1/auth/password/reset", url.Values{
		"token":    {"not-a-token"},
		"password": {"a brand new passphrase"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_token", decode[authsdk.ErrorResponse](t, resp).Error)

	resp = env.post(t, c, "/v1/auth/password/reset", url.Values{
		"token":    {reset.token},
		"password": {"a brand new passphrase"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "strong", decode[authsdk.SessionResponse](t, resp).State)

	// The token is spent once the password is stored.
	resp = env.post(t, env.browser(t), "/v1/auth/password/reset", url.Values{
		"token":    {reset.token},
		"password": {"yet another passphrase"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"frank"},
		"password": {"a brand new passphrase"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.register(t, "grace", "")

	resp := env.post(t, env.browser(t), "/v1/auth/password", url.Values{
		"current_password": {testPassword},
		"new_password":     {"quite different words"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.post(t, c, "/v1/auth/password", url.Values{
		"current_password": {testPassword},
		"new_password":     {"grace"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "weak_password", decode[authsdk.ErrorResponse](t, resp).Error)

	resp = env.post(t, c, "/v1/auth/password", url.Values{
		"current_password": {testPassword},
		"new_password":     {"quite different words"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"grace"},
		"password": {"quite different words"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmailVerificationRequired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *service.AuthConfig) {
		cfg.EmailVerificationRequired = true
	})

	c := env.browser(t)
	resp := env.post(t, c, "/v1/auth/register", url.Values{
		"login_name": {"heidi"},
		"email":      {"heidi@example.com"},
		"password":   {testPassword},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[authsdk.SessionResponse](t, resp)
	require.False(t, reg.LoggedIn)
	require.Equal(t, "disabled", reg.State)

	resp = env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"heidi"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	mail := env.mailer.lastConfirm(t)
	resp = env.get(t, env.browser(t), service.DefaultEmailRedirectPath+mail.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"heidi"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "strong", decode[authsdk.SessionResponse](t, resp).State)
}

type countingVerifier struct {
	service.Verifier
	mu       sync.Mutex
	verified int
}

func (v *countingVerifier) Verify(ctx context.Context, password string, hash domain.PasswordHash) bool {
	v.mu.Lock()
	v.verified++
	v.mu.Unlock()
	return v.Verifier.Verify(ctx, password, hash)
}

func (v *countingVerifier) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.verified
}

func TestLoginUnknownUserVerifiesPassword(t *testing.T) {
	t.Parallel()
	var verifier *countingVerifier
	env := newTestEnvWithRouter(t, func(r *Router) {
		verifier = &countingVerifier{Verifier: r.PasswordService.Verifier}
		r.PasswordService.Verifier = verifier
	})

	unknown := env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"nobody"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	require.Equal(t, 1, verifier.count())

	env.register(t, "olga", "")
	wrong := env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"olga"},
		"password": {"not the password"},
	})
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Equal(t, 2, verifier.count())

	// Both failures look the same to the caller.
	require.Equal(t,
		decode[authsdk.ErrorResponse](t, unknown),
		decode[authsdk.ErrorResponse](t, wrong))
}
