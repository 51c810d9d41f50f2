package http

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
)

func TestMFAFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.register(t, "ivan", "")

	code := func(secret string) authsdk.MFACodeRequest {
		t.Helper()
		v, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)
		return authsdk.MFACodeRequest{Code: v}
	}

	t.Run("requires login", func(t *testing.T) {
		resp := env.post(t, env.browser(t), "/v1/auth/mfa/enroll", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("confirm before enroll", func(t *testing.T) {
		resp := env.postJSON(t, c, "/v1/auth/mfa/confirm", authsdk.MFACodeRequest{Code: "123456"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "mfa_not_enrolled", decode[authsdk.ErrorResponse](t, resp).Error)
	})

	resp := env.post(t, c, "/v1/auth/mfa/enroll", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	enrollment := decode[authsdk.MFAEnrollResponse](t, resp)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.Contains(t, enrollment.URL, "ivan")

	resp = env.postJSON(t, c, "/v1/auth/mfa/confirm", authsdk.MFACodeRequest{Code: "000000"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_code", decode[authsdk.ErrorResponse](t, resp).Error)

	resp = env.postJSON(t, c, "/v1/auth/mfa/confirm", code(enrollment.Secret))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.post(t, c, "/v1/auth/mfa/enroll", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "mfa_already_enabled", decode[authsdk.ErrorResponse](t, resp).Error)

	// A password alone now stops at the second factor.
	other := env.browser(t)
	resp = env.post(t, other, "/v1/auth/login", url.Values{
		"identity": {"ivan"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[authsdk.SessionResponse](t, resp)
	require.False(t, pending.LoggedIn)
	require.Equal(t, "requires_mfa", pending.State)

	resp = env.postJSON(t, other, "/v1/auth/mfa/disable", code(enrollment.Secret))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.postJSON(t, other, "/v1/auth/mfa/verify", code(enrollment.Secret))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	verified := decode[authsdk.SessionResponse](t, resp)
	require.True(t, verified.LoggedIn)
	require.Equal(t, "strong", verified.State)

	resp = env.postJSON(t, other, "/v1/auth/mfa/verify", code(enrollment.Secret))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "mfa_not_enabled", decode[authsdk.ErrorResponse](t, resp).Error)

	resp = env.postJSON(t, other, "/v1/auth/mfa/disable", code(enrollment.Secret))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.post(t, env.browser(t), "/v1/auth/login", url.Values{
		"identity": {"ivan"},
		"password": {testPassword},
	})
	require.Equal(t, "strong", decode[authsdk.SessionResponse](t, resp).State)
}

func TestMFAVerifyBadBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.post(t, env.browser(t), "/v1/auth/mfa/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", decode[authsdk.ErrorResponse](t, resp).Error)
}

func TestMFAVerifyThrottled(t *testing.T) {
	t.Parallel()
	env := newTestEnvWithRouter(t, func(r *Router) {
		r.MFAService.Throttle = &service.AuthThrottle{}
	})
	c := env.register(t, "wendy", "")

	resp := env.post(t, c, "/v1/auth/mfa/enroll", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secret := decode[authsdk.MFAEnrollResponse](t, resp).Secret
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	resp = env.postJSON(t, c, "/v1/auth/mfa/confirm", authsdk.MFACodeRequest{Code: code})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	other := env.browser(t)
	resp = env.post(t, other, "/v1/auth/login", url.Values{
		"identity": {"wendy"},
		"password": {testPassword},
	})
	require.Equal(t, "requires_mfa", decode[authsdk.SessionResponse](t, resp).State)

	resp = env.postJSON(t, other, "/v1/auth/mfa/verify", authsdk.MFACodeRequest{Code: "000000x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.postJSON(t, other, "/v1/auth/mfa/verify", authsdk.MFACodeRequest{Code: code})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.Equal(t, "mfa_throttled", decode[authsdk.ErrorResponse](t, resp).Error)
	require.False(t, env.session(t, other).LoggedIn)
}
