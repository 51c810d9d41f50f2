package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
)

func (b *browser) postCode(t *testing.T, path, secret string) *http.Response {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	body, err := json.Marshal(authsdk.MFACodeRequest{Code: code})
	require.NoError(t, err)

	resp, err := b.Post(b.baseURL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// TestMFAEnrollmentAndLogin enrolls TOTP for an account and completes a
// password login with the second factor.
func TestMFAEnrollmentAndLogin(t *testing.T) {
	c := setupAuthContainer(t)

	b := newBrowser(t, c.BaseURL)
	b.register(t, "mfauser")

	resp := b.post(t, "/v1/auth/mfa/enroll", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	enrollment := decodeJSON[authsdk.MFAEnrollResponse](t, resp)
	require.NotEmpty(t, enrollment.Secret)

	resp = b.postCode(t, "/v1/auth/mfa/confirm", enrollment.Secret)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	other := newBrowser(t, c.BaseURL)
	resp = other.post(t, "/v1/auth/login", url.Values{
		"identity": {"mfauser"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "requires_mfa", decodeJSON[authsdk.SessionResponse](t, resp).State)

	resp = other.postCode(t, "/v1/auth/mfa/verify", enrollment.Secret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decodeJSON[authsdk.SessionResponse](t, resp)
	require.True(t, sess.LoggedIn)
	require.Equal(t, "strong", sess.State)
}
