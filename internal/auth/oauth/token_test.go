package oauth

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func response(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseTokenResponse(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		tok, err := parseTokenResponse(response(200, "application/json; charset=utf-8",
			`{"access_token":"at","expires_in":3600,"refresh_token":"rt","id_token":"it","token_type":"Bearer"}`), now)
		require.NoError(t, err)
		require.Equal(t, "at", tok.AccessToken)
		require.Equal(t, "rt", tok.RefreshToken)
		require.Equal(t, "it", tok.IDToken)
		require.Equal(t, now.Add(time.Hour), tok.Expires)
	})

	t.Run("json without expiry", func(t *testing.T) {
		t.Parallel()
		tok, err := parseTokenResponse(response(200, "application/json", `{"access_token":"at"}`), now)
		require.NoError(t, err)
		require.True(t, tok.Expires.IsZero())
	})

	t.Run("json error", func(t *testing.T) {
		t.Parallel()
		_, err := parseTokenResponse(response(400, "application/json", `{"error":"invalid_grant"}`), now)
		var te *TokenError
		require.ErrorAs(t, err, &te)
		require.Equal(t, "invalid_grant", te.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		_, err := parseTokenResponse(response(200, "application/json", `{`), now)
		var te *TokenError
		require.ErrorAs(t, err, &te)
		require.Equal(t, ErrCodeBadJSON, te.Code)
	})

	t.Run("form", func(t *testing.T) {
		t.Parallel()
		tok, err := parseTokenResponse(response(200, "text/plain", "access_token=at&expires=60"), now)
		require.NoError(t, err)
		require.Equal(t, "at", tok.AccessToken)
		require.Equal(t, now.Add(time.Minute), tok.Expires)
	})

	t.Run("form error", func(t *testing.T) {
		t.Parallel()
		_, err := parseTokenResponse(response(400, "application/x-www-form-urlencoded", "error=access_denied"), now)
		var te *TokenError
		require.ErrorAs(t, err, &te)
		require.Equal(t, "access_denied", te.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		_, err := parseTokenResponse(response(200, "application/json", `{"token_type":"Bearer"}`), now)
		var te *TokenError
		require.ErrorAs(t, err, &te)
		require.Equal(t, ErrCodeNoToken, te.Code)
	})

	t.Run("unexpected", func(t *testing.T) {
		t.Parallel()
		for _, r := range []*http.Response{
			response(500, "application/json", `{"access_token":"at"}`),
			response(200, "text/html", "<html>"),
		} {
			_, err := parseTokenResponse(r, now)
			var te *TokenError
			require.ErrorAs(t, err, &te)
			require.Equal(t, ErrCodeBadResponse, te.Code)
		}
	})
}
