package oauth

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
)

// TokenError is a failed token request. Code is the provider's error code,
// or one of the Err* codes below when the response could not be used.
type TokenError struct {
	Code string
}

func (e *TokenError) Error() string { return "oauth token error: " + e.Code }

const (
	ErrCodeBadResponse = "badresponse"
	ErrCodeBadJSON     = "badjson"
	ErrCodeNoToken     = "notoken"
)

type jsonTokenResponse struct {
	AccessToken  string      `json:"access_token"`
	ExpiresIn    json.Number `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	IDToken      string      `json:"id_token"`
	Error        string      `json:"error"`
}

// parseTokenResponse accepts a JSON or form-encoded body with status 200, or
// an error body with status 400.
func parseTokenResponse(resp *http.Response, now time.Time) (domain.OAuthAccessToken, error) {
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return domain.OAuthAccessToken{}, &TokenError{Code: ErrCodeBadResponse}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.OAuthAccessToken{}, fmt.Errorf("read token response: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return parseJSONToken(resp.StatusCode, body, now)
	case "text/plain", "application/x-www-form-urlencoded":
		return parseFormToken(resp.StatusCode, body, now)
	default:
		return domain.OAuthAccessToken{}, &TokenError{Code: ErrCodeBadResponse}
	}
}

func parseJSONToken(status int, body []byte, now time.Time) (domain.OAuthAccessToken, error) {
	var r jsonTokenResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return domain.OAuthAccessToken{}, &TokenError{Code: ErrCodeBadJSON}
	}
	if status != http.StatusOK {
		return domain.OAuthAccessToken{}, errorCode(r.Error)
	}
	if r.AccessToken == "" {
		return domain.OAuthAccessToken{}, &TokenError{Code: ErrCodeNoToken}
	}

	token := domain.OAuthAccessToken{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IDToken:      r.IDToken,
	}
	if secs, err := r.ExpiresIn.Int64(); err == nil && secs > 0 {
		token.Expires = now.Add(time.Duration(secs) * time.Second)
	}
	return token, nil
}

func parseFormToken(status int, body []byte, now time.Time) (domain.OAuthAccessToken, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return domain.OAuthAccessToken{}, &TokenError{Code: ErrCodeBadResponse}
	}
	if status != http.StatusOK {
		return domain.OAuthAccessToken{}, errorCode(values.Get("error"))
	}

	access := values.Get("access_token")
	if access == "" {
		return domain.OAuthAccessToken{}, &TokenError{Code: ErrCodeNoToken}
	}
	token := domain.OAuthAccessToken{
		AccessToken:  access,
		RefreshToken: values.Get("refresh_token"),
	}

	// Facebook calls it "expires".
	expires := values.Get("expires_in")
	if expires == "" {
		expires = values.Get("expires")
	}
	if secs, err := strconv.Atoi(expires); err == nil && secs > 0 {
		token.Expires = now.Add(time.Duration(secs) * time.Second)
	}
	return token, nil
}

func errorCode(code string) error {
	if code == "" {
		code = ErrCodeBadResponse
	}
	return &TokenError{Code: code}
}
