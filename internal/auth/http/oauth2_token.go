package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// TokenHandler serves POST /v1/oauth2/token
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Exchanges an authorization code for an access token, plus an ID token when the scope includes openid. Clients authenticate with the method they were registered with: HTTP Basic, or client_id and client_secret in the body or URL.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(authorization_code)
//	@Param			code			formData	string					true	"Authorization code"
//	@Param			redirect_uri	formData	string					true	"Redirect URI the code was issued for"
//	@Param			client_id		formData	string					false	"Client identifier (unless sent with HTTP Basic)"
//	@Param			client_secret	formData	string					false	"Client secret (unless sent with HTTP Basic)"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, token_type, expires_in, id_token"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"invalid_client"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/v1/oauth2/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Ensure the right content-type
	if r.Header.Get("Content-Type") != "" && !httpx.IsFormRequest(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Credentials in the URL are only accepted from clients registered
	// for that method.
	method := domain.RequestBodyParameter
	if r.URL.Query().Has("client_secret") {
		method = domain.PlainURLParameter
	}

	resp, err := h.TokenService.Exchange(ctx, service.TokenRequest{
		GrantType:     r.Form.Get("grant_type"),
		Code:          r.Form.Get("code"),
		RedirectURI:   r.Form.Get("redirect_uri"),
		Authorization: r.Header.Get("Authorization"),
		ClientID:      r.Form.Get("client_id"),
		ClientSecret:  r.Form.Get("client_secret"),
		ParamMethod:   method,
	})
	if err != nil {
		var challenge *service.ChallengeError
		switch {
		case errors.As(err, &challenge):
			w.Header().Set("WWW-Authenticate", challenge.Scheme)
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidRequest):
			authsdk.ErrInvalidRequest.WriteError(w)
		case errors.Is(err, service.ErrInvalidGrant):
			authsdk.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrUnsupportedGrantType):
			authsdk.ErrUnsupportedGrantType.WriteError(w)
		default:
			log.Error("token exchange failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
