package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// AuthorizeHandler serves GET /v1/oauth2/authorize for the session's user.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	LoginPath        string
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Authorization Endpoint
//	@Description	Issues an authorization code to the logged in session and redirects back to the client. Sessions without a login are sent to the login page, or get error=login_required with prompt=none.
//	@Tags			OAuth2
//	@Param			response_type	query	string	true	"Must be code"
//	@Param			client_id		query	string	true	"Client identifier"
//	@Param			redirect_uri	query	string	true	"Registered redirect URI"
//	@Param			scope			query	string	true	"Space-delimited scopes, e.g. openid profile email"
//	@Param			state			query	string	false	"Opaque value echoed back"
//	@Param			prompt			query	string	false	"none to fail instead of showing a login page"
//	@Success		302
//	@Failure		400	{object}	authsdk.ErrorResponse	"unknown client or redirect_uri"
//	@Router			/v1/oauth2/authorize [get].
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	q := r.URL.Query()
	req := service.AuthorizeRequest{
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
		Prompt:       q.Get("prompt"),
	}

	target, err := h.AuthorizeService.Authorize(ctx, req, SessionFromContext(ctx).Login)
	switch {
	case errors.Is(err, service.ErrUnauthorizedRedirect):
		// Never redirect to an unverified URI.
		authsdk.ErrInvalidRequest.WithDescription("unknown client_id or unregistered redirect_uri").WriteError(w)
	case errors.Is(err, service.ErrLoginRequired):
		httpx.Redirect(w, r, httpx.AppendQuery(h.LoginPath, url.Values{"return": {r.URL.RequestURI()}}))
	case err != nil:
		log.Error("authorize failed", "client_id", req.ClientID, "err", err)
		authsdk.ErrServerError.WriteError(w)
	default:
		httpx.Redirect(w, r, target)
	}
}
