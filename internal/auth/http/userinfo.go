package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

type UserInfoHandler struct {
	UserInfoService *service.UserInfoService
}

// ServeHTTP handles the OpenID Connect UserInfo endpoint.
//
//	@Summary		Get user information
//	@Description	Returns the claims of the user the access token was issued for, limited to its scope: sub always, name with profile, email and email_verified with email.
//	@Tags			OAuth2
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse	"sub and granted claims"
//	@Failure		400	{object}	authsdk.ErrorResponse		"Missing access token"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or expired access token"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/oauth2/userinfo [get].
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, _ := httpx.BearerToken(r)
	claims, err := h.UserInfoService.Claims(ctx, token)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		httpx.WriteBearerError(w, http.StatusBadRequest, "invalid_request", "missing access token")
	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteBearerError(w, http.StatusUnauthorized, "invalid_token", "the access token is invalid or expired")
	case err != nil:
		slogx.FromContext(ctx).Error("userinfo failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	default:
		httpx.WriteJSON(w, http.StatusOK, claims)
	}
}
