package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// MFAHandler handles all MFA-related endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/auth/mfa/enroll
//
//	@Summary		Enroll in TOTP MFA
//	@Description	Generates a TOTP secret for the logged in user. MFA is enabled once a code is confirmed.
//	@Tags			MFA
//	@Produce		json
//	@Success		200	{object}	authsdk.MFAEnrollResponse	"secret and otpauth URL"
//	@Failure		400	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse		"login_required"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/auth/mfa/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	login := SessionFromContext(ctx).Login
	if !login.LoggedIn() {
		authsdk.ErrLoginRequired.WriteError(w)
		return
	}
	u := login.User()

	account, err := u.Identity(ctx, domain.ProviderLoginName)
	if err != nil {
		log.Error("failed to read login name", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if account == "" {
		account = u.ID()
	}

	enrollment, err := h.MFAService.EnrollTOTP(ctx, u, account)
	if err != nil {
		if errors.Is(err, service.ErrMFAAlreadyEnabled) {
			writeError(w, http.StatusBadRequest, "mfa_already_enabled", "MFA is already enabled for this user")
			return
		}
		log.Error("failed to enroll TOTP", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAEnrollResponse{
		Secret: enrollment.Secret,
		URL:    enrollment.URL,
	})
}

// HandleConfirm handles POST /v1/auth/mfa/confirm
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Enables MFA once a code from the enrolled secret matches.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.MFACodeRequest	true	"TOTP code"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"invalid_code, mfa_not_enrolled or mfa_already_enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse	"login_required"
//	@Router			/v1/auth/mfa/confirm [post].
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	login := SessionFromContext(ctx).Login
	if !login.LoggedIn() {
		authsdk.ErrLoginRequired.WriteError(w)
		return
	}
	code, ok := readCode(w, r)
	if !ok {
		return
	}

	if err := h.MFAService.ConfirmTOTP(ctx, login.User(), code); err != nil {
		writeMFAError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerify handles POST /v1/auth/mfa/verify
//
//	@Summary		Complete a login with a TOTP code
//	@Description	Moves a session in the requires_mfa state to a strong login.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFACodeRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.SessionResponse	"logged_in, state, user_id"
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_code or mfa_not_enabled"
//	@Failure		429		{object}	authsdk.ErrorResponse	"mfa_throttled"
//	@Router			/v1/auth/mfa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, ok := readCode(w, r)
	if !ok {
		return
	}

	login := SessionFromContext(ctx).Login
	if err := h.MFAService.CompleteLogin(ctx, login, code); err != nil {
		writeMFAError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(login))
}

// HandleDisable handles POST /v1/auth/mfa/disable
//
//	@Summary		Disable TOTP MFA
//	@Description	Turns MFA off and forgets the secret. Requires a current code.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.MFACodeRequest	true	"TOTP code"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"invalid_code or mfa_not_enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse	"login_required"
//	@Failure		429	{object}	authsdk.ErrorResponse	"mfa_throttled"
//	@Router			/v1/auth/mfa/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	login := SessionFromContext(ctx).Login
	if !login.LoggedIn() {
		authsdk.ErrLoginRequired.WriteError(w)
		return
	}
	code, ok := readCode(w, r)
	if !ok {
		return
	}

	if err := h.MFAService.DisableTOTP(ctx, login.User(), code); err != nil {
		writeMFAError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req authsdk.MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "a JSON body with a code is required")
		return "", false
	}
	return req.Code, true
}

func writeMFAError(w http.ResponseWriter, r *http.Request, err error) {
	var throttled *service.MFAThrottledError
	switch {
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(throttled.RetryAfter))
		writeError(w, http.StatusTooManyRequests, "mfa_throttled", "too many failed attempts, wait before retrying")
	case errors.Is(err, service.ErrInvalidTOTPCode):
		writeError(w, http.StatusBadRequest, "invalid_code", "invalid TOTP code")
	case errors.Is(err, service.ErrMFANotEnrolled):
		writeError(w, http.StatusBadRequest, "mfa_not_enrolled", "enroll before confirming")
	case errors.Is(err, service.ErrMFANotEnabled):
		writeError(w, http.StatusBadRequest, "mfa_not_enabled", "MFA is not enabled")
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		writeError(w, http.StatusBadRequest, "mfa_already_enabled", "MFA is already enabled for this user")
	default:
		slogx.FromContext(r.Context()).Error("mfa request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
