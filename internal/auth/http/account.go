package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// AccountHandler serves the password, remember-me and email token flows of
// the browser session.
type AccountHandler struct {
	Auth         *service.AuthService
	Passwords    *service.PasswordService
	Registration *service.RegistrationService
	MFA          *service.MFAService
	Sessions     *SessionStore
	Store        store.Store
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register a password account
//	@Description	Creates a user under the configured identity policy and logs the session in. With email verification enabled a confirmation link is mailed.
//	@Tags			Account
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			login_name	formData	string					false	"Login name (required by the loginname policy)"
//	@Param			email		formData	string					false	"Email address (required by the email policy)"
//	@Param			password	formData	string					true	"Password"
//	@Success		201			{object}	authsdk.SessionResponse	"logged_in, state, user_id"
//	@Failure		400			{object}	authsdk.ErrorResponse	"invalid_request or weak_password"
//	@Failure		409			{object}	authsdk.ErrorResponse	"identity_taken"
//	@Failure		500			{object}	authsdk.ErrorResponse	"server_error"
//	@Router			/v1/auth/register [post].
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	u, err := h.Registration.Register(ctx, h.Store, service.Registration{
		LoginName: r.PostFormValue("login_name"),
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
	})
	switch {
	case errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	case errors.Is(err, service.ErrIdentityTaken):
		writeError(w, http.StatusConflict, "identity_taken", "login name or email is already in use")
		return
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil && u.Valid():
		// The account exists; only the confirmation mail failed.
		log.Error("failed to send confirmation mail", "user_id", u.ID(), "err", err)
	case err != nil:
		log.Error("registration failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	login := SessionFromContext(ctx).Login
	if err := h.login(ctx, login, u, domain.StrongLogin); err != nil {
		log.Error("failed to log in new user", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse(login))
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in with a password
//	@Description	Verifies the password subject to login throttling. With remember=true a remember-me cookie is set. Users with TOTP enabled end up in the requires_mfa state.
//	@Tags			Account
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			identity	formData	string					true	"Login name or email address"
//	@Param			password	formData	string					true	"Password"
//	@Param			remember	formData	bool					false	"Set a remember-me cookie"
//	@Success		200			{object}	authsdk.SessionResponse	"logged_in, state, user_id"
//	@Failure		401			{object}	authsdk.ErrorResponse	"invalid_credentials"
//	@Failure		403			{object}	authsdk.SessionResponse	"account disabled"
//	@Failure		429			{object}	authsdk.ErrorResponse	"login_throttled"
//	@Router			/v1/auth/login [post].
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	identity := strings.TrimSpace(r.PostFormValue("identity"))
	password := r.PostFormValue("password")
	remember, _ := strconv.ParseBool(r.PostFormValue("remember"))

	if identity == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity and password are required")
		return
	}

	u, err := h.findUser(ctx, identity)
	if err != nil {
		log.Error("user lookup failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if !u.Valid() {
		h.Passwords.VerifyUnknown(ctx, password)
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "unknown user or wrong password")
		return
	}

	if !h.checkPassword(w, r, u, password) {
		return
	}

	login := SessionFromContext(ctx).Login
	if err := h.login(ctx, login, u, domain.StrongLogin); err != nil {
		log.Error("login failed", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	if login.State() == domain.Disabled {
		httpx.WriteJSON(w, http.StatusForbidden, sessionResponse(login))
		return
	}

	if remember && h.Auth.Config.AuthTokensEnabled && login.State() == domain.StrongLogin {
		raw, err := h.Auth.CreateAuthToken(ctx, u)
		if err != nil {
			log.Error("failed to create remember-me token", "user_id", u.ID(), "err", err)
		} else {
			h.Sessions.setCookie(w, RememberCookie, raw, int(h.Auth.Config.AuthTokenValidity.Seconds()))
		}
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse(login))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Ends the session and forgets the remember-me token.
//	@Tags			Account
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse	"logged_out"
//	@Router			/v1/auth/logout [post].
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sess, ok := h.Sessions.Get(r); ok {
		sess.Login.Logout()
	}
	h.Sessions.Destroy(w, r)

	if c, err := r.Cookie(RememberCookie); err == nil {
		if err := h.Auth.RemoveAuthToken(ctx, h.Store, c.Value); err != nil {
			slogx.FromContext(ctx).Error("failed to remove remember-me token", "err", err)
		}
		h.Sessions.setCookie(w, RememberCookie, "", -1)
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{State: domain.LoggedOut.String()})
}

// HandleSession handles GET /v1/auth/session
//
//	@Summary		Session state
//	@Tags			Account
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse	"logged_in, state, user_id"
//	@Router			/v1/auth/session [get].
func (h *AccountHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(SessionFromContext(r.Context()).Login))
}

// HandleLostPassword handles POST /v1/auth/lost-password
//
//	@Summary		Request a password reset mail
//	@Description	Mails a reset link when the address belongs to a user. The answer does not tell whether it does.
//	@Tags			Account
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			email	formData	string	true	"Verified email address"
//	@Success		202
//	@Failure		400	{object}	authsdk.ErrorResponse	"invalid_request"
//	@Router			/v1/auth/lost-password [post].
func (h *AccountHandler) HandleLostPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	if err := h.Auth.LostPassword(ctx, h.Store, email); err != nil {
		slogx.FromContext(ctx).Error("lost password failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleEmailToken handles the mailed link and POST /v1/auth/verify-email
//
//	@Summary		Redeem an email token
//	@Description	A confirmation token verifies the address and logs the session in. A lost password token answers update_password; the new password is then posted to /v1/auth/password/reset with the same token.
//	@Tags			Account
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			token	formData	string						true	"Token from the mailed link"
//	@Success		200		{object}	authsdk.EmailTokenResponse	"email_confirmed or update_password"
//	@Failure		400		{object}	authsdk.EmailTokenResponse	"invalid or expired"
//	@Router			/v1/auth/verify-email [post].
func (h *AccountHandler) HandleEmailToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := r.PathValue("token")
	if token == "" {
		if err := r.ParseForm(); err != nil {
			authsdk.ErrInvalidFormBody.WriteError(w)
			return
		}
		token = r.PostFormValue("token")
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	res, err := h.Auth.ProcessEmailToken(ctx, h.Store, token)
	if err != nil {
		log.Error("email token processing failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.EmailTokenResponse{State: res.State.String()}
	switch res.State {
	case service.EmailTokenEmailConfirmed:
		if err := h.login(ctx, SessionFromContext(ctx).Login, res.User, domain.StrongLogin); err != nil {
			log.Error("login after email confirmation failed", "user_id", res.User.ID(), "err", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		resp.UserID = res.User.ID()
		httpx.WriteJSON(w, http.StatusOK, resp)
	case service.EmailTokenUpdatePassword:
		httpx.WriteJSON(w, http.StatusOK, resp)
	default:
		httpx.WriteJSON(w, http.StatusBadRequest, resp)
	}
}

// HandleResetPassword handles POST /v1/auth/password/reset
//
//	@Summary		Set a new password with a lost password token
//	@Tags			Account
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			token		formData	string					true	"Token from the lost password mail"
//	@Param			password	formData	string					true	"New password"
//	@Success		200			{object}	authsdk.SessionResponse	"logged_in, state, user_id"
//	@Failure		400			{object}	authsdk.ErrorResponse	"invalid_token or weak_password"
//	@Router			/v1/auth/password/reset [post].
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	token := r.PostFormValue("token")
	password := r.PostFormValue("password")
	if token == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token and password are required")
		return
	}

	res, err := h.Auth.ProcessEmailToken(ctx, h.Store, token)
	if err != nil {
		log.Error("email token processing failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if res.State != service.EmailTokenUpdatePassword {
		writeError(w, http.StatusBadRequest, "invalid_token", "the reset link is invalid or expired")
		return
	}

	if !h.storePassword(w, r, res.User, password) {
		return
	}

	login := SessionFromContext(ctx).Login
	if err := h.login(ctx, login, res.User, domain.StrongLogin); err != nil {
		log.Error("login after password reset failed", "user_id", res.User.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(login))
}

// HandleChangePassword handles POST /v1/auth/password
//
//	@Summary		Change the password of the logged in user
//	@Tags			Account
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			current_password	formData	string					true	"Current password"
//	@Param			new_password		formData	string					true	"New password"
//	@Success		200					{object}	authsdk.SessionResponse	"logged_in, state, user_id"
//	@Failure		400					{object}	authsdk.ErrorResponse	"weak_password"
//	@Failure		401					{object}	authsdk.ErrorResponse	"login_required or invalid_credentials"
//	@Failure		429					{object}	authsdk.ErrorResponse	"login_throttled"
//	@Router			/v1/auth/password [post].
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	login := SessionFromContext(ctx).Login
	if !login.LoggedIn() {
		authsdk.ErrLoginRequired.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}
	current := r.PostFormValue("current_password")
	next := r.PostFormValue("new_password")
	if current == "" || next == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "current_password and new_password are required")
		return
	}

	u := login.User()
	if !h.checkPassword(w, r, u, current) {
		return
	}
	if !h.storePassword(w, r, u, next) {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(login))
}

// findUser resolves what was typed at login under the identity policy.
// The invalid User means no match.
func (h *AccountHandler) findUser(ctx context.Context, identity string) (service.User, error) {
	id, err := h.Store.Identities().FindWithIdentity(ctx, domain.ProviderLoginName, identity)
	if err == nil {
		return service.NewUser(h.Store, id), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return service.User{}, err
	}

	if h.Auth.Config.IdentityPolicy == domain.LoginNameIdentity || !strings.Contains(identity, "@") {
		return service.User{}, nil
	}
	id, err = h.Store.Users().FindWithEmail(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return service.User{}, nil
	}
	if err != nil {
		return service.User{}, err
	}
	return service.NewUser(h.Store, id), nil
}

// checkPassword writes the error response and returns false unless password
// is valid for u.
func (h *AccountHandler) checkPassword(w http.ResponseWriter, r *http.Request, u service.User, password string) bool {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	result, err := h.Passwords.VerifyPassword(ctx, u, password)
	if err != nil {
		log.Error("password verification failed", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return false
	}

	switch result {
	case service.PasswordValid:
		return true
	case service.LoginThrottling:
		if t := h.Passwords.AuthThrottle(); t != nil {
			if delay, err := t.DelayForNextAttempt(ctx, u); err == nil && delay > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(delay))
			}
		}
		writeError(w, http.StatusTooManyRequests, "login_throttled", "too many failed attempts, wait before retrying")
	default:
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "unknown user or wrong password")
	}
	return false
}

// storePassword checks the strength of password and stores it for u.
func (h *AccountHandler) storePassword(w http.ResponseWriter, r *http.Request, u service.User, password string) bool {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	loginName, err := u.Identity(ctx, domain.ProviderLoginName)
	if err != nil {
		log.Error("failed to read login name", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return false
	}
	email, err := u.Email(ctx)
	if err != nil {
		log.Error("failed to read email", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return false
	}
	if res := h.Passwords.ValidatePassword(password, loginName, email); !res.Valid {
		writeError(w, http.StatusBadRequest, "weak_password", res.Reason)
		return false
	}

	if err := h.Passwords.UpdatePassword(ctx, u, password); err != nil {
		log.Error("failed to update password", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return false
	}
	return true
}

func (h *AccountHandler) login(ctx context.Context, login *service.Login, u service.User, want domain.LoginState) error {
	state, err := loginState(ctx, h.Auth, h.MFA, u, want)
	if err != nil {
		return err
	}
	return login.Login(ctx, u, state)
}

// loginState applies the account rules on top of the wanted state: an
// account without a verified email is disabled when verification is
// required, and one with TOTP enabled still needs its second factor.
func loginState(ctx context.Context, auth *service.AuthService, mfa *service.MFAService, u service.User, want domain.LoginState) (domain.LoginState, error) {
	if auth.Config.EmailVerificationRequired {
		email, err := u.Email(ctx)
		if err != nil {
			return domain.LoggedOut, err
		}
		if email == "" {
			return domain.Disabled, nil
		}
	}
	if mfa != nil {
		required, err := mfa.Required(ctx, u)
		if err != nil {
			return domain.LoggedOut, err
		}
		if required {
			return domain.RequiresMfa, nil
		}
	}
	return want, nil
}

func sessionResponse(login *service.Login) authsdk.SessionResponse {
	resp := authsdk.SessionResponse{
		LoggedIn: login.LoggedIn(),
		State:    login.State().String(),
	}
	if u := login.User(); u.Valid() {
		resp.UserID = u.ID()
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	httpx.WriteJSON(w, status, authsdk.ErrorResponse{
		Error:            code,
		ErrorDescription: desc,
	})
}
