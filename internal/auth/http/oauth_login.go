package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/oauth"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// OAuthLoginHandler logs sessions in through external providers.
type OAuthLoginHandler struct {
	Providers    map[string]*oauth.Service
	Auth         *service.AuthService
	Registration *service.RegistrationService
	MFA          *service.MFAService
	Sessions     *SessionStore
	Store        store.Store
}

// HandleStart handles GET /v1/auth/oauth/{provider}/start
//
//	@Summary		Start login with an external provider
//	@Description	Redirects the browser to the provider's authorization endpoint. After the callback the browser is sent to return.
//	@Tags			OAuth login
//	@Param			provider	path	string	true	"Provider name, e.g. google"
//	@Param			return		query	string	false	"Local path to return to"
//	@Success		302
//	@Failure		404	{object}	authsdk.ErrorResponse	"unknown provider"
//	@Router			/v1/auth/oauth/{provider}/start [get].
func (h *OAuthLoginHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, ok := h.Providers[r.PathValue("provider")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", "no such identity provider")
		return
	}

	p := svc.NewProcess("")
	target := p.StartAuthenticate(localPath(r.URL.Query().Get("return")))
	SessionFromContext(ctx).startOAuth(svc.Name(), p)

	slogx.FromContext(ctx).Info("oauth login started", "provider", svc.Name())
	httpx.Redirect(w, r, target)
}

// HandleCallback handles GET /v1/auth/oauth/{provider}/callback
//
//	@Summary		Provider redirect target
//	@Description	Exchanges the code, identifies or registers the user and logs the session in, then redirects to the return path.
//	@Tags			OAuth login
//	@Param			provider	path	string	true	"Provider name"
//	@Param			code		query	string	false	"Authorization code"
//	@Param			state		query	string	true	"State issued by start"
//	@Param			error		query	string	false	"Error reported by the provider"
//	@Success		302
//	@Failure		400	{object}	authsdk.ErrorResponse	"no pending login"
//	@Failure		401	{object}	authsdk.ErrorResponse	"provider login failed"
//	@Router			/v1/auth/oauth/{provider}/callback [get].
func (h *OAuthLoginHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	sess := SessionFromContext(ctx)

	name := r.PathValue("provider")
	if _, ok := h.Providers[name]; !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", "no such identity provider")
		return
	}
	p := sess.takeOAuth(name)
	if p == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "no login pending for this provider")
		return
	}

	if err := p.HandleRedirect(ctx, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if p.State() != oauth.Authenticated {
		log.Info("oauth login failed", "provider", name, "error", p.Error())
		writeError(w, http.StatusUnauthorized, "oauth_failed", p.Error())
		return
	}

	identity := p.Identity()
	u, err := h.Auth.IdentifyUser(ctx, h.Store, identity)
	if err != nil {
		log.Error("identify user failed", "provider", name, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if !u.Valid() {
		u, err = h.Registration.RegisterIdentity(ctx, h.Store, identity)
		if err != nil && !u.Valid() {
			log.Error("register identity failed", "provider", name, "err", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		if err != nil {
			log.Error("failed to send confirmation mail", "user_id", u.ID(), "err", err)
		}
	}

	state, err := loginState(ctx, h.Auth, h.MFA, u, domain.WeakLogin)
	if err == nil {
		err = sess.Login.Login(ctx, u, state)
	}
	if err != nil {
		log.Error("oauth login failed", "user_id", u.ID(), "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.Redirect(w, r, localPath(p.ReturnURL()))
}

// localPath keeps redirects on this site.
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}
