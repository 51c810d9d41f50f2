package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/internal/auth/oauth"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"

	_ "github.com/aussiebroadwan/authkit/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// DefaultLoginPath is where the authorization endpoint sends browsers
// without a logged in session.
const DefaultLoginPath = "/login"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store     store.Store
	Sessions  *SessionStore
	Limits    httpx.RateLimits
	Metrics   *metrics.Metrics
	Cache     Pinger // optional, reported by /readyz
	LoginPath string

	AuthService         *service.AuthService
	PasswordService     *service.PasswordService
	RegistrationService *service.RegistrationService
	MFAService          *service.MFAService
	AuthorizeService    *service.AuthorizeService
	TokenService        *service.TokenService
	UserInfoService     *service.UserInfoService

	// Providers are the external identity providers by name.
	Providers map[string]*oauth.Service
}

func NewRouter(
	keys *jwtx.KeyManager,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Sessions:     NewSessionStore(DefaultSessionTTL, false),
		Limits:       httpx.DefaultRateLimits(),
		LoginPath:    DefaultLoginPath,
		Providers:    map[string]*oauth.Service{},
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAccount()
	r.registerMFA()
	r.registerOAuthLogin()
	r.registerIdentityProvider()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			authkit Authentication Service API
//	@version		0.1.0
//	@description	Password, remember-me, email verification and TOTP authentication, login through external OAuth 2.0 / OpenID Connect providers, and an OpenID Connect identity provider (authorization code flow).
//	@description
//	@description				ID tokens are signed with EdDSA or RS256 and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/authkit
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token issued by the token endpoint. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{
		Auth:         r.AuthService,
		Passwords:    r.PasswordService,
		Registration: r.RegistrationService,
		MFA:          r.MFAService,
		Sessions:     r.Sessions,
		Store:        r.store,
	}
	session := r.sessionMiddleware()

	// Credential endpoints - strict rate limit by IP
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.Limits.Strict),
			session,
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndFormField(r.Limits.Strict, "identity"),
			session,
		),
	)
	r.Mux.Handle("POST /v1/auth/password/reset",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(r.Limits.Strict),
			session,
		),
	)
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.RateLimitByIP(r.Limits.Strict),
			session,
		),
	)

	// Mail driven flows - moderate rate limit
	r.Mux.Handle("POST /v1/auth/lost-password",
		httpx.Chain(http.HandlerFunc(h.HandleLostPassword),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify-email",
		httpx.Chain(http.HandlerFunc(h.HandleEmailToken),
			httpx.RateLimitByIP(r.Limits.Moderate),
			session,
		),
	)
	r.Mux.Handle("GET "+r.emailRedirectPath()+"{token}",
		httpx.Chain(http.HandlerFunc(h.HandleEmailToken),
			httpx.RateLimitByIP(r.Limits.Moderate),
			session,
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(http.HandlerFunc(h.HandleSession),
			httpx.RateLimitByIP(r.Limits.Public),
			session,
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}
	session := r.sessionMiddleware()

	r.Mux.Handle("POST /v1/auth/mfa/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			httpx.RateLimitByIP(r.Limits.Moderate),
			session,
		),
	)

	// Code checks - strict rate limit (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /v1/auth/mfa/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			httpx.RateLimitByIP(r.Limits.Strict),
			session,
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(r.Limits.Strict),
			session,
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.RateLimitByIP(r.Limits.Strict),
			session,
		),
	)
}

func (r *Router) registerOAuthLogin() {
	h := &OAuthLoginHandler{
		Providers:    r.Providers,
		Auth:         r.AuthService,
		Registration: r.RegistrationService,
		MFA:          r.MFAService,
		Sessions:     r.Sessions,
		Store:        r.store,
	}
	session := r.sessionMiddleware()

	r.Mux.Handle("GET /v1/auth/oauth/{provider}/start",
		httpx.Chain(http.HandlerFunc(h.HandleStart),
			httpx.RateLimitByIP(r.Limits.Moderate),
			session,
		),
	)
	r.Mux.Handle("GET /v1/auth/oauth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(r.Limits.Moderate),
			session,
		),
	)
}

func (r *Router) registerIdentityProvider() {
	authorizeHandler := &AuthorizeHandler{
		AuthorizeService: r.AuthorizeService,
		LoginPath:        r.LoginPath,
	}

	// GET /authorize - lenient rate limit (browser redirects)
	r.Mux.Handle("GET /v1/oauth2/authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIP(r.Limits.Moderate),
			r.sessionMiddleware(),
		),
	)

	// POST /token - strict rate limit by IP
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)

	userInfoHandler := &UserInfoHandler{UserInfoService: r.UserInfoService}
	for _, method := range []string{"GET", "POST"} {
		r.Mux.Handle(method+" /v1/oauth2/userinfo",
			httpx.Chain(userInfoHandler,
				httpx.RateLimitByIP(r.Limits.Public),
			),
		)
	}

	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.issuer, r.keys.Algorithm()),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys.KeySet),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - monitoring systems may poll frequently
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys.KeySet, r.Cache),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}

func (r *Router) emailRedirectPath() string {
	if r.AuthService.Config.EmailRedirectPath == "" {
		return service.DefaultEmailRedirectPath
	}
	return r.AuthService.Config.EmailRedirectPath
}

// sessionMiddleware attaches the caller's session, creating one if needed,
// and logs the user in from a remember-me cookie when the session is not
// logged in yet.
func (r *Router) sessionMiddleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			log := slogx.FromContext(ctx)

			sess, err := r.Sessions.Ensure(w, req)
			if err != nil {
				log.Error("failed to start session", "err", err)
				writeError(w, http.StatusInternalServerError, "server_error", "failed to start session")
				return
			}

			if sess.Login.State() == domain.LoggedOut && r.AuthService.Config.AuthTokensEnabled {
				if c, err := req.Cookie(RememberCookie); err == nil && c.Value != "" {
					r.restoreLogin(w, req, sess, c.Value)
				}
			}

			next.ServeHTTP(w, req.WithContext(withSession(ctx, sess)))
		})
	}
}

func (r *Router) restoreLogin(w http.ResponseWriter, req *http.Request, sess *Session, raw string) {
	ctx := req.Context()
	log := slogx.FromContext(ctx)

	res, err := r.AuthService.ProcessAuthToken(ctx, r.store, raw)
	if err != nil {
		log.Error("failed to process remember-me token", "err", err)
		return
	}
	if res.State != service.AuthTokenValid {
		r.Sessions.setCookie(w, RememberCookie, "", -1)
		return
	}

	state, err := loginState(ctx, r.AuthService, r.MFAService, res.User, domain.WeakLogin)
	if err != nil {
		log.Error("failed to resolve login state", "err", err)
		return
	}
	if err := sess.Login.Login(ctx, res.User, state); err != nil {
		log.Error("failed to log in from remember-me token", "err", err)
		return
	}
	if res.NewToken != "" {
		r.Sessions.setCookie(w, RememberCookie, res.NewToken, int(res.NewTokenValidity.Seconds()))
	}
}
