package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/authkit/internal/auth/http"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/internal/auth/oauth"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	redisstore "github.com/aussiebroadwan/authkit/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/authkit/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	redis      *redis.Client // nil unless AUTH_REDIS_URL is set
	keyManager *jwtx.KeyManager
	metrics    *metrics.Metrics

	// Services
	authService         *service.AuthService
	passwordService     *service.PasswordService
	registrationService *service.RegistrationService
	mfaService          *service.MFAService
	clientService       *service.ClientService
	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	userInfoService     *service.UserInfoService
	housekeepingService *service.HousekeepingService

	providers map[string]*oauth.Service

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initMetrics()

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initServices(pepper); err != nil {
		app.closeStores()
		return nil, err
	}
	if err := app.initProviders(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeStores()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the stores of an application that was never Run.
func (app *Application) Close() error {
	return app.closeStores()
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) closeStores() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens SQLite, applies migrations and, when configured, moves
// issued codes and access tokens to Redis.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully")
	app.db = db

	if app.cfg.RedisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.redis = rdb
	app.db = store.WithIssuedTokens(db, redisstore.NewIssuedTokens(rdb, redisstore.DefaultPrefix))
	app.logger.Info("issued tokens stored in redis", "addr", opts.Addr)
	return nil
}

func (app *Application) initMetrics() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(reg)
}

// initServices initializes all business logic services
func (app *Application) initServices(pepper string) error {
	policy, err := domain.ParseIdentityPolicy(app.cfg.IdentityPolicy)
	if err != nil {
		return err
	}

	authCfg := service.DefaultAuthConfig()
	authCfg.IdentityPolicy = policy
	authCfg.TokenLength = app.cfg.TokenLength
	authCfg.AuthTokensEnabled = app.cfg.AuthTokensEnabled
	authCfg.AuthTokenValidity = app.cfg.AuthTokenValidity
	authCfg.AuthTokenUpdateEnabled = app.cfg.AuthTokenUpdateEnabled
	authCfg.EmailTokenValidity = app.cfg.EmailTokenValidity
	authCfg.EmailVerificationEnabled = app.cfg.EmailVerificationEnabled
	authCfg.EmailVerificationRequired = app.cfg.EmailVerificationRequired
	authCfg.BaseURL = app.cfg.BaseURL

	app.authService = service.NewAuthService(authCfg, service.LogMailer{}, app.metrics)

	// New hashes use argon2id; bcrypt hashes from imported accounts still verify
	// and are upgraded on the next successful login.
	app.passwordService = &service.PasswordService{
		Verifier: service.NewPasswordVerifier(cryptox.Argon2id{Pepper: pepper}, cryptox.BCrypt{}),
		Strength: &service.StrengthValidator{},
		Metrics:  app.metrics,
	}
	if app.cfg.ThrottlingEnabled {
		app.passwordService.Throttle = &service.AuthThrottle{}
	}

	app.registrationService = &service.RegistrationService{
		Auth:      app.authService,
		Passwords: app.passwordService,
	}
	app.mfaService = &service.MFAService{
		Issuer:   app.cfg.Issuer,
		Throttle: app.passwordService.Throttle,
	}

	secretHash := cryptox.BCrypt{}
	app.clientService = &service.ClientService{
		Store:      app.db,
		SecretHash: secretHash,
	}
	app.authorizeService = &service.AuthorizeService{
		Store:   app.db,
		CodeTTL: app.cfg.CodeValidity,
		Metrics: app.metrics,
	}
	app.tokenService = &service.TokenService{
		Store:      app.db,
		KeyManager: app.keyManager,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTokenValidity,
		SecretHash: secretHash,
		Metrics:    app.metrics,
	}
	app.userInfoService = &service.UserInfoService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// initProviders configures the enabled external identity providers. Each
// one redirects back to /v1/auth/oauth/{name}/callback.
func (app *Application) initProviders() error {
	app.providers = map[string]*oauth.Service{}

	stateSecret := app.cfg.OAuthStateSecret
	if stateSecret == "" {
		stateSecret = cryptox.MustGenerateToken(cryptox.TokenSize256)
	}
	callback := func(name string) string {
		return app.cfg.BaseURL + "/v1/auth/oauth/" + name + "/callback"
	}

	add := func(s *oauth.Service, err error) error {
		if err != nil {
			return fmt.Errorf("failed to configure identity provider: %w", err)
		}
		app.providers[s.Name()] = s
		app.logger.Info("identity provider enabled", "provider", s.Name())
		return nil
	}

	if c := app.cfg.OIDC; c.Enabled() {
		err := add(oauth.NewService(oauth.Config{
			Name:                  c.Name,
			Description:           c.Description,
			AuthorizationEndpoint: c.AuthorizationEndpoint,
			TokenEndpoint:         c.TokenEndpoint,
			UserInfoEndpoint:      c.UserInfoEndpoint,
			ClientID:              c.ClientID,
			ClientSecret:          c.ClientSecret,
			RedirectEndpoint:      callback(c.Name),
			Scope:                 c.Scope,
			ClientSecretMethod:    domain.HTTPAuthorizationHeader,
			StateSecret:           stateSecret,
		}, oauth.OidcFetcher{}, app.metrics))
		if err != nil {
			return err
		}
	}
	if c := app.cfg.Google; c.Enabled() {
		if err := add(oauth.NewGoogleService(c.ClientID, c.ClientSecret, callback("google"), stateSecret, app.metrics)); err != nil {
			return err
		}
	}
	if c := app.cfg.Facebook; c.Enabled() {
		if err := add(oauth.NewFacebookService(c.ClientID, c.ClientSecret, callback("facebook"), stateSecret, app.metrics)); err != nil {
			return err
		}
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.Sessions = httpapi.NewSessionStore(app.cfg.SessionTTL, app.cfg.SecureCookies)
	router.Limits = app.cfg.RateLimits
	router.Metrics = app.metrics
	if app.redis != nil {
		router.Cache = redisPinger{app.redis}
	}

	router.AuthService = app.authService
	router.PasswordService = app.passwordService
	router.RegistrationService = app.registrationService
	router.MFAService = app.mfaService
	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.UserInfoService = app.userInfoService
	router.Providers = app.providers
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }
