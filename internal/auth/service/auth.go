package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	DefaultTokenLength        = 32
	DefaultAuthTokenValidity  = 14 * 24 * time.Hour
	DefaultEmailTokenValidity = 3 * 24 * time.Hour
	DefaultEmailRedirectPath  = "/auth/mail/"
)

// tokenAttempts bounds retries when a fresh token hashes onto one in use.
const tokenAttempts = 3

var errAuthTokensDisabled = errors.New("auth tokens are not enabled")

// AuthConfig is read-only once the AuthService is in use.
type AuthConfig struct {
	IdentityPolicy domain.IdentityPolicy

	// TokenLength is the number of random characters in auth and email tokens.
	TokenLength int

	// TokenHash hashes tokens before they are stored. Tokens are random, so a
	// fast digest is enough.
	TokenHash cryptox.HashFunction

	AuthTokensEnabled bool
	AuthTokenValidity time.Duration

	// AuthTokenUpdateEnabled replaces an auth token each time it is used.
	// A browser replaying a stale cookie from a second tab is then logged
	// out; turn it off to keep tokens stable.
	AuthTokenUpdateEnabled bool

	EmailTokenValidity        time.Duration
	EmailVerificationEnabled  bool
	EmailVerificationRequired bool

	// EmailRedirectPath is the path under BaseURL where mailed links land.
	EmailRedirectPath string
	BaseURL           string
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		IdentityPolicy:         domain.LoginNameIdentity,
		TokenLength:            DefaultTokenLength,
		TokenHash:              cryptox.MD5{},
		AuthTokensEnabled:      true,
		AuthTokenValidity:      DefaultAuthTokenValidity,
		AuthTokenUpdateEnabled: true,
		EmailTokenValidity:     DefaultEmailTokenValidity,
		EmailRedirectPath:      DefaultEmailRedirectPath,
	}
}

type AuthTokenState int

const (
	AuthTokenInvalid AuthTokenState = iota
	AuthTokenValid
)

func (s AuthTokenState) String() string {
	if s == AuthTokenValid {
		return "valid"
	}
	return "invalid"
}

// AuthTokenResult is the outcome of presenting a remember-me token. When the
// token was rotated NewToken replaces it for NewTokenValidity; an empty
// NewToken means the presented token stays in use.
type AuthTokenResult struct {
	State            AuthTokenState
	User             User
	NewToken         string
	NewTokenValidity time.Duration
}

type EmailTokenState int

const (
	EmailTokenInvalid EmailTokenState = iota
	EmailTokenExpired
	EmailTokenUpdatePassword
	EmailTokenEmailConfirmed
)

func (s EmailTokenState) String() string {
	switch s {
	case EmailTokenExpired:
		return "expired"
	case EmailTokenUpdatePassword:
		return "update_password"
	case EmailTokenEmailConfirmed:
		return "email_confirmed"
	default:
		return "invalid"
	}
}

// EmailTokenResult carries the user for UpdatePassword and EmailConfirmed.
type EmailTokenResult struct {
	State EmailTokenState
	User  User
}

// AuthService issues and redeems remember-me and email tokens and matches
// identities to users.
type AuthService struct {
	Config  AuthConfig
	Mailer  Mailer
	Metrics *metrics.Metrics

	now func() time.Time
}

func NewAuthService(cfg AuthConfig, mailer Mailer, m *metrics.Metrics) *AuthService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &AuthService{Config: cfg, Mailer: mailer, Metrics: m}
}

func (s *AuthService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *AuthService) tokenLength() int {
	if s.Config.TokenLength > 0 {
		return s.Config.TokenLength
	}
	return DefaultTokenLength
}

func (s *AuthService) tokenHash() cryptox.HashFunction {
	if s.Config.TokenHash != nil {
		return s.Config.TokenHash
	}
	return cryptox.MD5{}
}

// randomToken returns a raw token and its stored hash.
func (s *AuthService) randomToken() (raw, hash string, err error) {
	raw, err = cryptox.RandomID(s.tokenLength())
	if err != nil {
		return "", "", err
	}
	return raw, s.hashToken(raw), nil
}

func (s *AuthService) hashToken(raw string) string {
	h, err := s.tokenHash().Compute(raw, "")
	if err != nil {
		// Digest functions do not fail; an empty hash matches nothing.
		return ""
	}
	return h
}

// CreateAuthToken stores a new remember-me token for u and returns its raw
// value. Only the hash is kept.
func (s *AuthService) CreateAuthToken(ctx context.Context, u User) (string, error) {
	if !u.Valid() {
		panic("service: CreateAuthToken on invalid User")
	}
	if !s.Config.AuthTokensEnabled {
		return "", errAuthTokensDisabled
	}

	for range tokenAttempts {
		raw, hash, err := s.randomToken()
		if err != nil {
			return "", fmt.Errorf("create auth token: %w", err)
		}
		err = u.AddAuthToken(ctx, domain.Token{Hash: hash, Expires: s.clock().Add(s.Config.AuthTokenValidity)})
		if errors.Is(err, store.ErrTokenCollision) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create auth token: %w", err)
		}
		return raw, nil
	}
	return "", fmt.Errorf("create auth token: %w", store.ErrTokenCollision)
}

// ProcessAuthToken redeems a remember-me token. With updates enabled the
// token is swapped for a new one keeping its expiry; if the old one vanished
// meanwhile a fresh token with full validity is issued instead.
func (s *AuthService) ProcessAuthToken(ctx context.Context, db store.Store, raw string) (AuthTokenResult, error) {
	if !s.Config.AuthTokensEnabled {
		return AuthTokenResult{}, errAuthTokensDisabled
	}
	l := slogx.FromContext(ctx)
	hash := s.hashToken(raw)

	var result AuthTokenResult
	var userID string
	err := withTx(ctx, db, func(tx store.Store) error {
		id, err := tx.AuthTokens().FindWithAuthToken(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		userID = id
		result.State = AuthTokenValid

		if !s.Config.AuthTokenUpdateEnabled {
			return nil
		}

		u := NewUser(tx, id)
		newRaw, newHash, err := s.randomToken()
		if err != nil {
			return err
		}
		validity, err := u.UpdateAuthToken(ctx, hash, newHash)
		if err != nil {
			return err
		}
		if validity < 0 {
			if err := u.RemoveAuthToken(ctx, hash); err != nil {
				return err
			}
			newRaw, err = s.CreateAuthToken(ctx, u)
			if err != nil {
				return err
			}
			result.NewTokenValidity = s.Config.AuthTokenValidity
			l.Info("auth token reissued", "user_id", id)
		} else {
			result.NewTokenValidity = time.Duration(validity) * time.Second
		}
		result.NewToken = newRaw
		return nil
	})
	if err != nil {
		return AuthTokenResult{}, fmt.Errorf("process auth token: %w", err)
	}

	s.Metrics.AuthToken(result.State.String())
	if result.State != AuthTokenValid {
		l.Info("auth token rejected")
		return AuthTokenResult{}, nil
	}
	result.User = NewUser(db, userID)
	return result, nil
}

// RemoveAuthToken forgets a remember-me token, typically on logout.
// Unknown tokens are ignored.
func (s *AuthService) RemoveAuthToken(ctx context.Context, db store.Store, raw string) error {
	if raw == "" {
		return nil
	}
	hash := s.hashToken(raw)
	return withTx(ctx, db, func(tx store.Store) error {
		id, err := tx.AuthTokens().FindWithAuthToken(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return NewUser(tx, id).RemoveAuthToken(ctx, hash)
	})
}

// IdentifyUser finds the user behind an identity. An unknown identity with a
// verified email is merged into the user owning that email when email
// verification is enabled. The invalid User means no match.
func (s *AuthService) IdentifyUser(ctx context.Context, db store.Store, identity domain.Identity) (User, error) {
	if !identity.Valid() {
		return User{}, nil
	}
	l := slogx.FromContext(ctx)

	var userID string
	err := withTx(ctx, db, func(tx store.Store) error {
		id, err := tx.Identities().FindWithIdentity(ctx, identity.Provider, identity.ID)
		if err == nil {
			userID = id
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if identity.Email == "" || !identity.EmailVerified || !s.Config.EmailVerificationEnabled {
			return nil
		}

		id, err = tx.Users().FindWithEmail(ctx, identity.Email)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		err = NewUser(tx, id).AddIdentity(ctx, identity.Provider, identity.ID)
		if errors.Is(err, store.ErrAlreadyExists) {
			l.Warn("identity not merged, user already has one for provider",
				"user_id", id, "provider", identity.Provider)
			return nil
		}
		if err != nil {
			return err
		}
		l.Info("identity merged by verified email", "user_id", id, "provider", identity.Provider)
		userID = id
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("identify user: %w", err)
	}
	if userID == "" {
		return User{}, nil
	}
	return NewUser(db, userID), nil
}

// VerifyEmailAddress records address as u's unverified email and mails a
// confirmation link to it.
func (s *AuthService) VerifyEmailAddress(ctx context.Context, u User, address string) error {
	if !u.Valid() {
		panic("service: VerifyEmailAddress on invalid User")
	}

	raw, hash, err := s.randomToken()
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	token := domain.Token{Hash: hash, Expires: s.clock().Add(s.Config.EmailTokenValidity)}

	var loginName string
	err = withTx(ctx, u.Store(), func(tx store.Store) error {
		tu := u.In(tx)
		if err := tu.SetUnverifiedEmail(ctx, address); err != nil {
			return err
		}
		if err := tu.SetEmailToken(ctx, token, domain.EmailTokenVerifyEmail); err != nil {
			return err
		}
		loginName, err = tu.Identity(ctx, domain.ProviderLoginName)
		return err
	})
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}

	return s.Mailer.SendConfirmMail(ctx, address, loginName, raw, s.EmailRedirectURL(raw))
}

// LostPassword mails a password reset link when email belongs to a user as
// a verified address. Unknown addresses are ignored without error.
func (s *AuthService) LostPassword(ctx context.Context, db store.Store, email string) error {
	raw, hash, err := s.randomToken()
	if err != nil {
		return fmt.Errorf("lost password: %w", err)
	}
	token := domain.Token{Hash: hash, Expires: s.clock().Add(s.Config.EmailTokenValidity)}

	var found bool
	var loginName string
	err = withTx(ctx, db, func(tx store.Store) error {
		id, err := tx.Users().FindWithEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		u := NewUser(tx, id)
		if err := u.SetEmailToken(ctx, token, domain.EmailTokenLostPassword); err != nil {
			return err
		}
		loginName, err = u.Identity(ctx, domain.ProviderLoginName)
		return err
	})
	if err != nil {
		return fmt.Errorf("lost password: %w", err)
	}
	if !found {
		slogx.FromContext(ctx).Debug("lost password for unknown address")
		return nil
	}

	return s.Mailer.SendLostPasswordMail(ctx, email, loginName, raw, s.EmailRedirectURL(raw))
}

// ProcessEmailToken redeems a mailed token. A lost-password token stays
// pending until the new password is stored.
func (s *AuthService) ProcessEmailToken(ctx context.Context, db store.Store, raw string) (EmailTokenResult, error) {
	hash := s.hashToken(raw)

	var result EmailTokenResult
	var userID string
	err := withTx(ctx, db, func(tx store.Store) error {
		id, err := tx.Users().FindWithEmailToken(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		u := NewUser(tx, id)

		token, role, err := u.EmailToken(ctx)
		if err != nil {
			return err
		}
		if s.clock().After(token.Expires) {
			result.State = EmailTokenExpired
			return u.ClearEmailToken(ctx)
		}

		userID = id
		switch role {
		case domain.EmailTokenLostPassword:
			result.State = EmailTokenUpdatePassword
			return nil

		default:
			unverified, err := u.UnverifiedEmail(ctx)
			if err != nil {
				return err
			}
			if err := u.ClearEmailToken(ctx); err != nil {
				return err
			}
			if err := u.SetEmail(ctx, unverified); err != nil {
				return err
			}
			if err := u.SetUnverifiedEmail(ctx, ""); err != nil {
				return err
			}
			result.State = EmailTokenEmailConfirmed
			return nil
		}
	})
	if err != nil {
		return EmailTokenResult{}, fmt.Errorf("process email token: %w", err)
	}

	s.Metrics.EmailToken(result.State.String())
	slogx.FromContext(ctx).Info("email token processed", "user_id", userID, "state", result.State.String())
	if userID != "" {
		result.User = NewUser(db, userID)
	}
	return result, nil
}

// EmailRedirectURL is the link mailed for token.
func (s *AuthService) EmailRedirectURL(token string) string {
	return strings.TrimSuffix(s.Config.BaseURL, "/") + s.redirectPath() + token
}

// ParseEmailToken extracts the token from a path below the email redirect
// path, or returns "".
func (s *AuthService) ParseEmailToken(path string) string {
	token, ok := strings.CutPrefix(path, s.redirectPath())
	if !ok || strings.Contains(token, "/") {
		return ""
	}
	return token
}

func (s *AuthService) redirectPath() string {
	if s.Config.EmailRedirectPath == "" {
		return DefaultEmailRedirectPath
	}
	return s.Config.EmailRedirectPath
}
