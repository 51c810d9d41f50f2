package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
)

// User is a handle on a stored user: the store it lives in and its id. All
// attributes are read through the store on every call. The zero User is
// invalid and its accessors panic.
type User struct {
	db store.Store
	id string
}

func NewUser(db store.Store, id string) User {
	return User{db: db, id: id}
}

func (u User) Valid() bool        { return u.db != nil }
func (u User) ID() string         { return u.id }
func (u User) Store() store.Store { return u.db }

// In returns the same user read through db, usually a transaction.
func (u User) In(db store.Store) User {
	if !u.Valid() {
		return u
	}
	return User{db: db, id: u.id}
}

// Equal compares identity, not the store the handle reads through.
func (u User) Equal(o User) bool {
	return u.Valid() == o.Valid() && u.id == o.id
}

func (u User) users() store.Users {
	if u.db == nil {
		panic("service: accessor called on invalid User")
	}
	return u.db.Users()
}

func (u User) identities() store.Identities {
	if u.db == nil {
		panic("service: accessor called on invalid User")
	}
	return u.db.Identities()
}

func (u User) authTokens() store.AuthTokens {
	if u.db == nil {
		panic("service: accessor called on invalid User")
	}
	return u.db.AuthTokens()
}

func (u User) Status(ctx context.Context) (domain.Status, error) {
	return u.users().Status(ctx, u.id)
}

func (u User) SetStatus(ctx context.Context, s domain.Status) error {
	return u.users().SetStatus(ctx, u.id, s)
}

func (u User) Password(ctx context.Context) (domain.PasswordHash, error) {
	return u.users().Password(ctx, u.id)
}

func (u User) SetPassword(ctx context.Context, h domain.PasswordHash) error {
	return u.users().SetPassword(ctx, u.id, h)
}

func (u User) Email(ctx context.Context) (string, error) {
	return u.users().Email(ctx, u.id)
}

func (u User) SetEmail(ctx context.Context, email string) error {
	return u.users().SetEmail(ctx, u.id, email)
}

func (u User) UnverifiedEmail(ctx context.Context) (string, error) {
	return u.users().UnverifiedEmail(ctx, u.id)
}

func (u User) SetUnverifiedEmail(ctx context.Context, email string) error {
	return u.users().SetUnverifiedEmail(ctx, u.id, email)
}

func (u User) EmailToken(ctx context.Context) (domain.Token, domain.EmailTokenRole, error) {
	return u.users().EmailToken(ctx, u.id)
}

func (u User) SetEmailToken(ctx context.Context, t domain.Token, role domain.EmailTokenRole) error {
	return u.users().SetEmailToken(ctx, u.id, t, role)
}

func (u User) ClearEmailToken(ctx context.Context) error {
	return u.users().SetEmailToken(ctx, u.id, domain.Token{}, domain.EmailTokenVerifyEmail)
}

func (u User) FailedLoginAttempts(ctx context.Context) (int, error) {
	return u.users().FailedLoginAttempts(ctx, u.id)
}

func (u User) LastLoginAttempt(ctx context.Context) (time.Time, error) {
	return u.users().LastLoginAttempt(ctx, u.id)
}

// SetAuthenticated records the outcome of a login attempt: success resets
// the failure counter, failure increments it. The attempt time is always
// stamped.
func (u User) SetAuthenticated(ctx context.Context, ok bool) error {
	users := u.users()
	n := 0
	if !ok {
		failed, err := users.FailedLoginAttempts(ctx, u.id)
		if err != nil {
			return err
		}
		n = failed + 1
	}
	if err := users.SetFailedLoginAttempts(ctx, u.id, n); err != nil {
		return err
	}
	return users.SetLastLoginAttempt(ctx, u.id, time.Now())
}

func (u User) Identity(ctx context.Context, provider string) (string, error) {
	return u.identities().Identity(ctx, u.id, provider)
}

func (u User) AddIdentity(ctx context.Context, provider, identity string) error {
	return u.identities().AddIdentity(ctx, u.id, provider, identity)
}

func (u User) SetIdentity(ctx context.Context, provider, identity string) error {
	return u.identities().SetIdentity(ctx, u.id, provider, identity)
}

func (u User) RemoveIdentity(ctx context.Context, provider string) error {
	return u.identities().RemoveIdentity(ctx, u.id, provider)
}

func (u User) AddAuthToken(ctx context.Context, t domain.Token) error {
	return u.authTokens().AddAuthToken(ctx, u.id, t)
}

func (u User) RemoveAuthToken(ctx context.Context, hash string) error {
	return u.authTokens().RemoveAuthToken(ctx, u.id, hash)
}

func (u User) UpdateAuthToken(ctx context.Context, oldHash, newHash string) (int, error) {
	return u.authTokens().UpdateAuthToken(ctx, u.id, oldHash, newHash)
}

func (u User) MFASecret(ctx context.Context) (string, error) {
	return u.users().MFASecret(ctx, u.id)
}

func (u User) SetMFASecret(ctx context.Context, secret string) error {
	return u.users().SetMFASecret(ctx, u.id, secret)
}

func (u User) MFAEnabled(ctx context.Context) (bool, error) {
	return u.users().MFAEnabled(ctx, u.id)
}

func (u User) SetMFAEnabled(ctx context.Context, enabled bool) error {
	return u.users().SetMFAEnabled(ctx, u.id, enabled)
}

func (u User) JSONClaim(ctx context.Context, claim string) (any, error) {
	return u.users().JSONClaim(ctx, u.id, claim)
}

// OAuthClient is a handle on a relying party registered with the identity
// provider.
type OAuthClient struct {
	db store.Store
	id string
}

func NewOAuthClient(db store.Store, id string) OAuthClient {
	return OAuthClient{db: db, id: id}
}

func (c OAuthClient) Valid() bool { return c.db != nil }
func (c OAuthClient) ID() string  { return c.id }

func (c OAuthClient) clients() store.Clients {
	if c.db == nil {
		panic("service: accessor called on invalid OAuthClient")
	}
	return c.db.Clients()
}

func (c OAuthClient) ClientID(ctx context.Context) (string, error) {
	return c.clients().ClientID(ctx, c.id)
}

func (c OAuthClient) RedirectURIs(ctx context.Context) ([]string, error) {
	return c.clients().RedirectURIs(ctx, c.id)
}

func (c OAuthClient) Confidential(ctx context.Context) (bool, error) {
	return c.clients().Confidential(ctx, c.id)
}

func (c OAuthClient) AuthMethod(ctx context.Context) (domain.ClientSecretMethod, error) {
	return c.clients().AuthMethod(ctx, c.id)
}

func (c OAuthClient) Secret(ctx context.Context) (string, error) {
	return c.clients().Secret(ctx, c.id)
}

// IssuedToken is a handle on a code or token handed out by the identity
// provider.
type IssuedToken struct {
	db store.Store
	id string
}

func NewIssuedToken(db store.Store, id string) IssuedToken {
	return IssuedToken{db: db, id: id}
}

func (t IssuedToken) Valid() bool { return t.db != nil }
func (t IssuedToken) ID() string  { return t.id }

func (t IssuedToken) tokens() store.IssuedTokens {
	if t.db == nil {
		panic("service: accessor called on invalid IssuedToken")
	}
	return t.db.IssuedTokens()
}

func (t IssuedToken) User(ctx context.Context) (User, error) {
	id, err := t.tokens().User(ctx, t.id)
	if err != nil {
		return User{}, err
	}
	return NewUser(t.db, id), nil
}

func (t IssuedToken) AuthClient(ctx context.Context) (OAuthClient, error) {
	id, err := t.tokens().AuthClient(ctx, t.id)
	if err != nil {
		return OAuthClient{}, err
	}
	return NewOAuthClient(t.db, id), nil
}

func (t IssuedToken) Scope(ctx context.Context) (string, error) {
	return t.tokens().Scope(ctx, t.id)
}

func (t IssuedToken) RedirectURI(ctx context.Context) (string, error) {
	return t.tokens().RedirectURI(ctx, t.id)
}

func (t IssuedToken) ExpirationTime(ctx context.Context) (time.Time, error) {
	return t.tokens().ExpirationTime(ctx, t.id)
}

func (t IssuedToken) Purpose(ctx context.Context) (string, error) {
	return t.tokens().Purpose(ctx, t.id)
}

func (t IssuedToken) AuthTime(ctx context.Context) (time.Time, error) {
	return t.tokens().AuthTime(ctx, t.id)
}
