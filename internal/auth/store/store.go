package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrAlreadyExists  = errors.New("store: already exists")
	ErrTokenCollision = errors.New("store: token hash collision")
)

// MaxAuthTokensPerUser bounds the remember-me tokens kept per user. Adding one
// beyond the limit drops the oldest.
const MaxAuthTokensPerUser = 50

// Store is the root data access interface, the user database of the auth
// core. Sub-repositories keep concerns apart and make it impossible to start a
// transaction from within one.
type Store interface {
	Users() Users
	Identities() Identities
	AuthTokens() AuthTokens
	Clients() Clients
	IssuedTokens() IssuedTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users are opaque ids with attributes. Find* methods return ErrNotFound
// when nothing matches.
type Users interface {
	// RegisterNew creates an empty user and returns its id.
	RegisterNew(ctx context.Context) (string, error)
	FindWithID(ctx context.Context, id string) (string, error)
	DeleteUser(ctx context.Context, id string) error

	Status(ctx context.Context, id string) (domain.Status, error)
	SetStatus(ctx context.Context, id string, s domain.Status) error

	Password(ctx context.Context, id string) (domain.PasswordHash, error)
	SetPassword(ctx context.Context, id string, h domain.PasswordHash) error

	// Email is the verified address. FindWithEmail only matches it.
	Email(ctx context.Context, id string) (string, error)
	SetEmail(ctx context.Context, id, email string) error
	UnverifiedEmail(ctx context.Context, id string) (string, error)
	SetUnverifiedEmail(ctx context.Context, id, email string) error
	FindWithEmail(ctx context.Context, email string) (string, error)

	// EmailToken returns the empty token when none is pending.
	EmailToken(ctx context.Context, id string) (domain.Token, domain.EmailTokenRole, error)
	SetEmailToken(ctx context.Context, id string, t domain.Token, role domain.EmailTokenRole) error
	FindWithEmailToken(ctx context.Context, hash string) (string, error)

	FailedLoginAttempts(ctx context.Context, id string) (int, error)
	SetFailedLoginAttempts(ctx context.Context, id string, n int) error
	LastLoginAttempt(ctx context.Context, id string) (time.Time, error)
	SetLastLoginAttempt(ctx context.Context, id string, t time.Time) error

	MFASecret(ctx context.Context, id string) (string, error)
	SetMFASecret(ctx context.Context, id, secret string) error
	MFAEnabled(ctx context.Context, id string) (bool, error)
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error

	// JSONClaim returns the value of an OpenID claim for the user, or nil.
	JSONClaim(ctx context.Context, id, claim string) (any, error)
}

// Identities map (provider, identity) pairs to users. A pair belongs to at
// most one user.
type Identities interface {
	FindWithIdentity(ctx context.Context, provider, identity string) (string, error)
	// AddIdentity returns ErrAlreadyExists if the pair is taken.
	AddIdentity(ctx context.Context, userID, provider, identity string) error
	// SetIdentity replaces the user's identity for provider.
	SetIdentity(ctx context.Context, userID, provider, identity string) error
	// Identity returns "" when the user has none for provider.
	Identity(ctx context.Context, userID, provider string) (string, error)
	RemoveIdentity(ctx context.Context, userID, provider string) error
}

type AuthTokens interface {
	// AddAuthToken returns ErrTokenCollision if the hash is already in use.
	AddAuthToken(ctx context.Context, userID string, t domain.Token) error
	RemoveAuthToken(ctx context.Context, userID, hash string) error
	// FindWithAuthToken only matches unexpired tokens.
	FindWithAuthToken(ctx context.Context, hash string) (string, error)
	// UpdateAuthToken swaps oldHash for newHash keeping the expiry, and returns
	// the remaining validity in seconds, or -1 if oldHash was not found.
	UpdateAuthToken(ctx context.Context, userID, oldHash, newHash string) (int, error)
	DeleteExpiredAuthTokens(ctx context.Context, now time.Time) (int64, error)
}

// Clients are relying parties of the identity provider. Accessors take the
// internal id, not the public client_id.
type Clients interface {
	CreateClient(ctx context.Context, c domain.Client) error
	FindWithClientID(ctx context.Context, clientID string) (string, error)
	ListClients(ctx context.Context) ([]domain.Client, error)

	ClientID(ctx context.Context, id string) (string, error)
	RedirectURIs(ctx context.Context, id string) ([]string, error)
	Confidential(ctx context.Context, id string) (bool, error)
	AuthMethod(ctx context.Context, id string) (domain.ClientSecretMethod, error)
	Secret(ctx context.Context, id string) (string, error)
}

// IssuedTokens are codes and tokens handed out by the identity provider,
// looked up by purpose and value fingerprint.
type IssuedTokens interface {
	Add(ctx context.Context, t domain.IssuedToken) (string, error)
	Remove(ctx context.Context, id string) error
	FindWithValue(ctx context.Context, purpose, valueHash string) (string, error)
	// Take removes the token and returns it. Of concurrent callers only one
	// gets the token; the rest get ErrNotFound.
	Take(ctx context.Context, purpose, valueHash string) (domain.IssuedToken, error)

	User(ctx context.Context, id string) (string, error)
	Scope(ctx context.Context, id string) (string, error)
	RedirectURI(ctx context.Context, id string) (string, error)
	ExpirationTime(ctx context.Context, id string) (time.Time, error)
	Purpose(ctx context.Context, id string) (string, error)
	AuthClient(ctx context.Context, id string) (string, error)
	AuthTime(ctx context.Context, id string) (time.Time, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
