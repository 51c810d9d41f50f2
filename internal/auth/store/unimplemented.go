package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	featureRegistration     = "user registration"
	featurePasswords        = "password handling"
	featureThrottling       = "password attempt throttling"
	featureEmail            = "email verification"
	featureAuthTokens       = "authentication tokens"
	featureIdentities       = "federated identities"
	featureMFA              = "multi-factor authentication"
	featureIdentityProvider = "the identity provider"
)

// required logs that a store lacks a method a feature depends on.
func required(ctx context.Context, method, feature string) {
	slogx.FromContext(ctx).Error(fmt.Sprintf("Auth: %s required for %s", method, feature),
		"method", method,
		"feature", feature,
	)
}

// epoch is the last login attempt of a user whose store does not track it.
var epoch = time.Unix(0, 0).UTC()

// UnimplementedUsers answers every Users method with a neutral default. Embed
// it in partial implementations.
type UnimplementedUsers struct{}

func (UnimplementedUsers) RegisterNew(ctx context.Context) (string, error) {
	required(ctx, "RegisterNew", featureRegistration)
	return "", nil
}

func (UnimplementedUsers) FindWithID(ctx context.Context, id string) (string, error) {
	required(ctx, "FindWithID", featureRegistration)
	return "", ErrNotFound
}

func (UnimplementedUsers) DeleteUser(ctx context.Context, id string) error {
	required(ctx, "DeleteUser", featureRegistration)
	return nil
}

func (UnimplementedUsers) Status(ctx context.Context, id string) (domain.Status, error) {
	return domain.StatusNormal, nil
}

func (UnimplementedUsers) SetStatus(ctx context.Context, id string, s domain.Status) error {
	required(ctx, "SetStatus", featureRegistration)
	return nil
}

func (UnimplementedUsers) Password(ctx context.Context, id string) (domain.PasswordHash, error) {
	required(ctx, "Password", featurePasswords)
	return domain.PasswordHash{}, nil
}

func (UnimplementedUsers) SetPassword(ctx context.Context, id string, h domain.PasswordHash) error {
	required(ctx, "SetPassword", featurePasswords)
	return nil
}

func (UnimplementedUsers) Email(ctx context.Context, id string) (string, error) {
	required(ctx, "Email", featureEmail)
	return "", nil
}

func (UnimplementedUsers) SetEmail(ctx context.Context, id, email string) error {
	required(ctx, "SetEmail", featureEmail)
	return nil
}

func (UnimplementedUsers) UnverifiedEmail(ctx context.Context, id string) (string, error) {
	required(ctx, "UnverifiedEmail", featureEmail)
	return "", nil
}

func (UnimplementedUsers) SetUnverifiedEmail(ctx context.Context, id, email string) error {
	required(ctx, "SetUnverifiedEmail", featureEmail)
	return nil
}

func (UnimplementedUsers) FindWithEmail(ctx context.Context, email string) (string, error) {
	required(ctx, "FindWithEmail", featureEmail)
	return "", ErrNotFound
}

func (UnimplementedUsers) EmailToken(ctx context.Context, id string) (domain.Token, domain.EmailTokenRole, error) {
	required(ctx, "EmailToken", featureEmail)
	return domain.Token{}, domain.EmailTokenVerifyEmail, nil
}

func (UnimplementedUsers) SetEmailToken(ctx context.Context, id string, t domain.Token, role domain.EmailTokenRole) error {
	required(ctx, "SetEmailToken", featureEmail)
	return nil
}

func (UnimplementedUsers) FindWithEmailToken(ctx context.Context, hash string) (string, error) {
	required(ctx, "FindWithEmailToken", featureEmail)
	return "", ErrNotFound
}

func (UnimplementedUsers) FailedLoginAttempts(ctx context.Context, id string) (int, error) {
	required(ctx, "FailedLoginAttempts", featureThrottling)
	return 0, nil
}

func (UnimplementedUsers) SetFailedLoginAttempts(ctx context.Context, id string, n int) error {
	required(ctx, "SetFailedLoginAttempts", featureThrottling)
	return nil
}

func (UnimplementedUsers) LastLoginAttempt(ctx context.Context, id string) (time.Time, error) {
	required(ctx, "LastLoginAttempt", featureThrottling)
	return epoch, nil
}

func (UnimplementedUsers) SetLastLoginAttempt(ctx context.Context, id string, t time.Time) error {
	required(ctx, "SetLastLoginAttempt", featureThrottling)
	return nil
}

func (UnimplementedUsers) MFASecret(ctx context.Context, id string) (string, error) {
	required(ctx, "MFASecret", featureMFA)
	return "", nil
}

func (UnimplementedUsers) SetMFASecret(ctx context.Context, id, secret string) error {
	required(ctx, "SetMFASecret", featureMFA)
	return nil
}

func (UnimplementedUsers) MFAEnabled(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (UnimplementedUsers) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	required(ctx, "SetMFAEnabled", featureMFA)
	return nil
}

func (UnimplementedUsers) JSONClaim(ctx context.Context, id, claim string) (any, error) {
	required(ctx, "JSONClaim", featureIdentityProvider)
	return nil, nil
}

type UnimplementedIdentities struct{}

func (UnimplementedIdentities) FindWithIdentity(ctx context.Context, provider, identity string) (string, error) {
	required(ctx, "FindWithIdentity", featureIdentities)
	return "", ErrNotFound
}

func (UnimplementedIdentities) AddIdentity(ctx context.Context, userID, provider, identity string) error {
	required(ctx, "AddIdentity", featureIdentities)
	return nil
}

func (UnimplementedIdentities) SetIdentity(ctx context.Context, userID, provider, identity string) error {
	required(ctx, "SetIdentity", featureIdentities)
	return nil
}

func (UnimplementedIdentities) Identity(ctx context.Context, userID, provider string) (string, error) {
	required(ctx, "Identity", featureIdentities)
	return "", nil
}

func (UnimplementedIdentities) RemoveIdentity(ctx context.Context, userID, provider string) error {
	required(ctx, "RemoveIdentity", featureIdentities)
	return nil
}

type UnimplementedAuthTokens struct{}

func (UnimplementedAuthTokens) AddAuthToken(ctx context.Context, userID string, t domain.Token) error {
	required(ctx, "AddAuthToken", featureAuthTokens)
	return nil
}

func (UnimplementedAuthTokens) RemoveAuthToken(ctx context.Context, userID, hash string) error {
	required(ctx, "RemoveAuthToken", featureAuthTokens)
	return nil
}

func (UnimplementedAuthTokens) FindWithAuthToken(ctx context.Context, hash string) (string, error) {
	required(ctx, "FindWithAuthToken", featureAuthTokens)
	return "", ErrNotFound
}

func (UnimplementedAuthTokens) UpdateAuthToken(ctx context.Context, userID, oldHash, newHash string) (int, error) {
	required(ctx, "UpdateAuthToken", featureAuthTokens)
	return 0, nil
}

func (UnimplementedAuthTokens) DeleteExpiredAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type UnimplementedClients struct{}

func (UnimplementedClients) CreateClient(ctx context.Context, c domain.Client) error {
	required(ctx, "CreateClient", featureIdentityProvider)
	return nil
}

func (UnimplementedClients) FindWithClientID(ctx context.Context, clientID string) (string, error) {
	required(ctx, "FindWithClientID", featureIdentityProvider)
	return "", ErrNotFound
}

func (UnimplementedClients) ListClients(ctx context.Context) ([]domain.Client, error) {
	required(ctx, "ListClients", featureIdentityProvider)
	return nil, nil
}

func (UnimplementedClients) ClientID(ctx context.Context, id string) (string, error) {
	required(ctx, "ClientID", featureIdentityProvider)
	return "", nil
}

func (UnimplementedClients) RedirectURIs(ctx context.Context, id string) ([]string, error) {
	required(ctx, "RedirectURIs", featureIdentityProvider)
	return nil, nil
}

func (UnimplementedClients) Confidential(ctx context.Context, id string) (bool, error) {
	required(ctx, "Confidential", featureIdentityProvider)
	return false, nil
}

func (UnimplementedClients) AuthMethod(ctx context.Context, id string) (domain.ClientSecretMethod, error) {
	required(ctx, "AuthMethod", featureIdentityProvider)
	return domain.HTTPAuthorizationHeader, nil
}

func (UnimplementedClients) Secret(ctx context.Context, id string) (string, error) {
	required(ctx, "Secret", featureIdentityProvider)
	return "", nil
}

type UnimplementedIssuedTokens struct{}

func (UnimplementedIssuedTokens) Add(ctx context.Context, t domain.IssuedToken) (string, error) {
	required(ctx, "IssuedTokens.Add", featureIdentityProvider)
	return "", nil
}

func (UnimplementedIssuedTokens) Remove(ctx context.Context, id string) error {
	required(ctx, "IssuedTokens.Remove", featureIdentityProvider)
	return nil
}

func (UnimplementedIssuedTokens) FindWithValue(ctx context.Context, purpose, valueHash string) (string, error) {
	required(ctx, "IssuedTokens.FindWithValue", featureIdentityProvider)
	return "", ErrNotFound
}

func (UnimplementedIssuedTokens) Take(ctx context.Context, purpose, valueHash string) (domain.IssuedToken, error) {
	required(ctx, "IssuedTokens.Take", featureIdentityProvider)
	return domain.IssuedToken{}, ErrNotFound
}

func (UnimplementedIssuedTokens) User(ctx context.Context, id string) (string, error) {
	required(ctx, "IssuedTokens.User", featureIdentityProvider)
	return "", nil
}

func (UnimplementedIssuedTokens) Scope(ctx context.Context, id string) (string, error) {
	required(ctx, "IssuedTokens.Scope", featureIdentityProvider)
	return "", nil
}

func (UnimplementedIssuedTokens) RedirectURI(ctx context.Context, id string) (string, error) {
	required(ctx, "IssuedTokens.RedirectURI", featureIdentityProvider)
	return "", nil
}

func (UnimplementedIssuedTokens) ExpirationTime(ctx context.Context, id string) (time.Time, error) {
	required(ctx, "IssuedTokens.ExpirationTime", featureIdentityProvider)
	return epoch, nil
}

func (UnimplementedIssuedTokens) Purpose(ctx context.Context, id string) (string, error) {
	required(ctx, "IssuedTokens.Purpose", featureIdentityProvider)
	return "", nil
}

func (UnimplementedIssuedTokens) AuthClient(ctx context.Context, id string) (string, error) {
	required(ctx, "IssuedTokens.AuthClient", featureIdentityProvider)
	return "", nil
}

func (UnimplementedIssuedTokens) AuthTime(ctx context.Context, id string) (time.Time, error) {
	required(ctx, "IssuedTokens.AuthTime", featureIdentityProvider)
	return epoch, nil
}

func (UnimplementedIssuedTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
