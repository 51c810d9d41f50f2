package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Registration is a new password account.
type Registration struct {
	LoginName string
	Email     string
	Password  string
}

// RegistrationService creates password accounts under the configured
// identity policy.
type RegistrationService struct {
	Auth      *AuthService
	Passwords *PasswordService
}

// Register creates the user, its login name identity and password, and
// starts email verification when an address was given and verification is
// enabled. With the email address policy the address is the login name.
func (s *RegistrationService) Register(ctx context.Context, db store.Store, r Registration) (User, error) {
	r.LoginName = strings.TrimSpace(r.LoginName)
	r.Email = strings.TrimSpace(r.Email)

	loginName, err := s.loginName(r)
	if err != nil {
		return User{}, err
	}
	if res := s.Passwords.ValidatePassword(r.Password, loginName, r.Email); !res.Valid {
		return User{}, fmt.Errorf("%w: %s", ErrWeakPassword, res.Reason)
	}

	hash, err := s.Passwords.Verifier.HashPassword(r.Password)
	if err != nil {
		return User{}, fmt.Errorf("register: %w", err)
	}

	var userID string
	err = withTx(ctx, db, func(tx store.Store) error {
		if r.Email != "" {
			_, err := tx.Users().FindWithEmail(ctx, r.Email)
			if err == nil {
				return ErrIdentityTaken
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		id, err := tx.Users().RegisterNew(ctx)
		if err != nil {
			return err
		}
		u := NewUser(tx, id)

		err = u.AddIdentity(ctx, domain.ProviderLoginName, loginName)
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrIdentityTaken
		}
		if err != nil {
			return err
		}
		if err := u.SetPassword(ctx, hash); err != nil {
			return err
		}
		if r.Email != "" && !s.Auth.Config.EmailVerificationEnabled {
			if err := u.SetEmail(ctx, r.Email); err != nil {
				return err
			}
		}
		userID = id
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("register: %w", err)
	}

	u := NewUser(db, userID)
	slogx.FromContext(ctx).Info("user registered", "user_id", userID, "policy", s.Auth.Config.IdentityPolicy.String())

	if r.Email != "" && s.Auth.Config.EmailVerificationEnabled {
		if err := s.Auth.VerifyEmailAddress(ctx, u, r.Email); err != nil {
			return u, err
		}
	}
	return u, nil
}

// RegisterIdentity creates a user for an external identity that
// IdentifyUser could not match. A verified address is stored as is, an
// unverified one goes through email verification when that is enabled.
func (s *RegistrationService) RegisterIdentity(ctx context.Context, db store.Store, identity domain.Identity) (User, error) {
	if !identity.Valid() {
		return User{}, ErrInvalidUser
	}

	var userID string
	err := withTx(ctx, db, func(tx store.Store) error {
		id, err := tx.Users().RegisterNew(ctx)
		if err != nil {
			return err
		}
		u := NewUser(tx, id)

		err = u.AddIdentity(ctx, identity.Provider, identity.ID)
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrIdentityTaken
		}
		if err != nil {
			return err
		}
		if identity.Email != "" && (identity.EmailVerified || !s.Auth.Config.EmailVerificationEnabled) {
			if _, err := tx.Users().FindWithEmail(ctx, identity.Email); errors.Is(err, store.ErrNotFound) {
				if err := u.SetEmail(ctx, identity.Email); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}
		userID = id
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("register identity: %w", err)
	}

	u := NewUser(db, userID)
	slogx.FromContext(ctx).Info("user registered", "user_id", userID, "provider", identity.Provider)

	if identity.Email != "" && !identity.EmailVerified && s.Auth.Config.EmailVerificationEnabled {
		if err := s.Auth.VerifyEmailAddress(ctx, u, identity.Email); err != nil {
			return u, err
		}
	}
	return u, nil
}

func (s *RegistrationService) loginName(r Registration) (string, error) {
	switch s.Auth.Config.IdentityPolicy {
	case domain.EmailAddressIdentity:
		if r.Email == "" {
			return "", fmt.Errorf("%w: email is required", ErrInvalidRequest)
		}
		return r.Email, nil
	case domain.OptionalIdentity:
		name := r.LoginName
		if name == "" {
			name = r.Email
		}
		if name == "" {
			return "", fmt.Errorf("%w: login name or email is required", ErrInvalidRequest)
		}
		return name, nil
	default:
		if r.LoginName == "" {
			return "", fmt.Errorf("%w: login name is required", ErrInvalidRequest)
		}
		return r.LoginName, nil
	}
}
