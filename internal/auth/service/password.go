package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

type PasswordResult int

const (
	PasswordInvalid PasswordResult = iota
	LoginThrottling
	PasswordValid
)

func (r PasswordResult) String() string {
	switch r {
	case LoginThrottling:
		return "throttled"
	case PasswordValid:
		return "valid"
	default:
		return "invalid"
	}
}

// PasswordService authenticates users by password.
type PasswordService struct {
	Verifier Verifier

	// Throttle enables attempt throttling. When nil the failure counter is
	// not maintained.
	Throttle *AuthThrottle

	// Strength, when set, is consulted by ValidatePassword.
	Strength *StrengthValidator

	Metrics *metrics.Metrics

	decoyOnce sync.Once
	decoy     domain.PasswordHash
}

// decoyPassword is hashed once and checked against by VerifyUnknown.
const decoyPassword = "decoy password for unknown users"

// VerifyUnknown answers a login attempt that matched no user. It verifies
// password against a decoy hash made with the preferred function so the
// response takes as long as for a known user, and always returns
// PasswordInvalid.
func (s *PasswordService) VerifyUnknown(ctx context.Context, password string) PasswordResult {
	s.verifyDecoy(ctx, password)
	s.Metrics.PasswordAttempt(PasswordInvalid.String())
	return PasswordInvalid
}

func (s *PasswordService) verifyDecoy(ctx context.Context, password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.Verifier.HashPassword(decoyPassword)
		if err != nil {
			slogx.FromContext(ctx).Error("failed to create decoy password hash", "err", err)
			return
		}
		s.decoy = hash
	})
	if !s.decoy.Empty() {
		s.Verifier.Verify(ctx, password, s.decoy)
	}
}

// VerifyPassword checks password for u. The throttle check, the counter
// update and a rehash with the preferred function run in one transaction.
// A throttled attempt does not count as a failure.
func (s *PasswordService) VerifyPassword(ctx context.Context, u User, password string) (PasswordResult, error) {
	if !u.Valid() {
		panic("service: VerifyPassword on invalid User")
	}

	result := PasswordInvalid
	err := withTx(ctx, u.Store(), func(tx store.Store) error {
		tu := u.In(tx)

		if s.Throttle != nil {
			delay, err := s.Throttle.DelayForNextAttempt(ctx, tu)
			if err != nil {
				return err
			}
			if delay > 0 {
				result = LoginThrottling
				return nil
			}
		}

		hash, err := tu.Password(ctx)
		if err != nil {
			return err
		}
		ok := false
		if hash.Empty() {
			s.verifyDecoy(ctx, password)
		} else {
			ok = s.Verifier.Verify(ctx, password, hash)
		}

		if s.Throttle != nil {
			if err := tu.SetAuthenticated(ctx, ok); err != nil {
				return err
			}
		}
		if !ok {
			return nil
		}

		if s.Verifier.NeedsUpdate(hash) {
			updated, err := s.Verifier.HashPassword(password)
			if err != nil {
				return err
			}
			if err := tu.SetPassword(ctx, updated); err != nil {
				return err
			}
			slogx.FromContext(ctx).Info("password rehashed",
				"user_id", u.ID(),
				"from", hash.Function,
				"to", updated.Function,
			)
		}
		result = PasswordValid
		return nil
	})
	if err != nil {
		return PasswordInvalid, fmt.Errorf("verify password: %w", err)
	}

	s.Metrics.PasswordAttempt(result.String())
	if result != PasswordValid {
		slogx.FromContext(ctx).Info("password attempt rejected", "user_id", u.ID(), "result", result.String())
	}
	return result, nil
}

// UpdatePassword stores a new password for u and drops a pending
// lost-password token.
func (s *PasswordService) UpdatePassword(ctx context.Context, u User, password string) error {
	if !u.Valid() {
		panic("service: UpdatePassword on invalid User")
	}

	hash, err := s.Verifier.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return withTx(ctx, u.Store(), func(tx store.Store) error {
		tu := u.In(tx)
		if err := tu.SetPassword(ctx, hash); err != nil {
			return err
		}

		token, role, err := tu.EmailToken(ctx)
		if err != nil {
			return err
		}
		if !token.Empty() && role == domain.EmailTokenLostPassword {
			return tu.ClearEmailToken(ctx)
		}
		return nil
	})
}

// ValidatePassword applies the strength policy, if any.
func (s *PasswordService) ValidatePassword(password, loginName, email string) StrengthResult {
	if s.Strength == nil {
		return StrengthResult{Valid: true}
	}
	return s.Strength.Evaluate(password, loginName, email)
}

// AuthThrottle returns the throttle, or nil when throttling is disabled.
func (s *PasswordService) AuthThrottle() *AuthThrottle { return s.Throttle }
