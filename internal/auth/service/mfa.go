package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type MFAService struct {
	Issuer string // shown by authenticator apps

	// Throttle, when set, delays code checks after failures. It shares the
	// failure counter with password logins.
	Throttle *AuthThrottle

	now func() time.Time
}

func (s *MFAService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// EnrollTOTP stores a new TOTP secret for u. MFA is not enabled until a code
// from it is confirmed with ConfirmTOTP.
func (s *MFAService) EnrollTOTP(ctx context.Context, u User, accountName string) (domain.MFAEnrollment, error) {
	enabled, err := u.MFAEnabled(ctx)
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("mfa enroll: %w", err)
	}
	if enabled {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("mfa enroll: %w", err)
	}

	if err := u.SetMFASecret(ctx, key.Secret()); err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("mfa enroll: %w", err)
	}
	return domain.MFAEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ConfirmTOTP enables MFA once code matches the enrolled secret.
func (s *MFAService) ConfirmTOTP(ctx context.Context, u User, code string) error {
	return withTx(ctx, u.Store(), func(tx store.Store) error {
		tu := u.In(tx)
		enabled, err := tu.MFAEnabled(ctx)
		if err != nil {
			return err
		}
		if enabled {
			return ErrMFAAlreadyEnabled
		}
		secret, err := tu.MFASecret(ctx)
		if err != nil {
			return err
		}
		if secret == "" {
			return ErrMFANotEnrolled
		}
		if !s.validate(code, secret) {
			return ErrInvalidTOTPCode
		}
		slogx.FromContext(ctx).Info("mfa enabled", "user_id", u.ID())
		return tu.SetMFAEnabled(ctx, true)
	})
}

// VerifyTOTP checks code for a user with MFA enabled. With a throttle the
// outcome is recorded even when the code is wrong, and a user still backing
// off gets an *MFAThrottledError without the code being looked at.
func (s *MFAService) VerifyTOTP(ctx context.Context, u User, code string) error {
	var result error
	err := withTx(ctx, u.Store(), func(tx store.Store) error {
		tu := u.In(tx)
		enabled, err := tu.MFAEnabled(ctx)
		if err != nil {
			return err
		}
		if !enabled {
			return ErrMFANotEnabled
		}

		if s.Throttle != nil {
			delay, err := s.Throttle.DelayForNextAttempt(ctx, tu)
			if err != nil {
				return err
			}
			if delay > 0 {
				result = &MFAThrottledError{RetryAfter: delay}
				return nil
			}
		}

		secret, err := tu.MFASecret(ctx)
		if err != nil {
			return err
		}
		ok := secret != "" && s.validate(code, secret)
		if s.Throttle != nil {
			if err := tu.SetAuthenticated(ctx, ok); err != nil {
				return err
			}
		}
		if !ok {
			result = ErrInvalidTOTPCode
		}
		return nil
	})
	if err != nil {
		return err
	}
	if result != nil {
		slogx.FromContext(ctx).Info("mfa code rejected", "user_id", u.ID(), "err", result)
	}
	return result
}

// DisableTOTP turns MFA off and forgets the secret. A current code is
// required.
func (s *MFAService) DisableTOTP(ctx context.Context, u User, code string) error {
	if err := s.VerifyTOTP(ctx, u, code); err != nil {
		return err
	}
	return withTx(ctx, u.Store(), func(tx store.Store) error {
		tu := u.In(tx)
		if err := tu.SetMFAEnabled(ctx, false); err != nil {
			return err
		}
		slogx.FromContext(ctx).Info("mfa disabled", "user_id", u.ID())
		return tu.SetMFASecret(ctx, "")
	})
}

// Required reports whether logging in u needs a second factor.
func (s *MFAService) Required(ctx context.Context, u User) (bool, error) {
	return u.MFAEnabled(ctx)
}

// CompleteLogin upgrades a session waiting for its second factor to a
// strong login.
func (s *MFAService) CompleteLogin(ctx context.Context, login *Login, code string) error {
	if login.State() != domain.RequiresMfa {
		return ErrMFANotEnabled
	}
	u := login.User()
	if err := s.VerifyTOTP(ctx, u, code); err != nil {
		return err
	}
	return login.Login(ctx, u, domain.StrongLogin)
}

func (s *MFAService) validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.clock().UTC(), totpOpts)
	return err == nil && ok
}
