package service

import "errors"

// Identity provider errors. Their text is the OAuth 2.0 error code.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrInvalidToken            = errors.New("invalid_token")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrLoginRequired           = errors.New("login_required")

	// ErrUnauthorizedRedirect means the client or redirect_uri could not be
	// verified, so the error must not be sent back to the redirect_uri.
	ErrUnauthorizedRedirect = errors.New("unauthorized redirect_uri")
)

var (
	ErrInvalidTOTPCode   = errors.New("invalid TOTP code")
	ErrMFANotEnrolled    = errors.New("MFA not enrolled")
	ErrMFANotEnabled     = errors.New("MFA not enabled for this user")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
	ErrMFAThrottled      = errors.New("too many failed MFA attempts")
)

// MFAThrottledError is returned while a user must wait before the next code
// is checked. It matches ErrMFAThrottled.
type MFAThrottledError struct {
	RetryAfter int // seconds
}

func (e *MFAThrottledError) Error() string { return ErrMFAThrottled.Error() }
func (e *MFAThrottledError) Unwrap() error { return ErrMFAThrottled }

var (
	ErrIdentityTaken = errors.New("identity already in use")
	ErrWeakPassword  = errors.New("password too weak")
	ErrInvalidUser   = errors.New("invalid user")
)
