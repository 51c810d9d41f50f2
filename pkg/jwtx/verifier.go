package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// VerifyOptions are the expectations a token must meet.
type VerifyOptions struct {
	Issuer   string   // empty skips the check
	Audience []string // empty skips the check
	Leeway   time.Duration
}

// Verifier checks signatures against a KeySet, selecting the key by kid.
type Verifier struct {
	keys *KeySet
	opts VerifyOptions
	now  func() time.Time
}

func NewVerifier(keys *KeySet, opts VerifyOptions) *Verifier {
	return &Verifier{keys: keys, opts: opts, now: time.Now}
}

// Verify validates token and returns its claims.
func (v *Verifier) Verify(token string) (*IDTokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmEdDSA, AlgorithmRS256}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &IDTokenClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownKID):
		return nil, ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformed
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(v.now(), v.opts.Leeway); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeUnverified reads claims without checking the signature. Only use it
// on tokens received directly from a trusted endpoint over TLS.
func DecodeUnverified(token string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}
