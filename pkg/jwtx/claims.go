package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIDTokenTTL matches the lifetime of the access token it accompanies.
const DefaultIDTokenTTL = time.Hour

// IDTokenClaims are the OpenID Connect claims we issue and consume.
type IDTokenClaims struct {
	jwt.RegisteredClaims

	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce    string           `json:"nonce,omitempty"`

	// Profile and email claims are only present when the scope grants them.
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

// NewIDTokenClaims builds claims for subject, valid for ttl from now.
func NewIDTokenClaims(issuer, subject, audience string, authTime, now time.Time, ttl time.Duration) IDTokenClaims {
	return IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AuthTime: jwt.NewNumericDate(authTime),
	}
}

func (c *IDTokenClaims) ValidateIssuer(expected string) error {
	if expected == "" || c.Issuer == expected {
		return nil
	}
	return ErrIssuer
}

// ValidateAudience passes if any expected audience is present.
func (c *IDTokenClaims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry checks exp and nbf against now, allowing leeway for skew.
func (c *IDTokenClaims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
