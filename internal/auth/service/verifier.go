package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// DefaultSaltLength is the number of random bytes in a password salt.
const DefaultSaltLength = 12

// Verifier hashes and checks passwords for PasswordService.
type Verifier interface {
	HashPassword(password string) (domain.PasswordHash, error)
	Verify(ctx context.Context, password string, hash domain.PasswordHash) bool
	NeedsUpdate(hash domain.PasswordHash) bool
}

// PasswordVerifier checks passwords against any of its hash functions and
// hashes new ones with the first, the preferred function.
type PasswordVerifier struct {
	functions  []cryptox.HashFunction
	saltLength int
}

var _ Verifier = (*PasswordVerifier)(nil)

// NewPasswordVerifier panics when given no functions.
func NewPasswordVerifier(preferred cryptox.HashFunction, others ...cryptox.HashFunction) *PasswordVerifier {
	if preferred == nil {
		panic("service: PasswordVerifier needs a preferred hash function")
	}
	return &PasswordVerifier{
		functions:  append([]cryptox.HashFunction{preferred}, others...),
		saltLength: DefaultSaltLength,
	}
}

// SetSaltLength sets the number of random salt bytes for new hashes.
func (v *PasswordVerifier) SetSaltLength(n int) { v.saltLength = n }

func (v *PasswordVerifier) Preferred() cryptox.HashFunction { return v.functions[0] }

func (v *PasswordVerifier) HashPassword(password string) (domain.PasswordHash, error) {
	raw := make([]byte, v.saltLength)
	if _, err := rand.Read(raw); err != nil {
		return domain.PasswordHash{}, fmt.Errorf("password salt: %w", err)
	}
	salt := base64.StdEncoding.EncodeToString(raw)

	f := v.functions[0]
	value, err := f.Compute(password, salt)
	if err != nil {
		return domain.PasswordHash{}, err
	}
	return domain.PasswordHash{Function: f.Name(), Salt: salt, Value: value}, nil
}

// Verify fails closed when the hash was made by a function this verifier
// does not know.
func (v *PasswordVerifier) Verify(ctx context.Context, password string, hash domain.PasswordHash) bool {
	for _, f := range v.functions {
		if f.Name() == hash.Function {
			return f.Verify(password, hash.Salt, hash.Value)
		}
	}

	slogx.FromContext(ctx).Error("PasswordVerifier: no hash function for password",
		"function", hash.Function)
	return false
}

func (v *PasswordVerifier) NeedsUpdate(hash domain.PasswordHash) bool {
	return hash.Function != v.functions[0].Name()
}
