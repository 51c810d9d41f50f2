package cryptox

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBCryptCost is the work factor used when BCrypt.Cost is zero.
const DefaultBCryptCost = 7

// BCrypt is the adaptive password hash. The salt and cost are embedded in the
// computed value so the salt argument is ignored.
type BCrypt struct {
	Cost int
}

func (BCrypt) Name() string { return "bcrypt" }

func (b BCrypt) Compute(msg, _ string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultBCryptCost
	}

	out, err := bcrypt.GenerateFromPassword([]byte(msg), cost)
	if err != nil {
		return "", fmt.Errorf("cryptox: bcrypt: %w", err)
	}
	return string(out), nil
}

func (BCrypt) Verify(msg, _ string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(msg)) == nil
}
