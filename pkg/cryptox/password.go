package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var errArgonFormat = errors.New("cryptox: invalid argon2id hash format")

// Argon2id hashes passwords into a PHC string
// ($argon2id$v=19$m=X,t=Y,p=Z$salt$hash). The Pepper is appended to every
// password before hashing and is never stored alongside the hash.
type Argon2id struct {
	Pepper string
}

func (Argon2id) Name() string { return "argon2id" }

func (a Argon2id) Compute(msg, _ string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: argon2id salt: %w", err)
	}

	key := argon2.IDKey([]byte(msg+a.Pepper), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a Argon2id) Verify(msg, _ string, hash string) bool {
	params, salt, want, err := parseArgon2id(hash)
	if err != nil {
		return false
	}

	got := argon2.IDKey(
		[]byte(msg+a.Pepper),
		salt,
		params.iterations,
		params.memory,
		params.parallelism,
		uint32(len(want)), // #nosec G115
	)
	return subtle.ConstantTimeCompare(got, want) == 1
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func parseArgon2id(encoded string) (argonParams, []byte, []byte, error) {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return argonParams{}, nil, nil, errArgonFormat
	}

	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("%w: %v", errArgonFormat, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("%w: salt: %v", errArgonFormat, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("%w: hash: %v", errArgonFormat, err)
	}

	return p, salt, key, nil
}
