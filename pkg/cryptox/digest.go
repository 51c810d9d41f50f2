package cryptox

import (
	"crypto/md5" // #nosec G501 - only used for high-entropy random tokens
	"crypto/subtle"
	"encoding/base64"
)

// MD5 is a fast salted digest. It is only suitable for hashing random tokens
// that already carry enough entropy, never for user chosen passwords.
type MD5 struct{}

func (MD5) Name() string { return "MD5" }

func (MD5) Compute(msg, salt string) (string, error) {
	sum := md5.Sum([]byte(salt + msg)) // #nosec G401
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (h MD5) Verify(msg, salt, hash string) bool {
	computed, _ := h.Compute(msg, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
