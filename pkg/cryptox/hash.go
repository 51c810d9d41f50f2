package cryptox

// HashFunction is a one-way hash primitive used for passwords and tokens.
//
// Compute hashes msg with the given salt. Functions that carry their own salt
// inside the result (bcrypt, argon2id) ignore the salt argument. Verify
// reports whether hash was produced by Compute for msg and salt.
type HashFunction interface {
	Name() string
	Compute(msg, salt string) (string, error)
	Verify(msg, salt, hash string) bool
}
