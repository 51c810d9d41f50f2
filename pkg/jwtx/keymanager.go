package jwtx

import (
	"fmt"
	"math/rand/v2"

	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

// KeyManager owns the signing keys of one process and the KeySet that
// publishes their public halves.
type KeyManager struct {
	KeySet   *KeySet
	Verifier *Verifier

	algorithm string
	signers   []Signer
}

type KeyManagerOptions struct {
	Algorithm string // RS256 or EdDSA
	Issuer    string
	Audience  []string
	RSABits   int // RS256 only; defaults to 2048
	NumKeys   int // clamped to [1, 10]; defaults to 2
}

// NewEphemeralKeyManager generates fresh in-memory keys. Tokens signed by a
// previous process can no longer be verified after a restart.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: issuer is required")
	}

	n := opts.NumKeys
	switch {
	case n <= 0:
		n = 2
	case n > 10:
		n = 10
	}

	ks := NewKeySet()
	signers := make([]Signer, 0, n)
	for i := range n {
		kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, fmt.Errorf("jwtx: key id: %w", err)
		}

		s, err := generateSigner(opts.Algorithm, "authkit-"+kid, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
		}
		if err := ks.AddSigner(s); err != nil {
			return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
		}
		signers = append(signers, s)
	}

	return &KeyManager{
		KeySet:    ks,
		Verifier:  NewVerifier(ks, VerifyOptions{Issuer: opts.Issuer, Audience: opts.Audience}),
		algorithm: opts.Algorithm,
		signers:   signers,
	}, nil
}

func generateSigner(alg, kid string, rsaBits int) (Signer, error) {
	switch alg {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = 2048
		}
		pemKey, err := cryptox.GenerateRSAKey(rsaBits)
		if err != nil {
			return nil, err
		}
		return NewSignerRS256(kid, pemKey)

	case AlgorithmEdDSA:
		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		return NewSignerEdDSA(kid, pemKey)

	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

func (km *KeyManager) Algorithm() string { return km.algorithm }
func (km *KeyManager) NumSigners() int   { return len(km.signers) }
func (km *KeyManager) IsReady() bool     { return km.KeySet.IsReady() }

// Signer picks one of the signing keys at random.
func (km *KeyManager) Signer() Signer {
	if len(km.signers) == 1 {
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}
