package jwtx

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

func newManager(t *testing.T, alg string) *KeyManager {
	t.Helper()
	km, err := NewEphemeralKeyManager(KeyManagerOptions{
		Algorithm: alg,
		Issuer:    "https://auth.test",
		Audience:  []string{"app"},
		NumKeys:   2,
	})
	require.NoError(t, err)
	return km
}

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{AlgorithmEdDSA, AlgorithmRS256} {
		t.Run(alg, func(t *testing.T) {
			t.Parallel()
			km := newManager(t, alg)
			require.Equal(t, alg, km.Algorithm())
			require.Equal(t, 2, km.NumSigners())
			require.True(t, km.IsReady())

			now := time.Now()
			claims := NewIDTokenClaims("https://auth.test", "user-1", "app", now.Add(-time.Minute), now, time.Hour)
			verified := true
			claims.Email = "alice@example.com"
			claims.EmailVerified = &verified

			tok, err := km.Signer().Sign(claims)
			require.NoError(t, err)

			got, err := km.Verifier.Verify(tok)
			require.NoError(t, err)
			require.Equal(t, "user-1", got.Subject)
			require.Equal(t, "alice@example.com", got.Email)
			require.NotNil(t, got.EmailVerified)
			require.True(t, *got.EmailVerified)
			require.Equal(t, claims.AuthTime.Unix(), got.AuthTime.Unix())
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	km := newManager(t, AlgorithmEdDSA)
	now := time.Now()
	sign := func(c IDTokenClaims) string {
		tok, err := km.Signer().Sign(c)
		require.NoError(t, err)
		return tok
	}

	t.Run("issuer", func(t *testing.T) {
		_, err := km.Verifier.Verify(sign(NewIDTokenClaims("https://evil", "u", "app", now, now, time.Hour)))
		require.ErrorIs(t, err, ErrIssuer)
	})

	t.Run("audience", func(t *testing.T) {
		_, err := km.Verifier.Verify(sign(NewIDTokenClaims("https://auth.test", "u", "other", now, now, time.Hour)))
		require.ErrorIs(t, err, ErrAudience)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := km.Verifier.Verify(sign(NewIDTokenClaims("https://auth.test", "u", "app", now, now.Add(-2*time.Hour), time.Hour)))
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("foreign key", func(t *testing.T) {
		other := newManager(t, AlgorithmEdDSA)
		tok, err := other.Signer().Sign(NewIDTokenClaims("https://auth.test", "u", "app", now, now, time.Hour))
		require.NoError(t, err)
		_, err = km.Verifier.Verify(tok)
		require.ErrorIs(t, err, ErrUnknownKID)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := km.Verifier.Verify("not.a.jwt")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("tampered", func(t *testing.T) {
		tok := sign(NewIDTokenClaims("https://auth.test", "u", "app", now, now, time.Hour))
		parts := strings.Split(tok, ".")
		evil, err := km.Signer().Sign(NewIDTokenClaims("https://auth.test", "admin", "app", now, now, time.Hour))
		require.NoError(t, err)
		parts[1] = strings.Split(evil, ".")[1]
		_, err = km.Verifier.Verify(strings.Join(parts, "."))
		require.Error(t, err)
	})
}

func TestVerifierLeeway(t *testing.T) {
	t.Parallel()

	km := newManager(t, AlgorithmEdDSA)
	now := time.Now()
	tok, err := km.Signer().Sign(NewIDTokenClaims("https://auth.test", "u", "app", now, now, time.Minute))
	require.NoError(t, err)

	v := NewVerifier(km.KeySet, VerifyOptions{Issuer: "https://auth.test", Leeway: time.Minute})
	v.now = func() time.Time { return now.Add(90 * time.Second) }
	_, err = v.Verify(tok)
	require.NoError(t, err)

	v.now = func() time.Time { return now.Add(3 * time.Minute) }
	_, err = v.Verify(tok)
	require.ErrorIs(t, err, ErrExpired)
}

func TestDecodeUnverified(t *testing.T) {
	t.Parallel()

	km := newManager(t, AlgorithmEdDSA)
	now := time.Now()
	c := NewIDTokenClaims("https://accounts.example", "sub-9", "client", now, now, time.Hour)
	c.Name = "Alice"
	tok, err := km.Signer().Sign(c)
	require.NoError(t, err)

	got, err := DecodeUnverified(tok)
	require.NoError(t, err)
	require.Equal(t, "sub-9", got.Subject)
	require.Equal(t, "Alice", got.Name)
	require.Nil(t, got.EmailVerified)

	_, err = DecodeUnverified("garbage")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestJWKSPublishing(t *testing.T) {
	t.Parallel()

	km := newManager(t, AlgorithmEdDSA)
	set := km.KeySet.PublicJWKS()
	require.Len(t, set.Keys, 2)

	raw, err := json.Marshal(set)
	require.NoError(t, err)

	var decoded JWKS
	require.NoError(t, json.Unmarshal(raw, &decoded))

	fresh := NewKeySet()
	for _, j := range decoded.Keys {
		require.True(t, strings.HasPrefix(j.Kid, "authkit-"))
		require.Equal(t, "OKP", j.Kty)
		require.NoError(t, fresh.AddJWK(j))
	}

	now := time.Now()
	tok, err := km.Signer().Sign(NewIDTokenClaims("https://auth.test", "u", "app", now, now, time.Hour))
	require.NoError(t, err)
	_, err = NewVerifier(fresh, VerifyOptions{}).Verify(tok)
	require.NoError(t, err)
}

func TestJWKRejectsUnsupported(t *testing.T) {
	t.Parallel()

	_, err := JWK{Kty: "EC", Crv: "P-256"}.PublicKey()
	require.Error(t, err)
	_, err = JWK{Kty: "OKP", Crv: "X25519"}.PublicKey()
	require.Error(t, err)

	_, err = NewKeySet().Get("missing")
	require.ErrorIs(t, err, ErrNoKey)
}

func TestSignerKeyParsing(t *testing.T) {
	t.Parallel()

	ed, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	_, err = NewSignerRS256("k", ed)
	require.Error(t, err)
	_, err = NewSignerEdDSA("k", []byte("not pem"))
	require.Error(t, err)

	s, err := NewSignerEdDSA("k1", ed)
	require.NoError(t, err)
	require.Equal(t, "k1", s.KID())
	require.Equal(t, AlgorithmEdDSA, s.Alg())
}

func TestKeyManagerOptions(t *testing.T) {
	t.Parallel()

	_, err := NewEphemeralKeyManager(KeyManagerOptions{Algorithm: AlgorithmEdDSA})
	require.Error(t, err)

	_, err = NewEphemeralKeyManager(KeyManagerOptions{Algorithm: "HS256", Issuer: "x"})
	require.Error(t, err)

	km, err := NewEphemeralKeyManager(KeyManagerOptions{Algorithm: AlgorithmEdDSA, Issuer: "x", NumKeys: 50})
	require.NoError(t, err)
	require.Equal(t, 10, km.NumSigners())
}
