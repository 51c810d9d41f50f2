package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFunctions(t *testing.T) {
	t.Parallel()

	functions := []HashFunction{
		MD5{},
		BCrypt{Cost: 4},
		Argon2id{Pepper: "pepper"},
	}

	for _, fn := range functions {
		t.Run(fn.Name(), func(t *testing.T) {
			t.Parallel()

			hash, err := fn.Compute("correcthorse", "salt")
			require.NoError(t, err)
			require.NotEmpty(t, hash)

			require.True(t, fn.Verify("correcthorse", "salt", hash))
			require.False(t, fn.Verify("batterystaple", "salt", hash))
		})
	}
}

func TestMD5IsDeterministicAndSalted(t *testing.T) {
	t.Parallel()

	a, err := MD5{}.Compute("token", "")
	require.NoError(t, err)
	b, err := MD5{}.Compute("token", "")
	require.NoError(t, err)
	c, err := MD5{}.Compute("token", "salt")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.False(t, MD5{}.Verify("token", "other", c))
}

func TestBCryptIgnoresSalt(t *testing.T) {
	t.Parallel()

	fn := BCrypt{Cost: 4}
	hash, err := fn.Compute("secret", "first")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$2a$04$"))
	require.True(t, fn.Verify("secret", "second", hash))
}

func TestArgon2idPepper(t *testing.T) {
	t.Parallel()

	hash, err := Argon2id{Pepper: "one"}.Compute("secret", "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.True(t, Argon2id{Pepper: "one"}.Verify("secret", "", hash))
	require.False(t, Argon2id{Pepper: "two"}.Verify("secret", "", hash))
}

func TestArgon2idRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$aa$bb", "$argon2id$v=19$garbage$aa$bb"} {
		require.False(t, Argon2id{}.Verify("secret", "", bad), bad)
	}
}

func TestLoadOrCreatePepper(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
