package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"password123", "correct horse battery staple", "ünïcødé-pässwörd"} {
		hash, err := HashPassword(p)
		require.NoError(t, err)
		assert.NotEqual(t, p, hash)
		assert.True(t, VerifyPassword(p, hash), "password %q should verify", p)
	}
}

func TestHashPassword_DistinctSalts(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("same-input")
	require.NoError(t, err)
	h2, err := HashPassword("same-input")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.True(t, VerifyPassword("same-input", h1))
	assert.True(t, VerifyPassword("same-input", h2))
}

func TestVerifyPassword_Mismatch(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("p1-secret")
	require.NoError(t, err)
	assert.False(t, VerifyPassword("p2-secret", hash))
	assert.False(t, VerifyPassword("", hash))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()

	assert.False(t, VerifyPassword("anything", "not-a-bcrypt-hash"))
	assert.False(t, VerifyPassword("anything", ""))
}
