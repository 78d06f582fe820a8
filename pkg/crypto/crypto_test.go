package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPasswordVerifies(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	require.NotEqual(t, "secret1", hash)

	require.True(t, VerifyPassword(hash, "secret1"))
	require.False(t, VerifyPassword(hash, "secret1x"))
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := HashPassword("secret1")
	require.NoError(t, err)
	second, err := HashPassword("secret1")
	require.NoError(t, err)

	// Salted hashes differ but both verify against the plaintext.
	require.NotEqual(t, first, second)
	require.True(t, VerifyPassword(first, "secret1"))
	require.True(t, VerifyPassword(second, "secret1"))
}

func TestVerifyPasswordFailsClosed(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)

	require.False(t, VerifyPassword(hash, ""))
	require.False(t, VerifyPassword("", "secret1"))
	require.False(t, VerifyPassword("", ""))
	require.False(t, VerifyPassword("not-a-bcrypt-digest", "secret1"))
}

func TestGenerateTokenAlphabet(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	require.Len(t, token, TokenLength)

	for _, r := range token {
		require.Contains(t, tokenAlphabet, string(r))
	}

	for _, forbidden := range []string{"+", "/", "=", "l", "I", "O", "0"} {
		require.NotContains(t, token, forbidden)
	}
}

func TestGenerateTokensDiffer(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestGenerateNonceUnique(t *testing.T) {
	first, err := GenerateNonce()
	require.NoError(t, err)
	second, err := GenerateNonce()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDigestResponse(t *testing.T) {
	// RFC 2617 sample values from section 3.5.
	got := DigestResponse(
		"Mufasa", "testrealm@host.com", "Circle Of Life",
		"GET", "/dir/index.html",
		"dcd98b7102dd2f0e8b11d0f600bfb0c093", "00000001", "0a4f113b", "auth",
	)
	require.Equal(t, "6629fae49393a05397450978507c4ef1", got)
	require.Equal(t, strings.ToLower(got), got)
}
