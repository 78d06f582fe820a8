package crypto

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor applied to new password hashes.
const PasswordCost = 8

// tokenAlphabet excludes characters that are ambiguous in URLs or when read
// aloud: + / = l I O 0.
const tokenAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ123456789"

// TokenLength is the number of alphabet characters in a generated token,
// giving well over 128 bits of entropy so tokens can serve as primary lookup
// keys without a uniqueness round-trip.
const TokenLength = 32

// HashPassword returns a bcrypt hash of the supplied password. The digest
// embeds its own salt and cost, so verification needs no side storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
// It fails closed: an empty candidate or digest never verifies.
func VerifyPassword(hashedPassword, password string) bool {
	if hashedPassword == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe bearer token.
func GenerateToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, TokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// GenerateNonce returns a time-unique value suitable for HTTP Digest
// challenges. Two nonces issued in the same nanosecond still differ thanks to
// the random suffix.
func GenerateNonce() (string, error) {
	suffix, err := GenerateToken()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + suffix[:8], nil
}

// MD5Hex returns the lowercase hex MD5 of the input. Digest access
// authentication (RFC 2617) requires MD5; do not use this for anything else.
func MD5Hex(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

// DigestResponse computes the expected RFC 2617 response hash for the given
// challenge parameters.
func DigestResponse(username, realm, password, method, uri, nonce, nc, cnonce, qop string) string {
	a1 := MD5Hex(fmt.Sprintf("%s:%s:%s", username, realm, password))
	a2 := MD5Hex(fmt.Sprintf("%s:%s", method, uri))
	return MD5Hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s", a1, nonce, nc, cnonce, qop, a2))
}
