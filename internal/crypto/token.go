package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// TokenBytes is the amount of randomness in a session token. Tokens are hex
// encoded, so every token is 2*TokenBytes characters long.
const TokenBytes = 32

var ErrTokenGeneration = errors.New("failed to generate session token")

// NewSessionToken returns a fresh random session token.
func NewSessionToken() (string, error) {
	tok, err := RandomHex(TokenBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return tok, nil
}

// DigestToken hashes a token for storage. Only the digest is ever persisted.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatches reports whether token hashes to storedDigest, in constant time.
// An empty digest never matches.
func TokenMatches(token, storedDigest string) bool {
	if storedDigest == "" || token == "" {
		return false
	}
	got := DigestToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedDigest)) == 1
}

// RandomHex returns n random bytes, hex encoded.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
