// Package secrets handles refresh-token secret material: generation,
// one-way hashing, and the wire encoding presented to clients.
//
// A presented refresh token is base64url(rowKey || secret): the 16 raw
// bytes of the owning row's ULID followed by a 32-byte random secret.
// Only the SHA-256 hash of the secret is ever persisted.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/oklog/ulid/v2"
)

// SecretSize is the length of the random refresh secret in bytes.
const SecretSize = 32

const tokenRawSize = 16 + SecretSize

// NewSecret returns SecretSize bytes of cryptographic randomness.
func NewSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// Hash returns the SHA-256 digest of secret.
func Hash(secret [SecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashString returns the hex-encoded SHA-256 digest of secret, the form
// stored in refresh-token rows.
func HashString(secret [SecretSize]byte) string {
	digest := Hash(secret)
	return hex.EncodeToString(digest[:])
}

// Encode builds the client-facing token from a ULID row key and secret.
func Encode(id string, secret [SecretSize]byte) (string, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return "", errors.New("invalid refresh token id")
	}

	var raw [tokenRawSize]byte
	copy(raw[:16], parsed[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Decode splits a presented token back into its row key and secret.
// Any deviation from the fixed wire size is rejected.
func Decode(token string) (string, [SecretSize]byte, error) {
	var secret [SecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != tokenRawSize {
		return "", secret, errors.New("invalid refresh token size")
	}

	var id ulid.ULID
	copy(id[:], raw[:16])
	copy(secret[:], raw[16:])

	return id.String(), secret, nil
}
