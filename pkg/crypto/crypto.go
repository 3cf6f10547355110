// Package crypto provides password hashing for user credentials.
//
// Passwords are hashed with argon2id and a per-password random salt.
// The encoded form stored in the credential store is
// "argon2id$<base64 salt>$<base64 digest>"; the parameters are fixed,
// so a parameter change requires a new prefix.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 16
	keyLength  = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4

	encodedPrefix = "argon2id"
)

var ErrMalformedHash = errors.New("crypto: malformed password hash")

// HashPassword hashes a password with argon2id and a fresh random salt,
// returning the encoded salt+digest string.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLength)
	return encodedPrefix + "$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(digest), nil
}

// VerifyPassword reports whether the password matches the encoded hash.
// Comparison is constant-time over the digest.
func VerifyPassword(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != encodedPrefix {
		return false, ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, ErrMalformedHash
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
