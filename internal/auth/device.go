// Package auth implements AuthGate (spec §4.4): Basic-auth credential
// parsing and Argon2id device-password verification. Grounded on the
// teacher's internal/auth Basic-auth flow for the header-parsing shape,
// and on the pack's artpromedia-email auth service for the "hash on
// create, constant-time verify on request" idiom — adapted from that
// service's bcrypt to golang.org/x/crypto/argon2, since spec.md mandates
// Argon2id specifically.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonMemoryKiB  = 19 * 1024
	argonIterations = 2
	argonParallel   = 1
	argonSaltLen    = 16
	argonKeyLen     = 32
)

const devicePasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
const devicePasswordLength = 16

// GenerateDevicePassword produces a 16-character CSPRNG secret. The
// plaintext is returned exactly once to the caller (§4.4); Televent never
// stores it.
func GenerateDevicePassword() (string, error) {
	var b strings.Builder
	alphabetLen := big.NewInt(int64(len(devicePasswordAlphabet)))
	for i := 0; i < devicePasswordLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("auth: generate device password: %w", err)
		}
		b.WriteByte(devicePasswordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// HashPassword encodes an Argon2id hash of plaintext using the parameters
// §4.4 mandates (>=19MiB memory, 2 iterations, parallelism 1, random
// per-secret salt), in the same `$argon2id$v=...$m=...,t=...,p=...$salt$hash`
// form other Argon2id libraries emit, so the encoded string is
// self-describing and salt/params can change over time without breaking
// older rows.
func HashPassword(plaintext string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(plaintext), salt, argonIterations, argonMemoryKiB, argonParallel, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonIterations, argonParallel, b64Salt, b64Hash), nil
}

// VerifyPassword checks plaintext against an encoded hash produced by
// HashPassword, in constant time.
func VerifyPassword(encoded, plaintext string) (bool, error) {
	fields := strings.Split(encoded, "$")
	// fields[0] is empty (string starts with "$"); [1]=argon2id [2]=v=..
	// [3]=m=..,t=..,p=.. [4]=salt [5]=hash
	if len(fields) != 6 || fields[1] != "argon2id" {
		return false, fmt.Errorf("auth: malformed hash encoding")
	}
	var memory, iterations, parallel int
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallel); err != nil {
		return false, fmt.Errorf("auth: malformed hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(plaintext), salt, uint32(iterations), uint32(memory), uint8(parallel), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
