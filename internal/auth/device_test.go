package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDevicePasswordLength(t *testing.T) {
	pw, err := GenerateDevicePassword()
	require.NoError(t, err)
	assert.Len(t, pw, devicePasswordLength)
}

func TestGenerateDevicePasswordIsRandom(t *testing.T) {
	a, err := GenerateDevicePassword()
	require.NoError(t, err)
	b, err := GenerateDevicePassword()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := VerifyPassword(encoded, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(encoded, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordProducesArgon2idEncoding(t *testing.T) {
	encoded, err := HashPassword("p@ssw0rd")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")
}

func TestVerifyPasswordRejectsMalformedEncoding(t *testing.T) {
	_, err := VerifyPassword("not-an-argon2-hash", "anything")
	assert.Error(t, err)
}

func TestVerifyPasswordHandlesColonInPlaintext(t *testing.T) {
	encoded, err := HashPassword("device:with:colons")
	require.NoError(t, err)
	ok, err := VerifyPassword(encoded, "device:with:colons")
	require.NoError(t, err)
	assert.True(t, ok)
}
