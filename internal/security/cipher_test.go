package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher("server-secret")
	require.NoError(t, err)

	ct, err := c.Encrypt("APP_USR-123", "seller-1")
	require.NoError(t, err)
	assert.NotContains(t, ct, "APP_USR-123")
	assert.True(t, strings.HasPrefix(ct, "v1."))

	pt, err := c.Decrypt(ct, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-123", pt)
}

func TestTokenCipherUsesFreshNonce(t *testing.T) {
	c, err := NewTokenCipher("server-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same", "seller-1")
	require.NoError(t, err)
	b, err := c.Encrypt("same", "seller-1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestTokenCipherFailsClosed(t *testing.T) {
	c, err := NewTokenCipher("server-secret")
	require.NoError(t, err)

	ct, err := c.Encrypt("APP_USR-123", "seller-1")
	require.NoError(t, err)

	t.Run("other seller", func(t *testing.T) {
		_, err := c.Decrypt(ct, "seller-2")
		assert.ErrorIs(t, err, ErrCiphertextTampered)
	})

	t.Run("flipped byte", func(t *testing.T) {
		b := []byte(ct)
		i := len("v1.") + 8
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		_, err := c.Decrypt(string(b), "seller-1")
		assert.ErrorIs(t, err, ErrCiphertextTampered)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := NewTokenCipher("another-secret")
		require.NoError(t, err)
		_, err = other.Decrypt(ct, "seller-1")
		assert.ErrorIs(t, err, ErrCiphertextTampered)
	})

	t.Run("plain base64 is rejected", func(t *testing.T) {
		_, err := c.Decrypt("QVBQX1VTUi0xMjM=", "seller-1")
		assert.ErrorIs(t, err, ErrCiphertextTampered)
	})
}

func TestNewTokenCipherRequiresSecret(t *testing.T) {
	_, err := NewTokenCipher("  ")
	assert.ErrorIs(t, err, ErrCipherKeyMissing)
}
