package snapcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	plaintext := []byte(`{"sessionId":"s-1","messages":[]}`)
	sealed, err := c.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestCipher_TamperedDataFailsToOpen(t *testing.T) {
	c, err := New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Open(sealed)
	assert.Error(t, err)
}

func TestCipher_WrongKeyFailsToOpen(t *testing.T) {
	c1, err := New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	c2, err := New([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	sealed, err := c1.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = c2.Open(sealed)
	assert.Error(t, err)
}

func TestNew_RejectsShortKeyMaterial(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}
